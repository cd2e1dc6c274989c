package invoice

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memDynamo keeps items keyed by pk/sk and pages Query results two at a time.
type memDynamo struct {
	items map[string]map[string]types.AttributeValue
}

func newMemDynamo() *memDynamo {
	return &memDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func keyOf(item map[string]types.AttributeValue) string {
	return item["pk"].(*types.AttributeValueMemberS).Value + "|" + item["sk"].(*types.AttributeValueMemberS).Value
}

func (m *memDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.items[keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *memDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: m.items[keyOf(in.Key)]}, nil
}

func (m *memDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value
	var matched []map[string]types.AttributeValue
	for _, it := range m.items {
		if it["pk"].(*types.AttributeValueMemberS).Value == pk {
			matched = append(matched, it)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return keyOf(matched[i]) < keyOf(matched[j]) })
	start := 0
	if in.ExclusiveStartKey != nil {
		start = 2
	}
	end := start + 2
	out := &dynamodb.QueryOutput{}
	if end < len(matched) {
		out.LastEvaluatedKey = matched[end-1]
	} else {
		end = len(matched)
	}
	if start < end {
		out.Items = matched[start:end]
	}
	return out, nil
}

func TestDynamoRepository_PutGet(t *testing.T) {
	db := newMemDynamo()
	repo := NewDynamoRepository(db, "invoices")
	ctx := context.Background()

	inv := fakeInvoice("Alice")
	require.NoError(t, repo.Put(ctx, inv))

	stored := db.items["#invoice_Alice|"+inv.InvoiceNumber]
	require.NotNil(t, stored)
	var it dynamoItem
	require.NoError(t, attributevalue.UnmarshalMap(stored, &it))
	assert.Equal(t, inv.ExpiresAt.Unix(), it.TTL)

	got, err := repo.Get(ctx, "Alice", inv.InvoiceNumber)
	require.NoError(t, err)
	assert.Equal(t, inv.InvoiceNumber, got.InvoiceNumber)
	assert.Equal(t, inv.CreatedAt, got.CreatedAt)
	assert.Equal(t, inv.ExpiresAt, got.ExpiresAt)
}

func TestDynamoRepository_GetExpired(t *testing.T) {
	db := newMemDynamo()
	repo := NewDynamoRepository(db, "invoices")
	inv := fakeInvoice("Alice")
	require.NoError(t, repo.Put(context.Background(), inv))

	repo.now = func() time.Time { return inv.ExpiresAt.Add(time.Second) }
	_, err := repo.Get(context.Background(), "Alice", inv.InvoiceNumber)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDynamoRepository_ListByCustomerPages(t *testing.T) {
	db := newMemDynamo()
	repo := NewDynamoRepository(db, "invoices")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Put(ctx, fakeInvoice("Alice")))
	}
	require.NoError(t, repo.Put(ctx, fakeInvoice("Bob")))

	list, err := repo.ListByCustomer(ctx, "Alice")
	require.NoError(t, err)
	assert.Len(t, list, 3)
	for _, inv := range list {
		assert.Equal(t, "Alice", inv.CustomerName)
	}
}

func TestDynamoRepository_TableName(t *testing.T) {
	db := &recordingDynamo{}
	repo := NewDynamoRepository(db, "ecx-table")
	require.NoError(t, repo.Put(context.Background(), fakeInvoice("Alice")))
	assert.Equal(t, "ecx-table", aws.ToString(db.put.TableName))
}

type recordingDynamo struct {
	memDynamo
	put *dynamodb.PutItemInput
}

func (r *recordingDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	r.put = in
	return &dynamodb.PutItemOutput{}, nil
}
