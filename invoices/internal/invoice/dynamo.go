package invoice

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client the repository uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ DynamoAPI = (*dynamodb.Client)(nil)

type dynamoItem struct {
	PK            string  `dynamodbav:"pk"`
	SK            string  `dynamodbav:"sk"`
	CustomerName  string  `dynamodbav:"customerName"`
	TotalValue    float64 `dynamodbav:"totalValue"`
	ProductID     string  `dynamodbav:"productId"`
	Quantity      int     `dynamodbav:"quantity"`
	TransactionID string  `dynamodbav:"transactionId"`
	CreatedAt     int64   `dynamodbav:"createdAt"`
	TTL           int64   `dynamodbav:"ttl"`
}

func (it dynamoItem) toInvoice() *Invoice {
	return &Invoice{
		CustomerName:  it.CustomerName,
		InvoiceNumber: it.SK,
		TotalValue:    it.TotalValue,
		ProductID:     it.ProductID,
		Quantity:      it.Quantity,
		TransactionID: it.TransactionID,
		CreatedAt:     time.UnixMilli(it.CreatedAt).UTC(),
		ExpiresAt:     time.Unix(it.TTL, 0).UTC(),
	}
}

// DynamoRepository stores invoices in the shared single table under
// pk "#invoice_<customerName>" and sk invoiceNumber.
type DynamoRepository struct {
	client DynamoAPI
	table  string
	now    func() time.Time
}

// NewDynamoRepository creates a repository over table.
func NewDynamoRepository(client DynamoAPI, table string) *DynamoRepository {
	return &DynamoRepository{client: client, table: table, now: time.Now}
}

// Put implements Repository.
func (r *DynamoRepository) Put(ctx context.Context, inv *Invoice) error {
	av, err := attributevalue.MarshalMap(dynamoItem{
		PK:            inv.PK(),
		SK:            inv.InvoiceNumber,
		CustomerName:  inv.CustomerName,
		TotalValue:    inv.TotalValue,
		ProductID:     inv.ProductID,
		Quantity:      inv.Quantity,
		TransactionID: inv.TransactionID,
		CreatedAt:     inv.CreatedAt.UnixMilli(),
		TTL:           inv.ExpiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("encode invoice %s: %w", inv.InvoiceNumber, err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("put invoice %s/%s: %w", inv.CustomerName, inv.InvoiceNumber, err)
	}
	return nil
}

// Get implements Repository.
func (r *DynamoRepository) Get(ctx context.Context, customerName, invoiceNumber string) (*Invoice, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: PartitionKey(customerName)},
			"sk": &types.AttributeValueMemberS{Value: invoiceNumber},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get invoice %s/%s: %w", customerName, invoiceNumber, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var it dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("decode invoice %s/%s: %w", customerName, invoiceNumber, err)
	}
	if it.TTL <= r.now().Unix() {
		return nil, ErrNotFound
	}
	return it.toInvoice(), nil
}

// ListByCustomer implements Repository, paging through the partition.
func (r *DynamoRepository) ListByCustomer(ctx context.Context, customerName string) ([]*Invoice, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		KeyConditionExpression: aws.String("pk = :pk"),
		FilterExpression:       aws.String("#ttl > :now"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":  &types.AttributeValueMemberS{Value: PartitionKey(customerName)},
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(r.now().Unix(), 10)},
		},
	}

	var invoices []*Invoice
	for {
		out, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query invoices %s: %w", customerName, err)
		}
		var items []dynamoItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("decode invoices %s: %w", customerName, err)
		}
		for _, it := range items {
			invoices = append(invoices, it.toInvoice())
		}
		if len(out.LastEvaluatedKey) == 0 {
			return invoices, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}
