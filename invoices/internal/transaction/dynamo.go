package transaction

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

var _ DynamoAPI = (*dynamodb.Client)(nil)

// dynamoItem is the single-table item shape: pk/sk plus a ttl in epoch seconds.
type dynamoItem struct {
	PK           string `dynamodbav:"pk"`
	SK           string `dynamodbav:"sk"`
	ConnectionID string `dynamodbav:"connectionId"`
	Status       string `dynamodbav:"status"`
	CreatedAt    string `dynamodbav:"createdAt"`
	TTL          int64  `dynamodbav:"ttl"`
}

// DynamoStore keeps transactions in a single DynamoDB table.
// DynamoDB deletes expired items lazily, so reads and conditions also check ttl.
type DynamoStore struct {
	client DynamoAPI
	table  string
	now    func() time.Time
}

// NewDynamoStore creates a store over table.
func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table, now: time.Now}
}

func itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: PartitionKey},
		"sk": &types.AttributeValueMemberS{Value: key},
	}
}

func (s *DynamoStore) nowValue() types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Unix(), 10)}
}

// Get implements Store.
func (s *DynamoStore) Get(ctx context.Context, key string) (*Transaction, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", key, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", key, err)
	}
	if item.TTL <= s.now().Unix() {
		return nil, ErrNotFound
	}
	return item.toTransaction()
}

func (item dynamoItem) toTransaction() (*Transaction, error) {
	status, err := ParseStatus(item.Status)
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", item.SK, err)
	}
	created, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s createdAt: %w", item.SK, err)
	}
	return &Transaction{
		Key:          item.SK,
		ConnectionID: item.ConnectionID,
		Status:       status,
		CreatedAt:    created,
		ExpiresAt:    time.Unix(item.TTL, 0).UTC(),
	}, nil
}

// Put implements Store. An expired item under the same key may be replaced.
func (s *DynamoStore) Put(ctx context.Context, tx *Transaction) error {
	if !tx.Status.Valid() {
		return fmt.Errorf("put transaction %s: unknown status %q", tx.Key, tx.Status)
	}
	av, err := attributevalue.MarshalMap(dynamoItem{
		PK:           PartitionKey,
		SK:           tx.Key,
		ConnectionID: tx.ConnectionID,
		Status:       string(tx.Status),
		CreatedAt:    tx.CreatedAt.UTC().Format(time.RFC3339Nano),
		TTL:          tx.ExpiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("encode transaction %s: %w", tx.Key, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.table),
		Item:                      av,
		ConditionExpression:       aws.String("attribute_not_exists(sk) OR #ttl <= :now"),
		ExpressionAttributeNames:  map[string]string{"#ttl": "ttl"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":now": s.nowValue()},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("put transaction %s: %w", tx.Key, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("put transaction %s: %w", tx.Key, err)
	}
	return nil
}

// Transition implements Store.
func (s *DynamoStore) Transition(ctx context.Context, key string, from, to Status) error {
	if err := from.CheckTransition(to); err != nil {
		return err
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 itemKey(key),
		UpdateExpression:    aws.String("SET #status = :to"),
		ConditionExpression: aws.String("attribute_exists(sk) AND #status = :from AND #ttl > :now"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
			"#ttl":    "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":from": &types.AttributeValueMemberS{Value: string(from)},
			":to":   &types.AttributeValueMemberS{Value: string(to)},
			":now":  s.nowValue(),
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	return s.conditionalError(key, "transition", err)
}

// DeleteIfStatus implements Store.
func (s *DynamoStore) DeleteIfStatus(ctx context.Context, key string, status Status) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.table),
		Key:                 itemKey(key),
		ConditionExpression: aws.String("attribute_exists(sk) AND #status = :status AND #ttl > :now"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
			"#ttl":    "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":now":    s.nowValue(),
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	return s.conditionalError(key, "delete", err)
}

// conditionalError maps a failed condition to ErrNotFound when no live item
// was returned and to ErrStaleTransition otherwise.
func (s *DynamoStore) conditionalError(key, op string, err error) error {
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return fmt.Errorf("%s transaction %s: %w", op, key, err)
	}
	if len(ccf.Item) == 0 {
		return ErrNotFound
	}
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(ccf.Item, &item); err == nil && item.TTL <= s.now().Unix() {
		return ErrNotFound
	}
	return fmt.Errorf("%s transaction %s: %w", op, key, ErrStaleTransition)
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
