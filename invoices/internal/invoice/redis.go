package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository stores each invoice as a JSON string that expires with the
// invoice, and indexes a customer's invoice numbers in a sorted set scored by
// expiry.
type RedisRepository struct {
	client *redis.Client
	table  string
}

// NewRedisRepository creates a repository under the given table prefix.
func NewRedisRepository(client *redis.Client, table string) *RedisRepository {
	if table == "" {
		table = "invoices"
	}
	return &RedisRepository{client: client, table: table}
}

func (r *RedisRepository) itemKey(customer, number string) string {
	return r.table + ":" + PartitionKey(customer) + ":" + number
}

func (r *RedisRepository) indexKey(customer string) string {
	return r.table + ":" + PartitionKey(customer)
}

// Put implements Repository. Writing the same invoice twice overwrites it.
func (r *RedisRepository) Put(ctx context.Context, inv *Invoice) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode invoice %s: %w", inv.InvoiceNumber, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.itemKey(inv.CustomerName, inv.InvoiceNumber), data, 0)
		pipe.ExpireAt(ctx, r.itemKey(inv.CustomerName, inv.InvoiceNumber), inv.ExpiresAt)
		pipe.ZAdd(ctx, r.indexKey(inv.CustomerName), redis.Z{
			Score:  float64(inv.ExpiresAt.Unix()),
			Member: inv.InvoiceNumber,
		})
		pipe.ExpireAt(ctx, r.indexKey(inv.CustomerName), inv.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put invoice %s/%s: %w", inv.CustomerName, inv.InvoiceNumber, err)
	}
	return nil
}

// Get implements Repository.
func (r *RedisRepository) Get(ctx context.Context, customerName, invoiceNumber string) (*Invoice, error) {
	data, err := r.client.Get(ctx, r.itemKey(customerName, invoiceNumber)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice %s/%s: %w", customerName, invoiceNumber, err)
	}

	var inv Invoice
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("decode invoice %s/%s: %w", customerName, invoiceNumber, err)
	}
	return &inv, nil
}

// ListByCustomer implements Repository, ordered by invoice number.
func (r *RedisRepository) ListByCustomer(ctx context.Context, customerName string) ([]*Invoice, error) {
	idx := r.indexKey(customerName)
	now := strconv.FormatInt(time.Now().Unix(), 10)

	if err := r.client.ZRemRangeByScore(ctx, idx, "-inf", "("+now).Err(); err != nil {
		return nil, fmt.Errorf("prune invoice index %s: %w", customerName, err)
	}
	numbers, err := r.client.ZRange(ctx, idx, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list invoices %s: %w", customerName, err)
	}
	sort.Strings(numbers)

	invoices := make([]*Invoice, 0, len(numbers))
	for _, n := range numbers {
		inv, err := r.Get(ctx, customerName, n)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, nil
}
