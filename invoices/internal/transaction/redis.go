package transaction

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each transaction in a hash that Redis expires at the
// transaction's TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store; keys are "<table>:#transaction:<key>".
func NewRedisStore(client *redis.Client, table string) *RedisStore {
	if table == "" {
		table = "invoices"
	}
	return &RedisStore{client: client, prefix: table + ":" + PartitionKey + ":"}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + key
}

// putScript creates the hash only when the key is free.
var putScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'connectionId', ARGV[1], 'status', ARGV[2], 'createdAt', ARGV[3], 'ttl', ARGV[4])
redis.call('EXPIREAT', KEYS[1], ARGV[4])
return 1
`)

// transitionScript compares and swaps the status field.
// Returns 1 on success, 0 when the key is missing, -1 on a status mismatch.
var transitionScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
	return 0
end
if cur ~= ARGV[1] then
	return -1
end
redis.call('HSET', KEYS[1], 'status', ARGV[2])
return 1
`)

// deleteIfScript deletes the hash while its status equals ARGV[1].
var deleteIfScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
	return 0
end
if cur ~= ARGV[1] then
	return -1
end
redis.call('DEL', KEYS[1])
return 1
`)

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (*Transaction, error) {
	fields, err := s.client.HGetAll(ctx, s.redisKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	status, err := ParseStatus(fields["status"])
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", key, err)
	}
	created, err := time.Parse(time.RFC3339Nano, fields["createdAt"])
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s createdAt: %w", key, err)
	}
	ttl, err := strconv.ParseInt(fields["ttl"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s ttl: %w", key, err)
	}

	return &Transaction{
		Key:          key,
		ConnectionID: fields["connectionId"],
		Status:       status,
		CreatedAt:    created,
		ExpiresAt:    time.Unix(ttl, 0).UTC(),
	}, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, tx *Transaction) error {
	if !tx.Status.Valid() {
		return fmt.Errorf("put transaction %s: unknown status %q", tx.Key, tx.Status)
	}
	res, err := putScript.Run(ctx, s.client, []string{s.redisKey(tx.Key)},
		tx.ConnectionID, string(tx.Status), tx.CreatedAt.UTC().Format(time.RFC3339Nano), tx.ExpiresAt.Unix(),
	).Int()
	if err != nil {
		return fmt.Errorf("put transaction %s: %w", tx.Key, err)
	}
	if res == 0 {
		return fmt.Errorf("put transaction %s: %w", tx.Key, ErrAlreadyExists)
	}
	return nil
}

// Transition implements Store.
func (s *RedisStore) Transition(ctx context.Context, key string, from, to Status) error {
	if err := from.CheckTransition(to); err != nil {
		return err
	}
	res, err := transitionScript.Run(ctx, s.client, []string{s.redisKey(key)}, string(from), string(to)).Int()
	if err != nil {
		return fmt.Errorf("transition transaction %s: %w", key, err)
	}
	return conditionalResult(key, res)
}

// DeleteIfStatus implements Store.
func (s *RedisStore) DeleteIfStatus(ctx context.Context, key string, status Status) error {
	res, err := deleteIfScript.Run(ctx, s.client, []string{s.redisKey(key)}, string(status)).Int()
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", key, err)
	}
	return conditionalResult(key, res)
}

func conditionalResult(key string, res int) error {
	switch res {
	case 1:
		return nil
	case 0:
		return ErrNotFound
	default:
		return fmt.Errorf("transaction %s: %w", key, ErrStaleTransition)
	}
}

// IsNotFound reports whether err means the transaction is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
