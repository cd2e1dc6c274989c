package transaction

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis instance and a client for testing
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_PutGet(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisStore(client, "invoices")
	ctx := context.Background()

	tx := New("abc123", "conn-1", time.Now(), 5*time.Minute)
	require.NoError(t, store.Put(ctx, tx))
	assert.True(t, mr.Exists("invoices:#transaction:abc123"))

	got, err := store.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.Key)
	assert.Equal(t, "conn-1", got.ConnectionID)
	assert.Equal(t, StatusSlotIssued, got.Status)
	assert.WithinDuration(t, tx.CreatedAt, got.CreatedAt, time.Millisecond)
	assert.Equal(t, tx.ExpiresAt.Unix(), got.ExpiresAt.Unix())

	err = store.Put(ctx, tx)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestRedisStore_GetMissing(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisStore(client, "")

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))
}

func TestRedisStore_Expiry(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisStore(client, "invoices")
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, New("k", "c", time.Now(), 5*time.Minute)))

	mr.FastForward(4 * time.Minute)
	_, err := store.Get(ctx, "k")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Transition(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisStore(client, "invoices")
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, New("k", "c", time.Now(), time.Minute)))

	t.Run("valid move", func(t *testing.T) {
		require.NoError(t, store.Transition(ctx, "k", StatusSlotIssued, StatusReceived))
		got, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, StatusReceived, got.Status)
	})

	t.Run("stale from", func(t *testing.T) {
		err := store.Transition(ctx, "k", StatusSlotIssued, StatusReceived)
		assert.ErrorIs(t, err, ErrStaleTransition)
	})

	t.Run("illegal move rejected before touching redis", func(t *testing.T) {
		err := store.Transition(ctx, "k", StatusReceived, StatusSlotIssued)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("terminal", func(t *testing.T) {
		require.NoError(t, store.Transition(ctx, "k", StatusReceived, StatusFailedValidation))
		assert.ErrorIs(t, store.Transition(ctx, "k", StatusFailedValidation, StatusProcessed), ErrInvalidTransition)
	})

	t.Run("missing", func(t *testing.T) {
		err := store.Transition(ctx, "other", StatusSlotIssued, StatusReceived)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRedisStore_TransitionPreservesTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisStore(client, "invoices")
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, New("k", "c", time.Now(), time.Minute)))

	require.NoError(t, store.Transition(ctx, "k", StatusSlotIssued, StatusReceived))
	assert.Greater(t, mr.TTL("invoices:#transaction:k"), time.Duration(0))
}

func TestRedisStore_DeleteIfStatus(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisStore(client, "invoices")
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, New("k", "c", time.Now(), time.Minute)))

	assert.ErrorIs(t, store.DeleteIfStatus(ctx, "k", StatusReceived), ErrStaleTransition)
	require.NoError(t, store.DeleteIfStatus(ctx, "k", StatusSlotIssued))
	assert.ErrorIs(t, store.DeleteIfStatus(ctx, "k", StatusSlotIssued), ErrNotFound)
}
