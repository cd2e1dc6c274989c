package eventrecord

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gagps/ecommerce-cx/common/audit"
	"github.com/gagps/ecommerce-cx/common/database/dbtest"
)

func TestPostgresStore_PutQueryPurge(t *testing.T) {
	pool := dbtest.NewPool(t)
	store := NewPostgresStore(pool, audit.NewSigner("test-secret"), nil)
	ctx := context.Background()

	created := NewRecord("#order_o-1", "ORDER_CREATED", time.Hour)
	created.Email = "buyer@example.com"
	created.RequestID = "req-1"
	created.Info = map[string]any{"orderId": "o-1", "productCodes": []any{"COD1"}}
	require.NoError(t, store.Put(ctx, created))
	assert.NotEmpty(t, created.Signature)

	product := NewRecord("#product_COD1", "PRODUCT_CREATED", time.Hour)
	product.Email = "buyer@example.com"
	require.NoError(t, store.Put(ctx, product))

	expired := newRecordAt("#order_o-2", "ORDER_DELETED", time.Minute, time.Now().Add(-time.Hour))
	expired.Email = "buyer@example.com"
	require.NoError(t, store.Put(ctx, expired))

	got, err := store.QueryByEmail(ctx, "buyer@example.com", "ORDER_")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, created.SK, got[0].SK)
	assert.Equal(t, "o-1", got[0].Info["orderId"])
	assert.True(t, store.Verify(got[0]))

	got, err = store.QueryByEmail(ctx, "buyer@example.com", "PRODUCT_CREATED")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	n, err := store.PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPostgresStore_DropsTamperedRecords(t *testing.T) {
	pool := dbtest.NewPool(t)
	store := NewPostgresStore(pool, audit.NewSigner("test-secret"), nil)
	ctx := context.Background()

	r := NewRecord("#order_o-9", "ORDER_CREATED", time.Hour)
	r.Email = "x@example.com"
	require.NoError(t, store.Put(ctx, r))

	_, err := pool.Exec(ctx, `UPDATE event_records SET info = '{"orderId":"forged"}' WHERE pk = $1`, r.PK)
	require.NoError(t, err)

	got, err := store.QueryByEmail(ctx, "x@example.com", "ORDER_")
	require.NoError(t, err)
	assert.Empty(t, got)
}
