package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gagps/ecommerce-cx/common/config"
)

func TestSetTimeouts(t *testing.T) {
	t.Cleanup(func() { SetTimeouts(Timeouts{}) })

	SetTimeouts(TimeoutsFrom(config.PostgresConfig{WriteTimeout: 2 * time.Second}))
	got := CurrentTimeouts()
	assert.Equal(t, defaultTimeouts.Query, got.Query)
	assert.Equal(t, 2*time.Second, got.Write)
	assert.Equal(t, defaultTimeouts.Bulk, got.Bulk)

	ctx, cancel := WriteContext(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(2*time.Second), deadline, time.Second)
}

func TestQueryContext_HonorsParentCancel(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := QueryContext(parent)
	defer cancel()

	cancelParent()
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
