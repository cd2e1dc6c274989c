package eventrecord

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := newRecordAt("#order_o-1", "ORDER_CREATED", 120*time.Minute, now)

	assert.Equal(t, "#order_o-1", r.PK)
	assert.Equal(t, "ORDER_CREATED#1772366400000", r.SK)
	assert.Equal(t, now.Add(120*time.Minute), r.ExpiresAt)
	assert.True(t, r.HasSKPrefix("ORDER_"))
	assert.NoError(t, r.Validate())
}

func TestRecord_Expired(t *testing.T) {
	now := time.Now()
	r := newRecordAt("pk", "E", time.Minute, now)

	assert.False(t, r.Expired(now))
	assert.True(t, r.Expired(now.Add(time.Minute)))
}

func TestRecord_Validate(t *testing.T) {
	base := func() *Record { return newRecordAt("pk", "E", time.Minute, time.Now()) }

	r := base()
	r.PK = ""
	assert.ErrorIs(t, r.Validate(), ErrInvalidRecord)

	r = base()
	r.EventType = ""
	assert.ErrorIs(t, r.Validate(), ErrInvalidRecord)

	r = base()
	r.ExpiresAt = r.CreatedAt
	assert.ErrorIs(t, r.Validate(), ErrInvalidRecord)
}

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPurger) PurgeExpired(context.Context, time.Time) (int64, error) {
	p.calls.Add(1)
	return 2, p.err
}

func TestJanitor_RunOnce(t *testing.T) {
	p := &countingPurger{}
	j := NewJanitor(p, 0, nil)

	assert.Equal(t, time.Minute, j.interval)
	assert.Equal(t, int64(2), j.RunOnce(context.Background()))

	p.err = errors.New("db down")
	assert.Equal(t, int64(0), j.RunOnce(context.Background()))
}

func TestJanitor_RunStopsOnCancel(t *testing.T) {
	p := &countingPurger{}
	j := NewJanitor(p, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
