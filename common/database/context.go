package database

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gagps/ecommerce-cx/common/config"
)

// Timeouts bounds the repository calls of the products, orders and
// event-record stores. Zero fields fall back to the defaults below.
type Timeouts struct {
	Query time.Duration // single-row lookups and listings
	Write time.Duration // inserts, stock updates, status transitions
	Bulk  time.Duration // retention purges and migrations
}

var defaultTimeouts = Timeouts{
	Query: 5 * time.Second,
	Write: 10 * time.Second,
	Bulk:  30 * time.Second,
}

var activeTimeouts atomic.Pointer[Timeouts]

// TimeoutsFrom reads the timeouts configured under database.postgres.
func TimeoutsFrom(cfg config.PostgresConfig) Timeouts {
	return Timeouts{Query: cfg.QueryTimeout, Write: cfg.WriteTimeout, Bulk: cfg.BulkTimeout}
}

// SetTimeouts replaces the process-wide timeouts. Connect calls it.
func SetTimeouts(t Timeouts) {
	if t.Query <= 0 {
		t.Query = defaultTimeouts.Query
	}
	if t.Write <= 0 {
		t.Write = defaultTimeouts.Write
	}
	if t.Bulk <= 0 {
		t.Bulk = defaultTimeouts.Bulk
	}
	activeTimeouts.Store(&t)
}

// CurrentTimeouts returns the timeouts in effect.
func CurrentTimeouts() Timeouts {
	if t := activeTimeouts.Load(); t != nil {
		return *t
	}
	return defaultTimeouts
}

func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, CurrentTimeouts().Query)
}

func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, CurrentTimeouts().Write)
}

func BulkContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, CurrentTimeouts().Bulk)
}
