// Package eventrecord stores short-lived, signed audit records of product and
// order events. Records share one table keyed by (pk, sk) and expire after a
// per-record TTL.
package eventrecord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRecord is returned when a record is missing its key or event type.
var ErrInvalidRecord = errors.New("invalid event record")

// Record is one persisted event.
type Record struct {
	PK        string         `json:"pk"`
	SK        string         `json:"sk"`
	EventType string         `json:"eventType"`
	Email     string         `json:"email,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	Info      map[string]any `json:"info,omitempty"`
	Signature string         `json:"-"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// NewRecord builds a record under pk whose sort key is "<eventType>#<unix ms>".
func NewRecord(pk, eventType string, ttl time.Duration) *Record {
	return newRecordAt(pk, eventType, ttl, time.Now().UTC())
}

func newRecordAt(pk, eventType string, ttl time.Duration, now time.Time) *Record {
	return &Record{
		PK:        pk,
		SK:        fmt.Sprintf("%s#%d", eventType, now.UnixMilli()),
		EventType: eventType,
		Info:      map[string]any{},
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Validate checks the fields every backend requires.
func (r *Record) Validate() error {
	switch {
	case r.PK == "":
		return fmt.Errorf("%w: missing pk", ErrInvalidRecord)
	case r.SK == "":
		return fmt.Errorf("%w: missing sk", ErrInvalidRecord)
	case r.EventType == "":
		return fmt.Errorf("%w: missing event type", ErrInvalidRecord)
	case !r.ExpiresAt.After(r.CreatedAt):
		return fmt.Errorf("%w: expiry must follow creation", ErrInvalidRecord)
	}
	return nil
}

// Expired reports whether the record's TTL has elapsed at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// HasSKPrefix reports whether the sort key starts with prefix.
func (r *Record) HasSKPrefix(prefix string) bool {
	return strings.HasPrefix(r.SK, prefix)
}

// Store persists event records.
type Store interface {
	Put(ctx context.Context, r *Record) error
	// QueryByEmail returns unexpired records for email whose sort key starts
	// with skPrefix, newest first.
	QueryByEmail(ctx context.Context, email, skPrefix string) ([]*Record, error)
	// PurgeExpired deletes records that expired before now.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
