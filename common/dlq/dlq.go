// Package dlq keeps storage events whose ingestion kept failing, for
// inspection and replay.
package dlq

import (
	"context"
	"errors"
	"time"
)

// Failure reasons.
const (
	ReasonMaxDeliveries  = "max_deliveries"
	ReasonMalformedEvent = "malformed_event"
)

// ErrDisabled is returned by operations on a nil queue.
var ErrDisabled = errors.New("dlq not enabled")

// FailedEvent captures one dead-lettered storage event.
type FailedEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Subject     string    `json:"subject"`
	Payload     []byte    `json:"payload"`
	Bucket      string    `json:"bucket,omitempty"`
	Key         string    `json:"key,omitempty"`
	Error       string    `json:"error"`
	Reason      string    `json:"reason"`
	Attempts    int       `json:"attempts"`
	LastAttempt time.Time `json:"last_attempt"`
}

// Stats summarizes a queue.
type Stats struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Backend  string `json:"backend" yaml:"backend"`
	Written  uint64 `json:"written" yaml:"written"`
	Messages uint64 `json:"messages" yaml:"messages"`
	Bytes    uint64 `json:"bytes,omitempty" yaml:"bytes,omitempty"`
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Queue is a dead-letter queue backend.
type Queue interface {
	Write(ctx context.Context, ev *FailedEvent) error
	List(ctx context.Context, limit int) ([]FailedEvent, error)
	Stats(ctx context.Context) Stats
	Purge(ctx context.Context) error
}

// NewFailedEvent fills the timestamps of a failed event.
func NewFailedEvent(subject string, payload []byte, err error, reason string, attempts int) *FailedEvent {
	now := time.Now().UTC()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &FailedEvent{
		Timestamp:   now,
		Subject:     subject,
		Payload:     payload,
		Error:       msg,
		Reason:      reason,
		Attempts:    attempts,
		LastAttempt: now,
	}
}
