// Package transaction tracks invoice upload transactions: one record per
// issued upload slot, keyed by the storage object key, carrying the owning
// connection and the lifecycle status.
package transaction

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means no live record exists for the key.
	ErrNotFound = errors.New("transaction not found")
	// ErrAlreadyExists is returned by Put when the key is taken.
	ErrAlreadyExists = errors.New("transaction already exists")
	// ErrStaleTransition means the stored status no longer matched the expected one.
	ErrStaleTransition = errors.New("transaction status changed concurrently")
	// ErrInvalidTransition means the requested move is not in the transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// PartitionKey is the shared partition for every transaction record.
const PartitionKey = "#transaction"

// DefaultSlotTTL bounds how long an unused upload slot lives.
const DefaultSlotTTL = 5 * time.Minute

// Transaction is one upload attempt.
type Transaction struct {
	Key          string    `json:"key"`
	ConnectionID string    `json:"connectionId"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// New builds a SLOT_ISSUED transaction that expires ttl after now.
func New(key, connectionID string, now time.Time, ttl time.Duration) *Transaction {
	if ttl <= 0 {
		ttl = DefaultSlotTTL
	}
	return &Transaction{
		Key:          key,
		ConnectionID: connectionID,
		Status:       StatusSlotIssued,
		CreatedAt:    now.UTC(),
		ExpiresAt:    now.UTC().Add(ttl),
	}
}

// Store persists transactions. Transition and DeleteIfStatus are conditional
// on the currently stored status.
type Store interface {
	Get(ctx context.Context, key string) (*Transaction, error)
	Put(ctx context.Context, tx *Transaction) error
	// Transition moves key from one status to another. It returns
	// ErrInvalidTransition for moves outside the table, ErrNotFound when the
	// record is gone and ErrStaleTransition when the stored status is not from.
	Transition(ctx context.Context, key string, from, to Status) error
	// DeleteIfStatus removes key only while it still has status.
	DeleteIfStatus(ctx context.Context, key string, status Status) error
}
