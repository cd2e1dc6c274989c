// Package slot issues upload slots: a fresh transaction key, a
// pre-authorized write target for it and the SLOT_ISSUED record that ties
// the key to the requesting connection.
package slot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gagps/ecommerce-cx/common/logging"
	"github.com/gagps/ecommerce-cx/invoices/internal/metrics"
	"github.com/gagps/ecommerce-cx/invoices/internal/objectstore"
	"github.com/gagps/ecommerce-cx/invoices/internal/transaction"
)

// StatusCancelled is the socket reply to a successful cancelImport. It is
// not a transaction status.
const StatusCancelled = "CANCELLED"

// ErrNotCancellable means the slot was already used, or never existed.
var ErrNotCancellable = errors.New("upload slot cannot be cancelled")

// Slot is the reply to an upload slot request.
type Slot struct {
	TransactionKey string    `json:"transactionId"`
	URL            string    `json:"url"`
	Method         string    `json:"method"`
	ExpiresAt      time.Time `json:"expires"`
}

// Issuer creates upload slots.
type Issuer struct {
	store     transaction.Store
	presigner objectstore.Presigner
	ttl       time.Duration
	newKey    func() string
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithKeyGenerator replaces the random transaction key generator.
func WithKeyGenerator(f func() string) Option {
	return func(i *Issuer) { i.newKey = f }
}

// NewIssuer creates an issuer. A non-positive ttl uses transaction.DefaultSlotTTL.
func NewIssuer(store transaction.Store, presigner objectstore.Presigner, ttl time.Duration, opts ...Option) *Issuer {
	if ttl <= 0 {
		ttl = transaction.DefaultSlotTTL
	}
	i := &Issuer{
		store:     store,
		presigner: presigner,
		ttl:       ttl,
		newKey:    uuid.NewString,
		now:       time.Now,
		logger:    logging.Component("slot-issuer"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IssueSlot records a new SLOT_ISSUED transaction for connectionID and
// returns where to upload. The target is presigned first so no record is
// written for a slot the client could never use.
func (i *Issuer) IssueSlot(ctx context.Context, connectionID string) (*Slot, error) {
	key := i.newKey()

	url, err := i.presigner.PresignPut(ctx, key, i.ttl)
	if err != nil {
		metrics.SlotsIssuedTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("presign upload target: %w", err)
	}

	tx := transaction.New(key, connectionID, i.now(), i.ttl)
	if err := i.store.Put(ctx, tx); err != nil {
		metrics.SlotsIssuedTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("record transaction %s: %w", key, err)
	}

	metrics.SlotsIssuedTotal.WithLabelValues("ok").Inc()
	i.logger.InfoContext(ctx, "Upload slot issued",
		logging.ConnectionID(connectionID),
		logging.TransactionKey(key))

	return &Slot{
		TransactionKey: key,
		URL:            url,
		Method:         http.MethodPut,
		ExpiresAt:      tx.ExpiresAt,
	}, nil
}

// Cancel deletes an unused slot owned by connectionID.
func (i *Issuer) Cancel(ctx context.Context, connectionID, key string) error {
	tx, err := i.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			return ErrNotCancellable
		}
		return fmt.Errorf("load transaction %s: %w", key, err)
	}
	if tx.ConnectionID != connectionID || tx.Status != transaction.StatusSlotIssued {
		return ErrNotCancellable
	}

	if err := i.store.DeleteIfStatus(ctx, key, transaction.StatusSlotIssued); err != nil {
		if errors.Is(err, transaction.ErrNotFound) || errors.Is(err, transaction.ErrStaleTransition) {
			return ErrNotCancellable
		}
		return fmt.Errorf("cancel transaction %s: %w", key, err)
	}

	metrics.SlotsCancelledTotal.Inc()
	i.logger.InfoContext(ctx, "Upload slot cancelled",
		logging.ConnectionID(connectionID),
		logging.TransactionKey(key))
	return nil
}
