// Package ingest turns completed uploads into invoices and drives the
// transaction through RECEIVED to its terminal status, notifying the
// owning connection along the way.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gagps/ecommerce-cx/common/logging"
	"github.com/gagps/ecommerce-cx/invoices/internal/invoice"
	"github.com/gagps/ecommerce-cx/invoices/internal/metrics"
	"github.com/gagps/ecommerce-cx/invoices/internal/objectstore"
	"github.com/gagps/ecommerce-cx/invoices/internal/transaction"
)

// StorageEvent names one object that finished uploading.
type StorageEvent struct {
	Bucket string
	Key    string
}

// Result describes how an event was handled.
type Result struct {
	Key string
	// Status is the terminal status reached, or the stored status for a
	// duplicate. Empty for untracked objects.
	Status transaction.Status
	// Duplicate is set when the transaction had already left SLOT_ISSUED.
	Duplicate bool
	// Tracked is false when no live transaction matched the key.
	Tracked bool
	Invoice *invoice.Invoice
}

// Notifier pushes a status to a connection. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, connectionID, key string, status transaction.Status) bool
}

// Processor handles storage completion events.
type Processor struct {
	transactions transaction.Store
	invoices     invoice.Repository
	objects      objectstore.Store
	notifier     Notifier
	invoiceTTL   time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// NewProcessor creates a processor. A non-positive invoiceTTL uses
// invoice.DefaultTTL.
func NewProcessor(transactions transaction.Store, invoices invoice.Repository, objects objectstore.Store, notifier Notifier, invoiceTTL time.Duration) *Processor {
	if invoiceTTL <= 0 {
		invoiceTTL = invoice.DefaultTTL
	}
	return &Processor{
		transactions: transactions,
		invoices:     invoices,
		objects:      objects,
		notifier:     notifier,
		invoiceTTL:   invoiceTTL,
		now:          time.Now,
		logger:       logging.Component("ingest-processor"),
	}
}

// HandleStorageCompleted ingests the object named by ev.
//
// A transaction that already left SLOT_ISSUED marks a repeated delivery: its
// current status is pushed again and nothing else happens. Otherwise the
// transaction moves to RECEIVED, the object is parsed and, when valid,
// stored as an invoice while the object is deleted. The transaction then
// moves to PROCESSED or FAILED_VALIDATION. Objects without a transaction are
// still ingested but nobody is notified.
//
// Store and object storage failures are returned for the caller to retry;
// notification failures never are.
func (p *Processor) HandleStorageCompleted(ctx context.Context, ev StorageEvent) (res *Result, err error) {
	start := time.Now()
	logger := p.logger.With(logging.TransactionKey(ev.Key))
	defer func() {
		metrics.IngestDuration.Observe(time.Since(start).Seconds())
		metrics.IngestTotal.WithLabelValues(outcome(res, err)).Inc()
	}()

	res = &Result{Key: ev.Key}

	tx, err := p.transactions.Get(ctx, ev.Key)
	switch {
	case err == nil:
		res.Tracked = true
	case errors.Is(err, transaction.ErrNotFound):
		logger.WarnContext(ctx, "No transaction for uploaded object, ingesting without notifications")
	default:
		return nil, fmt.Errorf("load transaction %s: %w", ev.Key, err)
	}

	if res.Tracked && tx.Status != transaction.StatusSlotIssued {
		return p.duplicate(ctx, res, tx), nil
	}

	if res.Tracked {
		var g errgroup.Group
		g.Go(func() error {
			p.notifier.Notify(ctx, tx.ConnectionID, tx.Key, transaction.StatusReceived)
			return nil
		})
		g.Go(func() error {
			return p.transactions.Transition(ctx, tx.Key, transaction.StatusSlotIssued, transaction.StatusReceived)
		})
		switch err := g.Wait(); {
		case err == nil:
		case errors.Is(err, transaction.ErrStaleTransition):
			// Another delivery got here first.
			current, gerr := p.transactions.Get(ctx, ev.Key)
			if gerr != nil {
				if errors.Is(gerr, transaction.ErrNotFound) {
					res.Duplicate = true
					return res, nil
				}
				return nil, fmt.Errorf("reload transaction %s: %w", ev.Key, gerr)
			}
			return p.duplicate(ctx, res, current), nil
		case errors.Is(err, transaction.ErrNotFound):
			logger.WarnContext(ctx, "Transaction expired while ingesting, continuing without notifications")
			res.Tracked = false
		default:
			return nil, fmt.Errorf("mark transaction %s received: %w", ev.Key, err)
		}
	}

	data, err := p.objects.Read(ctx, ev.Key)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", ev.Key, err)
	}

	final := transaction.StatusProcessed
	var writes errgroup.Group
	payload, perr := invoice.ParsePayload(data)
	if perr != nil {
		final = transaction.StatusFailedValidation
		logger.InfoContext(ctx, "Upload failed validation", logging.Error(perr))
	} else {
		inv := invoice.FromPayload(payload, ev.Key, p.now(), p.invoiceTTL)
		res.Invoice = inv
		writes.Go(func() error {
			if err := p.invoices.Put(ctx, inv); err != nil {
				return fmt.Errorf("store invoice %s: %w", inv.InvoiceNumber, err)
			}
			return nil
		})
		writes.Go(func() error {
			if err := p.objects.Delete(ctx, ev.Key); err != nil {
				return fmt.Errorf("delete object %s: %w", ev.Key, err)
			}
			return nil
		})
	}
	res.Status = final

	var finalErr error
	if res.Tracked {
		var g errgroup.Group
		g.Go(func() error {
			p.notifier.Notify(ctx, tx.ConnectionID, tx.Key, final)
			return nil
		})
		g.Go(func() error {
			return p.transactions.Transition(ctx, tx.Key, transaction.StatusReceived, final)
		})
		switch err := g.Wait(); {
		case err == nil:
		case errors.Is(err, transaction.ErrStaleTransition), errors.Is(err, transaction.ErrNotFound):
			logger.WarnContext(ctx, "Final status not recorded", logging.TxStatus(final), logging.Error(err))
		default:
			finalErr = fmt.Errorf("mark transaction %s %s: %w", ev.Key, final, err)
		}
	}

	if err := errors.Join(finalErr, writes.Wait()); err != nil {
		return res, err
	}

	logger.InfoContext(ctx, "Upload ingested", logging.TxStatus(final), slog.Bool("tracked", res.Tracked))
	return res, nil
}

func (p *Processor) duplicate(ctx context.Context, res *Result, tx *transaction.Transaction) *Result {
	res.Duplicate = true
	res.Status = tx.Status
	p.logger.InfoContext(ctx, "Repeated storage event, re-sending current status",
		logging.TransactionKey(tx.Key),
		logging.TxStatus(tx.Status))
	p.notifier.Notify(ctx, tx.ConnectionID, tx.Key, tx.Status)
	return res
}

func outcome(res *Result, err error) string {
	switch {
	case err != nil:
		return "error"
	case res.Duplicate:
		return "duplicate"
	case !res.Tracked:
		return "untracked"
	default:
		return string(res.Status)
	}
}
