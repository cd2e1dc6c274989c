// Package notify pushes transaction status changes to the client that owns
// the transaction. Delivery is best effort.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/gagps/ecommerce-cx/common/logging"
	"github.com/gagps/ecommerce-cx/invoices/internal/connection"
	"github.com/gagps/ecommerce-cx/invoices/internal/metrics"
	"github.com/gagps/ecommerce-cx/invoices/internal/transaction"
)

// Message is the push payload sent to clients.
type Message struct {
	Key    string             `json:"key"`
	Status transaction.Status `json:"status"`
}

// Notifier sends status messages through a Pusher.
type Notifier struct {
	pusher connection.Pusher
	logger *slog.Logger
}

// New creates a Notifier over pusher.
func New(pusher connection.Pusher) *Notifier {
	return &Notifier{
		pusher: pusher,
		logger: logging.Component("notifier"),
	}
}

// Notify pushes {key, status} to connectionID and reports whether the push
// was delivered. Failures are logged and never retried.
func (n *Notifier) Notify(ctx context.Context, connectionID, key string, status transaction.Status) bool {
	data, err := json.Marshal(Message{Key: key, Status: status})
	if err != nil {
		n.logger.Error("Failed to encode status message", logging.TransactionKey(key), logging.Error(err))
		return false
	}

	err = n.pusher.Push(ctx, connectionID, data)
	switch {
	case err == nil:
		metrics.NotificationsTotal.WithLabelValues(string(status), "delivered").Inc()
		return true
	case errors.Is(err, connection.ErrGone):
		metrics.NotificationsTotal.WithLabelValues(string(status), "gone").Inc()
		n.logger.Debug("Connection gone, status not delivered",
			logging.ConnectionID(connectionID),
			logging.TransactionKey(key),
			logging.TxStatus(status))
	default:
		metrics.NotificationsTotal.WithLabelValues(string(status), "failed").Inc()
		n.logger.Warn("Failed to push status",
			logging.ConnectionID(connectionID),
			logging.TransactionKey(key),
			logging.TxStatus(status),
			logging.Error(err))
	}
	return false
}
