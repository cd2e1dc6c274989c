package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/gagps/ecommerce-cx/common/logging"
	"github.com/gagps/ecommerce-cx/common/messaging"
	"github.com/gagps/ecommerce-cx/common/messaging/nats"
)

// SyncPublisher publishes and waits for the stream acknowledgement.
type SyncPublisher interface {
	PublishSync(ctx context.Context, subject string, data []byte) (*jetstream.PubAck, error)
}

// JetStreamQueue writes failed events to a JetStream stream shared by every
// ingest instance.
type JetStreamQueue struct {
	pub     SyncPublisher
	stream  jetstream.Stream
	written atomic.Uint64
	logger  *slog.Logger
}

// NewJetStreamQueue creates the DLQ stream if needed.
func NewJetStreamQueue(ctx context.Context, js *nats.JetStreamClient) (*JetStreamQueue, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream client is nil")
	}

	stream, err := js.CreateOrUpdateStream(ctx, nats.InvoicesDLQStream)
	if err != nil {
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}

	q := newJetStreamQueue(js, stream)
	q.logger.Info("DLQ stream ready", slog.String("stream", nats.InvoicesDLQStream.Name))
	return q, nil
}

func newJetStreamQueue(pub SyncPublisher, stream jetstream.Stream) *JetStreamQueue {
	return &JetStreamQueue{
		pub:    pub,
		stream: stream,
		logger: logging.Component("dlq"),
	}
}

// Write implements Queue. Events land on invoices.dlq.<reason>.
func (q *JetStreamQueue) Write(ctx context.Context, ev *FailedEvent) error {
	if q == nil {
		return nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	if _, err := q.pub.PublishSync(ctx, messaging.InvoicesDLQSubject(ev.Reason), data); err != nil {
		return fmt.Errorf("publish dlq entry: %w", err)
	}

	q.written.Add(1)
	q.logger.Warn("Storage event dead-lettered",
		logging.ObjectKey(ev.Key),
		slog.String("reason", ev.Reason),
		slog.Int("attempts", ev.Attempts))
	return nil
}

// Stats implements Queue.
func (q *JetStreamQueue) Stats(ctx context.Context) Stats {
	if q == nil {
		return Stats{Backend: "jetstream"}
	}

	st := Stats{Enabled: true, Backend: "jetstream", Written: q.written.Load(), Location: nats.InvoicesDLQStream.Name}
	if q.stream == nil {
		return st
	}
	info, err := q.stream.Info(ctx)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Messages = info.State.Msgs
	st.Bytes = info.State.Bytes
	return st
}

// List implements Queue by reading through an ephemeral consumer.
func (q *JetStreamQueue) List(ctx context.Context, limit int) ([]FailedEvent, error) {
	if q == nil || q.stream == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 100
	}

	consumer, err := q.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{messaging.SubjectInvoicesDLQPrefix + ".>"},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create list consumer: %w", err)
	}

	msgs, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	var events []FailedEvent
	for msg := range msgs.Messages() {
		var failed FailedEvent
		if err := json.Unmarshal(msg.Data(), &failed); err != nil {
			q.logger.Error("Failed to parse DLQ message", logging.Error(err))
			continue
		}
		events = append(events, failed)
	}
	if err := msgs.Error(); err != nil {
		q.logger.Warn("Fetch completed with error", logging.Error(err))
	}
	return events, nil
}

// Purge implements Queue.
func (q *JetStreamQueue) Purge(ctx context.Context) error {
	if q == nil || q.stream == nil {
		return ErrDisabled
	}
	if err := q.stream.Purge(ctx); err != nil {
		return fmt.Errorf("purge dlq stream: %w", err)
	}
	q.logger.Info("DLQ purged")
	return nil
}
