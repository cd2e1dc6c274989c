package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagps/ecommerce-cx/common/dlq"
	"github.com/gagps/ecommerce-cx/common/logging"
	"github.com/gagps/ecommerce-cx/common/messaging"
	"github.com/gagps/ecommerce-cx/common/messaging/nats"
	"github.com/gagps/ecommerce-cx/invoices/internal/metrics"
	"github.com/gagps/ecommerce-cx/invoices/internal/objectstore"
)

// ConsumerName is the durable consumer on the storage events stream.
const ConsumerName = "invoice-ingest"

// Handler processes one storage event.
type Handler interface {
	HandleStorageCompleted(ctx context.Context, ev StorageEvent) (*Result, error)
}

// ConsumerConfig tunes redelivery.
type ConsumerConfig struct {
	MaxDeliver     int
	AckWait        time.Duration
	RetryDelay     time.Duration
	HandlerTimeout time.Duration
}

// DefaultConsumerConfig returns the delivery settings used when none are configured.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		MaxDeliver:     3,
		AckWait:        30 * time.Second,
		RetryDelay:     2 * time.Second,
		HandlerTimeout: 10 * time.Second,
	}
}

// Consumer feeds storage completion notifications from JetStream into a
// Handler. Failed events are redelivered until the last allowed attempt,
// which writes them to the DLQ instead.
type Consumer struct {
	handler Handler
	queue   dlq.Queue
	cfg     ConsumerConfig
	stop    func()
	logger  *slog.Logger
}

// NewConsumer creates a consumer. A nil queue drops exhausted events after
// logging them.
func NewConsumer(handler Handler, queue dlq.Queue, cfg ConsumerConfig) *Consumer {
	def := DefaultConsumerConfig()
	if cfg.MaxDeliver < 1 {
		cfg.MaxDeliver = def.MaxDeliver
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = def.AckWait
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = def.HandlerTimeout
	}
	return &Consumer{
		handler: handler,
		queue:   queue,
		cfg:     cfg,
		logger:  logging.Component("ingest-consumer"),
	}
}

// Start declares the stream and durable consumer and begins consuming.
func (c *Consumer) Start(ctx context.Context, js *nats.JetStreamClient) error {
	cc := nats.DefaultConsumerConfig(ConsumerName, messaging.SubjectStorageObjectsCompleted)
	cc.MaxDeliver = c.cfg.MaxDeliver
	cc.AckWait = c.cfg.AckWait

	stop, err := js.ConsumeDurable(ctx, nats.StorageEventsStream, cc, c.Handle, nats.WithNakDelay(c.cfg.RetryDelay))
	if err != nil {
		return err
	}
	c.stop = stop

	c.logger.Info("Ingest consumer started",
		slog.String("stream", nats.StorageEventsStream.Name),
		slog.String("consumer", ConsumerName),
		slog.Int("max_deliver", c.cfg.MaxDeliver))
	return nil
}

// Stop stops consuming.
func (c *Consumer) Stop() {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
}

// Handle processes one notification message. A nil return acks it.
func (c *Consumer) Handle(ctx context.Context, msg *messaging.Message) error {
	events, err := objectstore.ParseNotification(msg.Data)
	if err != nil {
		if errors.Is(err, objectstore.ErrNoRecords) {
			c.logger.DebugContext(ctx, "Ignoring notification without object records", logging.Subject(msg.Subject))
			return nil
		}
		c.deadLetter(ctx, msg, objectstore.Event{}, err, dlq.ReasonMalformedEvent)
		return nil
	}

	var errs []error
	for _, ev := range events {
		if err := c.handleOne(ctx, StorageEvent{Bucket: ev.Bucket, Key: ev.Key}); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}

	err = errors.Join(errs...)
	if msg.Attempt >= c.cfg.MaxDeliver {
		var target objectstore.Event
		if len(events) == 1 {
			target = events[0]
		}
		c.deadLetter(ctx, msg, target, err, dlq.ReasonMaxDeliveries)
		return nil
	}

	metrics.IngestRetriesTotal.Inc()
	return err
}

func (c *Consumer) handleOne(ctx context.Context, ev StorageEvent) error {
	hctx, cancel := context.WithTimeout(ctx, c.cfg.HandlerTimeout)
	defer cancel()

	if _, err := c.handler.HandleStorageCompleted(hctx, ev); err != nil {
		return fmt.Errorf("ingest %s: %w", ev.Key, err)
	}
	return nil
}

func (c *Consumer) deadLetter(ctx context.Context, msg *messaging.Message, target objectstore.Event, cause error, reason string) {
	metrics.DeadLetteredTotal.WithLabelValues(reason).Inc()
	if c.queue == nil {
		c.logger.ErrorContext(ctx, "Dropping storage event, no DLQ configured",
			logging.ObjectKey(target.Key),
			slog.String("reason", reason),
			logging.Error(cause))
		return
	}

	ev := dlq.NewFailedEvent(msg.Subject, msg.Data, cause, reason, msg.Attempt)
	ev.Bucket = target.Bucket
	ev.Key = target.Key
	if err := c.queue.Write(ctx, ev); err != nil {
		c.logger.ErrorContext(ctx, "Failed to dead-letter storage event",
			logging.ObjectKey(target.Key),
			slog.String("reason", reason),
			logging.Error(err))
	}
}
