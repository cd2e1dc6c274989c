// Package events publishes product mutations and records them as short-lived
// event records.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagps/ecommerce-cx/common/eventrecord"
	"github.com/gagps/ecommerce-cx/common/logging"
	"github.com/gagps/ecommerce-cx/common/messaging"
	"github.com/gagps/ecommerce-cx/common/messaging/nats"
	"github.com/gagps/ecommerce-cx/common/middleware"
	"github.com/gagps/ecommerce-cx/products/internal/models"
)

const (
	// ConsumerName is the durable consumer that writes product event records.
	ConsumerName = messaging.QueueProductEvents

	// DefaultRecordTTL is how long a product event record is kept.
	DefaultRecordTTL = 5 * time.Minute
)

// RecordKey returns the event record partition key for a product code.
func RecordKey(code string) string {
	return "#product_" + code
}

// Publisher sends product events to the broker.
type Publisher struct {
	pub messaging.Publisher
}

func NewPublisher(pub messaging.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

// Publish sends ev on its event type subject.
func (p *Publisher) Publish(ctx context.Context, ev *models.ProductEvent) error {
	return messaging.PublishJSON(ctx, p.pub, messaging.ProductEventSubject(ev.EventType), ev,
		messaging.WithHeader(middleware.HeaderRequestID, ev.RequestID))
}

// Consumer stores every product event as an event record.
type Consumer struct {
	store  eventrecord.Store
	ttl    time.Duration
	stop   func()
	logger *slog.Logger
}

// NewConsumer creates a consumer writing records that live for ttl.
func NewConsumer(store eventrecord.Store, ttl time.Duration) *Consumer {
	if ttl <= 0 {
		ttl = DefaultRecordTTL
	}
	return &Consumer{
		store:  store,
		ttl:    ttl,
		logger: logging.Component("product-events"),
	}
}

// Start begins consuming the product events stream.
func (c *Consumer) Start(ctx context.Context, js *nats.JetStreamClient) error {
	cc := nats.DefaultConsumerConfig(ConsumerName, messaging.SubjectProductEventsPrefix+".>")
	stop, err := js.ConsumeDurable(ctx, nats.ProductEventsStream, cc, c.Handle)
	if err != nil {
		return fmt.Errorf("start product events consumer: %w", err)
	}
	c.stop = stop
	c.logger.Info("Product events consumer started")
	return nil
}

func (c *Consumer) Stop() {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
}

// Handle records one product event. Undecodable events are dropped.
func (c *Consumer) Handle(ctx context.Context, msg *messaging.Message) error {
	var ev models.ProductEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil || ev.EventType == "" || ev.ProductCode == "" {
		c.logger.WarnContext(ctx, "Dropping malformed product event", logging.Subject(msg.Subject))
		return nil
	}

	r := eventrecord.NewRecord(RecordKey(ev.ProductCode), ev.EventType, c.ttl)
	r.Email = ev.Email
	r.RequestID = ev.RequestID
	r.Info = map[string]any{
		"productId": ev.ProductID,
		"price":     ev.ProductPrice,
	}
	if err := c.store.Put(ctx, r); err != nil {
		return fmt.Errorf("record product event %s: %w", ev.ProductID, err)
	}

	c.logger.DebugContext(ctx, "Product event recorded",
		slog.String("product_id", ev.ProductID),
		slog.String("event_type", ev.EventType))
	return nil
}
