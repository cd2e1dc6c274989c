// Package events publishes order lifecycle events and records them as
// event records.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gagps/ecommerce-cx/common/eventrecord"
	"github.com/gagps/ecommerce-cx/common/logging"
	"github.com/gagps/ecommerce-cx/common/messaging"
	"github.com/gagps/ecommerce-cx/common/messaging/nats"
	"github.com/gagps/ecommerce-cx/common/middleware"
	"github.com/gagps/ecommerce-cx/orders/internal/models"
)

const (
	// ConsumerName is the durable consumer that writes order event records.
	ConsumerName = messaging.QueueOrderEvents

	// DefaultRecordTTL is how long an order event record is kept.
	DefaultRecordTTL = 120 * time.Minute

	// HeaderMessageID carries the publisher-assigned id. JetStream also
	// uses it to drop duplicate publishes.
	HeaderMessageID = "Nats-Msg-Id"
)

// ErrMalformedEnvelope is returned by Decode for undecodable messages.
var ErrMalformedEnvelope = errors.New("malformed order event")

// RecordKey returns the event record partition key for an order.
func RecordKey(orderID string) string {
	return "#order_" + orderID
}

// Publisher sends order events to the broker.
type Publisher struct {
	pub messaging.Publisher
}

func NewPublisher(pub messaging.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

// Publish wraps ev in an envelope and sends it on the eventType subject.
func (p *Publisher) Publish(ctx context.Context, eventType string, ev *models.OrderEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	return messaging.PublishJSON(ctx, p.pub, messaging.OrderEventSubject(eventType),
		models.Envelope{EventType: eventType, Data: string(data)},
		messaging.WithHeader(HeaderMessageID, uuid.NewString()),
		messaging.WithHeader(middleware.HeaderRequestID, ev.RequestID))
}

// Decode unpacks an order event message.
func Decode(msg *messaging.Message) (*models.Envelope, *models.OrderEvent, error) {
	var env models.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	var ev models.OrderEvent
	if err := json.Unmarshal([]byte(env.Data), &ev); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.EventType == "" || ev.OrderID == "" {
		return nil, nil, fmt.Errorf("%w: missing event type or order id", ErrMalformedEnvelope)
	}
	return &env, &ev, nil
}

// Consumer stores every order event as an event record.
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
		logger: logging.Component("order-events"),
	}
}

func (c *Consumer) Start(ctx context.Context, js *nats.JetStreamClient) error {
	cc := nats.DefaultConsumerConfig(ConsumerName, messaging.SubjectOrderEventsPrefix+".>")
	stop, err := js.ConsumeDurable(ctx, nats.OrderEventsStream, cc, c.Handle)
	if err != nil {
		return fmt.Errorf("start order events consumer: %w", err)
	}
	c.stop = stop
	c.logger.Info("Order events consumer started")
	return nil
}

func (c *Consumer) Stop() {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
}

// Handle records one order event. Undecodable events are dropped.
func (c *Consumer) Handle(ctx context.Context, msg *messaging.Message) error {
	env, ev, err := Decode(msg)
	if err != nil {
		c.logger.WarnContext(ctx, "Dropping order event", logging.Subject(msg.Subject), logging.Error(err))
		return nil
	}

	messageID := msg.Header(HeaderMessageID)
	r := eventrecord.NewRecord(RecordKey(ev.OrderID), env.EventType, c.ttl)
	r.Email = ev.Email
	r.RequestID = ev.RequestID
	r.Info = map[string]any{
		"orderId":      ev.OrderID,
		"productCodes": ev.ProductCodes,
		"messageId":    messageID,
	}
	if err := c.store.Put(ctx, r); err != nil {
		return fmt.Errorf("record order event %s: %w", ev.OrderID, err)
	}

	c.logger.InfoContext(ctx, "Order event recorded",
		slog.String("order_id", ev.OrderID),
		slog.String("event_type", env.EventType),
		slog.String("message_id", messageID))
	return nil
}

// View converts a stored record to its API form.
func View(r *eventrecord.Record) models.EventView {
	v := models.EventView{
		Email:     r.Email,
		CreatedAt: r.CreatedAt,
		EventType: r.EventType,
		RequestID: r.RequestID,
	}
	v.OrderID, _ = r.Info["orderId"].(string)
	switch codes := r.Info["productCodes"].(type) {
	case []string:
		v.ProductCodes = codes
	case []any:
		for _, c := range codes {
			if s, ok := c.(string); ok {
				v.ProductCodes = append(v.ProductCodes, s)
			}
		}
	}
	return v
}
