package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagps/ecommerce-cx/common/logging"
	"github.com/gagps/ecommerce-cx/common/messaging"
	"github.com/gagps/ecommerce-cx/common/messaging/nats"
	"github.com/gagps/ecommerce-cx/orders/internal/events"
	"github.com/gagps/ecommerce-cx/orders/internal/models"
)

// ConsumerName is the durable consumer that sends order emails.
const ConsumerName = messaging.QueueOrderEmails

// Consumer emails a confirmation for every created order.
type Consumer struct {
	sender Sender
	stop   func()
	logger *slog.Logger
}

func NewConsumer(sender Sender) *Consumer {
	return &Consumer{sender: sender, logger: logging.Component("order-emails")}
}

// Start consumes ORDER_CREATED events only.
func (c *Consumer) Start(ctx context.Context, js *nats.JetStreamClient) error {
	cc := nats.DefaultConsumerConfig(ConsumerName, messaging.OrderEventSubject(models.EventOrderCreated))
	stop, err := js.ConsumeDurable(ctx, nats.OrderEventsStream, cc, c.Handle)
	if err != nil {
		return fmt.Errorf("start order emails consumer: %w", err)
	}
	c.stop = stop
	c.logger.Info("Order emails consumer started")
	return nil
}

func (c *Consumer) Stop() {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
}

// Handle sends the confirmation for one event. Other event types are acked
// without sending.
func (c *Consumer) Handle(ctx context.Context, msg *messaging.Message) error {
	env, ev, err := events.Decode(msg)
	if err != nil {
		c.logger.WarnContext(ctx, "Dropping order event", logging.Subject(msg.Subject), logging.Error(err))
		return nil
	}
	if env.EventType != models.EventOrderCreated {
		return nil
	}

	if err := c.sender.Send(ctx, OrderConfirmation(ev)); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "Order confirmation sent", slog.String("order_id", ev.OrderID))
	return nil
}
