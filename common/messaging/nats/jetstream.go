package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/gagps/ecommerce-cx/common/messaging"
	"github.com/gagps/ecommerce-cx/common/middleware"
)

// JetStreamClient extends Client with JetStream persistence capabilities.
// Publish and PublishMsg wait for the stream acknowledgment.
type JetStreamClient struct {
	*Client
	js jetstream.JetStream
}

// StreamConfig defines a JetStream stream configuration.
type StreamConfig struct {
	Name      string
	Subjects  []string
	MaxAge    time.Duration
	MaxBytes  int64
	MaxMsgs   int64
	Retention jetstream.RetentionPolicy
	Storage   jetstream.StorageType
}

// ConsumerConfig defines a JetStream consumer configuration.
type ConsumerConfig struct {
	// Name is the durable consumer name.
	Name string

	// FilterSubject filters which messages this consumer receives.
	FilterSubject string

	// AckWait is time to wait for acknowledgment before redelivery.
	AckWait time.Duration

	// MaxDeliver is maximum delivery attempts before giving up.
	MaxDeliver int

	// MaxAckPending is maximum unacknowledged messages.
	MaxAckPending int
}

// DefaultConsumerConfig returns sensible defaults for a consumer.
func DefaultConsumerConfig(name, filterSubject string) ConsumerConfig {
	return ConsumerConfig{
		Name:          name,
		FilterSubject: filterSubject,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
		MaxAckPending: 100,
	}
}

// NewJetStreamClient creates a JetStream-enabled client.
func NewJetStreamClient(cfg Config) (*JetStreamClient, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(client.conn)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &JetStreamClient{
		Client: client,
		js:     js,
	}, nil
}

// CreateOrUpdateStream creates or updates a stream.
func (c *JetStreamClient) CreateOrUpdateStream(ctx context.Context, cfg StreamConfig) (jetstream.Stream, error) {
	stream, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Name,
		Subjects:  cfg.Subjects,
		MaxAge:    cfg.MaxAge,
		MaxBytes:  cfg.MaxBytes,
		MaxMsgs:   cfg.MaxMsgs,
		Retention: cfg.Retention,
		Storage:   cfg.Storage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream %s: %w", cfg.Name, err)
	}
	return stream, nil
}

// Stream looks up an existing stream.
func (c *JetStreamClient) Stream(ctx context.Context, name string) (jetstream.Stream, error) {
	stream, err := c.js.Stream(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream %s: %w", name, err)
	}
	return stream, nil
}

// CreateOrUpdateConsumer creates or updates a durable consumer.
func (c *JetStreamClient) CreateOrUpdateConsumer(ctx context.Context, streamName string, cfg ConsumerConfig) (jetstream.Consumer, error) {
	stream, err := c.Stream(ctx, streamName)
	if err != nil {
		return nil, err
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          cfg.Name,
		Durable:       cfg.Name,
		FilterSubject: cfg.FilterSubject,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: cfg.MaxAckPending,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update consumer %s: %w", cfg.Name, err)
	}
	return consumer, nil
}

// Publish stores data on the stream capturing subject and waits for the ack.
func (c *JetStreamClient) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := c.js.Publish(ctx, subject, data)
	return err
}

// PublishMsg stores msg (headers included) and waits for the ack.
func (c *JetStreamClient) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	_, err := c.js.PublishMsg(ctx, messageToNATS(msg))
	return err
}

// PublishSync publishes a message and returns the stream acknowledgment.
func (c *JetStreamClient) PublishSync(ctx context.Context, subject string, data []byte) (*jetstream.PubAck, error) {
	return c.js.Publish(ctx, subject, data)
}

// ConsumeOption tunes ConsumeMessages.
type ConsumeOption func(*consumeOptions)

type consumeOptions struct {
	nakDelay time.Duration
}

// WithNakDelay sets the redelivery delay after a handler error.
func WithNakDelay(d time.Duration) ConsumeOption {
	return func(o *consumeOptions) { o.nakDelay = d }
}

// ConsumeMessages starts consuming messages from a durable consumer.
// A nil handler error acks the message; any other error NAKs it with a delay
// so the server redelivers until the consumer's MaxDeliver is reached.
// Returns a function that stops consuming.
func (c *JetStreamClient) ConsumeMessages(ctx context.Context, streamName, consumerName string, handler messaging.MessageHandler, opts ...ConsumeOption) (func(), error) {
	o := consumeOptions{nakDelay: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	stream, err := c.Stream(ctx, streamName)
	if err != nil {
		return nil, err
	}

	consumer, err := stream.Consumer(ctx, consumerName)
	if err != nil {
		return nil, fmt.Errorf("failed to get consumer %s: %w", consumerName, err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		m := jetStreamToMessage(msg)
		msgCtx := middleware.WithRequestID(consumeCtx, m.Header(middleware.HeaderRequestID))

		if err := handler(msgCtx, m); err != nil {
			c.logger.Warn("message processing failed, scheduling redelivery",
				slog.String("subject", m.Subject),
				slog.Int("attempt", m.Attempt),
				slog.String("error", err.Error()))
			_ = msg.NakWithDelay(o.nakDelay)
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	return func() {
		cancel()
		cons.Stop()
	}, nil
}

// ConsumeDurable declares stream and the durable consumer cc on it, then
// consumes with handler as ConsumeMessages does.
func (c *JetStreamClient) ConsumeDurable(ctx context.Context, stream StreamConfig, cc ConsumerConfig, handler messaging.MessageHandler, opts ...ConsumeOption) (func(), error) {
	if _, err := c.CreateOrUpdateStream(ctx, stream); err != nil {
		return nil, err
	}
	if _, err := c.CreateOrUpdateConsumer(ctx, stream.Name, cc); err != nil {
		return nil, err
	}
	return c.ConsumeMessages(ctx, stream.Name, cc.Name, handler, opts...)
}

func jetStreamToMessage(msg jetstream.Msg) *messaging.Message {
	m := &messaging.Message{
		Subject:   msg.Subject(),
		Data:      msg.Data(),
		Timestamp: time.Now(),
		Attempt:   1,
		Metadata:  headersToMap(msg.Headers()),
	}
	if md, err := msg.Metadata(); err == nil {
		m.Timestamp = md.Timestamp
		m.Attempt = int(md.NumDelivered)
	}
	return m
}

// Predefined stream configurations.
var (
	// StorageEventsStream captures object-created notifications. Each is
	// consumed once by the invoice ingest consumer.
	StorageEventsStream = StreamConfig{
		Name:      "STORAGE_EVENTS",
		Subjects:  []string{"storage.objects.>"},
		MaxAge:    24 * time.Hour,
		MaxBytes:  100 * 1024 * 1024, // 100MB
		MaxMsgs:   100000,
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	}

	// InvoicesDLQStream keeps storage events that exhausted their deliveries.
	InvoicesDLQStream = StreamConfig{
		Name:      "INVOICES_DLQ",
		Subjects:  []string{messaging.SubjectInvoicesDLQPrefix + ".>"},
		MaxAge:    7 * 24 * time.Hour,
		MaxBytes:  100 * 1024 * 1024,
		MaxMsgs:   100000,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	}

	// ProductEventsStream captures product mutations.
	ProductEventsStream = StreamConfig{
		Name:      "PRODUCT_EVENTS",
		Subjects:  []string{messaging.SubjectProductEventsPrefix + ".>"},
		MaxAge:    24 * time.Hour,
		MaxBytes:  100 * 1024 * 1024,
		MaxMsgs:   100000,
		Retention: jetstream.InterestPolicy,
		Storage:   jetstream.FileStorage,
	}

	// OrderEventsStream captures order lifecycle events. Both the event-record
	// consumer and the email consumer read every message.
	OrderEventsStream = StreamConfig{
		Name:      "ORDER_EVENTS",
		Subjects:  []string{messaging.SubjectOrderEventsPrefix + ".>"},
		MaxAge:    24 * time.Hour,
		MaxBytes:  100 * 1024 * 1024,
		MaxMsgs:   100000,
		Retention: jetstream.InterestPolicy,
		Storage:   jetstream.FileStorage,
	}
)
