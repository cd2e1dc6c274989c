package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gagps/ecommerce-cx/common/logging"
	"github.com/gagps/ecommerce-cx/common/messaging"
)

// Replies sent by the relay on a push request.
const (
	ReplyOK   = "ok"
	ReplyGone = "gone"
)

// Responder answers a request message.
type Responder interface {
	Respond(msg *messaging.Message, data []byte) error
}

// RelayClient is what the relay needs from the broker.
type RelayClient interface {
	messaging.Subscriber
	Responder
}

// Relay exposes the connections of a local registry on the broker. Each
// connection gets its own push subject while it is registered, so a push
// for a connection nobody holds fails fast with no responders.
type Relay struct {
	client   RelayClient
	registry *Registry
	logger   *slog.Logger

	mu   sync.Mutex
	subs map[string]messaging.Subscription
}

// NewRelay creates a relay for registry.
func NewRelay(client RelayClient, registry *Registry) *Relay {
	return &Relay{
		client:   client,
		registry: registry,
		logger:   logging.Component("connection-relay"),
		subs:     make(map[string]messaging.Subscription),
	}
}

// OnConnect registers the handle locally and subscribes its push subject.
func (r *Relay) OnConnect(ctx context.Context, id string, h Handle) error {
	r.registry.OnConnect(ctx, id, h)

	subject := messaging.ConnectionPushSubject(id)
	sub, err := r.client.Subscribe(subject, r.handle(id))
	if err != nil {
		r.registry.OnDisconnect(ctx, id)
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	r.mu.Lock()
	old := r.subs[id]
	r.subs[id] = sub
	r.mu.Unlock()
	if old != nil {
		_ = old.Unsubscribe()
	}
	return nil
}

// OnDisconnect drops the subscription and the local handle.
func (r *Relay) OnDisconnect(ctx context.Context, id string) {
	r.mu.Lock()
	sub := r.subs[id]
	delete(r.subs, id)
	r.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			r.logger.Warn("Failed to unsubscribe", logging.ConnectionID(id), logging.Error(err))
		}
	}
	r.registry.OnDisconnect(ctx, id)
}

// Stop unsubscribes every connection subject.
func (r *Relay) Stop() {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]messaging.Subscription)
	r.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
}

func (r *Relay) handle(id string) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		err := r.registry.Push(ctx, id, msg.Data)
		switch {
		case err == nil:
			return r.reply(msg, ReplyOK)
		case errors.Is(err, ErrGone):
			r.OnDisconnect(ctx, id)
			return r.reply(msg, ReplyGone)
		default:
			r.logger.Warn("Relayed push failed", logging.ConnectionID(id), logging.Error(err))
			return r.reply(msg, err.Error())
		}
	}
}

func (r *Relay) reply(msg *messaging.Message, body string) error {
	if msg.Reply == "" {
		return nil
	}
	return r.client.Respond(msg, []byte(body))
}
