package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/gagps/ecommerce-cx/common/messaging"
	"github.com/gagps/ecommerce-cx/invoices/internal/connection"
)

// DefaultPushTimeout bounds one relayed push.
const DefaultPushTimeout = 2 * time.Second

// NATSPusher pushes through the gateway relay with a request/reply round trip.
type NATSPusher struct {
	requester messaging.Requester
	timeout   time.Duration
}

// NewNATSPusher creates a pusher. A non-positive timeout uses DefaultPushTimeout.
func NewNATSPusher(requester messaging.Requester, timeout time.Duration) *NATSPusher {
	if timeout <= 0 {
		timeout = DefaultPushTimeout
	}
	return &NATSPusher{requester: requester, timeout: timeout}
}

// Push implements connection.Pusher. No responders means no gateway holds
// the connection.
func (p *NATSPusher) Push(ctx context.Context, connectionID string, data []byte) error {
	resp, err := p.requester.Request(ctx, messaging.ConnectionPushSubject(connectionID), data, p.timeout)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return connection.ErrGone
		}
		return fmt.Errorf("relay push to %s: %w", connectionID, err)
	}

	switch reply := string(resp.Data); reply {
	case connection.ReplyOK:
		return nil
	case connection.ReplyGone:
		return connection.ErrGone
	default:
		return fmt.Errorf("relay push to %s: %s", connectionID, reply)
	}
}
