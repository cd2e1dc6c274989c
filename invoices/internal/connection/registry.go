// Package connection keeps the live socket connections of one gateway
// process and delivers pushes to them.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gagps/ecommerce-cx/common/logging"
)

// ErrGone means the connection is unknown or already closed.
var ErrGone = errors.New("connection gone")

// Handle is the transport side of one connection.
type Handle interface {
	// Send writes one message to the peer. Implementations return ErrGone
	// once the peer has disconnected.
	Send(ctx context.Context, data []byte) error
	Close() error
}

// Pusher delivers data to a connection by id.
type Pusher interface {
	Push(ctx context.Context, connectionID string, data []byte) error
}

// Registry maps connection ids to their handles.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]Handle
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]Handle),
		logger: logging.Component("connection-registry"),
	}
}

// OnConnect registers handle under id, replacing any previous handle.
func (r *Registry) OnConnect(_ context.Context, id string, h Handle) {
	r.mu.Lock()
	old, replaced := r.conns[id]
	r.conns[id] = h
	r.mu.Unlock()

	if replaced && old != h {
		_ = old.Close()
	}
	r.logger.Debug("Connection registered", logging.ConnectionID(id))
}

// OnDisconnect forgets id. Unknown ids are ignored.
func (r *Registry) OnDisconnect(_ context.Context, id string) {
	r.mu.Lock()
	_, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()

	if ok {
		r.logger.Debug("Connection removed", logging.ConnectionID(id))
	}
}

// Push sends data to id.
func (r *Registry) Push(ctx context.Context, id string, data []byte) error {
	r.mu.RLock()
	h, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return ErrGone
	}

	if err := h.Send(ctx, data); err != nil {
		if errors.Is(err, ErrGone) {
			r.OnDisconnect(ctx, id)
			return ErrGone
		}
		return fmt.Errorf("push to %s: %w", id, err)
	}
	return nil
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes and forgets every connection.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]Handle)
	r.mu.Unlock()

	for _, h := range conns {
		_ = h.Close()
	}
}
