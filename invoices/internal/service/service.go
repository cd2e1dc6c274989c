// Package service is the message-handler facade of the invoice pipeline:
// one method per event kind, each wired to the component that owns it.
package service

import (
	"context"
	"fmt"

	"github.com/gagps/ecommerce-cx/invoices/internal/connection"
	"github.com/gagps/ecommerce-cx/invoices/internal/ingest"
	"github.com/gagps/ecommerce-cx/invoices/internal/slot"
)

// Connections tracks live socket connections.
type Connections interface {
	OnConnect(ctx context.Context, id string, h connection.Handle) error
	OnDisconnect(ctx context.Context, id string)
}

// LocalConnections adapts a Registry to Connections.
type LocalConnections struct {
	*connection.Registry
}

// OnConnect implements Connections.
func (l LocalConnections) OnConnect(ctx context.Context, id string, h connection.Handle) error {
	l.Registry.OnConnect(ctx, id, h)
	return nil
}

// Service dispatches transport and storage events.
type Service struct {
	conns     Connections
	issuer    *slot.Issuer
	processor *ingest.Processor
}

// New creates a Service. Gateway-only processes may pass a nil processor
// and ingest-only processes nil conns and issuer.
func New(conns Connections, issuer *slot.Issuer, processor *ingest.Processor) *Service {
	return &Service{conns: conns, issuer: issuer, processor: processor}
}

// OnConnect registers a new connection.
func (s *Service) OnConnect(ctx context.Context, id string, h connection.Handle) error {
	if err := s.conns.OnConnect(ctx, id, h); err != nil {
		return fmt.Errorf("connect %s: %w", id, err)
	}
	return nil
}

// OnDisconnect forgets a connection. Safe to repeat.
func (s *Service) OnDisconnect(ctx context.Context, id string) {
	s.conns.OnDisconnect(ctx, id)
}

// OnSlotRequest issues an upload slot for the connection.
func (s *Service) OnSlotRequest(ctx context.Context, connectionID string) (*slot.Slot, error) {
	return s.issuer.IssueSlot(ctx, connectionID)
}

// OnCancelRequest cancels an unused upload slot of the connection.
func (s *Service) OnCancelRequest(ctx context.Context, connectionID, key string) error {
	return s.issuer.Cancel(ctx, connectionID, key)
}

// OnStorageCompleted ingests a completed upload.
func (s *Service) OnStorageCompleted(ctx context.Context, ev ingest.StorageEvent) (*ingest.Result, error) {
	return s.processor.HandleStorageCompleted(ctx, ev)
}
