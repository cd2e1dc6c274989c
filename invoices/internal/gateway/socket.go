package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gagps/ecommerce-cx/invoices/internal/connection"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxFrame   = 64 << 10
)

// socket adapts a websocket connection to connection.Handle. gorilla
// connections allow one concurrent writer, so writes are serialized.
type socket struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func newSocket(conn *websocket.Conn) *socket {
	return &socket{conn: conn}
}

// Send implements connection.Handle.
func (s *socket) Send(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return connection.ErrGone
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetWriteDeadline(deadline)

	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// A gorilla connection is unusable after a failed write.
		s.closed = true
		_ = s.conn.Close()
		return fmt.Errorf("%w: %v", connection.ErrGone, err)
	}
	return nil
}

func (s *socket) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return connection.ErrGone
	}
	if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		s.closed = true
		_ = s.conn.Close()
		return fmt.Errorf("%w: %v", connection.ErrGone, err)
	}
	return nil
}

// Close implements connection.Handle.
func (s *socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}
