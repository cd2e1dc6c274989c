// Package gateway is the client-facing edge of the invoice pipeline: the
// websocket endpoint, the upload endpoint for locally stored objects and
// the storage notification webhook.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gagps/ecommerce-cx/common/logging"
	"github.com/gagps/ecommerce-cx/common/messaging"
	"github.com/gagps/ecommerce-cx/common/middleware"
	"github.com/gagps/ecommerce-cx/invoices/internal/connection"
	"github.com/gagps/ecommerce-cx/invoices/internal/metrics"
	"github.com/gagps/ecommerce-cx/invoices/internal/objectstore"
	"github.com/gagps/ecommerce-cx/invoices/internal/ratelimit"
	"github.com/gagps/ecommerce-cx/invoices/internal/slot"
)

// Socket actions.
const (
	ActionGetImportURL = "getImportUrl"
	ActionCancelImport = "cancelImport"
)

// Service is the part of the invoice service the gateway drives.
type Service interface {
	OnConnect(ctx context.Context, id string, h connection.Handle) error
	OnDisconnect(ctx context.Context, id string)
	OnSlotRequest(ctx context.Context, connectionID string) (*slot.Slot, error)
	OnCancelRequest(ctx context.Context, connectionID, key string) error
}

// TokenVerifier checks upload tokens.
type TokenVerifier interface {
	Verify(token, key string) error
}

// Request is a client frame.
type Request struct {
	Action string `json:"action"`
	Key    string `json:"key,omitempty"`
}

// CancelReply answers a cancelImport action.
type CancelReply struct {
	Key    string `json:"key"`
	Status string `json:"status"`
}

// ErrorReply is sent for rejected frames.
type ErrorReply struct {
	Error string `json:"error"`
}

// Gateway serves the client endpoints.
type Gateway struct {
	svc       Service
	objects   objectstore.Store
	verifier  TokenVerifier
	publisher messaging.Publisher
	webhookSecret string
	broker    messaging.Client
	limiter   ratelimit.Limiter
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithUploads serves PUT /uploads/{key} into objects, authorized by verifier.
func WithUploads(objects objectstore.Store, verifier TokenVerifier) Option {
	return func(g *Gateway) {
		g.objects = objects
		g.verifier = verifier
	}
}

// WithStorageWebhook republishes POSTed bucket notifications on publisher.
// Callers must present secret as a bearer token.
func WithStorageWebhook(publisher messaging.Publisher, secret string) Option {
	return func(g *Gateway) {
		g.publisher = publisher
		g.webhookSecret = secret
	}
}

// WithBroker reports broker connectivity on /readyz.
func WithBroker(client messaging.Client) Option {
	return func(g *Gateway) { g.broker = client }
}

// WithSlotLimiter throttles getImportUrl per connection.
func WithSlotLimiter(l ratelimit.Limiter) Option {
	return func(g *Gateway) { g.limiter = l }
}

// WithCheckOrigin overrides the websocket origin check.
func WithCheckOrigin(f func(r *http.Request) bool) Option {
	return func(g *Gateway) { g.upgrader.CheckOrigin = f }
}

// New creates a Gateway.
func New(svc Service, opts ...Option) *Gateway {
	g := &Gateway{
		svc:     svc,
		limiter: ratelimit.NoOp{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: logging.Component("gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ServeWS upgrades the request and serves the socket until it closes.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		g.logger.Debug("Websocket upgrade failed", logging.Error(err))
		return
	}

	id := uuid.NewString()
	sock := newSocket(conn)
	// The socket outlives the upgrade request.
	ctx := middleware.WithRequestID(context.Background(), middleware.GetRequestID(r.Context()))
	logger := g.logger.With(logging.ConnectionID(id))

	if err := g.svc.OnConnect(ctx, id, sock); err != nil {
		logger.Error("Failed to register connection", logging.Error(err))
		_ = sock.Close()
		return
	}
	metrics.ActiveConnections.Inc()
	logger.Info("Connection opened")

	done := make(chan struct{})
	defer func() {
		close(done)
		_ = sock.Close()
		g.svc.OnDisconnect(ctx, id)
		metrics.ActiveConnections.Dec()
		logger.Info("Connection closed")
	}()
	go g.keepAlive(sock, done)

	conn.SetReadLimit(maxFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("Connection read failed", logging.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if err := sock.Send(ctx, g.dispatch(ctx, id, frame)); err != nil {
			logger.Debug("Reply not delivered", logging.Error(err))
			return
		}
	}
}

func (g *Gateway) keepAlive(sock *socket, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := sock.ping(); err != nil {
				return
			}
		}
	}
}

// dispatch handles one client frame and returns the reply.
func (g *Gateway) dispatch(ctx context.Context, connectionID string, frame []byte) []byte {
	var req Request
	if err := json.Unmarshal(frame, &req); err != nil {
		return mustJSON(ErrorReply{Error: "invalid message"})
	}

	switch req.Action {
	case ActionGetImportURL:
		if !g.allowSlot(ctx, connectionID) {
			metrics.SlotRequestsThrottledTotal.Inc()
			return mustJSON(ErrorReply{Error: "too many upload slot requests"})
		}
		s, err := g.svc.OnSlotRequest(ctx, connectionID)
		if err != nil {
			g.logger.ErrorContext(ctx, "Failed to issue upload slot", logging.ConnectionID(connectionID), logging.Error(err))
			return mustJSON(ErrorReply{Error: "could not issue upload slot"})
		}
		return mustJSON(s)

	case ActionCancelImport:
		if req.Key == "" {
			return mustJSON(ErrorReply{Error: "key is required"})
		}
		if err := g.svc.OnCancelRequest(ctx, connectionID, req.Key); err != nil {
			if errors.Is(err, slot.ErrNotCancellable) {
				return mustJSON(ErrorReply{Error: err.Error()})
			}
			g.logger.ErrorContext(ctx, "Failed to cancel upload slot", logging.TransactionKey(req.Key), logging.Error(err))
			return mustJSON(ErrorReply{Error: "could not cancel upload slot"})
		}
		return mustJSON(CancelReply{Key: req.Key, Status: slot.StatusCancelled})

	default:
		return mustJSON(ErrorReply{Error: "unknown action"})
	}
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"error":"internal error"}`)
	}
	return data
}

// allowSlot fails open when the limiter is unavailable.
func (g *Gateway) allowSlot(ctx context.Context, connectionID string) bool {
	allowed, err := g.limiter.Allow(ctx, connectionID)
	if err != nil {
		g.logger.WarnContext(ctx, "Slot rate limit check failed", logging.ConnectionID(connectionID), logging.Error(err))
		return true
	}
	return allowed
}
