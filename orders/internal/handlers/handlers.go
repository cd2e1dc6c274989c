// Package handlers serves the orders HTTP API.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gagps/ecommerce-cx/common/eventrecord"
	"github.com/gagps/ecommerce-cx/common/httputil"
	"github.com/gagps/ecommerce-cx/common/logging"
	"github.com/gagps/ecommerce-cx/common/middleware"
	"github.com/gagps/ecommerce-cx/orders/internal/events"
	"github.com/gagps/ecommerce-cx/orders/internal/models"
	"github.com/gagps/ecommerce-cx/orders/internal/repository"
)

// EventPublisher announces order lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, ev *models.OrderEvent) error
}

// RecordQuerier reads event records.
type RecordQuerier interface {
	QueryByEmail(ctx context.Context, email, skPrefix string) ([]*eventrecord.Record, error)
}

type Handler struct {
	repo    repository.Repository
	events  EventPublisher
	records RecordQuerier
	logger  *slog.Logger
}

func NewHandler(repo repository.Repository, events EventPublisher, records RecordQuerier) *Handler {
	return &Handler{
		repo:    repo,
		events:  events,
		records: records,
		logger:  logging.Component("orders-api"),
	}
}

// Routes mounts the order endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/orders", h.List)
	r.Post("/orders", h.Create)
	r.Delete("/orders", h.Delete)
	r.Get("/orders/events", h.ListEvents)
}

// List handles GET /orders[?email=[&orderId=]]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	orderID := r.URL.Query().Get("orderId")

	switch {
	case email != "" && orderID != "":
		o, err := h.repo.Get(r.Context(), email, orderID)
		if err != nil {
			h.orderError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, o)
	case email != "":
		orders, err := h.repo.ListByEmail(r.Context(), email)
		if err != nil {
			h.internalError(w, r, "Failed to list orders", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, orders)
	case orderID != "":
		httputil.WriteMessage(w, r, http.StatusBadRequest, "Bad request: orderId requires email")
	default:
		orders, err := h.repo.ListAll(r.Context())
		if err != nil {
			h.internalError(w, r, "Failed to list orders", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, orders)
	}
}

// Create handles POST /orders. Every product must exist; the total is the
// sum of their prices.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.OrderRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteMessage(w, r, http.StatusBadRequest, "Bad request: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteMessage(w, r, http.StatusBadRequest, "Bad request: "+err.Error())
		return
	}

	refs, err := h.repo.ProductsByIDs(r.Context(), req.ProductIDs)
	if err != nil {
		h.internalError(w, r, "Failed to load products", err)
		return
	}
	byID := make(map[string]models.ProductRef, len(refs))
	for _, p := range refs {
		byID[p.ID] = p
	}

	o := &models.Order{
		Email:      req.Email,
		ID:         uuid.NewString(),
		ProductIDs: req.ProductIDs,
		Billing:    models.Billing{Payment: req.Payment},
		Shipping:   req.Shipping,
	}
	for _, id := range req.ProductIDs {
		p, ok := byID[id]
		if !ok {
			httputil.WriteMessage(w, r, http.StatusNotFound, "Some product was not found")
			return
		}
		o.ProductCodes = append(o.ProductCodes, p.Code)
		o.Billing.TotalPrice += p.Price
	}

	if err := h.repo.Create(r.Context(), o); err != nil {
		h.internalError(w, r, "Failed to create order", err)
		return
	}
	h.publish(r, o, models.EventOrderCreated)
	httputil.WriteJSON(w, http.StatusCreated, o)
}

// Delete handles DELETE /orders?email=&orderId=
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	orderID := r.URL.Query().Get("orderId")
	if email == "" || orderID == "" {
		httputil.WriteMessage(w, r, http.StatusBadRequest, "Bad request: email and orderId are required")
		return
	}

	o, err := h.repo.Get(r.Context(), email, orderID)
	if err != nil {
		h.orderError(w, r, err)
		return
	}
	if err := h.repo.Delete(r.Context(), email, orderID); err != nil {
		h.orderError(w, r, err)
		return
	}
	h.publish(r, o, models.EventOrderDeleted)
	httputil.WriteJSON(w, http.StatusOK, o)
}

// ListEvents handles GET /orders/events?email=[&eventType=]
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		httputil.WriteMessage(w, r, http.StatusBadRequest, "Bad request: email is required")
		return
	}
	prefix := models.EventPrefix
	if et := r.URL.Query().Get("eventType"); et != "" {
		prefix = et
	}

	records, err := h.records.QueryByEmail(r.Context(), email, prefix)
	if err != nil {
		h.internalError(w, r, "Failed to query order events", err)
		return
	}
	views := make([]models.EventView, 0, len(records))
	for _, rec := range records {
		views = append(views, events.View(rec))
	}
	httputil.WriteJSON(w, http.StatusOK, views)
}

// publish is best effort: the order change has already been committed.
func (h *Handler) publish(r *http.Request, o *models.Order, eventType string) {
	ev := models.NewOrderEvent(o, middleware.GetRequestID(r.Context()))
	if err := h.events.Publish(r.Context(), eventType, ev); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to publish order event",
			slog.String("order_id", o.ID),
			slog.String("event_type", eventType),
			logging.Error(err))
	}
}

func (h *Handler) orderError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		httputil.WriteMessage(w, r, http.StatusNotFound, "Order not found")
		return
	}
	h.internalError(w, r, "Failed to load order", err)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg, logging.Error(err))
	httputil.WriteMessage(w, r, http.StatusInternalServerError, msg)
}
