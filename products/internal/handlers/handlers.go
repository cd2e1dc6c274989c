// Package handlers serves the products HTTP API.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gagps/ecommerce-cx/common/httputil"
	"github.com/gagps/ecommerce-cx/common/logging"
	"github.com/gagps/ecommerce-cx/common/middleware"
	"github.com/gagps/ecommerce-cx/products/internal/models"
	"github.com/gagps/ecommerce-cx/products/internal/repository"
)

// HeaderUserEmail names the caller on product events. Requests without it
// are attributed to the configured default.
const HeaderUserEmail = "X-User-Email"

// EventPublisher announces product mutations.
type EventPublisher interface {
	Publish(ctx context.Context, ev *models.ProductEvent) error
}

type Handler struct {
	repo         repository.Repository
	events       EventPublisher
	defaultEmail string
	logger       *slog.Logger
}

func NewHandler(repo repository.Repository, events EventPublisher, defaultEmail string) *Handler {
	return &Handler{
		repo:         repo,
		events:       events,
		defaultEmail: defaultEmail,
		logger:       logging.Component("products-api"),
	}
}

// Routes mounts the product endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/products", h.List)
	r.Post("/products", h.Create)
	r.Get("/products/{id}", h.Get)
	r.Put("/products/{id}", h.Update)
	r.Delete("/products/{id}", h.Delete)
}

// List handles GET /products
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.repo.List(r.Context())
	if err != nil {
		h.internalError(w, r, "Failed to list products", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, products)
}

// Create handles POST /products
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	p := &models.Product{ID: uuid.NewString()}
	in.Apply(p)
	if err := h.repo.Create(r.Context(), p); err != nil {
		if errors.Is(err, repository.ErrDuplicateCode) {
			httputil.WriteMessage(w, r, http.StatusConflict, fmt.Sprintf("Product with code %s already exists", p.Code))
			return
		}
		h.internalError(w, r, "Failed to create product", err)
		return
	}

	h.publish(r, p, models.EventProductCreated)
	httputil.WriteJSON(w, http.StatusCreated, p)
}

// Get handles GET /products/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

// Update handles PUT /products/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	in.Apply(p)
	if err := h.repo.Update(r.Context(), p); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			h.notFound(w, r, p.ID)
		case errors.Is(err, repository.ErrDuplicateCode):
			httputil.WriteMessage(w, r, http.StatusConflict, fmt.Sprintf("Product with code %s already exists", p.Code))
		default:
			h.internalError(w, r, "Failed to update product", err)
		}
		return
	}

	h.publish(r, p, models.EventProductUpdated)
	httputil.WriteJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /products/{id}. The row delete and the event run
// concurrently; the response carries the deleted product.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}

	var g errgroup.Group
	g.Go(func() error { return h.repo.Delete(r.Context(), p.ID) })
	g.Go(func() error {
		h.publish(r, p, models.EventProductDeleted)
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.notFound(w, r, p.ID)
			return
		}
		h.internalError(w, r, "Failed to delete product", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*models.Product, bool) {
	id := chi.URLParam(r, "id")
	p, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.notFound(w, r, id)
			return nil, false
		}
		h.internalError(w, r, "Failed to load product", err)
		return nil, false
	}
	return p, true
}

func (h *Handler) decodeInput(w http.ResponseWriter, r *http.Request) (*models.ProductInput, bool) {
	var in models.ProductInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.WriteMessage(w, r, http.StatusBadRequest, "Bad request: "+err.Error())
		return nil, false
	}
	if err := in.Validate(); err != nil {
		httputil.WriteMessage(w, r, http.StatusBadRequest, "Bad request: "+err.Error())
		return nil, false
	}
	return &in, true
}

// publish is best effort: the mutation has already been committed.
func (h *Handler) publish(r *http.Request, p *models.Product, eventType string) {
	email := r.Header.Get(HeaderUserEmail)
	if email == "" {
		email = h.defaultEmail
	}
	ev := models.NewProductEvent(p, eventType, email, middleware.GetRequestID(r.Context()))
	if err := h.events.Publish(r.Context(), ev); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to publish product event",
			slog.String("product_id", p.ID),
			slog.String("event_type", eventType),
			logging.Error(err))
	}
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request, id string) {
	httputil.WriteMessage(w, r, http.StatusNotFound, fmt.Sprintf("Product with ID %s not found", id))
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg, logging.Error(err))
	httputil.WriteMessage(w, r, http.StatusInternalServerError, msg)
}
