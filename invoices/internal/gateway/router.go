package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gagps/ecommerce-cx/common/httputil"
	"github.com/gagps/ecommerce-cx/common/messaging"
	"github.com/gagps/ecommerce-cx/common/middleware"
)

// Router returns the gateway's HTTP routes.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	r.Get("/ws", g.ServeWS)
	if g.objects != nil && g.verifier != nil {
		r.Put("/uploads/{key}", g.HandleUpload)
	}
	if g.publisher != nil {
		r.Post("/storage/events", g.HandleStorageEvents)
	}

	r.Get("/healthz", g.Health)
	r.Get("/readyz", g.Ready)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Health reports liveness.
func (g *Gateway) Health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether the broker connection is usable.
func (g *Gateway) Ready(w http.ResponseWriter, r *http.Request) {
	if g.broker == nil {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	health := messaging.CheckClientHealth(ctx, g.broker)
	if !health.Connected {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, health)
}
