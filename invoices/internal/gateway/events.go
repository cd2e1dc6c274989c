package gateway

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gagps/ecommerce-cx/common/httputil"
	"github.com/gagps/ecommerce-cx/common/logging"
	"github.com/gagps/ecommerce-cx/common/messaging"
	"github.com/gagps/ecommerce-cx/common/middleware"
	"github.com/gagps/ecommerce-cx/invoices/internal/objectstore"
)

// HandleStorageEvents accepts bucket notifications from object stores that
// deliver them over HTTP (MinIO webhook targets, S3 via SNS subscribers)
// and republishes them on the storage completion subject.
func (g *Gateway) HandleStorageEvents(w http.ResponseWriter, r *http.Request) {
	if !g.webhookAuthorized(r) {
		g.logger.WarnContext(r.Context(), "Rejected unauthenticated storage notification",
			logging.Path(r.URL.Path))
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httputil.MaxBodyBytes))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	events, err := objectstore.ParseNotification(body)
	if err != nil {
		if errors.Is(err, objectstore.ErrNoRecords) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = g.publisher.PublishMsg(r.Context(), &messaging.Message{
		Subject: messaging.SubjectStorageObjectsCompleted,
		Data:    body,
		Metadata: map[string]string{
			middleware.HeaderRequestID: middleware.GetRequestID(r.Context()),
		},
	})
	if err != nil {
		g.logger.ErrorContext(r.Context(), "Failed to publish storage notification", logging.Error(err))
		httputil.WriteError(w, http.StatusServiceUnavailable, "failed to queue notification")
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]int{"accepted": len(events)})
}

// webhookAuthorized checks the bearer token. An empty secret rejects every
// request.
func (g *Gateway) webhookAuthorized(r *http.Request) bool {
	if g.webhookSecret == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(g.webhookSecret)) == 1
}
