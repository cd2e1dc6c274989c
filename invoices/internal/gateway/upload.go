package gateway

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gagps/ecommerce-cx/common/httputil"
	"github.com/gagps/ecommerce-cx/common/logging"
	"github.com/gagps/ecommerce-cx/invoices/internal/metrics"
	"github.com/gagps/ecommerce-cx/invoices/internal/objectstore"
)

// HandleUpload accepts one object per presigned URL.
func (g *Gateway) HandleUpload(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	code := g.upload(w, r, key)
	metrics.UploadsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

func (g *Gateway) upload(w http.ResponseWriter, r *http.Request, key string) int {
	if err := objectstore.ValidateKey(key); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid key")
		return http.StatusBadRequest
	}

	if err := g.verifier.Verify(r.URL.Query().Get("token"), key); err != nil {
		status := http.StatusForbidden
		if errors.Is(err, objectstore.ErrExpiredToken) {
			status = http.StatusUnauthorized
		}
		httputil.WriteError(w, status, err.Error())
		return status
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, httputil.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return http.StatusRequestEntityTooLarge
		}
		httputil.WriteError(w, http.StatusBadRequest, "failed to read body")
		return http.StatusBadRequest
	}

	if err := g.objects.Write(r.Context(), key, body); err != nil {
		if errors.Is(err, objectstore.ErrObjectExists) {
			httputil.WriteError(w, http.StatusConflict, "object already uploaded")
			return http.StatusConflict
		}
		g.logger.ErrorContext(r.Context(), "Failed to store upload", logging.ObjectKey(key), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to store upload")
		return http.StatusInternalServerError
	}

	metrics.UploadBytesTotal.Add(float64(len(body)))
	g.logger.InfoContext(r.Context(), "Upload stored", logging.ObjectKey(key))
	w.WriteHeader(http.StatusOK)
	return http.StatusOK
}
