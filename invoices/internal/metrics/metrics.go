package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Slot metrics
	SlotsIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecx_invoices_slots_issued_total",
			Help: "Total number of upload slots requested",
		},
		[]string{"status"},
	)

	SlotsCancelledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecx_invoices_slots_cancelled_total",
			Help: "Total number of upload slots cancelled before use",
		},
	)

	SlotRequestsThrottledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecx_invoices_slot_requests_throttled_total",
			Help: "Total number of upload slot requests rejected by the rate limiter",
		},
	)

	// Ingestion metrics
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecx_invoices_ingest_total",
			Help: "Total number of storage completions handled, by outcome",
		},
		[]string{"outcome"},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ecx_invoices_ingest_duration_seconds",
			Help:    "Duration of one storage completion in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	IngestRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecx_invoices_ingest_retries_total",
			Help: "Total number of storage events handed back for redelivery",
		},
	)

	DeadLetteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecx_invoices_dead_lettered_total",
			Help: "Total number of storage events moved to the DLQ",
		},
		[]string{"reason"},
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecx_invoices_notifications_total",
			Help: "Total number of status pushes, by status and result",
		},
		[]string{"status", "result"},
	)

	// Gateway metrics
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecx_invoices_active_connections",
			Help: "Current number of open socket connections",
		},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecx_invoices_uploads_total",
			Help: "Total number of upload requests, by status code",
		},
		[]string{"code"},
	)

	UploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecx_invoices_upload_bytes_total",
			Help: "Total bytes accepted by the upload endpoint",
		},
	)
)
