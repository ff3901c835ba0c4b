package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plategate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plategate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Plate processing requests
	plateRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plategate_plate_requests_total",
			Help: "Total number of processed images by source",
		},
		[]string{"source", "detected"}, // source: image, camera
	)

	cameraCapturesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plategate_camera_captures_total",
			Help: "Total number of camera capture attempts",
		},
		[]string{"outcome"},
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plategate_rate_limit_hits_total",
			Help: "Total number of rejected rate limited requests",
		},
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plategate_upload_size_bytes",
			Help:    "Size of uploaded images in bytes",
			Buckets: []float64{10 * 1024, 100 * 1024, 512 * 1024, 1024 * 1024, 5 * 1024 * 1024, 20 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plategate_websocket_active_connections",
			Help: "Number of active plate stream connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plategate_websocket_messages_total",
			Help: "Total number of plate stream messages",
		},
		[]string{"outcome"}, // sent, dropped
	)
)

func metricsHandler() http.Handler { return promhttp.Handler() }
