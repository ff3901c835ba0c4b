package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	detectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plategate_detections_total",
			Help: "Total number of detector calls",
		},
		[]string{"status"}, // ok, empty, failed
	)

	regionsDetected = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plategate_regions_detected",
			Help:    "Number of plate regions proposed per image",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 25},
		},
	)

	readsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plategate_reads_total",
			Help: "Total number of plate reads by outcome",
		},
		[]string{"status"}, // ok, empty, failed, low_confidence, rejected, skipped
	)

	platesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plategate_plates_emitted_total",
			Help: "Total number of validated plates emitted",
		},
		[]string{"direction"},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plategate_deliveries_total",
			Help: "Total number of notifier deliveries by outcome",
		},
		[]string{"outcome"}, // delivered, failed
	)

	sinkErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plategate_sink_errors_total",
			Help: "Total number of failed sink publishes",
		},
	)

	processingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plategate_processing_duration_seconds",
			Help:    "Time spent processing one image",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
)
