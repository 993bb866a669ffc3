package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aivideomake_pipelines_total",
		Help: "Total number of composite pipeline runs, by status",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aivideomake_stage_duration_seconds",
		Help:    "Duration of each composite pipeline stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesCompositedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aivideomake_frames_composited_total",
		Help: "Total number of frames written by the compositor",
	})

	FramesResizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aivideomake_frames_resized_total",
		Help: "Background or mask frames resized to the foreground size",
	}, []string{"input"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aivideomake_active_workers",
		Help: "Number of composite jobs currently being processed",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aivideomake_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
