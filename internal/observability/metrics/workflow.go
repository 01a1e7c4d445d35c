package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/domain"
)

const namespace = "invoice"

// WorkflowMetrics records per-file workflow outcomes.
type WorkflowMetrics struct {
	registry *prometheus.Registry
	service  string

	fileTotal    *prometheus.CounterVec
	fileDuration *prometheus.HistogramVec
	fileInFlight prometheus.Gauge
	attempts     prometheus.Histogram
	completeness prometheus.Histogram
}

// NewWorkflowMetrics registers on registry, or on a fresh one when nil.
func NewWorkflowMetrics(service string, registry *prometheus.Registry) *WorkflowMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	fileTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "files_total",
			Help:      "Total processed invoice files by mode and outcome.",
		},
		[]string{"service", "mode", "outcome"},
	)
	fileDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "file_duration_seconds",
			Help:      "Per-file workflow duration in seconds by outcome.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"service", "outcome"},
	)
	fileInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "files_in_flight",
			Help:      "Number of files currently in the workflow.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	attempts := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "extraction_attempts",
			Help:      "Extraction attempts used per file.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	completeness := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "completeness_score",
			Help:      "Distribution of invoice completeness scores (0-100).",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(fileTotal, fileDuration, fileInFlight, attempts, completeness)

	return &WorkflowMetrics{
		registry:     registry,
		service:      service,
		fileTotal:    fileTotal,
		fileDuration: fileDuration,
		fileInFlight: fileInFlight,
		attempts:     attempts,
		completeness: completeness,
	}
}

func (m *WorkflowMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkflowMetrics) StartFile() {
	m.fileInFlight.Inc()
}

func (m *WorkflowMetrics) FinishFile(mode domain.ProcessingMode, outcome string, duration time.Duration) {
	m.fileInFlight.Dec()
	if outcome == "" {
		outcome = "unknown"
	}
	m.fileTotal.WithLabelValues(m.service, string(mode), outcome).Inc()
	m.fileDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

func (m *WorkflowMetrics) ObserveAttempts(attempts int) {
	if attempts <= 0 {
		return
	}
	m.attempts.Observe(float64(attempts))
}

func (m *WorkflowMetrics) ObserveCompleteness(score float64) {
	m.completeness.Observe(score)
}
