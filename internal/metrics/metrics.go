// Package metrics provides Prometheus metrics collection for the heart
// disease prediction service. It defines and manages all prediction and
// model metrics that are exposed via the Prometheus metrics endpoint for
// monitoring and alerting.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the prediction service. It
// provides counters, gauges, and histograms for monitoring request
// outcomes and model health.
type Metrics struct {
	// Prediction metrics
	PredictionsTotal  *prometheus.CounterVec // Served predictions by outcome and confidence band
	PredictionErrors  *prometheus.CounterVec // Failed prediction requests by kind
	PredictionLatency prometheus.Histogram   // End-to-end prediction latency in seconds
	ProbabilityScores prometheus.Histogram   // Distribution of predicted probabilities

	// Model metrics
	ModelLoaded        prometheus.Gauge // 1 when a model artifact is loaded
	PreprocessorLoaded prometheus.Gauge // 1 when a preprocessor artifact is loaded
	ModelAge           prometheus.Gauge // Age of the serving model in seconds
	ServiceState       prometheus.Gauge // Service lifecycle state

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
// This is the standard way to create metrics for production use.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// This allows for isolated metric collection in tests without affecting
// the global Prometheus registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of served predictions by outcome and confidence band",
		}, []string{"outcome", "confidence"}),
		PredictionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prediction_errors_total",
			Help: "Total number of failed prediction requests by error kind",
		}, []string{"kind"}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Prediction latency in seconds (end-to-end)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		ProbabilityScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_probability_scores",
			Help:    "Distribution of predicted positive-class probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ModelLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_loaded",
			Help: "Whether a model artifact is currently loaded (1) or not (0)",
		}),
		PreprocessorLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "preprocessor_loaded",
			Help: "Whether a preprocessor artifact is currently loaded (1) or not (0)",
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_age_seconds",
			Help: "Age of the serving model in seconds",
		}),
		ServiceState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "service_state",
			Help: "Service lifecycle state (0=uninitialized, 1=loading, 2=ready, 3=degraded, 4=unavailable)",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

// ObservePrediction records one served prediction across the prediction
// counters and histograms.
func (m *Metrics) ObservePrediction(prediction int, confidence string, probability float64, duration time.Duration) {
	outcome := "negative"
	if prediction == 1 {
		outcome = "positive"
	}
	m.PredictionsTotal.WithLabelValues(outcome, confidence).Inc()
	m.ProbabilityScores.Observe(probability)
	m.PredictionLatency.Observe(duration.Seconds())
}

// RecordError counts one failed prediction request by kind.
func (m *Metrics) RecordError(kind string) {
	m.PredictionErrors.WithLabelValues(kind).Inc()
	m.ErrorsTotal.Inc()
}
