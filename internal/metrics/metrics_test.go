package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWithRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)

	if m == nil {
		t.Fatal("NewWithRegistry returned nil")
	}

	// Gauges start at zero until the service reports state.
	if v := testutil.ToFloat64(m.ModelLoaded); v != 0 {
		t.Errorf("Expected initial model_loaded 0, got %f", v)
	}
	if v := testutil.ToFloat64(m.ServiceState); v != 0 {
		t.Errorf("Expected initial service_state 0, got %f", v)
	}
	if v := testutil.ToFloat64(m.ErrorsTotal); v != 0 {
		t.Errorf("Expected initial errors_total 0, got %f", v)
	}
}

func TestMetrics_ObservePrediction(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)

	m.ObservePrediction(1, "High", 0.85, 3*time.Millisecond)
	m.ObservePrediction(1, "Medium", 0.7, time.Millisecond)
	m.ObservePrediction(0, "High", 0.1, time.Millisecond)

	if v := testutil.ToFloat64(m.PredictionsTotal.WithLabelValues("positive", "High")); v != 1 {
		t.Errorf("Expected positive/High count 1, got %f", v)
	}
	if v := testutil.ToFloat64(m.PredictionsTotal.WithLabelValues("positive", "Medium")); v != 1 {
		t.Errorf("Expected positive/Medium count 1, got %f", v)
	}
	if v := testutil.ToFloat64(m.PredictionsTotal.WithLabelValues("negative", "High")); v != 1 {
		t.Errorf("Expected negative/High count 1, got %f", v)
	}
}

func TestMetrics_RecordError(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)

	m.RecordError("validation")
	m.RecordError("validation")
	m.RecordError("unavailable")

	if v := testutil.ToFloat64(m.PredictionErrors.WithLabelValues("validation")); v != 2 {
		t.Errorf("Expected validation error count 2, got %f", v)
	}
	if v := testutil.ToFloat64(m.PredictionErrors.WithLabelValues("unavailable")); v != 1 {
		t.Errorf("Expected unavailable error count 1, got %f", v)
	}
	if v := testutil.ToFloat64(m.ErrorsTotal); v != 3 {
		t.Errorf("Expected errors_total 3, got %f", v)
	}
}

func TestMetrics_ModelGauges(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)

	m.ModelLoaded.Set(1)
	m.PreprocessorLoaded.Set(1)
	m.ServiceState.Set(2)
	m.ModelAge.Set(3600)

	if v := testutil.ToFloat64(m.ModelLoaded); v != 1 {
		t.Errorf("Expected model_loaded 1, got %f", v)
	}
	if v := testutil.ToFloat64(m.ServiceState); v != 2 {
		t.Errorf("Expected service_state 2, got %f", v)
	}
	if v := testutil.ToFloat64(m.ModelAge); v != 3600 {
		t.Errorf("Expected model_age_seconds 3600, got %f", v)
	}
}
