package serve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"cardioml/internal/metrics"
	"cardioml/internal/model"
	"cardioml/internal/preprocess"
	"cardioml/internal/tracking"
)

// stubModel returns a fixed probability and records the rows it was asked
// to score.
type stubModel struct {
	proba     float64
	err       error
	lastInput [][]float64
	calls     int
}

func (s *stubModel) Predict(X [][]float64) ([]int, error) {
	s.calls++
	s.lastInput = X
	if s.err != nil {
		return nil, s.err
	}
	labels := make([]int, len(X))
	for i := range X {
		if s.proba >= 0.5 {
			labels[i] = 1
		}
	}
	return labels, nil
}

func (s *stubModel) PredictProba(X [][]float64) ([]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	probs := make([]float64, len(X))
	for i := range probs {
		probs[i] = s.proba
	}
	return probs, nil
}

func (s *stubModel) Name() string { return "stub" }

func newTestMetrics() *metrics.Metrics {
	return metrics.NewWithRegistry(prometheus.NewRegistry())
}

// fittedPreprocessor fits on a 13-column matrix so patient vectors match
// its width.
func fittedPreprocessor(t *testing.T) *preprocess.Preprocessor {
	t.Helper()
	X := make([][]float64, 6)
	for i := range X {
		row := make([]float64, 13)
		for j := range row {
			row[j] = float64(i + j)
		}
		X[i] = row
	}
	p := preprocess.New()
	if err := p.Fit(X); err != nil {
		t.Fatalf("Failed to fit preprocessor: %v", err)
	}
	return p
}

func TestService_StateDerivation(t *testing.T) {
	cases := []struct {
		name         string
		classifier   model.Classifier
		preprocessor *preprocess.Preprocessor
		want         State
	}{
		{"both artifacts", &stubModel{proba: 0.7}, nil, StateDegraded},
		{"no model", nil, nil, StateUnavailable},
		{"unfitted preprocessor", &stubModel{proba: 0.7}, preprocess.New(), StateDegraded},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New(tc.classifier, tc.preprocessor, model.Info{}, newTestMetrics(), nil)
			if s.State() != tc.want {
				t.Errorf("State = %v, want %v", s.State(), tc.want)
			}
		})
	}

	s := New(&stubModel{proba: 0.7}, fittedPreprocessor(t), model.Info{}, newTestMetrics(), nil)
	if s.State() != StateReady {
		t.Errorf("State with both artifacts = %v, want %v", s.State(), StateReady)
	}
	if !s.ModelLoaded() || !s.PreprocessorLoaded() {
		t.Error("Expected both artifacts reported as loaded")
	}
}

func TestService_Predict_EndToEnd(t *testing.T) {
	// Train a real model over preprocessed synthetic data so the whole
	// impute/scale/predict chain runs.
	n := 40
	raw := make([][]float64, n)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		row := make([]float64, 13)
		for j := range row {
			row[j] = float64((i*7+j*3)%10) + 1
		}
		if i%2 == 0 {
			row[0] = 70 + float64(i%5)
			y[i] = 1
		} else {
			row[0] = 30 + float64(i%5)
			y[i] = 0
		}
		raw[i] = row
	}

	p := preprocess.New()
	X, err := p.FitTransform(raw)
	if err != nil {
		t.Fatalf("FitTransform failed: %v", err)
	}
	clf, err := model.TrainLogistic(X, y, model.LogisticConfig{LearningRate: 0.5, L2Penalty: 0.01, MaxIter: 500})
	if err != nil {
		t.Fatalf("TrainLogistic failed: %v", err)
	}

	svc := New(clf, p, model.Info{Type: model.TypeLogistic, TrainedAt: time.Now()}, newTestMetrics(), nil)
	if svc.State() != StateReady {
		t.Fatalf("Service state = %v, want %v", svc.State(), StateReady)
	}

	result, err := svc.Predict(context.Background(), samplePatient())
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if result.Prediction != 0 && result.Prediction != 1 {
		t.Errorf("Prediction = %d, want 0 or 1", result.Prediction)
	}
	if result.Probability < 0 || result.Probability > 1 {
		t.Errorf("Probability = %v, want value in [0, 1]", result.Probability)
	}
	if result.Confidence != ConfidenceBand(result.Probability) {
		t.Errorf("Confidence = %q, inconsistent with probability %v", result.Confidence, result.Probability)
	}
	if _, err := time.Parse(time.RFC3339, result.Timestamp); err != nil {
		t.Errorf("Timestamp %q is not RFC3339: %v", result.Timestamp, err)
	}
}

func TestService_Predict_ValidationBeforeModel(t *testing.T) {
	clf := &stubModel{proba: 0.9}
	m := newTestMetrics()
	svc := New(clf, fittedPreprocessor(t), model.Info{}, m, nil)

	patient := samplePatient()
	patient.Age = -1

	_, err := svc.Predict(context.Background(), patient)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected *ValidationError, got %v", err)
	}
	if vErr.Field != "age" {
		t.Errorf("ValidationError.Field = %q, want %q", vErr.Field, "age")
	}
	if clf.calls != 0 {
		t.Errorf("Model was called %d times for invalid input, want 0", clf.calls)
	}
	if v := testutil.ToFloat64(m.PredictionErrors.WithLabelValues("validation")); v != 1 {
		t.Errorf("Validation error count = %f, want 1", v)
	}
}

func TestService_Predict_Unavailable(t *testing.T) {
	m := newTestMetrics()
	svc := New(nil, fittedPreprocessor(t), model.Info{}, m, nil)

	_, err := svc.Predict(context.Background(), samplePatient())
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("Expected ErrServiceUnavailable, got %v", err)
	}
	if v := testutil.ToFloat64(m.PredictionErrors.WithLabelValues("unavailable")); v != 1 {
		t.Errorf("Unavailable error count = %f, want 1", v)
	}
}

func TestService_Predict_DegradedPassThrough(t *testing.T) {
	clf := &stubModel{proba: 0.7}
	svc := New(clf, nil, model.Info{}, newTestMetrics(), nil)
	if svc.State() != StateDegraded {
		t.Fatalf("Service state = %v, want %v", svc.State(), StateDegraded)
	}

	patient := samplePatient()
	if _, err := svc.Predict(context.Background(), patient); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	// In degraded mode the raw feature vector reaches the model unscaled.
	want := patient.Vector()
	if len(clf.lastInput) != 1 {
		t.Fatalf("Model received %d rows, want 1", len(clf.lastInput))
	}
	for i := range want {
		if clf.lastInput[0][i] != want[i] {
			t.Errorf("Model input[%d] = %v, want raw value %v", i, clf.lastInput[0][i], want[i])
		}
	}
}

func TestService_Predict_ComputationError(t *testing.T) {
	clf := &stubModel{err: errors.New("matrix shape mismatch")}
	m := newTestMetrics()
	svc := New(clf, fittedPreprocessor(t), model.Info{}, m, nil)

	_, err := svc.Predict(context.Background(), samplePatient())
	var cErr *ComputationError
	if !errors.As(err, &cErr) {
		t.Fatalf("Expected *ComputationError, got %v", err)
	}
	if cErr.Stage != "prediction" {
		t.Errorf("ComputationError.Stage = %q, want %q", cErr.Stage, "prediction")
	}
	if v := testutil.ToFloat64(m.PredictionErrors.WithLabelValues("computation")); v != 1 {
		t.Errorf("Computation error count = %f, want 1", v)
	}
}

func TestService_Predict_PreprocessorWidthMismatch(t *testing.T) {
	// A preprocessor fitted on the wrong column count must surface as a
	// computation error at the preprocessing stage.
	narrow := preprocess.New()
	if err := narrow.Fit([][]float64{{1, 2}, {3, 4}, {5, 6}}); err != nil {
		t.Fatalf("Failed to fit preprocessor: %v", err)
	}

	svc := New(&stubModel{proba: 0.5}, narrow, model.Info{}, newTestMetrics(), nil)

	_, err := svc.Predict(context.Background(), samplePatient())
	var cErr *ComputationError
	if !errors.As(err, &cErr) {
		t.Fatalf("Expected *ComputationError, got %v", err)
	}
	if cErr.Stage != "preprocessing" {
		t.Errorf("ComputationError.Stage = %q, want %q", cErr.Stage, "preprocessing")
	}
}

func TestConfidenceBand(t *testing.T) {
	cases := []struct {
		probability float64
		want        string
	}{
		{1.0, ConfidenceHigh},
		{0.8, ConfidenceHigh},
		{0.79, ConfidenceMedium},
		{0.6, ConfidenceMedium},
		{0.59, ConfidenceLow},
		{0.0, ConfidenceLow},
	}

	for _, tc := range cases {
		if got := ConfidenceBand(tc.probability); got != tc.want {
			t.Errorf("ConfidenceBand(%v) = %q, want %q", tc.probability, got, tc.want)
		}
	}
}

func TestService_ConfidenceBandsFromModel(t *testing.T) {
	cases := []struct {
		proba float64
		want  string
	}{
		{0.95, ConfidenceHigh},
		{0.8, ConfidenceHigh},
		{0.7, ConfidenceMedium},
		{0.3, ConfidenceLow},
	}

	for _, tc := range cases {
		svc := New(&stubModel{proba: tc.proba}, fittedPreprocessor(t), model.Info{}, newTestMetrics(), nil)
		result, err := svc.Predict(context.Background(), samplePatient())
		if err != nil {
			t.Fatalf("Predict with proba %v failed: %v", tc.proba, err)
		}
		if result.Confidence != tc.want {
			t.Errorf("Confidence for proba %v = %q, want %q", tc.proba, result.Confidence, tc.want)
		}
	}
}

// captureAuditor records what the service hands to the tracking store.
type captureAuditor struct {
	records []tracking.PredictionRecord
	err     error
}

func (a *captureAuditor) LogPrediction(rec tracking.PredictionRecord) error {
	a.records = append(a.records, rec)
	return a.err
}

func TestService_auditsPredictions(t *testing.T) {
	auditor := &captureAuditor{}
	svc := New(&stubModel{proba: 0.85}, fittedPreprocessor(t), model.Info{}, newTestMetrics(), auditor)

	if _, err := svc.Predict(context.Background(), samplePatient()); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	if len(auditor.records) != 1 {
		t.Fatalf("Auditor received %d records, want 1", len(auditor.records))
	}
	rec := auditor.records[0]
	if rec.ModelType != "stub" {
		t.Errorf("Record model type = %q, want %q", rec.ModelType, "stub")
	}
	if rec.Prediction != 1 || rec.Probability != 0.85 || rec.Confidence != ConfidenceHigh {
		t.Errorf("Record = %+v, want prediction 1, probability 0.85, confidence High", rec)
	}
	if len(rec.Input) != 13 {
		t.Errorf("Record input length = %d, want 13", len(rec.Input))
	}
}

func TestService_auditFailureDoesNotFailRequest(t *testing.T) {
	auditor := &captureAuditor{err: errors.New("db closed")}
	svc := New(&stubModel{proba: 0.5}, fittedPreprocessor(t), model.Info{}, newTestMetrics(), auditor)

	if _, err := svc.Predict(context.Background(), samplePatient()); err != nil {
		t.Errorf("Predict failed on audit error: %v", err)
	}
}
