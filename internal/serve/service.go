// Package serve implements the prediction service: request validation, the
// impute/scale/predict pipeline over immutable artifacts, and the HTTP API
// in front of it.
package serve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"cardioml/internal/metrics"
	"cardioml/internal/model"
	"cardioml/internal/preprocess"
	"cardioml/internal/tracking"
)

// State is the service lifecycle state. It is derived once at construction
// and never changes during normal operation.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateDegraded
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Confidence bands over the positive-class probability.
const (
	ConfidenceHigh   = "High"
	ConfidenceMedium = "Medium"
	ConfidenceLow    = "Low"
)

// ConfidenceBand discretizes a positive-class probability into the fixed
// High/Medium/Low bands.
func ConfidenceBand(probability float64) string {
	switch {
	case probability >= 0.8:
		return ConfidenceHigh
	case probability >= 0.6:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// PredictionResult is the structured response for one prediction request.
type PredictionResult struct {
	Prediction  int     `json:"prediction"`
	Probability float64 `json:"probability"`
	Confidence  string  `json:"confidence"`
	Timestamp   string  `json:"timestamp"`
}

// ErrServiceUnavailable is returned when no model artifact is loaded.
var ErrServiceUnavailable = errors.New("no model is loaded, service unavailable")

// ComputationError wraps an inference failure on otherwise valid input.
type ComputationError struct {
	Stage string
	Err   error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }

// Auditor receives served predictions for persistence. Implemented by the
// tracking store.
type Auditor interface {
	LogPrediction(rec tracking.PredictionRecord) error
}

// Service owns the serving artifacts and answers prediction requests. All
// fields are set at construction and shared read-only across requests, so
// the hot path needs no locking.
type Service struct {
	classifier   model.Classifier
	preprocessor *preprocess.Preprocessor
	info         model.Info
	metrics      *metrics.Metrics
	auditor      Auditor
	state        State
	now          func() time.Time
}

// New assembles a prediction service from whatever artifacts could be
// loaded. The lifecycle state is derived here: Ready when both artifacts
// are present, Degraded without a fitted preprocessor (features pass
// through unscaled), Unavailable without a model. auditor may be nil to
// disable prediction auditing.
func New(c model.Classifier, p *preprocess.Preprocessor, info model.Info, m *metrics.Metrics, auditor Auditor) *Service {
	s := &Service{
		classifier:   c,
		preprocessor: p,
		info:         info,
		metrics:      m,
		auditor:      auditor,
		now:          time.Now,
	}

	switch {
	case c == nil:
		s.state = StateUnavailable
	case p == nil || !p.Fitted():
		s.state = StateDegraded
	default:
		s.state = StateReady
	}

	m.ServiceState.Set(float64(s.state))
	if c != nil {
		m.ModelLoaded.Set(1)
	}
	if s.state == StateReady {
		m.PreprocessorLoaded.Set(1)
	}
	if !info.TrainedAt.IsZero() {
		m.ModelAge.Set(s.now().Sub(info.TrainedAt).Seconds())
	}

	log.Info().
		Str("state", s.state.String()).
		Str("model", s.ModelName()).
		Bool("preprocessor", s.PreprocessorLoaded()).
		Msg("Prediction service initialized")
	return s
}

// State reports the lifecycle state derived at construction.
func (s *Service) State() State { return s.state }

// Info returns the loaded model's artifact metadata.
func (s *Service) Info() model.Info { return s.info }

// ModelName returns the loaded model's type identifier, or "" when no
// model is loaded.
func (s *Service) ModelName() string {
	if s.classifier == nil {
		return ""
	}
	return s.classifier.Name()
}

// ModelLoaded reports whether a model artifact is loaded.
func (s *Service) ModelLoaded() bool { return s.classifier != nil }

// PreprocessorLoaded reports whether a fitted preprocessor is loaded.
func (s *Service) PreprocessorLoaded() bool {
	return s.preprocessor != nil && s.preprocessor.Fitted()
}

// Predict validates the request, runs it through the pipeline, and returns
// the labeled result with its confidence band. Invalid input never reaches
// the model; without a model the service refuses with ErrServiceUnavailable.
func (s *Service) Predict(ctx context.Context, patient PatientFeatures) (*PredictionResult, error) {
	start := s.now()

	if err := patient.Validate(); err != nil {
		s.metrics.RecordError("validation")
		return nil, err
	}
	if s.classifier == nil {
		s.metrics.RecordError("unavailable")
		return nil, ErrServiceUnavailable
	}

	row := [][]float64{patient.Vector()}
	if s.state == StateReady {
		transformed, err := s.preprocessor.Transform(row)
		if err != nil {
			s.metrics.RecordError("computation")
			return nil, &ComputationError{Stage: "preprocessing", Err: err}
		}
		row = transformed
	}

	labels, err := s.classifier.Predict(row)
	if err != nil {
		s.metrics.RecordError("computation")
		return nil, &ComputationError{Stage: "prediction", Err: err}
	}
	probs, err := s.classifier.PredictProba(row)
	if err != nil {
		s.metrics.RecordError("computation")
		return nil, &ComputationError{Stage: "prediction", Err: err}
	}

	result := &PredictionResult{
		Prediction:  labels[0],
		Probability: probs[0],
		Confidence:  ConfidenceBand(probs[0]),
		Timestamp:   s.now().UTC().Format(time.RFC3339),
	}

	elapsed := s.now().Sub(start)
	s.metrics.ObservePrediction(result.Prediction, result.Confidence, result.Probability, elapsed)

	log.Info().
		Floats64("input", patient.Vector()).
		Int("prediction", result.Prediction).
		Float64("probability", result.Probability).
		Str("confidence", result.Confidence).
		Dur("elapsed", elapsed).
		Msg("Prediction served")

	if s.auditor != nil {
		rec := tracking.PredictionRecord{
			ModelType:   s.classifier.Name(),
			Input:       patient.Vector(),
			Prediction:  result.Prediction,
			Probability: result.Probability,
			Confidence:  result.Confidence,
			CreatedAt:   start.UTC(),
		}
		if err := s.auditor.LogPrediction(rec); err != nil {
			log.Warn().Err(err).Msg("Failed to persist prediction audit record")
		}
	}

	return result, nil
}
