package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Model type identifiers stored in artifacts.
const (
	TypeLogistic = "logistic_regression"
	TypeForest   = "random_forest"
)

const artifactSchema = 1

// Classifier is the capability set the serving path depends on. Any fitted
// binary classifier that can label rows and score the positive class can sit
// behind it.
type Classifier interface {
	// Predict returns a 0/1 label per row.
	Predict(X [][]float64) ([]int, error)
	// PredictProba returns the positive-class probability per row.
	PredictProba(X [][]float64) ([]float64, error)
	Name() string
}

// Info describes a stored model artifact.
type Info struct {
	Type      string    `json:"type"`
	TrainedAt time.Time `json:"trained_at"`
	Features  int       `json:"features"`
}

type artifactEnvelope struct {
	Schema    int             `json:"schema"`
	Type      string          `json:"type"`
	TrainedAt time.Time       `json:"trained_at"`
	Features  int             `json:"features"`
	Model     json.RawMessage `json:"model"`
}

// Load restores a classifier saved by LogisticRegression.Save or
// RandomForest.Save, dispatching on the artifact's type field.
func Load(path string) (Classifier, Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Info{}, fmt.Errorf("failed to read model artifact: %w", err)
	}

	var env artifactEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, Info{}, fmt.Errorf("failed to parse model artifact: %w", err)
	}
	if env.Schema != artifactSchema {
		return nil, Info{}, fmt.Errorf("unsupported model schema %d", env.Schema)
	}

	info := Info{Type: env.Type, TrainedAt: env.TrainedAt, Features: env.Features}

	switch env.Type {
	case TypeLogistic:
		var m LogisticRegression
		if err := json.Unmarshal(env.Model, &m); err != nil {
			return nil, Info{}, fmt.Errorf("failed to parse logistic regression artifact: %w", err)
		}
		if len(m.Weights) == 0 {
			return nil, Info{}, errors.New("logistic regression artifact has no weights")
		}
		return &m, info, nil
	case TypeForest:
		var m RandomForest
		if err := json.Unmarshal(env.Model, &m); err != nil {
			return nil, Info{}, fmt.Errorf("failed to parse random forest artifact: %w", err)
		}
		if len(m.Trees) == 0 {
			return nil, Info{}, errors.New("random forest artifact has no trees")
		}
		return &m, info, nil
	default:
		return nil, Info{}, fmt.Errorf("unsupported model type %q", env.Type)
	}
}

func saveArtifact(path, modelType string, features int, m any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	env := artifactEnvelope{
		Schema:    artifactSchema,
		Type:      modelType,
		TrainedAt: time.Now().UTC(),
		Features:  features,
		Model:     raw,
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode model artifact: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create artifact directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write model artifact: %w", err)
	}
	return nil
}

// validateTrainingData rejects input no trainer can work with.
func validateTrainingData(X [][]float64, y []int) error {
	if len(X) == 0 {
		return errors.New("training set is empty")
	}
	if len(X) != len(y) {
		return fmt.Errorf("features and labels size mismatch: %d vs %d", len(X), len(y))
	}
	cols := len(X[0])
	if cols == 0 {
		return errors.New("training rows have no columns")
	}
	for i, row := range X {
		if len(row) != cols {
			return fmt.Errorf("row %d has %d columns, want %d", i, len(row), cols)
		}
	}
	for i, label := range y {
		if label != 0 && label != 1 {
			return fmt.Errorf("label %d at row %d is not binary", label, i)
		}
	}
	return nil
}

func validateRows(X [][]float64, features int) error {
	if len(X) == 0 {
		return errors.New("no rows to predict")
	}
	for i, row := range X {
		if len(row) != features {
			return fmt.Errorf("row %d has %d features, model expects %d", i, len(row), features)
		}
	}
	return nil
}
