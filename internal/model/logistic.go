package model

import (
	"math"
)

// LogisticConfig holds the gradient-descent hyperparameters.
type LogisticConfig struct {
	LearningRate float64 `json:"learning_rate"`
	L2Penalty    float64 `json:"l2_penalty"`
	MaxIter      int     `json:"max_iter"`
}

func DefaultLogisticConfig() LogisticConfig {
	return LogisticConfig{
		LearningRate: 0.1,
		L2Penalty:    1.0,
		MaxIter:      1000,
	}
}

// LogisticRegression is a binary classifier over standardized features,
// fitted by full-batch gradient descent with L2 regularization.
type LogisticRegression struct {
	Weights []float64      `json:"weights"`
	Bias    float64        `json:"bias"`
	Config  LogisticConfig `json:"config"`
}

// TrainLogistic fits a logistic regression on X and binary labels y.
// Iteration stops early once the gradient is effectively zero.
func TrainLogistic(X [][]float64, y []int, cfg LogisticConfig) (*LogisticRegression, error) {
	if err := validateTrainingData(X, y); err != nil {
		return nil, err
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.1
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = 1000
	}
	if cfg.L2Penalty < 0 {
		cfg.L2Penalty = 0
	}

	n := len(X)
	features := len(X[0])
	weights := make([]float64, features)
	bias := 0.0
	grad := make([]float64, features)

	const tolerance = 1e-6

	for iter := 0; iter < cfg.MaxIter; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		gradBias := 0.0

		for i, row := range X {
			z := bias
			for j, v := range row {
				z += weights[j] * v
			}
			delta := sigmoid(z) - float64(y[i])
			for j, v := range row {
				grad[j] += delta * v
			}
			gradBias += delta
		}

		maxStep := math.Abs(gradBias) / float64(n)
		for j := range grad {
			grad[j] = grad[j]/float64(n) + cfg.L2Penalty*weights[j]/float64(n)
			if s := math.Abs(grad[j]); s > maxStep {
				maxStep = s
			}
		}

		for j := range weights {
			weights[j] -= cfg.LearningRate * grad[j]
		}
		bias -= cfg.LearningRate * gradBias / float64(n)

		if maxStep < tolerance {
			break
		}
	}

	return &LogisticRegression{Weights: weights, Bias: bias, Config: cfg}, nil
}

func (m *LogisticRegression) Predict(X [][]float64) ([]int, error) {
	probs, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(probs))
	for i, p := range probs {
		if p >= 0.5 {
			labels[i] = 1
		}
	}
	return labels, nil
}

func (m *LogisticRegression) PredictProba(X [][]float64) ([]float64, error) {
	if err := validateRows(X, len(m.Weights)); err != nil {
		return nil, err
	}
	probs := make([]float64, len(X))
	for i, row := range X {
		z := m.Bias
		for j, v := range row {
			z += m.Weights[j] * v
		}
		probs[i] = sigmoid(z)
	}
	return probs, nil
}

func (m *LogisticRegression) Name() string {
	return TypeLogistic
}

// Save writes the fitted model to path inside the standard artifact envelope.
func (m *LogisticRegression) Save(path string) error {
	return saveArtifact(path, TypeLogistic, len(m.Weights), m)
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
