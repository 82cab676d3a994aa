package model

import (
	"errors"
	"math"
	"math/rand"

	"github.com/rs/zerolog/log"
)

// ForestConfig holds the bagging hyperparameters.
type ForestConfig struct {
	Estimators      int   `json:"estimators"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	MinSamplesLeaf  int   `json:"min_samples_leaf"`
	Seed            int64 `json:"seed"`
}

// DefaultForestConfig returns the baseline forest hyperparameters.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		Estimators:      100,
		MaxDepth:        10,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  2,
		Seed:            42,
	}
}

// RandomForest is a bagged ensemble of gini decision trees. Each tree trains
// on a bootstrap sample of the data and considers a sqrt-sized random feature
// subset at every split. The predicted probability is the mean leaf positive
// fraction across trees.
type RandomForest struct {
	Trees    [][]TreeNode `json:"trees"`
	Features int          `json:"features"`
	Config   ForestConfig `json:"config"`
}

// TrainForest fits a random forest on the given matrix and binary labels.
// Training is deterministic for a fixed config seed.
func TrainForest(X [][]float64, y []int, cfg ForestConfig) (*RandomForest, error) {
	if err := validateTrainingData(X, y); err != nil {
		return nil, err
	}

	def := DefaultForestConfig()
	if cfg.Estimators <= 0 {
		cfg.Estimators = def.Estimators
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = def.MinSamplesSplit
	}
	if cfg.MinSamplesLeaf < 1 {
		cfg.MinSamplesLeaf = def.MinSamplesLeaf
	}

	features := len(X[0])
	mtry := int(math.Sqrt(float64(features)))
	if mtry < 1 {
		mtry = 1
	}
	params := treeParams{
		maxDepth:        cfg.MaxDepth,
		minSamplesSplit: cfg.MinSamplesSplit,
		minSamplesLeaf:  cfg.MinSamplesLeaf,
		maxFeatures:     mtry,
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	n := len(X)
	sampleX := make([][]float64, n)
	sampleY := make([]int, n)
	trees := make([][]TreeNode, 0, cfg.Estimators)
	for t := 0; t < cfg.Estimators; t++ {
		for i := 0; i < n; i++ {
			j := rng.Intn(n)
			sampleX[i] = X[j]
			sampleY[i] = y[j]
		}
		trees = append(trees, buildTree(sampleX, sampleY, params, rng))
	}

	log.Debug().
		Int("trees", len(trees)).
		Int("features", features).
		Int("samples", n).
		Msg("Random forest trained")

	return &RandomForest{Trees: trees, Features: features, Config: cfg}, nil
}

// Predict returns the class label for each row, 1 when the predicted
// probability is at least 0.5.
func (m *RandomForest) Predict(X [][]float64) ([]int, error) {
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

// PredictProba returns the positive-class probability for each row.
func (m *RandomForest) PredictProba(X [][]float64) ([]float64, error) {
	if len(m.Trees) == 0 {
		return nil, errors.New("model has no trees")
	}
	if err := validateRows(X, m.Features); err != nil {
		return nil, err
	}

	probs := make([]float64, len(X))
	for i, row := range X {
		sum := 0.0
		for _, tree := range m.Trees {
			p, err := predictTree(tree, row)
			if err != nil {
				return nil, err
			}
			sum += p
		}
		probs[i] = sum / float64(len(m.Trees))
	}
	return probs, nil
}

// Name reports the model type identifier used in artifacts and run records.
func (m *RandomForest) Name() string { return TypeForest }

// Save writes the forest to a JSON artifact at path.
func (m *RandomForest) Save(path string) error {
	return saveArtifact(path, TypeForest, m.Features, m)
}
