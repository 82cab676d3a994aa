// Package eval scores fitted classifiers and estimates generalization with
// stratified cross-validation.
package eval

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/rs/zerolog/log"

	"cardioml/internal/model"
)

// Metrics summarizes binary classification quality on one labeled set.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	ROCAUC    float64 `json:"roc_auc"`
}

// Evaluate scores a fitted classifier against labeled rows. Predicted labels
// use the 0.5 probability threshold; ROC-AUC ranks the raw probabilities.
func Evaluate(c model.Classifier, X [][]float64, y []int) (Metrics, error) {
	if len(X) == 0 {
		return Metrics{}, errors.New("evaluation set is empty")
	}
	if len(X) != len(y) {
		return Metrics{}, fmt.Errorf("features and labels size mismatch: %d vs %d", len(X), len(y))
	}

	probs, err := c.PredictProba(X)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to score evaluation set: %w", err)
	}

	var tp, tn, fp, fn int
	for i, p := range probs {
		pred := 0
		if p >= 0.5 {
			pred = 1
		}
		switch {
		case pred == 1 && y[i] == 1:
			tp++
		case pred == 1 && y[i] == 0:
			fp++
		case pred == 0 && y[i] == 0:
			tn++
		default:
			fn++
		}
	}

	m := Metrics{Accuracy: float64(tp+tn) / float64(len(y))}
	if tp+fp > 0 {
		m.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		m.Recall = float64(tp) / float64(tp+fn)
	}
	m.ROCAUC = rocAUC(probs, y)
	return m, nil
}

// rocAUC computes the area under the ROC curve through the rank-sum
// identity. Tied scores share their average rank. A single-class set scores
// 0.5 since ranking tells us nothing there.
func rocAUC(probs []float64, y []int) float64 {
	n := len(probs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return probs[idx[a]] < probs[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && probs[idx[j]] == probs[idx[i]] {
			j++
		}
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		i = j
	}

	rankSum := 0.0
	pos, neg := 0, 0
	for i, label := range y {
		if label == 1 {
			pos++
			rankSum += ranks[i]
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0.5
	}
	u := rankSum - float64(pos)*float64(pos+1)/2
	return u / (float64(pos) * float64(neg))
}

// FoldScores holds per-fold ROC-AUC results from cross-validation.
type FoldScores struct {
	Scores []float64 `json:"scores"`
	Mean   float64   `json:"mean"`
	Std    float64   `json:"std"`
}

// TrainFunc fits a fresh classifier on one training fold.
type TrainFunc func(X [][]float64, y []int) (model.Classifier, error)

// CrossValidate estimates generalization with stratified k-fold CV, scoring
// each held-out fold by ROC-AUC. When a class has fewer members than folds,
// stratification is impossible and plain shuffled folds are used instead.
func CrossValidate(train TrainFunc, X [][]float64, y []int, k int, seed int64) (FoldScores, error) {
	if k < 2 {
		return FoldScores{}, fmt.Errorf("fold count must be at least 2, got %d", k)
	}
	if len(X) != len(y) {
		return FoldScores{}, fmt.Errorf("features and labels size mismatch: %d vs %d", len(X), len(y))
	}
	if len(X) < k {
		return FoldScores{}, fmt.Errorf("not enough rows for %d folds: %d", k, len(X))
	}

	rng := rand.New(rand.NewSource(seed))
	folds := stratifiedFolds(y, k, rng)
	if folds == nil {
		log.Warn().Msg("Stratified folds not possible, falling back to random folds")
		folds = randomFolds(len(y), k, rng)
	}

	scores := make([]float64, 0, k)
	for f, testIdx := range folds {
		trainX, trainY, testX, testY := splitFold(X, y, testIdx)
		c, err := train(trainX, trainY)
		if err != nil {
			return FoldScores{}, fmt.Errorf("failed to train fold %d: %w", f, err)
		}
		probs, err := c.PredictProba(testX)
		if err != nil {
			return FoldScores{}, fmt.Errorf("failed to score fold %d: %w", f, err)
		}
		scores = append(scores, rocAUC(probs, testY))
	}

	mean := 0.0
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	variance := 0.0
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	std := math.Sqrt(variance / float64(len(scores)))

	return FoldScores{Scores: scores, Mean: mean, Std: std}, nil
}

// stratifiedFolds assigns each class's shuffled members round-robin across k
// folds. Returns nil when any class has fewer members than folds.
func stratifiedFolds(y []int, k int, rng *rand.Rand) [][]int {
	byClass := make(map[int][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}

	classes := make([]int, 0, len(byClass))
	for label := range byClass {
		classes = append(classes, label)
	}
	sort.Ints(classes)

	for _, label := range classes {
		if len(byClass[label]) < k {
			return nil
		}
	}

	folds := make([][]int, k)
	for _, label := range classes {
		members := byClass[label]
		for i, j := range rng.Perm(len(members)) {
			folds[i%k] = append(folds[i%k], members[j])
		}
	}
	return folds
}

func randomFolds(n, k int, rng *rand.Rand) [][]int {
	folds := make([][]int, k)
	for i, j := range rng.Perm(n) {
		folds[i%k] = append(folds[i%k], j)
	}
	return folds
}

func splitFold(X [][]float64, y []int, testIdx []int) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	inTest := make(map[int]bool, len(testIdx))
	for _, i := range testIdx {
		inTest[i] = true
	}
	for i := range X {
		if inTest[i] {
			testX = append(testX, X[i])
			testY = append(testY, y[i])
		} else {
			trainX = append(trainX, X[i])
			trainY = append(trainY, y[i])
		}
	}
	return
}
