package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/rs/zerolog/log"

	"cardioml/internal/preprocess"
)

// Split partitions ds into train and test sets. The split is stratified by
// label whenever every class keeps at least two members on each side;
// otherwise it falls back to a plain shuffled split so tiny or lopsided
// datasets still produce a valid partition.
func Split(ds *Dataset, testFraction float64, seed int64) (train, test *Dataset, err error) {
	n := ds.Len()
	if n < 2 {
		return nil, nil, fmt.Errorf("need at least 2 rows to split, have %d", n)
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in (0, 1), got %f", testFraction)
	}

	testCount := int(math.Ceil(float64(n) * testFraction))
	if testCount >= n {
		testCount = n - 1
	}

	rng := rand.New(rand.NewSource(seed))

	testIdx := stratifiedTestIndices(ds.Labels, testFraction, rng)
	if testIdx == nil {
		log.Warn().Msg("Stratified split not possible, falling back to random split")
		perm := rng.Perm(n)
		testIdx = perm[:testCount]
	}

	inTest := make([]bool, n)
	for _, i := range testIdx {
		inTest[i] = true
	}

	train = &Dataset{}
	test = &Dataset{}
	for i := 0; i < n; i++ {
		if inTest[i] {
			test.Features = append(test.Features, ds.Features[i])
			test.Labels = append(test.Labels, ds.Labels[i])
		} else {
			train.Features = append(train.Features, ds.Features[i])
			train.Labels = append(train.Labels, ds.Labels[i])
		}
	}
	return train, test, nil
}

// stratifiedTestIndices picks proportional per-class test indices, or nil
// when any class would drop below two members on either side.
func stratifiedTestIndices(labels []int, testFraction float64, rng *rand.Rand) []int {
	byClass := make(map[int][]int)
	for i, y := range labels {
		byClass[y] = append(byClass[y], i)
	}

	classes := make([]int, 0, len(byClass))
	for y := range byClass {
		classes = append(classes, y)
	}
	sort.Ints(classes)

	counts := make(map[int]int, len(classes))
	for _, y := range classes {
		members := len(byClass[y])
		ct := int(math.Round(float64(members) * testFraction))
		if ct < 2 || members-ct < 2 {
			return nil
		}
		counts[y] = ct
	}

	var testIdx []int
	for _, y := range classes {
		members := byClass[y]
		perm := rng.Perm(len(members))
		for _, j := range perm[:counts[y]] {
			testIdx = append(testIdx, members[j])
		}
	}
	return testIdx
}

// SplitResult bundles the transformed partitions with the preprocessor that
// was fitted on the training rows.
type SplitResult struct {
	XTrain       [][]float64
	XTest        [][]float64
	YTrain       []int
	YTest        []int
	Preprocessor *preprocess.Preprocessor
}

// LoadAndPreprocess runs the full data path: load, split, fit the
// preprocessor on the training partition only, then transform both
// partitions with the training statistics.
func LoadAndPreprocess(path string, testFraction float64, seed int64) (*SplitResult, error) {
	ds, err := Load(path)
	if err != nil {
		return nil, err
	}

	train, test, err := Split(ds, testFraction, seed)
	if err != nil {
		return nil, err
	}

	p := preprocess.New()
	xTrain, err := p.FitTransform(train.Features)
	if err != nil {
		return nil, fmt.Errorf("failed to fit preprocessor: %w", err)
	}
	xTest, err := p.Transform(test.Features)
	if err != nil {
		return nil, fmt.Errorf("failed to transform test partition: %w", err)
	}

	log.Info().
		Int("train_rows", len(xTrain)).
		Int("test_rows", len(xTest)).
		Msg("Dataset split and preprocessed")

	return &SplitResult{
		XTrain:       xTrain,
		XTest:        xTest,
		YTrain:       train.Labels,
		YTest:        test.Labels,
		Preprocessor: p,
	}, nil
}
