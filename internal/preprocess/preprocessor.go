package preprocess

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ErrNotFitted is returned when Transform is called before Fit. It signals a
// deployment or programming error, not a transient condition.
var ErrNotFitted = errors.New("preprocessor is not fitted")

const artifactSchema = 1

// Preprocessor imputes missing values with per-column medians, then
// standardizes each column to zero mean and unit variance. Statistics are
// computed once by Fit and never change afterwards, so a fitted instance is
// safe for concurrent read-only use.
type Preprocessor struct {
	medians []float64
	means   []float64
	stds    []float64
	fitted  bool
}

func New() *Preprocessor {
	return &Preprocessor{}
}

// Fit computes imputation and scaling statistics from X. Missing entries are
// NaN. Fails when X is empty, ragged, or when a column has no observed
// values at all.
func (p *Preprocessor) Fit(X [][]float64) error {
	if len(X) == 0 {
		return errors.New("cannot fit on an empty matrix")
	}
	cols := len(X[0])
	if cols == 0 {
		return errors.New("cannot fit on a matrix with no columns")
	}
	for i, row := range X {
		if len(row) != cols {
			return fmt.Errorf("row %d has %d columns, want %d", i, len(row), cols)
		}
	}

	medians := make([]float64, cols)
	means := make([]float64, cols)
	stds := make([]float64, cols)

	for c := 0; c < cols; c++ {
		observed := make([]float64, 0, len(X))
		for _, row := range X {
			if !math.IsNaN(row[c]) {
				observed = append(observed, row[c])
			}
		}
		if len(observed) == 0 {
			return fmt.Errorf("column %d has no observed values", c)
		}
		medians[c] = median(observed)

		var sum, sumSquared float64
		for _, row := range X {
			v := row[c]
			if math.IsNaN(v) {
				v = medians[c]
			}
			sum += v
			sumSquared += v * v
		}
		n := float64(len(X))
		mean := sum / n
		variance := sumSquared/n - mean*mean
		if variance < 0 {
			variance = 0 // round-off on constant columns
		}
		means[c] = mean
		stds[c] = math.Sqrt(variance)
	}

	p.medians = medians
	p.means = means
	p.stds = stds
	p.fitted = true
	return nil
}

// Transform imputes and scales X using the fitted statistics. Columns whose
// fitted standard deviation is zero produce 0 instead of dividing by zero.
// The input matrix is not modified.
func (p *Preprocessor) Transform(X [][]float64) ([][]float64, error) {
	if !p.fitted {
		return nil, ErrNotFitted
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != len(p.means) {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), len(p.means))
		}
		scaled := make([]float64, len(row))
		for c, v := range row {
			if math.IsNaN(v) {
				v = p.medians[c]
			}
			if p.stds[c] == 0 {
				scaled[c] = 0
				continue
			}
			scaled[c] = (v - p.means[c]) / p.stds[c]
		}
		out[i] = scaled
	}
	return out, nil
}

// FitTransform fits on X and transforms the same matrix.
func (p *Preprocessor) FitTransform(X [][]float64) ([][]float64, error) {
	if err := p.Fit(X); err != nil {
		return nil, err
	}
	return p.Transform(X)
}

func (p *Preprocessor) Fitted() bool {
	return p.fitted
}

// NumFeatures returns the column count seen at fit time, 0 when unfitted.
func (p *Preprocessor) NumFeatures() int {
	return len(p.means)
}

type artifact struct {
	Schema  int       `json:"schema"`
	SavedAt time.Time `json:"saved_at"`
	Fitted  bool      `json:"fitted"`
	Medians []float64 `json:"medians"`
	Means   []float64 `json:"means"`
	Stds    []float64 `json:"stds"`
}

// Save writes the fitted statistics to path as JSON. An unfitted instance is
// saved as such and loads back unfitted.
func (p *Preprocessor) Save(path string) error {
	a := artifact{
		Schema:  artifactSchema,
		SavedAt: time.Now().UTC(),
		Fitted:  p.fitted,
		Medians: p.medians,
		Means:   p.means,
		Stds:    p.stds,
	}

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode preprocessor: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create artifact directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write preprocessor artifact: %w", err)
	}
	return nil
}

// Load restores a Preprocessor saved by Save. Transform output after a load
// is identical to the instance that was saved.
func Load(path string) (*Preprocessor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read preprocessor artifact: %w", err)
	}

	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse preprocessor artifact: %w", err)
	}
	if a.Schema != artifactSchema {
		return nil, fmt.Errorf("unsupported preprocessor schema %d", a.Schema)
	}
	if a.Fitted {
		if len(a.Medians) == 0 || len(a.Medians) != len(a.Means) || len(a.Means) != len(a.Stds) {
			return nil, errors.New("preprocessor artifact has inconsistent statistics")
		}
	}

	return &Preprocessor{
		medians: a.Medians,
		means:   a.Means,
		stds:    a.Stds,
		fitted:  a.Fitted,
	}, nil
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
