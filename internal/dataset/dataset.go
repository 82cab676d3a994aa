package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// FeatureNames is the column order shared by training, artifacts, and the
// serving schema. Position is significant and must never change.
var FeatureNames = []string{
	"age", "sex", "cp", "trestbps", "chol", "fbs", "restecg",
	"thalach", "exang", "oldpeak", "slope", "ca", "thal",
}

// TargetColumn is the label column in cleaned CSV files.
const TargetColumn = "target"

// NumFeatures is the width of every feature vector.
const NumFeatures = 13

const missingMarker = "?"

// Dataset holds a feature matrix and binary labels. Missing feature values
// are NaN.
type Dataset struct {
	Features [][]float64
	Labels   []int
}

func (d *Dataset) Len() int {
	return len(d.Features)
}

// Load reads a heart disease CSV file from disk. See Read for the accepted
// formats.
func Load(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()

	ds, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	log.Info().Str("file", path).Int("rows", ds.Len()).Msg("Dataset loaded")
	return ds, nil
}

// Read parses heart disease CSV data. Both the raw UCI export (no header,
// "?" for missing entries, target graded 0-4) and the cleaned form with a
// header row are accepted. Target values above zero collapse to 1.
func Read(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	first, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read first row: %w", err)
	}

	indices, firstIsData, err := columnIndices(first)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{}
	row := 0
	if firstIsData {
		if err := appendRecord(ds, first, indices, row); err != nil {
			return nil, err
		}
		row++
	}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", row, err)
		}
		if err := appendRecord(ds, record, indices, row); err != nil {
			return nil, err
		}
		row++
	}

	if ds.Len() == 0 {
		return nil, errors.New("dataset contains no rows")
	}
	return ds, nil
}

// columnIndices maps feature names to record positions. A first row with
// any non-numeric cell is treated as a header; otherwise columns are taken
// positionally in the UCI order.
func columnIndices(first []string) (map[string]int, bool, error) {
	header := false
	for _, cell := range first {
		cell = strings.TrimSpace(cell)
		if cell == "" || cell == missingMarker {
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			header = true
			break
		}
	}

	indices := make(map[string]int)
	if header {
		for i, col := range first {
			indices[strings.ToLower(strings.TrimSpace(col))] = i
		}
		for _, name := range FeatureNames {
			if _, ok := indices[name]; !ok {
				return nil, false, fmt.Errorf("dataset is missing column %q", name)
			}
		}
		if _, ok := indices[TargetColumn]; !ok {
			return nil, false, fmt.Errorf("dataset is missing column %q", TargetColumn)
		}
		return indices, false, nil
	}

	if len(first) != NumFeatures+1 {
		return nil, false, fmt.Errorf("headerless row has %d columns, want %d", len(first), NumFeatures+1)
	}
	for i, name := range FeatureNames {
		indices[name] = i
	}
	indices[TargetColumn] = NumFeatures
	return indices, true, nil
}

func appendRecord(ds *Dataset, record []string, indices map[string]int, row int) error {
	features := make([]float64, NumFeatures)
	for i, name := range FeatureNames {
		idx := indices[name]
		if idx >= len(record) {
			return fmt.Errorf("row %d has %d columns, want at least %d", row, len(record), idx+1)
		}
		v, err := parseCell(record[idx])
		if err != nil {
			return fmt.Errorf("row %d column %s: %w", row, name, err)
		}
		features[i] = v
	}

	idx := indices[TargetColumn]
	if idx >= len(record) {
		return fmt.Errorf("row %d has %d columns, want at least %d", row, len(record), idx+1)
	}
	target, err := parseCell(record[idx])
	if err != nil {
		return fmt.Errorf("row %d column %s: %w", row, TargetColumn, err)
	}
	if math.IsNaN(target) {
		return fmt.Errorf("row %d has a missing target", row)
	}

	label := 0
	if target > 0 {
		label = 1
	}
	ds.Features = append(ds.Features, features)
	ds.Labels = append(ds.Labels, label)
	return nil
}

func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" || cell == missingMarker {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse %q as a number", cell)
	}
	return v, nil
}

// SaveCSV writes ds to path as a cleaned CSV with a header row. Missing
// values become empty cells. The file appears atomically.
func SaveCSV(ds *Dataset, path string) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, "dataset-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	header := append(append(make([]string, 0, NumFeatures+1), FeatureNames...), TargetColumn)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, row := range ds.Features {
		record := make([]string, 0, NumFeatures+1)
		for _, v := range row {
			if math.IsNaN(v) {
				record = append(record, "")
			} else {
				record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
			}
		}
		record = append(record, strconv.Itoa(ds.Labels[i]))
		if err := w.Write(record); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move dataset into place: %w", err)
	}
	return nil
}

// ColumnSummary describes one feature column over its observed values.
type ColumnSummary struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Missing int     `json:"missing"`
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// Summary is a compact statistical profile of a dataset.
type Summary struct {
	Rows     int             `json:"rows"`
	Positive int             `json:"positive"`
	Negative int             `json:"negative"`
	Columns  []ColumnSummary `json:"columns"`
}

// Summarize profiles every feature column and the class balance.
func Summarize(ds *Dataset) Summary {
	s := Summary{Rows: ds.Len()}
	for _, y := range ds.Labels {
		if y == 1 {
			s.Positive++
		} else {
			s.Negative++
		}
	}

	for c, name := range FeatureNames {
		col := ColumnSummary{Name: name, Min: math.Inf(1), Max: math.Inf(-1)}
		var sum, sumSquared float64
		for i := range ds.Features {
			v := ds.Features[i][c]
			if math.IsNaN(v) {
				col.Missing++
				continue
			}
			col.Count++
			sum += v
			sumSquared += v * v
			if v < col.Min {
				col.Min = v
			}
			if v > col.Max {
				col.Max = v
			}
		}
		if col.Count > 0 {
			n := float64(col.Count)
			col.Mean = sum / n
			variance := sumSquared/n - col.Mean*col.Mean
			if variance > 0 {
				col.Std = math.Sqrt(variance)
			}
		} else {
			col.Min, col.Max = 0, 0
		}
		s.Columns = append(s.Columns, col)
	}
	return s
}
