// Package tracking provides persistent experiment tracking for the heart
// disease pipeline. It uses BoltDB as the underlying storage engine to store
// training runs, registered model versions, and prediction audit records.
//
// The package provides thread-safe operations through BoltDB transactions;
// a single Store can be shared between the training pipeline and the
// prediction service.
package tracking

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"

	"cardioml/internal/eval"
)

const (
	runsBucket        = "runs"        // Bucket for training run records
	registryBucket    = "registry"    // Bucket for registered model versions
	predictionsBucket = "predictions" // Bucket for prediction audit records

	versionFormat = "20060102-150405"

	defaultMaxPredictions = 10000
)

// Run records one training run: the hyperparameters used, cross-validation
// scores, and train/test metrics for the resulting model.
type Run struct {
	ID           string          `json:"id"`
	ModelType    string          `json:"model_type"`
	Params       map[string]any  `json:"params"`
	CVScores     eval.FoldScores `json:"cv_scores"`
	TrainMetrics eval.Metrics    `json:"train_metrics"`
	TestMetrics  eval.Metrics    `json:"test_metrics"`
	ArtifactPath string          `json:"artifact_path"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Version is a registered model artifact eligible for serving.
type Version struct {
	Version   string       `json:"version"`
	ModelType string       `json:"model_type"`
	Path      string       `json:"path"`
	Metrics   eval.Metrics `json:"metrics"`
	CreatedAt time.Time    `json:"created_at"`
	IsActive  bool         `json:"is_active"`
}

// PredictionRecord is one audited prediction request.
type PredictionRecord struct {
	ModelType   string    `json:"model_type"`
	Input       []float64 `json:"input"`
	Prediction  int       `json:"prediction"`
	Probability float64   `json:"probability"`
	Confidence  string    `json:"confidence"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store provides persistent experiment tracking using BoltDB. It manages
// separate buckets for runs, the model registry, and prediction audits.
type Store struct {
	db             *bbolt.DB
	maxPredictions int
}

// New opens (or creates) the tracking database at path and ensures all
// buckets exist. Returns an error if the database cannot be opened within
// one second, which usually means another process holds the file lock.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create tracking directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open tracking database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{runsBucket, registryBucket, predictionsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, maxPredictions: defaultMaxPredictions}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// LogRun stores a training run record. The key format is
// "modeltype_timestamp" so runs list chronologically per model; the key is
// written back to run.ID.
func (s *Store) LogRun(run *Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))

		key := fmt.Sprintf("%s_%d", run.ModelType, run.CreatedAt.UnixNano())
		run.ID = key

		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}
		return b.Put([]byte(key), data)
	})
}

// RecentRuns returns up to n run records, newest first. n <= 0 returns all.
func (s *Store) RecentRuns(n int) ([]Run, error) {
	var runs []Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).ForEach(func(k, data []byte) error {
			var run Run
			if err := json.Unmarshal(data, &run); err != nil {
				return nil // Skip malformed records
			}
			runs = append(runs, run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if n > 0 && len(runs) > n {
		runs = runs[:n]
	}
	return runs, nil
}

// Register records a new model version in the registry. Versions are named
// by their registration timestamp; registrations within the same second get
// a numeric suffix. New versions start inactive.
func (s *Store) Register(modelType, path string, metrics eval.Metrics) (Version, error) {
	now := time.Now().UTC()
	v := Version{
		ModelType: modelType,
		Path:      path,
		Metrics:   metrics,
		CreatedAt: now,
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(registryBucket))

		base := now.Format(versionFormat)
		version := base
		for n := 2; b.Get([]byte(version)) != nil; n++ {
			version = fmt.Sprintf("%s-%d", base, n)
		}
		v.Version = version

		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal version: %w", err)
		}
		return b.Put([]byte(version), data)
	})
	if err != nil {
		return Version{}, err
	}

	log.Info().
		Str("version", v.Version).
		Str("model", modelType).
		Str("path", path).
		Msg("Model version registered")
	return v, nil
}

// Activate marks the given version as the one to serve and clears the
// active flag on every other version.
func (s *Store) Activate(version string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(registryBucket))
		if b.Get([]byte(version)) == nil {
			return fmt.Errorf("version %s not found", version)
		}

		var updates []Version
		err := b.ForEach(func(k, data []byte) error {
			var v Version
			if err := json.Unmarshal(data, &v); err != nil {
				return fmt.Errorf("unmarshal version %s: %w", k, err)
			}
			active := v.Version == version
			if v.IsActive != active {
				v.IsActive = active
				updates = append(updates, v)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, v := range updates {
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("marshal version: %w", err)
			}
			if err := b.Put([]byte(v.Version), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Active returns the currently active version, or nil when none is set.
func (s *Store) Active() (*Version, error) {
	versions, err := s.Versions()
	if err != nil {
		return nil, err
	}
	for i := range versions {
		if versions[i].IsActive {
			return &versions[i], nil
		}
	}
	return nil, nil
}

// Latest returns the most recently registered version, or nil when the
// registry is empty.
func (s *Store) Latest() (*Version, error) {
	versions, err := s.Versions()
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, nil
	}
	return &versions[0], nil
}

// Versions returns all registered versions, newest first.
func (s *Store) Versions() ([]Version, error) {
	var versions []Version
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(registryBucket)).ForEach(func(k, data []byte) error {
			var v Version
			if err := json.Unmarshal(data, &v); err != nil {
				return nil // Skip malformed records
			}
			versions = append(versions, v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(versions, func(i, j int) bool {
		if versions[i].CreatedAt.Equal(versions[j].CreatedAt) {
			return versions[i].Version > versions[j].Version
		}
		return versions[i].CreatedAt.After(versions[j].CreatedAt)
	})
	return versions, nil
}

// Rollback reactivates the version registered immediately before the
// currently active one.
func (s *Store) Rollback() error {
	versions, err := s.Versions()
	if err != nil {
		return err
	}
	if len(versions) < 2 {
		return fmt.Errorf("no previous version available for rollback")
	}

	currentIdx := -1
	for i, v := range versions {
		if v.IsActive {
			currentIdx = i
			break
		}
	}
	if currentIdx == -1 {
		return fmt.Errorf("no active version found")
	}
	if currentIdx+1 >= len(versions) {
		return fmt.Errorf("no previous version available")
	}

	prev := versions[currentIdx+1].Version
	if err := s.Activate(prev); err != nil {
		return err
	}

	log.Warn().
		Str("from", versions[currentIdx].Version).
		Str("to", prev).
		Msg("Rolled back active model version")
	return nil
}

// LogPrediction appends one prediction audit record, pruning the oldest
// records once the bucket exceeds its cap.
func (s *Store) LogPrediction(rec PredictionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		// Zero-padded sequence keys keep the cursor in insertion order.
		key := fmt.Sprintf("%016d", seq)

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal prediction: %w", err)
		}
		if err := b.Put([]byte(key), data); err != nil {
			return err
		}
		return s.prunePredictions(b)
	})
}

func (s *Store) prunePredictions(b *bbolt.Bucket) error {
	total := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		total++
	}
	for total > s.maxPredictions {
		k, _ := b.Cursor().First()
		if k == nil {
			break
		}
		if err := b.Delete(k); err != nil {
			return err
		}
		total--
	}
	return nil
}

// RecentPredictions returns up to n audit records, newest first. n <= 0
// returns all retained records.
func (s *Store) RecentPredictions(n int) ([]PredictionRecord, error) {
	var records []PredictionRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(predictionsBucket)).Cursor()
		for k, v := c.Last(); k != nil && (n <= 0 || len(records) < n); k, v = c.Prev() {
			var rec PredictionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
