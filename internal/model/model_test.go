package model

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DispatchesOnType(t *testing.T) {
	X, y := separableData(20)
	dir := t.TempDir()

	lr, err := TrainLogistic(X, y, DefaultLogisticConfig())
	if err != nil {
		t.Fatalf("TrainLogistic failed: %v", err)
	}
	lrPath := filepath.Join(dir, "logistic.json")
	if err := lr.Save(lrPath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	rf, err := TrainForest(X, y, ForestConfig{Estimators: 5, Seed: 1})
	if err != nil {
		t.Fatalf("TrainForest failed: %v", err)
	}
	rfPath := filepath.Join(dir, "forest.json")
	if err := rf.Save(rfPath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	cases := []struct {
		name string
		path string
		want string
	}{
		{"logistic regression", lrPath, TypeLogistic},
		{"random forest", rfPath, TypeForest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, info, err := Load(tc.path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if c.Name() != tc.want {
				t.Errorf("Name() = %q, want %q", c.Name(), tc.want)
			}
			if info.Type != tc.want {
				t.Errorf("Info.Type = %q, want %q", info.Type, tc.want)
			}
			if info.TrainedAt.IsZero() {
				t.Error("Info.TrainedAt is zero")
			}
		})
	}
}

func TestLoad_RejectsBadArtifacts(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name    string
		content string
	}{
		{"invalid json", `{"schema": 1, "type"`},
		{"wrong schema", `{"schema": 99, "type": "logistic_regression", "model": {}}`},
		{"unknown type", `{"schema": 1, "type": "gradient_boosting", "model": {}}`},
		{"logistic without weights", `{"schema": 1, "type": "logistic_regression", "model": {"weights": [], "bias": 0}}`},
		{"forest without trees", `{"schema": 1, "type": "random_forest", "model": {"trees": [], "features": 13}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, "artifact.json")
			if err := os.WriteFile(path, []byte(tc.content), 0o600); err != nil {
				t.Fatalf("Failed to write artifact: %v", err)
			}
			if _, _, err := Load(path); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("Expected error for missing artifact, got nil")
	}
}
