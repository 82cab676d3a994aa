package model

import (
	"math/rand"
	"path/filepath"
	"testing"
)

func TestTrainForest_SeparatesClasses(t *testing.T) {
	X, y := separableData(60)

	m, err := TrainForest(X, y, ForestConfig{Estimators: 25, MaxDepth: 6, MinSamplesSplit: 2, MinSamplesLeaf: 1, Seed: 7})
	if err != nil {
		t.Fatalf("TrainForest failed: %v", err)
	}
	if len(m.Trees) != 25 {
		t.Fatalf("Trained %d trees, want 25", len(m.Trees))
	}

	labels, err := m.Predict(X)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	correct := 0
	for i, label := range labels {
		if label == y[i] {
			correct++
		}
	}
	if acc := float64(correct) / float64(len(y)); acc < 0.95 {
		t.Errorf("Training accuracy %.2f, want >= 0.95", acc)
	}

	probs, err := m.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba failed: %v", err)
	}
	for i, p := range probs {
		if p < 0 || p > 1 {
			t.Errorf("Row %d: probability %v outside [0, 1]", i, p)
		}
	}
}

func TestTrainForest_DeterministicForSeed(t *testing.T) {
	X, y := separableData(40)
	cfg := ForestConfig{Estimators: 10, MaxDepth: 5, MinSamplesSplit: 2, MinSamplesLeaf: 1, Seed: 42}

	first, err := TrainForest(X, y, cfg)
	if err != nil {
		t.Fatalf("First training failed: %v", err)
	}
	second, err := TrainForest(X, y, cfg)
	if err != nil {
		t.Fatalf("Second training failed: %v", err)
	}

	firstProbs, err := first.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba failed: %v", err)
	}
	secondProbs, err := second.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba failed: %v", err)
	}
	for i := range firstProbs {
		if firstProbs[i] != secondProbs[i] {
			t.Errorf("Row %d: probabilities differ between runs with the same seed: %v vs %v", i, firstProbs[i], secondProbs[i])
		}
	}
}

func TestTrainForest_AppliesDefaults(t *testing.T) {
	X, y := separableData(20)

	m, err := TrainForest(X, y, ForestConfig{Estimators: 3})
	if err != nil {
		t.Fatalf("TrainForest failed: %v", err)
	}
	if m.Config.MaxDepth != 10 {
		t.Errorf("MaxDepth = %d, want 10", m.Config.MaxDepth)
	}
	if m.Config.MinSamplesSplit != 5 {
		t.Errorf("MinSamplesSplit = %d, want 5", m.Config.MinSamplesSplit)
	}
	if m.Config.MinSamplesLeaf != 2 {
		t.Errorf("MinSamplesLeaf = %d, want 2", m.Config.MinSamplesLeaf)
	}
}

func TestTrainForest_BadInput(t *testing.T) {
	cases := []struct {
		name string
		X    [][]float64
		y    []int
	}{
		{"empty set", nil, nil},
		{"size mismatch", [][]float64{{1, 2}}, []int{0, 1}},
		{"ragged rows", [][]float64{{1, 2}, {3}}, []int{0, 1}},
		{"non-binary labels", [][]float64{{1}, {2}}, []int{1, 3}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := TrainForest(tc.X, tc.y, DefaultForestConfig()); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestRandomForest_PredictWrongWidth(t *testing.T) {
	X, y := separableData(20)
	m, err := TrainForest(X, y, ForestConfig{Estimators: 5, Seed: 1})
	if err != nil {
		t.Fatalf("TrainForest failed: %v", err)
	}

	if _, err := m.PredictProba([][]float64{{1.0}}); err == nil {
		t.Error("Expected error for row narrower than the model, got nil")
	}

	empty := &RandomForest{Features: 3}
	if _, err := empty.PredictProba(X); err == nil {
		t.Error("Expected error for forest with no trees, got nil")
	}
}

func TestRandomForest_SaveLoad(t *testing.T) {
	X, y := separableData(30)
	m, err := TrainForest(X, y, ForestConfig{Estimators: 10, MaxDepth: 5, MinSamplesSplit: 2, MinSamplesLeaf: 1, Seed: 3})
	if err != nil {
		t.Fatalf("TrainForest failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "forest.json")
	if err := m.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, info, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if info.Type != TypeForest {
		t.Errorf("Artifact type = %q, want %q", info.Type, TypeForest)
	}
	if info.Features != 3 {
		t.Errorf("Artifact features = %d, want 3", info.Features)
	}

	want, err := m.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba on original failed: %v", err)
	}
	got, err := loaded.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba on loaded failed: %v", err)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Errorf("Row %d: loaded model predicts %v, original %v", i, got[i], want[i])
		}
	}
}

// TestBuildTree_NestedSplits forces two splits along one feature and checks
// that the flat representation routes rows through nested nodes correctly.
func TestBuildTree_NestedSplits(t *testing.T) {
	X := [][]float64{{0}, {0.2}, {0.4}, {1.2}, {1.4}, {1.6}, {2.4}, {2.6}, {2.8}}
	y := []int{0, 0, 0, 1, 1, 1, 0, 0, 0}
	params := treeParams{maxDepth: 3, minSamplesSplit: 2, minSamplesLeaf: 1, maxFeatures: 1}

	tree := buildTree(X, y, params, rand.New(rand.NewSource(1)))
	if len(tree) < 5 {
		t.Fatalf("Tree has %d nodes, want at least 5 for two splits", len(tree))
	}
	for i, node := range tree {
		if node.IsLeaf {
			continue
		}
		if node.LeftChild <= i || node.LeftChild >= len(tree) {
			t.Errorf("Node %d: left child index %d out of range", i, node.LeftChild)
		}
		if node.RightChild <= i || node.RightChild >= len(tree) {
			t.Errorf("Node %d: right child index %d out of range", i, node.RightChild)
		}
	}

	cases := []struct {
		value float64
		want  float64
	}{
		{0.1, 0},
		{1.3, 1},
		{2.7, 0},
	}
	for _, tc := range cases {
		got, err := predictTree(tree, []float64{tc.value})
		if err != nil {
			t.Fatalf("predictTree(%v) failed: %v", tc.value, err)
		}
		if got != tc.want {
			t.Errorf("predictTree(%v) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestPredictTree_WalksIndexLinks(t *testing.T) {
	tree := []TreeNode{
		{FeatureIdx: 0, Threshold: 0.5, LeftChild: 1, RightChild: 2},
		{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Positive: 0.1, IsLeaf: true},
		{FeatureIdx: 1, Threshold: 2.0, LeftChild: 3, RightChild: 4},
		{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Positive: 0.4, IsLeaf: true},
		{FeatureIdx: -1, LeftChild: -1, RightChild: -1, Positive: 0.9, IsLeaf: true},
	}

	cases := []struct {
		row  []float64
		want float64
	}{
		{[]float64{0.2, 9.0}, 0.1},
		{[]float64{1.0, 1.0}, 0.4},
		{[]float64{1.0, 3.0}, 0.9},
	}
	for _, tc := range cases {
		got, err := predictTree(tree, tc.row)
		if err != nil {
			t.Fatalf("predictTree(%v) failed: %v", tc.row, err)
		}
		if got != tc.want {
			t.Errorf("predictTree(%v) = %v, want %v", tc.row, got, tc.want)
		}
	}

	if _, err := predictTree(nil, []float64{1}); err == nil {
		t.Error("Expected error for empty tree, got nil")
	}
	broken := []TreeNode{{FeatureIdx: 0, Threshold: 0.5, LeftChild: 9, RightChild: 9}}
	if _, err := predictTree(broken, []float64{0}); err == nil {
		t.Error("Expected error for out-of-range child index, got nil")
	}
}

func BenchmarkTrainForest(b *testing.B) {
	X, y := separableData(200)
	cfg := ForestConfig{Estimators: 10, MaxDepth: 6, MinSamplesSplit: 2, MinSamplesLeaf: 1, Seed: 42}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := TrainForest(X, y, cfg); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRandomForest_PredictProba(b *testing.B) {
	X, y := separableData(200)
	m, err := TrainForest(X, y, ForestConfig{Estimators: 50, MaxDepth: 8, MinSamplesSplit: 2, MinSamplesLeaf: 1, Seed: 42})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.PredictProba(X); err != nil {
			b.Fatal(err)
		}
	}
}
