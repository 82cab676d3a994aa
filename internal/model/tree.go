package model

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// TreeNode is one node of a flat, index-linked decision tree. Every node
// carries the fraction of positive training samples that reached it; for
// leaves that fraction is the prediction.
type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Positive   float64 `json:"positive"`
	IsLeaf     bool    `json:"is_leaf"`
}

type treeParams struct {
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int
}

// buildTree grows one tree and returns it as a flat node slice, root first,
// with children addressed by absolute index.
func buildTree(X [][]float64, y []int, params treeParams, rng *rand.Rand) []TreeNode {
	return buildNode(X, y, 0, params, rng)
}

func buildNode(X [][]float64, y []int, depth int, params treeParams, rng *rand.Rand) []TreeNode {
	positive := positiveFraction(y)
	if depth >= params.maxDepth || len(y) < params.minSamplesSplit || isPure(y) {
		return []TreeNode{leaf(positive)}
	}

	feature, threshold, ok := bestSplit(X, y, params, rng)
	if !ok {
		return []TreeNode{leaf(positive)}
	}

	leftX, leftY, rightX, rightY := partition(X, y, feature, threshold)
	if len(leftY) < params.minSamplesLeaf || len(rightY) < params.minSamplesLeaf {
		return []TreeNode{leaf(positive)}
	}

	leftNodes := buildNode(leftX, leftY, depth+1, params, rng)
	rightNodes := buildNode(rightX, rightY, depth+1, params, rng)

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, TreeNode{
		FeatureIdx: feature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
		Positive:   positive,
	})
	// Subtree child indices are relative to the subtree root; shift them to
	// absolute positions as the slices are spliced together.
	base := len(nodes)
	for _, n := range leftNodes {
		if !n.IsLeaf {
			n.LeftChild += base
			n.RightChild += base
		}
		nodes = append(nodes, n)
	}
	base = len(nodes)
	for _, n := range rightNodes {
		if !n.IsLeaf {
			n.LeftChild += base
			n.RightChild += base
		}
		nodes = append(nodes, n)
	}
	return nodes
}

// bestSplit scans a random feature subset for the threshold with the lowest
// weighted gini impurity. Candidate thresholds are midpoints between
// adjacent distinct values.
func bestSplit(X [][]float64, y []int, params treeParams, rng *rand.Rand) (int, float64, bool) {
	featureCount := len(X[0])
	mtry := params.maxFeatures
	if mtry <= 0 || mtry > featureCount {
		mtry = featureCount
	}
	candidates := rng.Perm(featureCount)[:mtry]

	totalPos := 0
	for _, label := range y {
		totalPos += label
	}
	n := len(y)

	type pair struct {
		value float64
		label int
	}

	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	for _, feature := range candidates {
		pairs := make([]pair, n)
		for i, row := range X {
			pairs[i] = pair{row[feature], y[i]}
		}
		sort.Slice(pairs, func(a, b int) bool { return pairs[a].value < pairs[b].value })

		leftPos, leftCount := 0, 0
		for i := 0; i < n-1; i++ {
			leftPos += pairs[i].label
			leftCount++
			if pairs[i].value == pairs[i+1].value {
				continue
			}
			if leftCount < params.minSamplesLeaf || n-leftCount < params.minSamplesLeaf {
				continue
			}
			impurity := weightedGini(leftPos, leftCount, totalPos-leftPos, n-leftCount)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = feature
				bestThreshold = (pairs[i].value + pairs[i+1].value) / 2
			}
		}
	}

	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func partition(X [][]float64, y []int, feature int, threshold float64) (leftX [][]float64, leftY []int, rightX [][]float64, rightY []int) {
	for i, row := range X {
		if row[feature] <= threshold {
			leftX = append(leftX, row)
			leftY = append(leftY, y[i])
		} else {
			rightX = append(rightX, row)
			rightY = append(rightY, y[i])
		}
	}
	return
}

// predictTree walks a flat tree for one row and returns the leaf's positive
// fraction.
func predictTree(nodes []TreeNode, row []float64) (float64, error) {
	if len(nodes) == 0 {
		return 0, errors.New("empty tree")
	}
	idx := 0
	for {
		node := nodes[idx]
		if node.IsLeaf {
			return node.Positive, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(row) {
			return 0, errors.New("feature index out of range")
		}
		if row[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

func weightedGini(leftPos, leftCount, rightPos, rightCount int) float64 {
	total := float64(leftCount + rightCount)
	left := float64(leftCount) / total
	right := float64(rightCount) / total
	return left*gini(leftPos, leftCount) + right*gini(rightPos, rightCount)
}

// gini computes binary gini impurity, 1 - p^2 - (1-p)^2.
func gini(pos, count int) float64 {
	if count == 0 {
		return 0
	}
	p := float64(pos) / float64(count)
	return 2 * p * (1 - p)
}

func positiveFraction(y []int) float64 {
	if len(y) == 0 {
		return 0
	}
	pos := 0
	for _, label := range y {
		pos += label
	}
	return float64(pos) / float64(len(y))
}

func isPure(y []int) bool {
	if len(y) == 0 {
		return true
	}
	first := y[0]
	for _, label := range y[1:] {
		if label != first {
			return false
		}
	}
	return true
}

func leaf(positive float64) TreeNode {
	return TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Positive:   positive,
		IsLeaf:     true,
	}
}
