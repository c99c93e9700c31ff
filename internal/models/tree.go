package models

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

type TreeNode struct {
	IsLeaf    bool
	Class     int
	Feature   int
	Threshold decimal.Decimal
	Left      *TreeNode
	Right     *TreeNode
	Samples   int
	Impurity  float64
	// Distribution holds class frequencies aligned with the owning model's Classes.
	Distribution []float64
}

// DecisionTree is a CART classifier using gini impurity. Samples go left when
// feature <= Threshold.
type DecisionTree struct {
	BaseModel
	Root            *TreeNode
	MaxDepth        int
	MinSamplesSplit int
	// MaxFeatures limits how many randomly chosen features each split may
	// consider; 0 means all of them.
	MaxFeatures int
	Seed        int64

	rng      *rand.Rand
	classIdx map[int]int
}

func NewDecisionTree(maxDepth, minSamplesSplit int) *DecisionTree {
	if maxDepth <= 0 {
		maxDepth = 10
	}

	if minSamplesSplit <= 0 {
		minSamplesSplit = 2
	}

	return &DecisionTree{
		MaxDepth:        maxDepth,
		MinSamplesSplit: minSamplesSplit,
		BaseModel: BaseModel{
			Name: "DecisionTree",
			Params: map[string]any{
				"max_depth":         maxDepth,
				"min_samples_split": minSamplesSplit,
			},
		},
	}
}

func (dt *DecisionTree) Fit(X [][]decimal.Decimal, y []int) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("decision tree: %d samples with %d labels", len(X), len(y))
	}
	return dt.fit(X, y, ExtractClasses(y), rand.New(rand.NewSource(dt.Seed)))
}

// fit grows the tree with an externally chosen class list so that leaf
// distributions line up across the trees of a forest.
func (dt *DecisionTree) fit(X [][]decimal.Decimal, y []int, classes []int, r *rand.Rand) error {
	dt.Classes = classes
	dt.rng = r
	dt.classIdx = make(map[int]int, len(classes))
	for i, class := range classes {
		dt.classIdx[class] = i
	}

	indices := make([]int, len(X))
	for i := range indices {
		indices[i] = i
	}
	dt.Root = dt.buildTree(X, y, indices, 0)

	dt.rng = nil
	dt.classIdx = nil
	return nil
}

func (dt *DecisionTree) buildTree(X [][]decimal.Decimal, y []int, indices []int, depth int) *TreeNode {
	counts := dt.countClasses(y, indices)
	node := &TreeNode{
		Samples:      len(indices),
		Impurity:     gini(counts, len(indices)),
		Distribution: normalize(counts, len(indices)),
	}
	node.Class = dt.Classes[argmax(node.Distribution)]

	if depth >= dt.MaxDepth || len(indices) < dt.MinSamplesSplit || node.Impurity == 0 {
		node.IsLeaf = true
		return node
	}

	feature, threshold, impurity, ok := dt.findBestSplit(X, y, indices)
	if !ok || impurity >= node.Impurity {
		node.IsLeaf = true
		return node
	}

	var leftIndices, rightIndices []int
	for _, idx := range indices {
		if X[idx][feature].LessThanOrEqual(threshold) {
			leftIndices = append(leftIndices, idx)
		} else {
			rightIndices = append(rightIndices, idx)
		}
	}

	node.Feature = feature
	node.Threshold = threshold
	node.Left = dt.buildTree(X, y, leftIndices, depth+1)
	node.Right = dt.buildTree(X, y, rightIndices, depth+1)

	return node
}

// findBestSplit scans every midpoint between consecutive distinct values of
// the candidate features and returns the split with the lowest weighted gini.
// The first split found wins ties.
func (dt *DecisionTree) findBestSplit(X [][]decimal.Decimal, y []int, indices []int) (int, decimal.Decimal, float64, bool) {
	bestFeature := -1
	bestThreshold := decimal.Zero
	bestImpurity := 0.0

	n := len(indices)
	nClasses := len(dt.Classes)
	sorted := make([]int, n)

	for _, feature := range dt.candidateFeatures(len(X[0])) {
		copy(sorted, indices)
		sort.SliceStable(sorted, func(a, b int) bool {
			return X[sorted[a]][feature].LessThan(X[sorted[b]][feature])
		})

		left := make([]int, nClasses)
		right := dt.countClasses(y, sorted)

		for i := 0; i < n-1; i++ {
			class := dt.classIdx[y[sorted[i]]]
			left[class]++
			right[class]--

			current := X[sorted[i]][feature]
			next := X[sorted[i+1]][feature]
			if current.Equal(next) {
				continue
			}

			nLeft := i + 1
			nRight := n - nLeft
			impurity := (float64(nLeft)*gini(left, nLeft) + float64(nRight)*gini(right, nRight)) / float64(n)

			if bestFeature == -1 || impurity < bestImpurity {
				bestFeature = feature
				bestThreshold = current.Add(next).Div(two)
				bestImpurity = impurity
			}
		}
	}

	return bestFeature, bestThreshold, bestImpurity, bestFeature != -1
}

// candidateFeatures draws MaxFeatures distinct features with a partial
// Fisher-Yates shuffle, or returns every feature when no limit applies.
func (dt *DecisionTree) candidateFeatures(nFeatures int) []int {
	features := make([]int, nFeatures)
	for i := range features {
		features[i] = i
	}

	if dt.MaxFeatures <= 0 || dt.MaxFeatures >= nFeatures || dt.rng == nil {
		return features
	}

	for i := 0; i < dt.MaxFeatures; i++ {
		j := i + dt.rng.Intn(nFeatures-i)
		features[i], features[j] = features[j], features[i]
	}

	return features[:dt.MaxFeatures]
}

func (dt *DecisionTree) countClasses(y []int, indices []int) []int {
	counts := make([]int, len(dt.Classes))
	for _, idx := range indices {
		counts[dt.classIdx[y[idx]]]++
	}
	return counts
}

func (dt *DecisionTree) Predict(X [][]decimal.Decimal) []int {
	predictions := make([]int, len(X))

	for i, sample := range X {
		predictions[i] = dt.leaf(sample).Class
	}

	return predictions
}

func (dt *DecisionTree) PredictProba(X [][]decimal.Decimal) [][]decimal.Decimal {
	proba := make([][]decimal.Decimal, len(X))

	for i, sample := range X {
		distribution := dt.leaf(sample).Distribution
		proba[i] = make([]decimal.Decimal, len(distribution))
		for j, p := range distribution {
			proba[i][j] = decimal.NewFromFloat(p)
		}
	}

	return proba
}

func (dt *DecisionTree) leaf(sample []decimal.Decimal) *TreeNode {
	node := dt.Root
	for !node.IsLeaf {
		if sample[node.Feature].LessThanOrEqual(node.Threshold) {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

func (dt *DecisionTree) GetClasses() []int {
	return dt.Classes
}

func (dt *DecisionTree) Reset() {
	dt.Root = nil
	dt.Classes = nil
}

// Depth returns the number of split levels below the root.
func (dt *DecisionTree) Depth() int {
	return nodeDepth(dt.Root)
}

func nodeDepth(node *TreeNode) int {
	if node == nil || node.IsLeaf {
		return 0
	}
	left, right := nodeDepth(node.Left), nodeDepth(node.Right)
	if left > right {
		return left + 1
	}
	return right + 1
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0.0
	}

	impurity := 1.0
	for _, count := range counts {
		p := float64(count) / float64(n)
		impurity -= p * p
	}

	return impurity
}

func normalize(counts []int, n int) []float64 {
	distribution := make([]float64, len(counts))
	if n == 0 {
		return distribution
	}
	for i, count := range counts {
		distribution[i] = float64(count) / float64(n)
	}
	return distribution
}
