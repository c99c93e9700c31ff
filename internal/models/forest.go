package models

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"
)

// RandomForest is a bagged ensemble of DecisionTrees. Each tree is grown on a
// bootstrap sample and considers sqrt(features) candidates per split.
// Predictions are soft votes over the trees' leaf distributions.
type RandomForest struct {
	BaseModel
	NTrees          int
	MaxDepth        int
	MinSamplesSplit int
	MaxFeatures     int
	Seed            int64
	Trees           []*DecisionTree
	Parallel        bool
	MaxWorkers      int
}

func NewRandomForest(nTrees, maxDepth, minSamplesSplit int) *RandomForest {
	return &RandomForest{
		NTrees:          nTrees,
		MaxDepth:        maxDepth,
		MinSamplesSplit: minSamplesSplit,
		Parallel:        true,
		MaxWorkers:      4,
		BaseModel: BaseModel{
			Name: "RandomForest",
			Params: map[string]any{
				"n_estimators":      nTrees,
				"max_depth":         maxDepth,
				"min_samples_split": minSamplesSplit,
			},
		},
	}
}

func (rf *RandomForest) Fit(X [][]decimal.Decimal, y []int) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("random forest: %d samples with %d labels", len(X), len(y))
	}
	if rf.NTrees <= 0 {
		return fmt.Errorf("random forest: n_estimators must be positive, got %d", rf.NTrees)
	}

	rf.Classes = ExtractClasses(y)
	nFeatures := len(X[0])

	rf.MaxFeatures = int(math.Sqrt(float64(nFeatures)))
	if rf.MaxFeatures < 1 {
		rf.MaxFeatures = 1
	}

	// Tree seeds are drawn up front so the result does not depend on
	// scheduling.
	seeds := make([]int64, rf.NTrees)
	r := rand.New(rand.NewSource(rf.Seed))
	for i := range seeds {
		seeds[i] = r.Int63()
	}

	rf.Trees = make([]*DecisionTree, rf.NTrees)

	if rf.Parallel && rf.MaxWorkers > 1 {
		return rf.trainParallel(X, y, seeds)
	}

	return rf.trainSequential(X, y, seeds)
}

func (rf *RandomForest) trainParallel(X [][]decimal.Decimal, y []int, seeds []int64) error {
	var wg sync.WaitGroup
	errors := make([]error, rf.NTrees)

	workers := rf.MaxWorkers
	if workers > rf.NTrees {
		workers = rf.NTrees
	}

	jobs := make(chan int, rf.NTrees)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rf.Trees[i], errors[i] = rf.trainSingleTree(X, y, seeds[i])
			}
		}()
	}

	for i := 0; i < rf.NTrees; i++ {
		jobs <- i
	}
	close(jobs)

	wg.Wait()

	for i, err := range errors {
		if err != nil {
			return fmt.Errorf("tree %d training failed: %w", i, err)
		}
	}

	return nil
}

func (rf *RandomForest) trainSequential(X [][]decimal.Decimal, y []int, seeds []int64) error {
	for i := 0; i < rf.NTrees; i++ {
		tree, err := rf.trainSingleTree(X, y, seeds[i])
		if err != nil {
			return fmt.Errorf("tree %d training failed: %w", i, err)
		}
		rf.Trees[i] = tree
	}
	return nil
}

func (rf *RandomForest) trainSingleTree(X [][]decimal.Decimal, y []int, seed int64) (*DecisionTree, error) {
	r := rand.New(rand.NewSource(seed))

	n := len(X)
	XBoot := make([][]decimal.Decimal, n)
	yBoot := make([]int, n)

	for i := 0; i < n; i++ {
		idx := r.Intn(n)
		XBoot[i] = X[idx]
		yBoot[i] = y[idx]
	}

	tree := NewDecisionTree(rf.MaxDepth, rf.MinSamplesSplit)
	tree.MaxFeatures = rf.MaxFeatures
	tree.Seed = seed
	err := tree.fit(XBoot, yBoot, rf.Classes, r)

	return tree, err
}

func (rf *RandomForest) Predict(X [][]decimal.Decimal) []int {
	predictions := make([]int, len(X))

	for i, sample := range X {
		predictions[i] = rf.Classes[argmax(rf.vote(sample))]
	}

	return predictions
}

func (rf *RandomForest) PredictProba(X [][]decimal.Decimal) [][]decimal.Decimal {
	proba := make([][]decimal.Decimal, len(X))

	for i, sample := range X {
		votes := rf.vote(sample)
		proba[i] = make([]decimal.Decimal, len(votes))
		for j, v := range votes {
			proba[i][j] = decimal.NewFromFloat(v)
		}
	}

	return proba
}

// vote averages the leaf distributions of every tree for one sample.
func (rf *RandomForest) vote(sample []decimal.Decimal) []float64 {
	votes := make([]float64, len(rf.Classes))
	if len(rf.Trees) == 0 {
		return votes
	}

	for _, tree := range rf.Trees {
		for j, p := range tree.leaf(sample).Distribution {
			votes[j] += p
		}
	}

	nTrees := float64(len(rf.Trees))
	for j := range votes {
		votes[j] /= nTrees
	}

	return votes
}

func (rf *RandomForest) GetClasses() []int {
	return rf.Classes
}

func (rf *RandomForest) Reset() {
	rf.Trees = nil
	rf.Classes = nil
}
