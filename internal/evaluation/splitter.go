package evaluation

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/shopspring/decimal"
)

const (
	DefaultTestSize = 0.2
	DefaultSeed     = 42
)

// Split is one train/test partition. Rows are shared with the input matrix.
type Split struct {
	XTrain [][]decimal.Decimal
	XTest  [][]decimal.Decimal
	YTrain []int
	YTest  []int
}

type TrainTestSplitter struct {
	testSize   float64
	randomSeed int64
	shuffle    bool
}

func NewTrainTestSplitter(testSize float64, randomSeed int64, shuffle bool) *TrainTestSplitter {
	return &TrainTestSplitter{
		testSize:   testSize,
		randomSeed: randomSeed,
		shuffle:    shuffle,
	}
}

func DefaultTrainTestSplitter() *TrainTestSplitter {
	return NewTrainTestSplitter(DefaultTestSize, DefaultSeed, true)
}

// TestCount is the number of held-out rows for n samples: ceil(n*testSize).
func (tts *TrainTestSplitter) TestCount(n int) int {
	return int(math.Ceil(float64(n) * tts.testSize))
}

// Split shuffles the row indices with a seeded source and holds out the
// last TestCount of them. The same seed always gives the same partition.
func (tts *TrainTestSplitter) Split(X [][]decimal.Decimal, y []int) (Split, error) {
	if len(X) != len(y) {
		return Split{}, fmt.Errorf("x and y must have the same length")
	}

	if len(X) == 0 {
		return Split{}, fmt.Errorf("cannot split empty dataset")
	}

	if tts.testSize <= 0 || tts.testSize >= 1 {
		return Split{}, fmt.Errorf("test size must be between 0 and 1")
	}

	n := len(X)
	testCount := tts.TestCount(n)
	trainCount := n - testCount
	if trainCount < 1 {
		return Split{}, fmt.Errorf("cannot split %d samples with test size %.2f", n, tts.testSize)
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	if tts.shuffle {
		rng := rand.New(rand.NewSource(tts.randomSeed))
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	split := Split{
		XTrain: make([][]decimal.Decimal, trainCount),
		XTest:  make([][]decimal.Decimal, testCount),
		YTrain: make([]int, trainCount),
		YTest:  make([]int, testCount),
	}

	for i := 0; i < trainCount; i++ {
		idx := indices[i]
		split.XTrain[i] = X[idx]
		split.YTrain[i] = y[idx]
	}

	for i := 0; i < testCount; i++ {
		idx := indices[trainCount+i]
		split.XTest[i] = X[idx]
		split.YTest[i] = y[idx]
	}

	return split, nil
}
