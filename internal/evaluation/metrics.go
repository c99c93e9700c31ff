package evaluation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrEmptyEvaluation = errors.New("evaluation: no samples to score")

// Result is what the trainer records for every configuration.
type Result struct {
	Accuracy   float64 `json:"accuracy"`
	WeightedF1 float64 `json:"f1_score"`
}

func (r Result) String() string {
	return fmt.Sprintf("accuracy %.4f, f1 %.4f", r.Accuracy, r.WeightedF1)
}

// Evaluate scores predictions against the held-out labels. Classes are the
// union of both label sets, so a class that is only ever predicted still
// counts against precision.
func Evaluate(yTrue, yPred []int) (Result, error) {
	cm, err := NewConfusionMatrix(yTrue, yPred)
	if err != nil {
		return Result{}, err
	}
	return Result{Accuracy: cm.Accuracy(), WeightedF1: cm.WeightedF1()}, nil
}

// ConfusionMatrix counts true labels (rows) against predictions (columns).
type ConfusionMatrix struct {
	Classes []int
	Counts  [][]int
	Total   int
}

func NewConfusionMatrix(yTrue, yPred []int) (*ConfusionMatrix, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("evaluation: %d labels but %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return nil, ErrEmptyEvaluation
	}

	classes := unionClasses(yTrue, yPred)
	index := make(map[int]int, len(classes))
	for i, class := range classes {
		index[class] = i
	}

	counts := make([][]int, len(classes))
	for i := range counts {
		counts[i] = make([]int, len(classes))
	}
	for i := range yTrue {
		counts[index[yTrue[i]]][index[yPred[i]]]++
	}

	return &ConfusionMatrix{Classes: classes, Counts: counts, Total: len(yTrue)}, nil
}

func (m *ConfusionMatrix) Accuracy() float64 {
	correct := 0
	for i := range m.Classes {
		correct += m.Counts[i][i]
	}
	return float64(correct) / float64(m.Total)
}

// Support is the number of samples whose true label is the i-th class.
func (m *ConfusionMatrix) Support(i int) int {
	n := 0
	for _, c := range m.Counts[i] {
		n += c
	}
	return n
}

// F1 of the i-th class; zero when the class is never predicted or never seen.
func (m *ConfusionMatrix) F1(i int) float64 {
	tp := m.Counts[i][i]
	predicted := 0
	for j := range m.Classes {
		predicted += m.Counts[j][i]
	}
	precision := safeDivide(float64(tp), float64(predicted))
	recall := safeDivide(float64(tp), float64(m.Support(i)))
	return safeDivide(2*precision*recall, precision+recall)
}

// WeightedF1 averages per-class F1 weighted by true-label support.
func (m *ConfusionMatrix) WeightedF1() float64 {
	var sum float64
	for i := range m.Classes {
		sum += m.F1(i) * float64(m.Support(i))
	}
	return safeDivide(sum, float64(m.Total))
}

func (m *ConfusionMatrix) String() string {
	var b strings.Builder
	b.WriteString("true\\pred")
	for _, class := range m.Classes {
		fmt.Fprintf(&b, "\t%d", class)
	}
	for i, class := range m.Classes {
		fmt.Fprintf(&b, "\n%d", class)
		for _, c := range m.Counts[i] {
			fmt.Fprintf(&b, "\t%d", c)
		}
	}
	return b.String()
}

func unionClasses(yTrue, yPred []int) []int {
	seen := make(map[int]bool)
	for _, label := range yTrue {
		seen[label] = true
	}
	for _, label := range yPred {
		seen[label] = true
	}

	classes := make([]int, 0, len(seen))
	for class := range seen {
		classes = append(classes, class)
	}
	sort.Ints(classes)
	return classes
}

func safeDivide(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}
