package data

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"
)

// Sample is one row of the dataset.
type Sample struct {
	PH          float64 `csv:"pH"`
	Temperature float64 `csv:"Temperature"`
	Taste       float64 `csv:"Taste"`
	Odor        float64 `csv:"Odor"`
	Fat         float64 `csv:"Fat"`
	Turbidity   float64 `csv:"Turbidity"`
	Color       float64 `csv:"Color"`
	Grade       string  `csv:"Grade"`
}

// Vector returns the features in FeatureNames order.
func (s Sample) Vector() []float64 {
	return []float64{s.PH, s.Temperature, s.Taste, s.Odor, s.Fat, s.Turbidity, s.Color}
}

// Target is either a NumericTarget or a CategoricalTarget.
type Target interface {
	Len() int
	isTarget()
}

// NumericTarget holds grades that are already integer class ids.
type NumericTarget struct {
	Values []int
}

func (t NumericTarget) Len() int { return len(t.Values) }
func (NumericTarget) isTarget()  {}

// CategoricalTarget holds raw text grades that need a label encoder.
type CategoricalTarget struct {
	Values []string
}

func (t CategoricalTarget) Len() int { return len(t.Values) }
func (CategoricalTarget) isTarget()  {}

// Dataset is immutable once built.
type Dataset struct {
	source  string
	samples []Sample
	target  Target
}

// NewDataset builds a dataset from decoded samples and decides the target kind.
func NewDataset(source string, samples []Sample) (*Dataset, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("dataset is empty")
	}
	for i, sample := range samples {
		for j, value := range sample.Vector() {
			if math.IsNaN(value) || math.IsInf(value, 0) {
				return nil, fmt.Errorf("row %d: invalid %s value", i+1, FeatureNames[j])
			}
		}
	}

	target, err := parseTarget(samples)
	if err != nil {
		return nil, err
	}

	owned := make([]Sample, len(samples))
	copy(owned, samples)
	return &Dataset{source: source, samples: owned, target: target}, nil
}

func (d *Dataset) Source() string { return d.source }

func (d *Dataset) Len() int { return len(d.samples) }

func (d *Dataset) Target() Target { return d.target }

// Features returns a fresh feature matrix in FeatureNames order.
func (d *Dataset) Features() [][]decimal.Decimal {
	X := make([][]decimal.Decimal, len(d.samples))
	for i, sample := range d.samples {
		vector := sample.Vector()
		X[i] = make([]decimal.Decimal, len(vector))
		for j, value := range vector {
			X[i][j] = decimal.NewFromFloat(value)
		}
	}
	return X
}

// Column returns the raw values of one feature column.
func (d *Dataset) Column(name string) ([]float64, error) {
	canonical, ok := CanonicalColumn(name)
	if !ok || canonical == TargetColumn {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	index := featureIndex(canonical)

	values := make([]float64, len(d.samples))
	for i, sample := range d.samples {
		values[i] = sample.Vector()[index]
	}
	return values, nil
}

// Grades returns the raw target values as text.
func (d *Dataset) Grades() []string {
	switch t := d.target.(type) {
	case CategoricalTarget:
		out := make([]string, len(t.Values))
		copy(out, t.Values)
		return out
	case NumericTarget:
		out := make([]string, len(t.Values))
		for i, v := range t.Values {
			out[i] = strconv.Itoa(v)
		}
		return out
	}
	return nil
}

type FeatureSummary struct {
	Name   string  `json:"name"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
}

type Summary struct {
	Samples     int              `json:"samples"`
	TargetKind  string           `json:"target_kind"`
	Features    []FeatureSummary `json:"features"`
	ClassCounts map[string]int   `json:"class_counts"`
	ClassLabels []string         `json:"class_labels"`
}

// Summary describes every feature column and the class distribution.
func (d *Dataset) Summary() (Summary, error) {
	summary := Summary{
		Samples:     len(d.samples),
		TargetKind:  "numeric",
		ClassCounts: make(map[string]int),
	}
	if _, ok := d.target.(CategoricalTarget); ok {
		summary.TargetKind = "categorical"
	}

	for _, name := range FeatureNames {
		values, err := d.Column(name)
		if err != nil {
			return Summary{}, err
		}
		feature := FeatureSummary{Name: name}
		if feature.Min, err = stats.Min(values); err != nil {
			return Summary{}, err
		}
		if feature.Max, err = stats.Max(values); err != nil {
			return Summary{}, err
		}
		if feature.Mean, err = stats.Mean(values); err != nil {
			return Summary{}, err
		}
		if feature.Median, err = stats.Median(values); err != nil {
			return Summary{}, err
		}
		if len(values) > 1 {
			if feature.StdDev, err = stats.StandardDeviationSample(values); err != nil {
				return Summary{}, err
			}
		}
		summary.Features = append(summary.Features, feature)
	}

	for _, grade := range d.Grades() {
		if summary.ClassCounts[grade] == 0 {
			summary.ClassLabels = append(summary.ClassLabels, grade)
		}
		summary.ClassCounts[grade]++
	}
	sort.Strings(summary.ClassLabels)
	return summary, nil
}

func featureIndex(name string) int {
	for i, feature := range FeatureNames {
		if feature == name {
			return i
		}
	}
	return -1
}
