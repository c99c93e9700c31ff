package preprocessing

import (
	"fmt"
	"sort"
)

// UnknownLabelError is returned when a value or code was not seen during Fit.
type UnknownLabelError struct {
	Label string
	Code  int
	// IsCode reports whether Code, rather than Label, was the unknown input.
	IsCode bool
}

func (e *UnknownLabelError) Error() string {
	if e.IsCode {
		return fmt.Sprintf("unknown encoding: %d", e.Code)
	}
	return fmt.Sprintf("unknown label: %q", e.Label)
}

// LabelEncoder maps raw class labels to contiguous codes 0..k-1. Codes are
// assigned in sorted label order so the same data always encodes the same way.
type LabelEncoder struct {
	Classes    []string
	ClassToInt map[string]int
	IsFitted   bool
}

func NewLabelEncoder() *LabelEncoder {
	return &LabelEncoder{
		ClassToInt: make(map[string]int),
		IsFitted:   false,
	}
}

func (le *LabelEncoder) Fit(labels []string) {
	uniqueLabels := make(map[string]bool)
	for _, label := range labels {
		uniqueLabels[label] = true
	}

	le.Classes = make([]string, 0, len(uniqueLabels))
	for label := range uniqueLabels {
		le.Classes = append(le.Classes, label)
	}
	sort.Strings(le.Classes)

	le.ClassToInt = make(map[string]int, len(le.Classes))
	for idx, label := range le.Classes {
		le.ClassToInt[label] = idx
	}

	le.IsFitted = true
}

func (le *LabelEncoder) Transform(labels []string) ([]int, error) {
	if !le.IsFitted {
		return nil, fmt.Errorf("LabelEncoder must be fitted before transform")
	}

	result := make([]int, len(labels))
	for i, label := range labels {
		val, ok := le.ClassToInt[label]
		if !ok {
			return nil, &UnknownLabelError{Label: label}
		}
		result[i] = val
	}

	return result, nil
}

func (le *LabelEncoder) FitTransform(labels []string) ([]int, error) {
	le.Fit(labels)
	return le.Transform(labels)
}

func (le *LabelEncoder) InverseTransform(encoded []int) ([]string, error) {
	if !le.IsFitted {
		return nil, fmt.Errorf("LabelEncoder must be fitted before inverse transform")
	}

	result := make([]string, len(encoded))
	for i, val := range encoded {
		if val < 0 || val >= len(le.Classes) {
			return nil, &UnknownLabelError{Code: val, IsCode: true}
		}
		result[i] = le.Classes[val]
	}

	return result, nil
}

// NumClasses returns k, the size of the code space.
func (le *LabelEncoder) NumClasses() int {
	return len(le.Classes)
}
