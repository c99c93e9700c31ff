package data

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"golang.org/x/text/cases"
)

// TargetColumn is the label column of the milk quality dataset.
const TargetColumn = "Grade"

// FeatureNames lists the model inputs in the order every feature vector uses.
var FeatureNames = []string{"pH", "Temperature", "Taste", "Odor", "Fat", "Turbidity", "Color"}

// ErrUnknownColumn is returned when a column name does not resolve to a feature.
var ErrUnknownColumn = errors.New("unknown column")

var requiredColumns = append(append([]string{}, FeatureNames...), TargetColumn)

var fold = cases.Fold()

// columnAliases maps folded header spellings to canonical column names. The
// published dataset spells two of its headers differently.
var columnAliases = map[string]string{
	"temprature": "Temperature",
	"colour":     "Color",
}

// DataAccessError reports a dataset that is missing or cannot be used.
type DataAccessError struct {
	Path string
	Err  error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("dataset %s: %v", e.Path, e.Err)
}

func (e *DataAccessError) Unwrap() error {
	return e.Err
}

// CanonicalColumn resolves a header or user supplied column name, ignoring
// case and surrounding whitespace.
func CanonicalColumn(name string) (string, bool) {
	key := fold.String(strings.TrimSpace(name))
	if alias, ok := columnAliases[key]; ok {
		return alias, true
	}
	for _, column := range requiredColumns {
		if fold.String(column) == key {
			return column, true
		}
	}
	return "", false
}

// LoadDataset reads a milk quality CSV file into memory.
func LoadDataset(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &DataAccessError{Path: path, Err: err}
	}

	normalized, err := normalizeHeader(raw)
	if err != nil {
		return nil, &DataAccessError{Path: path, Err: err}
	}

	var samples []Sample
	if err := gocsv.UnmarshalBytes(normalized, &samples); err != nil {
		return nil, &DataAccessError{Path: path, Err: fmt.Errorf("decode rows: %w", err)}
	}

	dataset, err := NewDataset(path, samples)
	if err != nil {
		return nil, &DataAccessError{Path: path, Err: err}
	}
	return dataset, nil
}

// normalizeHeader rewrites the header row to canonical column names and
// checks that every required column is present.
func normalizeHeader(raw []byte) ([]byte, error) {
	reader := csv.NewReader(bytes.NewReader(raw))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("malformed csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("missing header row")
	}

	seen := make(map[string]bool)
	header := records[0]
	for i, name := range header {
		if canonical, ok := CanonicalColumn(name); ok {
			header[i] = canonical
			seen[canonical] = true
		}
	}

	var missing []string
	for _, column := range requiredColumns {
		if !seen[column] {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// parseTarget decides once whether the Grade column is numeric or categorical.
// A column is numeric only when every value is an integral number.
func parseTarget(samples []Sample) (Target, error) {
	values := make([]string, len(samples))
	for i, sample := range samples {
		grade := strings.TrimSpace(sample.Grade)
		if grade == "" {
			return nil, fmt.Errorf("row %d: empty %s", i+1, TargetColumn)
		}
		values[i] = grade
	}

	classes := make([]int, len(values))
	for i, value := range values {
		number, err := strconv.ParseFloat(value, 64)
		if err != nil || number != math.Trunc(number) || math.IsInf(number, 0) {
			return CategoricalTarget{Values: values}, nil
		}
		classes[i] = int(number)
	}
	return NumericTarget{Values: classes}, nil
}
