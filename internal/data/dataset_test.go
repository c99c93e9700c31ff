package data

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDatasetAcceptsPublishedHeaderSpellings(t *testing.T) {
	ds, err := LoadDataset("testdata/milk_sample.csv")
	require.NoError(t, err)
	assert.Equal(t, 12, ds.Len())

	target, ok := ds.Target().(CategoricalTarget)
	require.True(t, ok, "expected categorical target, got %T", ds.Target())
	assert.Equal(t, "high", target.Values[0])
	assert.Equal(t, "medium", target.Values[11])

	X := ds.Features()
	require.Len(t, X, 12)
	require.Len(t, X[0], len(FeatureNames))
	assert.Equal(t, "6.6", X[0][0].String())
	assert.Equal(t, "35", X[0][1].String())
	assert.Equal(t, "254", X[0][6].String())
}

func TestLoadDatasetNumericGrade(t *testing.T) {
	ds, err := LoadDataset("testdata/numeric_grade.csv")
	require.NoError(t, err)

	target, ok := ds.Target().(NumericTarget)
	require.True(t, ok, "expected numeric target, got %T", ds.Target())
	assert.Equal(t, []int{2, 0, 1, 0}, target.Values)
	assert.Equal(t, []string{"2", "0", "1", "0"}, ds.Grades())
}

func TestLoadDatasetErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		msg  string
	}{
		{name: "missing file", path: "testdata/does_not_exist.csv"},
		{name: "missing target column", path: "testdata/missing_grade.csv", msg: "Grade"},
		{name: "non numeric feature", path: "testdata/bad_value.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDataset(tt.path)
			require.Error(t, err)

			var accessErr *DataAccessError
			require.True(t, errors.As(err, &accessErr), "expected DataAccessError, got %T", err)
			assert.Equal(t, tt.path, accessErr.Path)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestLoadDatasetHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, []byte("pH,Temperature,Taste,Odor,Fat,Turbidity,Color,Grade\n"), 0o644))

	_, err := LoadDataset(path)
	var accessErr *DataAccessError
	require.True(t, errors.As(err, &accessErr))
}

func TestMixedGradesAreCategorical(t *testing.T) {
	samples := []Sample{
		{PH: 6.6, Grade: "1"},
		{PH: 6.8, Grade: "1.5"},
	}
	ds, err := NewDataset("inline", samples)
	require.NoError(t, err)
	_, ok := ds.Target().(CategoricalTarget)
	assert.True(t, ok)
}

func TestCanonicalColumn(t *testing.T) {
	tests := map[string]string{
		"pH":          "pH",
		"PH":          "pH",
		" Fat ":       "Fat",
		"Temprature":  "Temperature",
		"temperature": "Temperature",
		"Colour":      "Color",
		"grade":       "Grade",
	}
	for in, want := range tests {
		got, ok := CanonicalColumn(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := CanonicalColumn("Viscosity")
	assert.False(t, ok)
}

func TestColumn(t *testing.T) {
	ds, err := LoadDataset("testdata/milk_sample.csv")
	require.NoError(t, err)

	values, err := ds.Column("Temprature")
	require.NoError(t, err)
	assert.Equal(t, 35.0, values[0])
	assert.Equal(t, 70.0, values[2])

	_, err = ds.Column("Grade")
	assert.True(t, errors.Is(err, ErrUnknownColumn))

	_, err = ds.Column("Viscosity")
	assert.True(t, errors.Is(err, ErrUnknownColumn))
}

func TestSummary(t *testing.T) {
	ds, err := LoadDataset("testdata/milk_sample.csv")
	require.NoError(t, err)

	summary, err := ds.Summary()
	require.NoError(t, err)
	assert.Equal(t, 12, summary.Samples)
	assert.Equal(t, "categorical", summary.TargetKind)
	assert.Equal(t, []string{"high", "low", "medium"}, summary.ClassLabels)
	assert.Equal(t, map[string]int{"high": 4, "low": 5, "medium": 3}, summary.ClassCounts)

	require.Len(t, summary.Features, len(FeatureNames))
	ph := summary.Features[0]
	assert.Equal(t, "pH", ph.Name)
	assert.Equal(t, 4.5, ph.Min)
	assert.Equal(t, 9.5, ph.Max)
}
