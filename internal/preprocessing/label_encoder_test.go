package preprocessing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitAssignsCodesInSortedOrder(t *testing.T) {
	le := NewLabelEncoder()
	codes, err := le.FitTransform([]string{"medium", "low", "high", "low"})
	require.NoError(t, err)

	assert.Equal(t, []string{"high", "low", "medium"}, le.Classes)
	assert.Equal(t, []int{2, 1, 0, 1}, codes)
	assert.Equal(t, 3, le.NumClasses())
}

func TestFitIsIndependentOfInputOrder(t *testing.T) {
	a := NewLabelEncoder()
	a.Fit([]string{"low", "medium", "high"})
	b := NewLabelEncoder()
	b.Fit([]string{"high", "high", "medium", "low"})

	assert.Equal(t, a.Classes, b.Classes)
	assert.Equal(t, a.ClassToInt, b.ClassToInt)
}

func TestRoundTrip(t *testing.T) {
	values := []string{"low", "high", "medium", "medium", "high", "low", "low"}
	le := NewLabelEncoder()
	le.Fit(values)

	codes, err := le.Transform(values)
	require.NoError(t, err)
	decoded, err := le.InverseTransform(codes)
	require.NoError(t, err)
	assert.Equal(t, values, decoded)
}

func TestTransformUnknownLabel(t *testing.T) {
	le := NewLabelEncoder()
	le.Fit([]string{"low", "high"})

	_, err := le.Transform([]string{"low", "spoiled"})
	var unknown *UnknownLabelError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "spoiled", unknown.Label)
	assert.False(t, unknown.IsCode)
}

func TestInverseTransformOutOfRange(t *testing.T) {
	le := NewLabelEncoder()
	le.Fit([]string{"low", "high"})

	for _, code := range []int{-1, 2, 7} {
		_, err := le.InverseTransform([]int{code})
		var unknown *UnknownLabelError
		require.True(t, errors.As(err, &unknown), "code %d", code)
		assert.True(t, unknown.IsCode)
		assert.Equal(t, code, unknown.Code)
	}
}

func TestUnfittedEncoder(t *testing.T) {
	le := NewLabelEncoder()
	_, err := le.Transform([]string{"low"})
	assert.Error(t, err)
	_, err = le.InverseTransform([]int{0})
	assert.Error(t, err)
}
