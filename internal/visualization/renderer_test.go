package visualization

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkquality/internal/data"
	"milkquality/internal/datatest"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestRenderEveryPlotType(t *testing.T) {
	r, err := NewRenderer(datatest.Dataset(t, 120, 4), 8)
	require.NoError(t, err)

	for _, kind := range PlotTypes {
		for _, feature := range []string{"pH", "Temperature", "Fat"} {
			png, err := r.Render(feature, string(kind))
			require.NoError(t, err, "%s of %s", kind, feature)
			assert.True(t, bytes.HasPrefix(png, pngMagic), "%s of %s", kind, feature)
		}
	}
}

func TestRenderCachesByCanonicalFeature(t *testing.T) {
	r, err := NewRenderer(datatest.Dataset(t, 60, 2), 4)
	require.NoError(t, err)

	first, err := r.Render("Temprature", "Box Plot")
	require.NoError(t, err)
	second, err := r.Render("Temperature", "Box Plot")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, r.cache.Len())
}

func TestRenderConstantColumn(t *testing.T) {
	samples := datatest.Samples(10, 1)
	for i := range samples {
		samples[i].Color = 255
	}
	ds, err := data.NewDataset("constant", samples)
	require.NoError(t, err)
	r, err := NewRenderer(ds, 4)
	require.NoError(t, err)

	png, err := r.Render("Colour", "Violin Plot")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))
}

func TestRenderErrors(t *testing.T) {
	r, err := NewRenderer(datatest.Dataset(t, 20, 1), 4)
	require.NoError(t, err)

	_, err = r.Render("pH", "Scatter")
	assert.ErrorIs(t, err, ErrInvalidPlotType)

	_, err = r.Render("Viscosity", "Histogram")
	assert.ErrorIs(t, err, ErrUnknownFeature)

	_, err = r.Render("Grade", "Histogram")
	assert.ErrorIs(t, err, ErrUnknownFeature)
}

func TestParsePlotType(t *testing.T) {
	kind, err := ParsePlotType("Violin Plot")
	require.NoError(t, err)
	assert.Equal(t, ViolinPlot, kind)

	_, err = ParsePlotType("violin plot")
	assert.ErrorIs(t, err, ErrInvalidPlotType)
}

func TestKDEIntegratesToOne(t *testing.T) {
	values := []float64{1, 2, 2, 3, 7, 8}
	kde, bandwidth, err := newKDE(values)
	require.NoError(t, err)
	assert.Greater(t, bandwidth, 0.0)

	lo, hi := -20.0, 30.0
	steps := 5000
	dx := (hi - lo) / float64(steps)
	area := 0.0
	for i := 0; i < steps; i++ {
		area += kde(lo+(float64(i)+0.5)*dx) * dx
	}
	assert.InDelta(t, 1.0, area, 1e-3)
}
