// Package visualization renders distribution plots of dataset features.
package visualization

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"milkquality/internal/data"
)

var (
	ErrInvalidPlotType = errors.New("invalid plot type")
	ErrUnknownFeature  = errors.New("unknown feature")
)

type PlotType string

const (
	Histogram  PlotType = "Histogram"
	BoxPlot    PlotType = "Box Plot"
	ViolinPlot PlotType = "Violin Plot"
)

var PlotTypes = []PlotType{Histogram, BoxPlot, ViolinPlot}

func ParsePlotType(s string) (PlotType, error) {
	for _, t := range PlotTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPlotType, s)
}

const (
	width        = 8 * vg.Inch
	height       = 4 * vg.Inch
	curveSamples = 200
	violinHalf   = 0.4
)

var fill = color.RGBA{R: 76, G: 114, B: 176, A: 255}

type cacheKey struct {
	feature  string
	plotType PlotType
}

// Renderer draws PNG plots of one feature column. The dataset never changes,
// so rendered images are cached.
type Renderer struct {
	dataset *data.Dataset
	cache   *lru.Cache[cacheKey, []byte]
}

func NewRenderer(dataset *data.Dataset, cacheSize int) (*Renderer, error) {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	cache, err := lru.New[cacheKey, []byte](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Renderer{dataset: dataset, cache: cache}, nil
}

// Render returns the PNG bytes of plotType for feature.
func (r *Renderer) Render(feature, plotType string) ([]byte, error) {
	kind, err := ParsePlotType(plotType)
	if err != nil {
		return nil, err
	}

	name, ok := data.CanonicalColumn(feature)
	if !ok || name == data.TargetColumn {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
	}

	key := cacheKey{feature: name, plotType: kind}
	if png, ok := r.cache.Get(key); ok {
		return png, nil
	}

	values, err := r.dataset.Column(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s of %s", kind, name)
	p.X.Label.Text = name

	switch kind {
	case Histogram:
		err = drawHistogram(p, values)
	case BoxPlot:
		err = drawBoxPlot(p, values)
	case ViolinPlot:
		err = drawViolin(p, values)
	}
	if err != nil {
		return nil, fmt.Errorf("render %s of %s: %w", kind, name, err)
	}

	png, err := encodePNG(p)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, png)
	return png, nil
}

func drawHistogram(p *plot.Plot, values []float64) error {
	hist, err := plotter.NewHist(plotter.Values(values), sturges(len(values)))
	if err != nil {
		return err
	}
	hist.FillColor = fill
	hist.Normalize(1)
	p.Add(hist)
	p.Y.Label.Text = "Density"

	kde, bandwidth, err := newKDE(values)
	if err != nil {
		return err
	}
	lo, hi := bounds(values)

	curve := plotter.NewFunction(kde)
	curve.XMin = lo - 3*bandwidth
	curve.XMax = hi + 3*bandwidth
	curve.Samples = curveSamples
	curve.Color = plotutil.Color(1)
	curve.Width = vg.Points(2)
	p.Add(curve)
	return nil
}

func drawBoxPlot(p *plot.Plot, values []float64) error {
	box, err := plotter.NewBoxPlot(vg.Points(60), 0, plotter.Values(values))
	if err != nil {
		return err
	}
	box.Horizontal = true
	box.FillColor = fill
	p.Add(box)
	p.HideY()
	return nil
}

// drawViolin mirrors a gaussian KDE around the axis and overlays a narrow box
// plot for the quartiles.
func drawViolin(p *plot.Plot, values []float64) error {
	kde, bandwidth, err := newKDE(values)
	if err != nil {
		return err
	}
	lo, hi := bounds(values)
	lo -= 2 * bandwidth
	hi += 2 * bandwidth

	xs := make([]float64, curveSamples)
	density := make([]float64, curveSamples)
	peak := 0.0
	for i := range xs {
		xs[i] = lo + (hi-lo)*float64(i)/float64(curveSamples-1)
		density[i] = kde(xs[i])
		peak = math.Max(peak, density[i])
	}
	if peak == 0 {
		peak = 1
	}

	outline := make(plotter.XYs, 0, 2*curveSamples)
	for i := range xs {
		outline = append(outline, plotter.XY{X: xs[i], Y: violinHalf * density[i] / peak})
	}
	for i := len(xs) - 1; i >= 0; i-- {
		outline = append(outline, plotter.XY{X: xs[i], Y: -violinHalf * density[i] / peak})
	}

	violin, err := plotter.NewPolygon(outline)
	if err != nil {
		return err
	}
	violin.Color = fill
	p.Add(violin)

	box, err := plotter.NewBoxPlot(vg.Points(8), 0, plotter.Values(values))
	if err != nil {
		return err
	}
	box.Horizontal = true
	box.FillColor = color.Black
	p.Add(box)

	p.Y.Min, p.Y.Max = -0.5, 0.5
	p.HideY()
	return nil
}

// newKDE builds a gaussian kernel density estimate with Scott's bandwidth.
func newKDE(values []float64) (func(float64) float64, float64, error) {
	n := float64(len(values))
	std, err := stats.StandardDeviationSample(values)
	if err != nil {
		return nil, 0, err
	}
	bandwidth := std * math.Pow(n, -0.2)
	if bandwidth == 0 || math.IsNaN(bandwidth) {
		bandwidth = 1
	}

	norm := 1 / (n * bandwidth * math.Sqrt(2*math.Pi))
	kde := func(x float64) float64 {
		sum := 0.0
		for _, v := range values {
			u := (x - v) / bandwidth
			sum += math.Exp(-0.5 * u * u)
		}
		return sum * norm
	}
	return kde, bandwidth, nil
}

func sturges(n int) int {
	return int(math.Ceil(math.Log2(float64(n)))) + 1
}

func bounds(values []float64) (float64, float64) {
	lo, _ := stats.Min(values)
	hi, _ := stats.Max(values)
	return lo, hi
}

func encodePNG(p *plot.Plot) ([]byte, error) {
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
