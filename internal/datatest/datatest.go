// Package datatest generates milk quality samples for tests.
package datatest

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/gocarina/gocsv"

	"milkquality/internal/data"
)

var (
	phValues    = []float64{4.5, 5.5, 6.4, 6.5, 6.6, 6.8, 7.4, 8.5, 9.0}
	colorValues = []float64{240, 245, 250, 255}
)

// Samples returns n reproducible samples whose grade follows a fixed rule:
// out-of-range pH or a hot sample is "low", odor and fat together make it
// "high", anything else is "medium".
func Samples(n int, seed int64) []data.Sample {
	r := rand.New(rand.NewSource(seed))
	samples := make([]data.Sample, n)
	for i := range samples {
		s := data.Sample{
			PH:          phValues[r.Intn(len(phValues))],
			Temperature: float64(34 + r.Intn(37)),
			Taste:       float64(r.Intn(2)),
			Odor:        float64(r.Intn(2)),
			Fat:         float64(r.Intn(2)),
			Turbidity:   float64(r.Intn(2)),
			Color:       colorValues[r.Intn(len(colorValues))],
		}
		s.Grade = Grade(s)
		samples[i] = s
	}
	return samples
}

// Grade applies the labelling rule used by Samples.
func Grade(s data.Sample) string {
	switch {
	case s.PH < 6.0 || s.PH > 7.0 || s.Temperature > 50:
		return "low"
	case s.Odor == 1 && s.Fat == 1:
		return "high"
	default:
		return "medium"
	}
}

// Dataset wraps Samples in a data.Dataset.
func Dataset(t testing.TB, n int, seed int64) *data.Dataset {
	t.Helper()
	ds, err := data.NewDataset("synthetic", Samples(n, seed))
	if err != nil {
		t.Fatalf("build dataset: %v", err)
	}
	return ds
}

// WriteCSV writes samples to dir/milk.csv through the same csv tags the
// loader reads and returns the path.
func WriteCSV(t testing.TB, dir string, samples []data.Sample) string {
	t.Helper()
	path := filepath.Join(dir, "milk.csv")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create csv: %v", err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&samples, file); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}
