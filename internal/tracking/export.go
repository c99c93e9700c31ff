package tracking

import (
	"errors"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	chart "github.com/wcharczuk/go-chart/v2"
)

var ErrNothingToChart = errors.New("tracking: need at least two scored runs to chart")

type runRow struct {
	Seq         int64   `csv:"seq"`
	Name        string  `csv:"run_name"`
	Status      string  `csv:"status"`
	NEstimators string  `csv:"n_estimators"`
	MaxDepth    string  `csv:"max_depth"`
	Accuracy    float64 `csv:"accuracy"`
	F1Score     float64 `csv:"f1_score"`
	Artifact    string  `csv:"best_model"`
}

// ExportCSV writes one line per run that carries an accuracy metric.
func ExportCSV(runs []Run, w io.Writer) error {
	rows := make([]*runRow, 0, len(runs))
	for _, run := range scored(runs) {
		rows = append(rows, &runRow{
			Seq:         run.Seq,
			Name:        run.Name,
			Status:      run.Status,
			NEstimators: run.Params["n_estimators"],
			MaxDepth:    run.Params["max_depth"],
			Accuracy:    run.Metrics["accuracy"],
			F1Score:     run.Metrics["f1_score"],
			Artifact:    run.Artifacts["best_model"],
		})
	}
	return gocsv.Marshal(rows, w)
}

// RenderAccuracyChart draws accuracy and F1 per scored run as a PNG.
func RenderAccuracyChart(runs []Run, w io.Writer) error {
	points := scored(runs)
	if len(points) < 2 {
		return ErrNothingToChart
	}

	xs := make([]float64, len(points))
	accuracy := make([]float64, len(points))
	f1 := make([]float64, len(points))
	ticks := make([]chart.Tick, len(points))
	for i, run := range points {
		xs[i] = float64(i + 1)
		accuracy[i] = run.Metrics["accuracy"]
		f1[i] = run.Metrics["f1_score"]
		ticks[i] = chart.Tick{Value: xs[i], Label: run.Name}
	}

	graph := chart.Chart{
		Title: "Grid Search",
		XAxis: chart.XAxis{
			Name:  "Run",
			Ticks: ticks,
		},
		YAxis: chart.YAxis{
			Name:  "Score",
			Range: &chart.ContinuousRange{Min: 0, Max: 1},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "accuracy",
				XValues: xs,
				YValues: accuracy,
				Style: chart.Style{
					StrokeColor: chart.GetAlternateColor(0),
					StrokeWidth: 2,
				},
			},
			chart.ContinuousSeries{
				Name:    "f1_score",
				XValues: xs,
				YValues: f1,
				Style: chart.Style{
					StrokeColor: chart.GetAlternateColor(1),
					StrokeWidth: 2,
				},
			},
		},
	}

	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render grid search chart: %w", err)
	}
	return nil
}

// ChildRuns keeps the runs started under parentID, in their listed order.
func ChildRuns(runs []Run, parentID string) []Run {
	var out []Run
	for _, run := range runs {
		if run.ParentID == parentID {
			out = append(out, run)
		}
	}
	return out
}

func scored(runs []Run) []Run {
	var out []Run
	for _, run := range runs {
		if _, ok := run.Metrics["accuracy"]; ok {
			out = append(out, run)
		}
	}
	return out
}
