// Package commander is the interactive terminal front-end. Predictions and
// plots go through the HTTP API; training runs locally as a background job.
package commander

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"milkquality/internal/config"
	"milkquality/internal/experiment"
	"milkquality/internal/jobs"
	"milkquality/internal/tracking"
)

// TrainFunc runs one training job and returns its result.
type TrainFunc func(ctx context.Context, job *jobs.Job) (any, error)

type Commander struct {
	client     *APIClient
	cfg        *config.Config
	logger     *zap.Logger
	jobManager *jobs.Manager
	train      TrainFunc

	in   *bufio.Scanner
	out  io.Writer
	done bool

	green  func(a ...any) string
	red    func(a ...any) string
	yellow func(a ...any) string
	cyan   func(a ...any) string
	blue   func(a ...any) string
}

func NewCommander(client *APIClient, cfg *config.Config, logger *zap.Logger) *Commander {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Commander{
		client:     client,
		cfg:        cfg,
		logger:     logger,
		jobManager: jobs.NewManager(),
		in:         bufio.NewScanner(os.Stdin),
		out:        os.Stdout,
		green:      color.New(color.FgGreen).SprintFunc(),
		red:        color.New(color.FgRed).SprintFunc(),
		yellow:     color.New(color.FgYellow).SprintFunc(),
		cyan:       color.New(color.FgCyan).SprintFunc(),
		blue:       color.New(color.FgBlue).SprintFunc(),
	}
	c.train = c.runPipeline
	return c
}

// SetIO redirects prompts and output.
func (c *Commander) SetIO(in io.Reader, out io.Writer) {
	c.in = bufio.NewScanner(in)
	c.out = out
}

// SetTrainFunc replaces the training job body.
func (c *Commander) SetTrainFunc(fn TrainFunc) {
	c.train = fn
}

func (c *Commander) Jobs() *jobs.Manager {
	return c.jobManager
}

// Start reads commands until quit or end of input.
func (c *Commander) Start() {
	c.printWelcome()

	for !c.done {
		fmt.Fprint(c.out, c.yellow("\nmilk> "))
		if !c.in.Scan() {
			if err := c.in.Err(); err != nil {
				fmt.Fprintf(c.out, "\n%s Scanner error: %v\n", c.red("✗"), err)
			}
			break
		}

		input := strings.TrimSpace(c.in.Text())
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		c.ExecuteCommand(strings.ToLower(parts[0]), parts[1:])
	}
}

func (c *Commander) ExecuteCommand(command string, args []string) {
	switch command {
	case "help", "h":
		c.showHelp()
	case "health":
		c.health()
	case "predict":
		c.predict(args)
	case "plot":
		if len(args) >= 2 {
			c.plot(args)
		} else {
			fmt.Fprintln(c.out, c.red("Usage: plot <histogram|box|violin> <feature> [file]"))
		}
	case "train":
		c.trainBackground()
	case "jobs":
		c.listAllJobs()
	case "job":
		if len(args) > 0 {
			c.showJobStatus(args[0])
		} else {
			fmt.Fprintln(c.out, c.red("Usage: job <job-id>"))
		}
	case "logs":
		if len(args) > 0 {
			c.showJobLogs(args[0])
		} else {
			fmt.Fprintln(c.out, c.red("Usage: logs <job-id>"))
		}
	case "cancel":
		if len(args) > 0 {
			c.cancelJob(args[0])
		} else {
			fmt.Fprintln(c.out, c.red("Usage: cancel <job-id>"))
		}
	case "quit", "exit", "q":
		c.done = true
	default:
		fmt.Fprintf(c.out, "%s Unknown command: %s\n", c.red("✗"), command)
		fmt.Fprintln(c.out, "Type 'help' for available commands")
	}
}

func (c *Commander) printWelcome() {
	fmt.Fprintln(c.out, c.cyan("╔══════════════════════════════════════════╗"))
	fmt.Fprintln(c.out, c.cyan("║            Milk Quality App              ║"))
	fmt.Fprintln(c.out, c.cyan("╚══════════════════════════════════════════╝"))
	fmt.Fprintf(c.out, "API: %s\n", c.client.BaseURL)
	fmt.Fprintln(c.out, "Type 'help' for available commands")
}

func (c *Commander) showHelp() {
	fmt.Fprintln(c.out, c.blue("\nAvailable Commands:"))

	fmt.Fprintln(c.out, "\n"+c.cyan("Predictions:"))
	fmt.Fprintln(c.out, "  predict                     - Enter test values and predict milk quality")
	fmt.Fprintln(c.out, "  predict <7 values>          - Predict pH Temperature Taste Odor Fat Turbidity Color")
	fmt.Fprintln(c.out, "  plot <type> <feature> [file]- Save a histogram, box or violin plot as PNG")
	fmt.Fprintln(c.out, "  health                      - Check the API")

	fmt.Fprintln(c.out, "\n"+c.cyan("Training:"))
	fmt.Fprintln(c.out, "  train                       - Run the grid search in the background")
	fmt.Fprintln(c.out, "  jobs                        - List background jobs")
	fmt.Fprintln(c.out, "  job <job-id>                - Show job status")
	fmt.Fprintln(c.out, "  logs <job-id>               - Show job logs")
	fmt.Fprintln(c.out, "  cancel <job-id>             - Cancel a running job")

	fmt.Fprintln(c.out, "\n"+c.cyan("System:"))
	fmt.Fprintln(c.out, "  help                        - Show this help message")
	fmt.Fprintln(c.out, "  quit                        - Exit program")
}

func (c *Commander) health() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Health(ctx); err != nil {
		fmt.Fprintf(c.out, "%s API unavailable: %v\n", c.red("✗"), err)
		return
	}
	fmt.Fprintf(c.out, "%s API is up\n", c.green("✓"))
}

type sampleField struct {
	name    string
	def     float64
	min     float64
	max     float64
	integer bool
}

var sampleFields = []sampleField{
	{name: "pH", def: 6.5, min: 0, max: 14},
	{name: "Temperature", def: 40, min: 0, max: 100},
	{name: "Taste", def: 1, min: 0, max: 1, integer: true},
	{name: "Odor", def: 1, min: 0, max: 1, integer: true},
	{name: "Fat", def: 1, min: 0, max: 1, integer: true},
	{name: "Turbidity", def: 1, min: 0, max: 1, integer: true},
	{name: "Color", def: 4, min: 1, max: 10, integer: true},
}

func (f sampleField) parse(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s must be a number, got %q", f.name, raw)
	}
	if f.integer && v != math.Trunc(v) {
		return 0, fmt.Errorf("%s must be a whole number", f.name)
	}
	if v < f.min || v > f.max {
		return 0, fmt.Errorf("%s must be between %g and %g", f.name, f.min, f.max)
	}
	return v, nil
}

// ParseSample validates seven values in pH, Temperature, Taste, Odor, Fat,
// Turbidity, Color order.
func ParseSample(values []string) (Sample, error) {
	if len(values) != len(sampleFields) {
		return Sample{}, fmt.Errorf("expected %d values, got %d", len(sampleFields), len(values))
	}

	parsed := make([]float64, len(values))
	for i, field := range sampleFields {
		v, err := field.parse(values[i])
		if err != nil {
			return Sample{}, err
		}
		parsed[i] = v
	}
	return sampleFrom(parsed), nil
}

func sampleFrom(v []float64) Sample {
	return Sample{
		PH:          v[0],
		Temperature: v[1],
		Taste:       int(v[2]),
		Odor:        int(v[3]),
		Fat:         int(v[4]),
		Turbidity:   int(v[5]),
		Color:       int(v[6]),
	}
}

func (c *Commander) predict(args []string) {
	var sample Sample
	if len(args) > 0 {
		s, err := ParseSample(args)
		if err != nil {
			fmt.Fprintf(c.out, "%s %v\n", c.red("✗"), err)
			fmt.Fprintln(c.out, "Usage: predict 6.5 40 1 1 1 1 4")
			return
		}
		sample = s
	} else {
		s, ok := c.promptSample()
		if !ok {
			return
		}
		sample = s
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	label, err := c.client.Predict(ctx, sample)
	if err != nil {
		fmt.Fprintf(c.out, "%s Prediction failed: %v\n", c.red("✗"), err)
		return
	}
	fmt.Fprintf(c.out, "%s Predicted Milk Quality: %s\n", c.green("✓"), label)
}

// promptSample asks for each value in turn. An empty answer keeps the
// default; an invalid one is asked again.
func (c *Commander) promptSample() (Sample, bool) {
	fmt.Fprintln(c.out, c.cyan("Enter Milk Test Values")+" (press Enter to keep the default)")

	values := make([]float64, len(sampleFields))
	for i := 0; i < len(sampleFields); i++ {
		field := sampleFields[i]
		fmt.Fprintf(c.out, "%s [%g]: ", field.name, field.def)
		if !c.in.Scan() {
			fmt.Fprintln(c.out)
			return Sample{}, false
		}

		raw := strings.TrimSpace(c.in.Text())
		if raw == "" {
			values[i] = field.def
			continue
		}

		v, err := field.parse(raw)
		if err != nil {
			fmt.Fprintf(c.out, "%s %v\n", c.red("✗"), err)
			i--
			continue
		}
		values[i] = v
	}
	return sampleFrom(values), true
}

var plotAliases = map[string]string{
	"histogram": "Histogram",
	"hist":      "Histogram",
	"box":       "Box Plot",
	"boxplot":   "Box Plot",
	"violin":    "Violin Plot",
}

func (c *Commander) plot(args []string) {
	plotType := args[0]
	if alias, ok := plotAliases[strings.ToLower(plotType)]; ok {
		plotType = alias
	}
	feature := args[1]

	filename := fmt.Sprintf("%s_%s.png", feature, strings.ReplaceAll(strings.ToLower(plotType), " ", "_"))
	if len(args) > 2 {
		filename = args[2]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	png, err := c.client.Plot(ctx, feature, plotType)
	if err != nil {
		fmt.Fprintf(c.out, "%s Plot failed: %v\n", c.red("✗"), err)
		return
	}
	if err := os.WriteFile(filename, png, 0o644); err != nil {
		fmt.Fprintf(c.out, "%s Failed to save plot: %v\n", c.red("✗"), err)
		return
	}
	fmt.Fprintf(c.out, "%s %s of %s saved to %s\n", c.green("✓"), plotType, feature, filename)
}

func (c *Commander) trainBackground() {
	job := c.jobManager.Start("train", "Grid search over random forest configurations", c.train)
	fmt.Fprintf(c.out, "Job submitted: %s\n", c.cyan(job.ID))
}

func (c *Commander) runPipeline(ctx context.Context, job *jobs.Job) (any, error) {
	rec, err := tracking.Open(ctx, c.cfg.Tracking)
	if err != nil {
		return nil, err
	}
	defer rec.Close()

	job.AddLog(fmt.Sprintf("Loading %s", c.cfg.DatasetPath))

	p := experiment.NewPipeline(c.cfg, rec, c.logger)
	p.Progress = func(done, total int) {
		job.SetProgress(float64(done) / float64(total))
		job.AddLog(fmt.Sprintf("Scored %d/%d configurations", done, total))
	}

	report, err := p.Run(ctx)
	if err != nil {
		return nil, err
	}

	job.AddLog(fmt.Sprintf("Best model %s: accuracy %.4f, f1 %.4f",
		report.Best.RunName(), report.Best.Result.Accuracy, report.Best.Result.WeightedF1))
	job.AddLog(fmt.Sprintf("Model saved to: %s", report.ModelPath))
	if report.EncoderPath != "" {
		job.AddLog(fmt.Sprintf("Label encoder saved to: %s", report.EncoderPath))
	}
	job.AddLog("Restart the API server to serve the new model")
	return report, nil
}

func (c *Commander) listAllJobs() {
	all := c.jobManager.ListJobs()
	if len(all) == 0 {
		fmt.Fprintln(c.out, "No jobs found")
		return
	}

	fmt.Fprintln(c.out, c.cyan("Background Jobs:"))
	fmt.Fprintln(c.out, strings.Repeat("-", 80))
	fmt.Fprintf(c.out, "%-20s %-10s %-10s %-10s %s\n", "Job ID", "Type", "Status", "Progress", "Description")
	fmt.Fprintln(c.out, strings.Repeat("-", 80))

	for _, job := range all {
		status := job.GetStatus()
		fmt.Fprintf(c.out, "%-20s %-10s %-10s %-10s %s\n",
			job.ID, job.Type, c.statusColor(status)(string(status)),
			fmt.Sprintf("%.0f%%", job.GetProgress()*100), job.Description)
	}
}

func (c *Commander) statusColor(status jobs.JobStatus) func(a ...any) string {
	switch status {
	case jobs.JobCompleted:
		return c.green
	case jobs.JobFailed:
		return c.red
	case jobs.JobRunning:
		return c.cyan
	default:
		return c.yellow
	}
}

func (c *Commander) showJobStatus(jobID string) {
	job, exists := c.jobManager.GetJob(jobID)
	if !exists {
		fmt.Fprintf(c.out, "%s Job not found: %s\n", c.red("✗"), jobID)
		return
	}

	fmt.Fprintf(c.out, "\n%s\n", c.cyan("Job Details:"))
	fmt.Fprintf(c.out, "ID:          %s\n", job.ID)
	fmt.Fprintf(c.out, "Type:        %s\n", job.Type)
	fmt.Fprintf(c.out, "Status:      %s\n", job.GetStatus())
	fmt.Fprintf(c.out, "Progress:    %.0f%%\n", job.GetProgress()*100)
	fmt.Fprintf(c.out, "Start Time:  %s\n", job.StartTime.Format("15:04:05"))
	if end := job.GetEndTime(); end != nil {
		fmt.Fprintf(c.out, "End Time:    %s\n", end.Format("15:04:05"))
		fmt.Fprintf(c.out, "Duration:    %s\n", end.Sub(job.StartTime).Round(time.Millisecond))
	}
	if err := job.GetError(); err != nil {
		fmt.Fprintf(c.out, "Error:       %s\n", c.red(err.Error()))
	}
	if report, ok := job.GetResult().(*experiment.Report); ok {
		fmt.Fprintf(c.out, "Best Model:  %s (accuracy %.4f)\n", report.Best.RunName(), report.Best.Result.Accuracy)
	}
}

func (c *Commander) cancelJob(jobID string) {
	if err := c.jobManager.CancelJob(jobID); err != nil {
		fmt.Fprintf(c.out, "%s %v\n", c.red("✗"), err)
		return
	}
	fmt.Fprintf(c.out, "%s Cancellation requested: %s\n", c.green("✓"), jobID)
}

func (c *Commander) showJobLogs(jobID string) {
	job, exists := c.jobManager.GetJob(jobID)
	if !exists {
		fmt.Fprintf(c.out, "%s Job not found: %s\n", c.red("✗"), jobID)
		return
	}

	logs := job.GetLogs()
	if len(logs) == 0 {
		fmt.Fprintln(c.out, "No logs available")
		return
	}

	fmt.Fprintf(c.out, "\n%s\n", c.cyan(fmt.Sprintf("Logs for job %s:", jobID)))
	for _, line := range logs {
		fmt.Fprintln(c.out, line)
	}
}
