package experiment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"milkquality/internal/data"
	"milkquality/internal/evaluation"
	"milkquality/internal/models"
	"milkquality/internal/tracking"
)

// ErrTrainingDegenerate means no configuration scored above zero accuracy.
var ErrTrainingDegenerate = errors.New("training degenerate: no configuration scored above zero accuracy")

const gridSearchRun = "grid_search"

type Configuration struct {
	NEstimators int `json:"n_estimators"`
	MaxDepth    int `json:"max_depth"`
}

// RunName is the name the configuration is recorded under.
func (c Configuration) RunName() string {
	return fmt.Sprintf("RF_n%d_d%d", c.NEstimators, c.MaxDepth)
}

func (c Configuration) Params() map[string]string {
	return map[string]string{
		"n_estimators": strconv.Itoa(c.NEstimators),
		"max_depth":    strconv.Itoa(c.MaxDepth),
	}
}

type Grid struct {
	NEstimators []int
	MaxDepth    []int
}

func DefaultGrid() Grid {
	return Grid{
		NEstimators: []int{50, 100, 200},
		MaxDepth:    []int{3, 5, 10},
	}
}

func (g Grid) Validate() error {
	if len(g.NEstimators) == 0 || len(g.MaxDepth) == 0 {
		return fmt.Errorf("grid: n_estimators and max_depth must not be empty")
	}
	for _, n := range g.NEstimators {
		if n <= 0 {
			return fmt.Errorf("grid: n_estimators must be positive, got %d", n)
		}
	}
	for _, d := range g.MaxDepth {
		if d <= 0 {
			return fmt.Errorf("grid: max_depth must be positive, got %d", d)
		}
	}
	return nil
}

// Configurations lists the grid with n_estimators as the outer loop and
// max_depth as the inner one.
func (g Grid) Configurations() []Configuration {
	configs := make([]Configuration, 0, len(g.NEstimators)*len(g.MaxDepth))
	for _, n := range g.NEstimators {
		for _, d := range g.MaxDepth {
			configs = append(configs, Configuration{NEstimators: n, MaxDepth: d})
		}
	}
	return configs
}

// Candidate is one fitted and scored configuration.
type Candidate struct {
	Configuration
	Model        models.Model
	Result       evaluation.Result
	TrainingTime time.Duration
}

type BestModel struct {
	Configuration
	Model        models.Model
	Result       evaluation.Result
	TrainingTime time.Duration
	// Candidates holds every configuration in grid order.
	Candidates []Candidate
	// SweepRunID is the grid_search run the candidates were recorded under;
	// empty when the recorder could not start it.
	SweepRunID string
}

// SelectBest folds over the candidates in order. A candidate replaces the
// current best only if its accuracy is strictly higher, so the earliest of
// several equal scores wins. The starting accuracy is zero.
func SelectBest(candidates []Candidate) (*BestModel, error) {
	var best *Candidate
	bestAccuracy := 0.0

	for i := range candidates {
		if candidates[i].Result.Accuracy > bestAccuracy {
			best = &candidates[i]
			bestAccuracy = best.Result.Accuracy
		}
	}

	if best == nil {
		return nil, ErrTrainingDegenerate
	}

	return &BestModel{
		Configuration: best.Configuration,
		Model:         best.Model,
		Result:        best.Result,
		TrainingTime:  best.TrainingTime,
		Candidates:    candidates,
	}, nil
}

// Trainer runs the hyperparameter sweep.
type Trainer struct {
	Splitter *evaluation.TrainTestSplitter
	// Seed seeds every forest in the sweep.
	Seed int64
	// Parallelism bounds how many configurations are fit at once.
	Parallelism int
	Recorder    tracking.Recorder
	Experiment  string
	Logger      *zap.Logger
	// Progress, when set, is called after each configuration is scored.
	Progress func(done, total int)
	NewModel func(cfg Configuration, seed int64) (models.Model, error)
}

func NewTrainer(recorder tracking.Recorder, experiment string, logger *zap.Logger) *Trainer {
	if recorder == nil {
		recorder = tracking.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{
		Splitter:    evaluation.DefaultTrainTestSplitter(),
		Seed:        evaluation.DefaultSeed,
		Parallelism: 1,
		Recorder:    recorder,
		Experiment:  experiment,
		Logger:      logger,
		NewModel:    newForest,
	}
}

func newForest(cfg Configuration, seed int64) (models.Model, error) {
	return models.CreateModel(models.ModelConfig{
		Algorithm: "forest",
		NTrees:    cfg.NEstimators,
		MaxDepth:  cfg.MaxDepth,
		MinSplit:  2,
		Seed:      seed,
	})
}

// Train splits once, fits every grid configuration on the training rows,
// scores it on the held-out rows and returns the best one. Every
// configuration is recorded as a child of a grid_search run.
func (t *Trainer) Train(ctx context.Context, X [][]decimal.Decimal, y []int, grid Grid) (*BestModel, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	split, err := t.Splitter.Split(X, y)
	if err != nil {
		return nil, fmt.Errorf("split dataset: %w", err)
	}
	if err := data.NewDataValidator().ValidateTrainTestSplit(split.XTrain, split.XTest, split.YTrain, split.YTest); err != nil {
		return nil, err
	}

	t.Logger.Info("grid search started",
		zap.Int("train_rows", len(split.XTrain)),
		zap.Int("test_rows", len(split.XTest)),
		zap.Int("configurations", len(grid.NEstimators)*len(grid.MaxDepth)),
	)

	candidates, err := t.sweep(ctx, split, grid.Configurations())
	if err != nil {
		return nil, err
	}

	best, selectErr := SelectBest(candidates)
	sweepID := t.record(ctx, candidates, selectErr)
	if selectErr != nil {
		return nil, selectErr
	}
	best.SweepRunID = sweepID

	t.Logger.Info("best configuration selected",
		zap.Int("n_estimators", best.NEstimators),
		zap.Int("max_depth", best.MaxDepth),
		zap.Float64("accuracy", best.Result.Accuracy),
		zap.Float64("f1_score", best.Result.WeightedF1),
	)
	return best, nil
}

// sweep fits the configurations, possibly concurrently. Each result lands in
// the slot of its grid index so the outcome does not depend on scheduling.
func (t *Trainer) sweep(ctx context.Context, split evaluation.Split, configs []Configuration) ([]Candidate, error) {
	candidates := make([]Candidate, len(configs))

	parallelism := t.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	var mu sync.Mutex
	done := 0

	for i, cfg := range configs {
		i, cfg := i, cfg
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			candidate, err := t.fit(split, cfg)
			if err != nil {
				return fmt.Errorf("fit %s: %w", cfg.RunName(), err)
			}
			candidates[i] = candidate

			t.Logger.Debug("configuration scored",
				zap.String("run", cfg.RunName()),
				zap.Float64("accuracy", candidate.Result.Accuracy),
				zap.Duration("training_time", candidate.TrainingTime),
			)

			if t.Progress != nil {
				mu.Lock()
				done++
				t.Progress(done, len(configs))
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return candidates, nil
}

func (t *Trainer) fit(split evaluation.Split, cfg Configuration) (Candidate, error) {
	model, err := t.NewModel(cfg, t.Seed)
	if err != nil {
		return Candidate{}, err
	}

	startTime := time.Now()
	if err := model.Fit(split.XTrain, split.YTrain); err != nil {
		return Candidate{}, err
	}
	trainingTime := time.Since(startTime)

	result, err := evaluation.Evaluate(split.YTest, model.Predict(split.XTest))
	if err != nil {
		return Candidate{}, err
	}

	return Candidate{
		Configuration: cfg,
		Model:         model,
		Result:        result,
		TrainingTime:  trainingTime,
	}, nil
}

// record writes the sweep to the recorder in grid order.
func (t *Trainer) record(ctx context.Context, candidates []Candidate, selectErr error) string {
	rec := newRunLogger(t.Recorder, t.Experiment, t.Logger)
	rec.startExperiment(ctx)

	parent := rec.start(ctx, gridSearchRun, "")
	for _, c := range candidates {
		runID := rec.start(ctx, c.RunName(), parent)
		rec.params(ctx, runID, c.Params())
		rec.metrics(ctx, runID, resultMetrics(c.Result))
		rec.end(ctx, runID, tracking.StatusFinished)
	}

	status := tracking.StatusFinished
	if selectErr != nil {
		status = tracking.StatusFailed
	}
	rec.end(ctx, parent, status)
	return parent
}

func resultMetrics(r evaluation.Result) map[string]float64 {
	return map[string]float64{
		"accuracy": r.Accuracy,
		"f1_score": r.WeightedF1,
	}
}

// runLogger forwards to a Recorder and logs failures instead of returning
// them; a broken tracking backend never aborts training.
type runLogger struct {
	rec        tracking.Recorder
	experiment string
	logger     *zap.Logger
}

func newRunLogger(rec tracking.Recorder, experiment string, logger *zap.Logger) *runLogger {
	return &runLogger{rec: rec, experiment: experiment, logger: logger}
}

func (r *runLogger) warn(op string, err error, fields ...zap.Field) {
	r.logger.Warn("tracking "+op+" failed", append(fields, zap.Error(err))...)
}

func (r *runLogger) startExperiment(ctx context.Context) {
	if err := r.rec.StartExperiment(ctx, r.experiment); err != nil {
		r.warn("start experiment", err, zap.String("experiment", r.experiment))
	}
}

func (r *runLogger) start(ctx context.Context, name, parent string) string {
	id, err := r.rec.StartRun(ctx, tracking.RunSpec{Experiment: r.experiment, Name: name, ParentID: parent})
	if err != nil {
		r.warn("start run", err, zap.String("run", name))
		return ""
	}
	return id
}

func (r *runLogger) params(ctx context.Context, runID string, params map[string]string) {
	if runID == "" {
		return
	}
	if err := r.rec.LogParams(ctx, runID, params); err != nil {
		r.warn("log params", err, zap.String("run_id", runID))
	}
}

func (r *runLogger) metrics(ctx context.Context, runID string, metrics map[string]float64) {
	if runID == "" {
		return
	}
	if err := r.rec.LogMetrics(ctx, runID, metrics); err != nil {
		r.warn("log metrics", err, zap.String("run_id", runID))
	}
}

func (r *runLogger) artifact(ctx context.Context, runID, name, uri string) {
	if runID == "" {
		return
	}
	if err := r.rec.LogArtifact(ctx, runID, name, uri); err != nil {
		r.warn("log artifact", err, zap.String("run_id", runID))
	}
}

func (r *runLogger) end(ctx context.Context, runID, status string) {
	if runID == "" {
		return
	}
	if err := r.rec.EndRun(ctx, runID, status); err != nil {
		r.warn("end run", err, zap.String("run_id", runID))
	}
}
