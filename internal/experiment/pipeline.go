package experiment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"milkquality/internal/config"
	"milkquality/internal/data"
	"milkquality/internal/evaluation"
	"milkquality/internal/persistence"
	"milkquality/internal/preprocessing"
	"milkquality/internal/tracking"
)

const (
	bestModelRun      = "Best_Model"
	bestModelArtifact = "best_model"
	encoderArtifact   = "label_encoder"
)

// Pipeline is the full training job: load, encode, sweep, persist, record.
type Pipeline struct {
	Config   *config.Config
	Recorder tracking.Recorder
	Logger   *zap.Logger
	Progress func(done, total int)
}

type Report struct {
	Best        *BestModel
	Dataset     string
	Samples     int
	Classes     []string
	ModelPath   string
	EncoderPath string
	Duration    time.Duration
}

func NewPipeline(cfg *config.Config, recorder tracking.Recorder, logger *zap.Logger) *Pipeline {
	if recorder == nil {
		recorder = tracking.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{Config: cfg, Recorder: recorder, Logger: logger}
}

// Run trains on the configured dataset and overwrites the artifacts. Nothing
// is written when loading, encoding or the sweep fails.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	cfg := p.Config

	dataset, err := data.LoadDataset(cfg.DatasetPath)
	if err != nil {
		return nil, err
	}
	p.Logger.Info("dataset loaded", zap.String("path", cfg.DatasetPath), zap.Int("samples", dataset.Len()))

	X := dataset.Features()
	y, encoder, err := encodeTarget(dataset.Target())
	if err != nil {
		return nil, err
	}

	validator := data.NewDataValidator()
	if err := validator.ValidateDataset(X, y); err != nil {
		return nil, &data.DataAccessError{Path: cfg.DatasetPath, Err: err}
	}
	if err := validator.ValidateLabels(y); err != nil {
		return nil, &data.DataAccessError{Path: cfg.DatasetPath, Err: err}
	}

	trainer := NewTrainer(p.Recorder, cfg.Tracking.Experiment, p.Logger)
	trainer.Splitter = evaluation.NewTrainTestSplitter(cfg.Training.TestSize, cfg.Training.Seed, true)
	trainer.Seed = cfg.Training.Seed
	trainer.Parallelism = cfg.Training.Parallelism
	trainer.Progress = p.Progress

	best, err := trainer.Train(ctx, X, y, Grid{NEstimators: cfg.Training.NEstimators, MaxDepth: cfg.Training.MaxDepth})
	if err != nil {
		return nil, err
	}

	report := &Report{
		Best:      best,
		Dataset:   cfg.DatasetPath,
		Samples:   dataset.Len(),
		ModelPath: cfg.ModelPath,
	}
	if encoder != nil {
		report.Classes = encoder.Classes
	}

	if err := p.persist(best, encoder, report); err != nil {
		return nil, err
	}

	p.recordBest(ctx, best, report)
	p.exportRuns(ctx, best)

	report.Duration = time.Since(start)
	p.Logger.Info("training finished",
		zap.String("model_path", report.ModelPath),
		zap.String("label_encoder_path", report.EncoderPath),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func encodeTarget(target data.Target) ([]int, *preprocessing.LabelEncoder, error) {
	switch t := target.(type) {
	case data.NumericTarget:
		y := make([]int, len(t.Values))
		copy(y, t.Values)
		return y, nil, nil
	case data.CategoricalTarget:
		encoder := preprocessing.NewLabelEncoder()
		y, err := encoder.FitTransform(t.Values)
		if err != nil {
			return nil, nil, err
		}
		return y, encoder, nil
	default:
		return nil, nil, fmt.Errorf("unsupported target %T", target)
	}
}

func (p *Pipeline) persist(best *BestModel, encoder *preprocessing.LabelEncoder, report *Report) error {
	cfg := p.Config

	bundle := persistence.NewModelBundle(best.Model)
	bundle.Metadata.Dataset = cfg.DatasetPath
	bundle.Metadata.NEstimators = best.NEstimators
	bundle.Metadata.MaxDepth = best.MaxDepth
	bundle.Metadata.Accuracy = best.Result.Accuracy
	bundle.Metadata.F1Score = best.Result.WeightedF1
	bundle.Metadata.TrainingTime = best.TrainingTime
	bundle.Metadata.Features = append([]string{}, data.FeatureNames...)
	bundle.Metadata.Classes = report.Classes

	// Both artifacts are staged before either is replaced so a failure never
	// pairs a new model with a stale encoder.
	var batch persistence.Batch
	defer batch.Discard()
	if err := batch.StageModel(cfg.ModelPath, bundle); err != nil {
		return err
	}
	if encoder == nil {
		// A previous categorical run may have left an encoder behind.
		batch.StageRemoval(cfg.LabelEncoderPath)
	} else if err := batch.StageLabelEncoder(cfg.LabelEncoderPath, encoder); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return err
	}

	p.Logger.Info("model saved", zap.String("path", cfg.ModelPath))
	if encoder != nil {
		report.EncoderPath = cfg.LabelEncoderPath
		p.Logger.Info("label encoder saved", zap.String("path", cfg.LabelEncoderPath))
	}
	return nil
}

func (p *Pipeline) recordBest(ctx context.Context, best *BestModel, report *Report) {
	rec := newRunLogger(p.Recorder, p.Config.Tracking.Experiment, p.Logger)

	runID := rec.start(ctx, bestModelRun, "")
	rec.params(ctx, runID, best.Params())
	rec.metrics(ctx, runID, resultMetrics(best.Result))
	rec.artifact(ctx, runID, bestModelArtifact, report.ModelPath)
	if report.EncoderPath != "" {
		rec.artifact(ctx, runID, encoderArtifact, report.EncoderPath)
	}
	rec.end(ctx, runID, tracking.StatusFinished)
}

// exportRuns writes the runs of this sweep as CSV and a chart next to the
// model artifact. Failures are logged only.
func (p *Pipeline) exportRuns(ctx context.Context, best *BestModel) {
	if best.SweepRunID == "" {
		return
	}
	all, err := p.Recorder.ListRuns(ctx, p.Config.Tracking.Experiment)
	if err != nil {
		p.Logger.Warn("list runs failed", zap.Error(err))
		return
	}
	runs := tracking.ChildRuns(all, best.SweepRunID)
	if len(runs) == 0 {
		return
	}

	dir := filepath.Dir(p.Config.ModelPath)
	if err := writeFile(filepath.Join(dir, "grid_search.csv"), func(f *os.File) error {
		return tracking.ExportCSV(runs, f)
	}); err != nil {
		p.Logger.Warn("export runs failed", zap.Error(err))
	}

	if err := writeFile(filepath.Join(dir, "grid_search.png"), func(f *os.File) error {
		return tracking.RenderAccuracyChart(runs, f)
	}); err != nil && !errors.Is(err, tracking.ErrNothingToChart) {
		p.Logger.Warn("render runs chart failed", zap.Error(err))
	}
}

func writeFile(path string, fn func(f *os.File) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(file); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	return file.Close()
}
