package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"milkquality/internal/config"
	"milkquality/internal/data"
	"milkquality/internal/experiment"
	"milkquality/internal/logging"
	"milkquality/internal/tracking"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file (defaults are used when empty)")
	dataFile := flag.String("data", "", "Path to training data CSV file (overrides dataset_path)")
	modelPath := flag.String("model", "", "Where to write the model artifact (overrides model_path)")
	backend := flag.String("tracking", "", "Tracking backend: sqlite, redis, memory or noop")
	parallel := flag.Int("parallel", 0, "Configurations fitted concurrently (overrides training.parallelism)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fatal(err)
	}
	if *dataFile != "" {
		cfg.DatasetPath = *dataFile
	}
	if *modelPath != "" {
		cfg.ModelPath = *modelPath
	}
	if *backend != "" {
		cfg.Tracking.Backend = *backend
	}
	if *parallel > 0 {
		cfg.Training.Parallelism = *parallel
	}
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("training failed", zap.Error(err))
		var dataErr *data.DataAccessError
		if errors.As(err, &dataErr) {
			fatal(fmt.Errorf("dataset %s could not be used: %w", dataErr.Path, dataErr.Err))
		}
		fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	rec, err := tracking.Open(ctx, cfg.Tracking)
	if err != nil {
		return err
	}
	defer rec.Close()

	fmt.Printf("Training on %s...\n", cfg.DatasetPath)
	pipeline := experiment.NewPipeline(cfg, rec, logger)
	pipeline.Progress = func(done, total int) {
		fmt.Printf("\rScored %d/%d configurations", done, total)
		if done == total {
			fmt.Println()
		}
	}

	report, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	fmt.Println()
	fmt.Println(cyan("Grid Search Results:"))
	for _, candidate := range report.Best.Candidates {
		marker := " "
		if candidate.Configuration == report.Best.Configuration {
			marker = green("*")
		}
		fmt.Printf("%s %-14s accuracy %.4f  f1 %.4f  (%s)\n", marker, candidate.RunName(),
			candidate.Result.Accuracy, candidate.Result.WeightedF1, candidate.TrainingTime.Round(1e6))
	}

	fmt.Printf("\n%s Best model: %s (accuracy %.4f)\n", green("✓"), report.Best.RunName(), report.Best.Result.Accuracy)
	fmt.Printf("Model saved to: %s\n", report.ModelPath)
	if report.EncoderPath != "" {
		fmt.Printf("Label encoder saved to: %s\n", report.EncoderPath)
	}
	fmt.Printf("Finished in %s\n", report.Duration.Round(1e6))
	return nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("✗"), err)
	os.Exit(1)
}
