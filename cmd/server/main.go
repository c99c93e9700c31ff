package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"milkquality/internal/config"
	"milkquality/internal/data"
	"milkquality/internal/logging"
	"milkquality/internal/prediction"
	"milkquality/internal/server"
	"milkquality/internal/tracking"
	"milkquality/internal/visualization"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file (defaults are used when empty)")
	port := flag.Int("port", 0, "Port to listen on (overrides server.port)")
	flag.Parse()

	if err := run(*configFile, *port); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configFile string, port int) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	predictor, err := prediction.Load(cfg.ModelPath, cfg.LabelEncoderPath, logger)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}

	deps := server.Dependencies{Predictor: predictor}

	// Plots and the summary need the dataset; the API still serves
	// predictions without it.
	dataset, err := data.LoadDataset(cfg.DatasetPath)
	if err != nil {
		logger.Warn("dataset unavailable, plots disabled", zap.Error(err))
	} else {
		renderer, err := visualization.NewRenderer(dataset, cfg.Server.PlotCacheSize)
		if err != nil {
			return err
		}
		deps.Plots = renderer
		deps.Dataset = dataset
	}

	rec, err := tracking.Open(ctx, cfg.Tracking)
	if err != nil {
		logger.Warn("experiment tracking unavailable", zap.Error(err))
	} else {
		defer rec.Close()
		deps.Runs = rec
	}

	srv, err := server.New(cfg.Server, deps, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := srv.Stop(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return <-errCh
}
