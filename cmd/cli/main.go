package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"milkquality/internal/commander"
	"milkquality/internal/config"
	"milkquality/internal/logging"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file (defaults are used when empty)")
	apiURL := flag.String("api", "http://localhost:8000", "Base URL of the prediction API")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Logs never go to the terminal so they do not interleave with the
	// prompts; without a file sink the CLI stays silent.
	logger := zap.NewNop()
	if cfg.Log.File != "" {
		fileOnly := cfg.Log
		fileOnly.Level = "warn"
		if logger, err = logging.NewFile(fileOnly); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer logger.Sync()
	}

	cmd := commander.NewCommander(commander.NewAPIClient(*apiURL), cfg, logger)
	cmd.Start()
}
