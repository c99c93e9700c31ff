package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DatasetPath      string   `yaml:"dataset_path"`
	ModelPath        string   `yaml:"model_path"`
	LabelEncoderPath string   `yaml:"label_encoder_path"`
	Training         Training `yaml:"training"`
	Tracking         Tracking `yaml:"tracking"`
	Server           Server   `yaml:"server"`
	Log              Log      `yaml:"log"`
}

type Training struct {
	TestSize    float64 `yaml:"test_size"`
	Seed        int64   `yaml:"seed"`
	NEstimators []int   `yaml:"n_estimators"`
	MaxDepth    []int   `yaml:"max_depth"`
	Parallelism int     `yaml:"parallelism"`
}

type Tracking struct {
	Backend    string `yaml:"backend"`
	DSN        string `yaml:"dsn"`
	Experiment string `yaml:"experiment"`
}

type Server struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	PlotCacheSize  int           `yaml:"plot_cache_size"`
}

type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns the configuration the training script has always used.
func Default() *Config {
	return &Config{
		DatasetPath:      "data/milknew.csv",
		ModelPath:        "models/model.gob",
		LabelEncoderPath: "models/label_encoder.gob",
		Training: Training{
			TestSize:    0.2,
			Seed:        42,
			NEstimators: []int{50, 100, 200},
			MaxDepth:    []int{3, 5, 10},
			Parallelism: 1,
		},
		Tracking: Tracking{
			Backend:    "sqlite",
			DSN:        "mlruns/tracking.db",
			Experiment: "Milk_Quality_Classification",
		},
		Server: Server{
			Port:           8000,
			Timeout:        30 * time.Second,
			AllowedOrigins: []string{"*"},
			PlotCacheSize:  64,
		},
		Log: Log{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}

// Load reads a YAML file on top of Default. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.DatasetPath == "" {
		return fmt.Errorf("dataset_path is required")
	}
	if c.ModelPath == "" {
		return fmt.Errorf("model_path is required")
	}
	if c.LabelEncoderPath == "" {
		return fmt.Errorf("label_encoder_path is required")
	}
	if c.Training.TestSize <= 0 || c.Training.TestSize >= 1 {
		return fmt.Errorf("training.test_size must be between 0 and 1, got %v", c.Training.TestSize)
	}
	if len(c.Training.NEstimators) == 0 || len(c.Training.MaxDepth) == 0 {
		return fmt.Errorf("training grid must not be empty")
	}
	for _, n := range c.Training.NEstimators {
		if n <= 0 {
			return fmt.Errorf("training.n_estimators must be positive, got %d", n)
		}
	}
	for _, d := range c.Training.MaxDepth {
		if d <= 0 {
			return fmt.Errorf("training.max_depth must be positive, got %d", d)
		}
	}
	switch c.Tracking.Backend {
	case "sqlite", "redis", "memory", "noop":
	default:
		return fmt.Errorf("unknown tracking backend: %s", c.Tracking.Backend)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive")
	}
	return nil
}
