// Package logging builds the zap logger shared by the binaries.
package logging

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"milkquality/internal/config"
)

var ErrNoLogFile = errors.New("logging: no log file configured")

// New returns a JSON logger that writes errors to stderr and everything else
// to stdout. When cfg.File is set the same entries are also appended to a
// size-rotated file.
func New(cfg config.Log) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	isErrorLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel && lvl >= level
	})
	isInfoLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl < zapcore.ErrorLevel && lvl >= level
	})

	encoder := newEncoder()
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), isErrorLevel),
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), isInfoLevel),
	}
	if cfg.File != "" {
		cores = append(cores, fileCore(encoder, cfg, level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// NewFile returns a logger that writes only to the rotated file at cfg.File,
// for interactive programs that own the terminal.
func NewFile(cfg config.Log) (*zap.Logger, error) {
	if cfg.File == "" {
		return nil, ErrNoLogFile
	}
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return zap.New(fileCore(newEncoder(), cfg, level), zap.AddCaller()), nil
}

func parseLevel(name string) (zapcore.Level, error) {
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	level, err := zapcore.ParseLevel(name)
	if err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

func newEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

func fileCore(encoder zapcore.Encoder, cfg config.Log, level zapcore.LevelEnabler) zapcore.Core {
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
	return zapcore.NewCore(encoder, zapcore.AddSync(rotator), level)
}
