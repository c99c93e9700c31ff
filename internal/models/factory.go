package models

import (
	"fmt"
)

type ModelConfig struct {
	Algorithm  string
	MaxDepth   int
	MinSplit   int
	NTrees     int
	Seed       int64
	MaxWorkers int
}

func CreateModel(config ModelConfig) (Model, error) {
	switch config.Algorithm {
	case "tree":
		if config.MaxDepth <= 0 {
			config.MaxDepth = 10
		}
		if config.MinSplit <= 0 {
			config.MinSplit = 2
		}
		tree := NewDecisionTree(config.MaxDepth, config.MinSplit)
		tree.Seed = config.Seed
		return tree, nil

	case "forest":
		if config.NTrees <= 0 {
			config.NTrees = 100
		}
		if config.MaxDepth <= 0 {
			config.MaxDepth = 10
		}
		if config.MinSplit <= 0 {
			config.MinSplit = 2
		}
		forest := NewRandomForest(config.NTrees, config.MaxDepth, config.MinSplit)
		forest.Seed = config.Seed
		if config.MaxWorkers > 0 {
			forest.MaxWorkers = config.MaxWorkers
		}
		return forest, nil

	default:
		return nil, fmt.Errorf("unknown algorithm: %s", config.Algorithm)
	}
}

func DefaultConfig(algorithm string) ModelConfig {
	config := ModelConfig{Algorithm: algorithm, Seed: 42}

	switch algorithm {
	case "tree":
		config.MaxDepth = 10
		config.MinSplit = 2
	case "forest":
		config.NTrees = 100
		config.MaxDepth = 10
		config.MinSplit = 2
	}

	return config
}
