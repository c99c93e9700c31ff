package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesTrainingScript(t *testing.T) {
	config := Default()
	require.NoError(t, config.Validate())

	assert.Equal(t, "data/milknew.csv", config.DatasetPath)
	assert.Equal(t, 0.2, config.Training.TestSize)
	assert.Equal(t, int64(42), config.Training.Seed)
	assert.Equal(t, []int{50, 100, 200}, config.Training.NEstimators)
	assert.Equal(t, []int{3, 5, 10}, config.Training.MaxDepth)
	assert.Equal(t, "Milk_Quality_Classification", config.Tracking.Experiment)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
model_path: out/model.gob
training:
  max_depth: [2, 4]
  parallelism: 3
server:
  port: 9001
  timeout: 5s
tracking:
  backend: memory
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "out/model.gob", config.ModelPath)
	assert.Equal(t, []int{2, 4}, config.Training.MaxDepth)
	assert.Equal(t, []int{50, 100, 200}, config.Training.NEstimators)
	assert.Equal(t, 3, config.Training.Parallelism)
	assert.Equal(t, 9001, config.Server.Port)
	assert.Equal(t, 5*time.Second, config.Server.Timeout)
	assert.Equal(t, "memory", config.Tracking.Backend)
	assert.Equal(t, "data/milknew.csv", config.DatasetPath)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("training:\n  test_size: 1.5\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test_size")
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), config)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
