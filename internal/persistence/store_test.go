package persistence

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkquality/internal/models"
	"milkquality/internal/preprocessing"
)

func trainedForest(t *testing.T) (*models.RandomForest, [][]decimal.Decimal) {
	t.Helper()
	X := make([][]decimal.Decimal, 0, 30)
	y := make([]int, 0, 30)
	for i := 0; i < 30; i++ {
		X = append(X, []decimal.Decimal{decimal.NewFromInt(int64(i)), decimal.NewFromFloat(float64(i%7) / 2)})
		y = append(y, i/10)
	}

	forest := models.NewRandomForest(10, 3, 2)
	forest.Seed = 42
	require.NoError(t, forest.Fit(X, y))
	return forest, X
}

func TestModelRoundTripPredictsIdentically(t *testing.T) {
	forest, X := trainedForest(t)
	path := filepath.Join(t.TempDir(), "models", "model.gob")

	bundle := NewModelBundle(forest)
	bundle.Metadata.NEstimators = 10
	bundle.Metadata.MaxDepth = 3
	bundle.Metadata.Accuracy = 0.9
	require.NoError(t, SaveModel(path, bundle))

	loaded, err := LoadModel(path)
	require.NoError(t, err)

	assert.Equal(t, forest.Predict(X), loaded.Model.Predict(X))
	assert.Equal(t, forest.GetClasses(), loaded.Model.GetClasses())
	assert.Equal(t, "RandomForest", loaded.Metadata.ModelName)
	assert.Equal(t, 10, loaded.Metadata.NEstimators)
	assert.Equal(t, 0.9, loaded.Metadata.Accuracy)
}

func TestSaveModelOverwrites(t *testing.T) {
	forest, _ := trainedForest(t)
	path := filepath.Join(t.TempDir(), "model.gob")

	first := NewModelBundle(forest)
	first.Metadata.Accuracy = 0.5
	require.NoError(t, SaveModel(path, first))

	second := NewModelBundle(forest)
	second.Metadata.Accuracy = 0.75
	require.NoError(t, SaveModel(path, second))

	loaded, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, 0.75, loaded.Metadata.Accuracy)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestLabelEncoderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "label_encoder.gob")

	encoder := preprocessing.NewLabelEncoder()
	encoder.Fit([]string{"low", "high", "medium"})
	require.NoError(t, SaveLabelEncoder(path, encoder))

	loaded, err := LoadLabelEncoder(path)
	require.NoError(t, err)

	labels, err := loaded.InverseTransform([]int{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "low", "medium"}, labels)
}

func TestSaveLabelEncoderRejectsUnfitted(t *testing.T) {
	err := SaveLabelEncoder(filepath.Join(t.TempDir(), "enc.gob"), preprocessing.NewLabelEncoder())
	assert.Error(t, err)
}

func TestLoadMissingArtifact(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadModel(filepath.Join(dir, "model.gob"))
	var notFound *ArtifactNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, filepath.Join(dir, "model.gob"), notFound.Path)

	_, err = LoadLabelEncoder(filepath.Join(dir, "label_encoder.gob"))
	assert.True(t, errors.As(err, &notFound))
}

func TestLoadCorruptArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, os.WriteFile(path, []byte("not a gob"), 0644))

	_, err := LoadModel(path)
	require.Error(t, err)
	var notFound *ArtifactNotFoundError
	assert.False(t, errors.As(err, &notFound))
}

func fittedEncoder() *preprocessing.LabelEncoder {
	encoder := preprocessing.NewLabelEncoder()
	encoder.Fit([]string{"low", "high", "medium"})
	return encoder
}

func TestBatchReplacesAndRemovesTogether(t *testing.T) {
	forest, _ := trainedForest(t)
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.gob")
	encoderPath := filepath.Join(dir, "label_encoder.gob")
	require.NoError(t, os.WriteFile(modelPath, []byte("old model"), 0644))
	require.NoError(t, os.WriteFile(encoderPath, []byte("stale encoder"), 0644))

	var batch Batch
	require.NoError(t, batch.StageModel(modelPath, NewModelBundle(forest)))
	batch.StageRemoval(encoderPath)
	require.NoError(t, batch.Commit())

	_, err := LoadModel(modelPath)
	require.NoError(t, err)
	_, err = os.Stat(encoderPath)
	assert.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp and backup files must not be left behind")
}

func TestBatchCommitFailureLeavesArtifactsUntouched(t *testing.T) {
	forest, _ := trainedForest(t)
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.gob")
	encoderPath := filepath.Join(dir, "label_encoder.gob")
	require.NoError(t, os.WriteFile(modelPath, []byte("old model"), 0644))
	// A non-empty directory cannot be replaced by a file.
	require.NoError(t, os.MkdirAll(filepath.Join(encoderPath, "keep"), 0755))

	var batch Batch
	require.NoError(t, batch.StageModel(modelPath, NewModelBundle(forest)))
	require.NoError(t, batch.StageLabelEncoder(encoderPath, fittedEncoder()))
	err := batch.Commit()
	require.Error(t, err)
	assert.Contains(t, err.Error(), encoderPath)

	content, err := os.ReadFile(modelPath)
	require.NoError(t, err)
	assert.Equal(t, "old model", string(content))

	info, err := os.Stat(encoderPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temp and backup files must not be left behind")
}

func TestBatchStageFailureWritesNothing(t *testing.T) {
	forest, _ := trainedForest(t)
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.gob")

	var batch Batch
	require.NoError(t, batch.StageModel(modelPath, NewModelBundle(forest)))
	require.Error(t, batch.StageLabelEncoder(filepath.Join(dir, "label_encoder.gob"), preprocessing.NewLabelEncoder()))
	batch.Discard()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteSummary(t *testing.T) {
	forest, _ := trainedForest(t)
	bundle := NewModelBundle(forest)
	bundle.Metadata.Classes = []string{"high", "low", "medium"}

	var buf bytes.Buffer
	require.NoError(t, bundle.WriteSummary(&buf))
	assert.Contains(t, buf.String(), "Model: RandomForest")
	assert.Contains(t, buf.String(), "Classes: [high low medium]")
}
