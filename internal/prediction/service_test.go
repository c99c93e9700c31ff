package prediction

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkquality/internal/config"
	"milkquality/internal/datatest"
	"milkquality/internal/experiment"
	"milkquality/internal/models"
	"milkquality/internal/persistence"
	"milkquality/internal/preprocessing"
)

func trainArtifacts(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DatasetPath = datatest.WriteCSV(t, dir, datatest.Samples(300, 21))
	cfg.ModelPath = filepath.Join(dir, "models", "model.gob")
	cfg.LabelEncoderPath = filepath.Join(dir, "models", "label_encoder.gob")
	cfg.Training.NEstimators = []int{10}
	cfg.Training.MaxDepth = []int{5}

	_, err := experiment.NewPipeline(cfg, nil, nil).Run(context.Background())
	require.NoError(t, err)
	return cfg
}

func TestPredictReturnsTrainedLabel(t *testing.T) {
	cfg := trainArtifacts(t)

	svc, err := Load(cfg.ModelPath, cfg.LabelEncoderPath, nil)
	require.NoError(t, err)
	assert.True(t, svc.HasEncoder())

	label, err := svc.Predict(Features{6.5, 40.0, 1, 1, 1, 0, 4})
	require.NoError(t, err)
	assert.Contains(t, []string{"high", "low", "medium"}, label)
}

func TestPredictMatchesRule(t *testing.T) {
	cfg := trainArtifacts(t)
	svc, err := Load(cfg.ModelPath, cfg.LabelEncoderPath, nil)
	require.NoError(t, err)

	label, err := svc.Predict(Features{9.0, 70, 0, 0, 0, 1, 255})
	require.NoError(t, err)
	assert.Equal(t, "low", label)
}

func TestPredictConcurrently(t *testing.T) {
	cfg := trainArtifacts(t)
	svc, err := Load(cfg.ModelPath, cfg.LabelEncoderPath, nil)
	require.NoError(t, err)

	want, err := svc.Predict(Features{6.6, 37, 1, 1, 1, 0, 255})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := svc.Predict(Features{6.6, 37, 1, 1, 1, 0, 255})
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestLoadWithoutEncoderReturnsClassIDs(t *testing.T) {
	X := [][]decimal.Decimal{
		{decimal.NewFromInt(1)}, {decimal.NewFromInt(2)}, {decimal.NewFromInt(8)}, {decimal.NewFromInt(9)},
	}
	tree := models.NewDecisionTree(2, 2)
	require.NoError(t, tree.Fit(X, []int{3, 3, 7, 7}))

	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.gob")
	require.NoError(t, persistence.SaveModel(modelPath, persistence.NewModelBundle(tree)))

	svc, err := Load(modelPath, filepath.Join(dir, "label_encoder.gob"), nil)
	require.NoError(t, err)
	assert.False(t, svc.HasEncoder())

	// the tree only looks at the first feature
	label, err := svc.Predict(Features{9, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, "7", label)
}

func TestLoadMissingModel(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "model.gob"), filepath.Join(dir, "label_encoder.gob"), nil)

	var notFound *persistence.ArtifactNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestPredictUnknownCode(t *testing.T) {
	X := [][]decimal.Decimal{{decimal.NewFromInt(1)}, {decimal.NewFromInt(9)}}
	tree := models.NewDecisionTree(2, 2)
	require.NoError(t, tree.Fit(X, []int{0, 5}))

	encoder := preprocessing.NewLabelEncoder()
	encoder.Fit([]string{"high", "low"})

	svc := New(persistence.NewModelBundle(tree), encoder)
	_, err := svc.Predict(Features{9, 0, 0, 0, 0, 0, 0})

	var unknown *preprocessing.UnknownLabelError
	assert.True(t, errors.As(err, &unknown))
}
