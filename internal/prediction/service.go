// Package prediction serves single-sample predictions from the persisted
// artifacts.
package prediction

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"milkquality/internal/data"
	"milkquality/internal/persistence"
	"milkquality/internal/preprocessing"
)

// Features holds one sample in pH, Temperature, Taste, Odor, Fat, Turbidity,
// Color order.
type Features [7]float64

// Service is read-only after Load and safe for concurrent use.
type Service struct {
	bundle  *persistence.ModelBundle
	encoder *preprocessing.LabelEncoder
}

// Load reads the model artifact and, if present, the label encoder. A missing
// model is an error; a missing encoder means the model predicts raw integer
// classes.
func Load(modelPath, encoderPath string, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	bundle, err := persistence.LoadModel(modelPath)
	if err != nil {
		return nil, err
	}

	encoder, err := persistence.LoadLabelEncoder(encoderPath)
	var notFound *persistence.ArtifactNotFoundError
	switch {
	case errors.As(err, &notFound):
		logger.Info("no label encoder found, predictions are returned as class ids", zap.String("path", encoderPath))
		encoder = nil
	case err != nil:
		return nil, err
	}

	logger.Info("model loaded",
		zap.String("path", modelPath),
		zap.String("model", bundle.Metadata.ModelName),
		zap.Int("n_estimators", bundle.Metadata.NEstimators),
		zap.Int("max_depth", bundle.Metadata.MaxDepth),
		zap.Float64("accuracy", bundle.Metadata.Accuracy),
	)

	return New(bundle, encoder), nil
}

func New(bundle *persistence.ModelBundle, encoder *preprocessing.LabelEncoder) *Service {
	return &Service{bundle: bundle, encoder: encoder}
}

// Predict classifies one sample and returns its label.
func (s *Service) Predict(features Features) (string, error) {
	row := make([]decimal.Decimal, len(features))
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("invalid %s value", data.FeatureNames[i])
		}
		row[i] = decimal.NewFromFloat(v)
	}

	code := s.bundle.Model.Predict([][]decimal.Decimal{row})[0]

	if s.encoder == nil {
		return strconv.Itoa(code), nil
	}

	labels, err := s.encoder.InverseTransform([]int{code})
	if err != nil {
		return "", err
	}
	return labels[0], nil
}

// Metadata describes the loaded model.
func (s *Service) Metadata() persistence.BundleMetadata {
	return s.bundle.Metadata
}

// HasEncoder reports whether predictions are decoded to raw labels.
func (s *Service) HasEncoder() bool {
	return s.encoder != nil
}
