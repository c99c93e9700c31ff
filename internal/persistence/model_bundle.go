package persistence

import (
	"fmt"
	"io"
	"time"

	"milkquality/internal/models"
)

// ModelBundle is the model artifact: the fitted model plus what is needed
// to describe it without retraining.
type ModelBundle struct {
	Model     models.Model
	Metadata  BundleMetadata
	CreatedAt time.Time
}

type BundleMetadata struct {
	ModelName    string
	Dataset      string
	NEstimators  int
	MaxDepth     int
	Accuracy     float64
	F1Score      float64
	TrainingTime time.Duration
	Features     []string
	// Classes are the raw labels in code order. Empty for numeric targets.
	Classes    []string
	Parameters map[string]any
}

func NewModelBundle(model models.Model) *ModelBundle {
	return &ModelBundle{
		Model:     model,
		CreatedAt: time.Now().UTC(),
		Metadata: BundleMetadata{
			ModelName:  model.GetName(),
			Parameters: model.GetParams(),
		},
	}
}

// WriteSummary prints a human readable description of the bundle.
func (mb *ModelBundle) WriteSummary(w io.Writer) error {
	lines := []string{
		fmt.Sprintf("Model: %s", mb.Metadata.ModelName),
		fmt.Sprintf("Dataset: %s", mb.Metadata.Dataset),
		fmt.Sprintf("Created: %s", mb.CreatedAt.Format(time.RFC3339)),
		fmt.Sprintf("n_estimators: %d", mb.Metadata.NEstimators),
		fmt.Sprintf("max_depth: %d", mb.Metadata.MaxDepth),
		fmt.Sprintf("Accuracy: %.4f", mb.Metadata.Accuracy),
		fmt.Sprintf("F1 Score: %.4f", mb.Metadata.F1Score),
		fmt.Sprintf("Training Time: %v", mb.Metadata.TrainingTime),
	}
	if len(mb.Metadata.Classes) > 0 {
		lines = append(lines, fmt.Sprintf("Classes: %v", mb.Metadata.Classes))
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
