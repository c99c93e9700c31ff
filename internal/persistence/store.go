package persistence

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"milkquality/internal/models"
	"milkquality/internal/preprocessing"
)

func init() {
	gob.Register(&models.DecisionTree{})
	gob.Register(&models.RandomForest{})
}

// ArtifactNotFoundError is returned when a load targets a path that does not
// exist.
type ArtifactNotFoundError struct {
	Path string
}

func (e *ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("artifact not found: %s", e.Path)
}

// SaveModel overwrites the model artifact at path.
func SaveModel(path string, bundle *ModelBundle) error {
	var batch Batch
	if err := batch.StageModel(path, bundle); err != nil {
		return err
	}
	return batch.Commit()
}

func LoadModel(path string) (*ModelBundle, error) {
	var bundle ModelBundle
	if err := readGob(path, &bundle); err != nil {
		return nil, err
	}
	if bundle.Model == nil {
		return nil, fmt.Errorf("load model %s: bundle has no model", path)
	}
	return &bundle, nil
}

// SaveLabelEncoder overwrites the label encoder artifact at path.
func SaveLabelEncoder(path string, encoder *preprocessing.LabelEncoder) error {
	var batch Batch
	if err := batch.StageLabelEncoder(path, encoder); err != nil {
		return err
	}
	return batch.Commit()
}

func LoadLabelEncoder(path string) (*preprocessing.LabelEncoder, error) {
	var encoder preprocessing.LabelEncoder
	if err := readGob(path, &encoder); err != nil {
		return nil, err
	}
	return &encoder, nil
}

// Batch replaces several artifacts together. Staging encodes each artifact
// into a temp file next to its path; Commit swaps them all into place or, if
// any swap fails, restores every path it already touched. Readers never
// observe a partial artifact.
type Batch struct {
	ops []batchOp
}

type batchOp struct {
	path string
	// tmp is the staged content; empty for a removal.
	tmp    string
	backup string
	done   bool
}

// StageModel queues bundle to replace the model artifact at path.
func (b *Batch) StageModel(path string, bundle *ModelBundle) error {
	if bundle == nil || bundle.Model == nil {
		return fmt.Errorf("save model: empty bundle")
	}
	return b.stage(path, bundle)
}

// StageLabelEncoder queues encoder to replace the artifact at path.
func (b *Batch) StageLabelEncoder(path string, encoder *preprocessing.LabelEncoder) error {
	if encoder == nil || !encoder.IsFitted {
		return fmt.Errorf("save label encoder: encoder not fitted")
	}
	return b.stage(path, encoder)
}

// StageRemoval queues path for deletion; a missing file is not an error.
func (b *Batch) StageRemoval(path string) {
	b.ops = append(b.ops, batchOp{path: path})
}

func (b *Batch) stage(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if err := gob.NewEncoder(tmp).Encode(v); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	b.ops = append(b.ops, batchOp{path: path, tmp: tmp.Name()})
	return nil
}

// Commit moves every staged artifact into place. On error no artifact path
// differs from its state before Commit.
func (b *Batch) Commit() error {
	defer b.Discard()

	for i := range b.ops {
		if err := b.ops[i].apply(); err != nil {
			for j := i - 1; j >= 0; j-- {
				b.ops[j].revert()
			}
			return err
		}
	}
	for _, op := range b.ops {
		if op.backup != "" {
			os.Remove(op.backup)
		}
	}
	return nil
}

// Discard deletes staged temp files that were not committed.
func (b *Batch) Discard() {
	for _, op := range b.ops {
		if op.tmp != "" && !op.done {
			os.Remove(op.tmp)
		}
	}
	b.ops = nil
}

func (op *batchOp) apply() error {
	info, err := os.Lstat(op.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("failed to stat %s: %w", op.path, err)
	case info.IsDir():
		return fmt.Errorf("failed to replace %s: is a directory", op.path)
	default:
		backup, err := reserveBackup(op.path)
		if err != nil {
			return err
		}
		if err := os.Rename(op.path, backup); err != nil {
			os.Remove(backup)
			return fmt.Errorf("failed to back up %s: %w", op.path, err)
		}
		op.backup = backup
	}

	if op.tmp != "" {
		if err := os.Rename(op.tmp, op.path); err != nil {
			op.restore()
			return fmt.Errorf("failed to replace %s: %w", op.path, err)
		}
	}
	op.done = true
	return nil
}

func reserveBackup(path string) (string, error) {
	file, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".bak-*")
	if err != nil {
		return "", fmt.Errorf("failed to back up %s: %w", path, err)
	}
	file.Close()
	return file.Name(), nil
}

func (op *batchOp) revert() {
	if op.tmp != "" {
		os.Remove(op.path)
	}
	op.restore()
}

func (op *batchOp) restore() {
	if op.backup != "" {
		os.Rename(op.backup, op.path)
		op.backup = ""
	}
}

func readGob(path string, v any) error {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &ArtifactNotFoundError{Path: path}
	}
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
