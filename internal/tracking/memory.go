package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRecorder keeps runs in process memory.
type MemoryRecorder struct {
	mu          sync.RWMutex
	experiments map[string]bool
	runs        map[string]*Run
	seq         int64
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		experiments: make(map[string]bool),
		runs:        make(map[string]*Run),
	}
}

func (m *MemoryRecorder) StartExperiment(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.experiments[name] = true
	return nil
}

func (m *MemoryRecorder) StartRun(_ context.Context, spec RunSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.experiments[spec.Experiment] {
		return "", ErrExperimentNotFound
	}

	m.seq++
	run := newRun(spec, uuid.NewString(), m.seq, time.Now())
	m.runs[run.ID] = &run
	return run.ID, nil
}

func (m *MemoryRecorder) LogParams(_ context.Context, runID string, params map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	for k, v := range params {
		run.Params[k] = v
	}
	return nil
}

func (m *MemoryRecorder) LogMetrics(_ context.Context, runID string, metrics map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	for k, v := range metrics {
		run.Metrics[k] = v
	}
	return nil
}

func (m *MemoryRecorder) LogArtifact(_ context.Context, runID, name, uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	run.Artifacts[name] = uri
	return nil
}

func (m *MemoryRecorder) EndRun(_ context.Context, runID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	run.Status = status
	run.EndedAt = time.Now()
	return nil
}

func (m *MemoryRecorder) ListRuns(_ context.Context, experiment string) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.experiments[experiment] {
		return nil, ErrExperimentNotFound
	}

	var runs []Run
	for _, run := range m.runs {
		if run.Experiment != experiment {
			continue
		}
		runs = append(runs, copyRun(*run))
	}
	sortRuns(runs)
	return runs, nil
}

func (m *MemoryRecorder) Close() error { return nil }

func copyRun(run Run) Run {
	params := make(map[string]string, len(run.Params))
	for k, v := range run.Params {
		params[k] = v
	}
	metrics := make(map[string]float64, len(run.Metrics))
	for k, v := range run.Metrics {
		metrics[k] = v
	}
	artifacts := make(map[string]string, len(run.Artifacts))
	for k, v := range run.Artifacts {
		artifacts[k] = v
	}
	run.Params, run.Metrics, run.Artifacts = params, metrics, artifacts
	return run
}
