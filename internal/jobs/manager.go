// Package jobs tracks background work started from the interactive front-end.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

type Job struct {
	ID          string
	Type        string
	Description string
	StartTime   time.Time

	status     JobStatus
	progress   float64
	endTime    *time.Time
	err        error
	result     any
	logs       []string
	cancelFunc func()
	done       chan struct{}
	mu         sync.RWMutex
}

type Manager struct {
	jobs map[string]*Job
	seq  int
	mu   sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		jobs: make(map[string]*Job),
	}
}

func (m *Manager) CreateJob(jobType, description string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	jobID := fmt.Sprintf("job_%s_%d", jobType, m.seq)
	job := &Job{
		ID:          jobID,
		Type:        jobType,
		Description: description,
		StartTime:   time.Now(),
		status:      JobPending,
		done:        make(chan struct{}),
	}

	m.jobs[jobID] = job
	return job
}

// Start creates a job and runs fn on its own goroutine. The job ends as
// completed, failed or cancelled depending on what fn returns.
func (m *Manager) Start(jobType, description string, fn func(ctx context.Context, job *Job) (any, error)) *Job {
	job := m.CreateJob(jobType, description)

	ctx, cancel := context.WithCancel(context.Background())
	job.SetCancelFunc(cancel)
	job.SetStatus(JobRunning)

	go func() {
		defer cancel()
		defer close(job.done)

		result, err := fn(ctx, job)
		switch {
		case errors.Is(err, context.Canceled):
			job.AddLog("cancelled")
			job.SetStatus(JobCancelled)
		case err != nil:
			job.AddLog("failed: " + err.Error())
			job.SetError(err)
		default:
			job.SetResult(result)
			job.SetProgress(1)
			job.SetStatus(JobCompleted)
		}
	}()

	return job
}

func (m *Manager) GetJob(jobID string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[jobID]
	return job, exists
}

// ListJobs returns every job, oldest first.
func (m *Manager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].StartTime.Equal(jobs[j].StartTime) {
			return jobs[i].StartTime.Before(jobs[j].StartTime)
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs
}

func (m *Manager) CancelJob(jobID string) error {
	job, exists := m.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job %s not found", jobID)
	}

	job.mu.Lock()
	defer job.mu.Unlock()

	if job.status != JobRunning {
		return fmt.Errorf("job %s is not running", jobID)
	}
	if job.cancelFunc != nil {
		job.cancelFunc()
	}
	return nil
}

func (j *Job) SetStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
	if status == JobCompleted || status == JobFailed || status == JobCancelled {
		now := time.Now()
		j.endTime = &now
	}
}

func (j *Job) SetProgress(progress float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress = progress
}

func (j *Job) AddLog(message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	timestamp := time.Now().Format("15:04:05")
	j.logs = append(j.logs, fmt.Sprintf("[%s] %s", timestamp, message))
}

func (j *Job) SetError(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.err = err
	j.status = JobFailed
	now := time.Now()
	j.endTime = &now
}

func (j *Job) SetResult(result any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = result
}

func (j *Job) SetCancelFunc(cancelFunc func()) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancelFunc = cancelFunc
}

func (j *Job) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

func (j *Job) GetProgress() float64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.progress
}

func (j *Job) GetError() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

func (j *Job) GetResult() any {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.result
}

// GetEndTime returns nil while the job is still running.
func (j *Job) GetEndTime() *time.Time {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.endTime
}

func (j *Job) GetLogs() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	logs := make([]string, len(j.logs))
	copy(logs, j.logs)
	return logs
}

// Done is closed once a job started with Start has finished.
func (j *Job) Done() <-chan struct{} {
	return j.done
}
