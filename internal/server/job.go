package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/goeda/internal/config"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether no further progress will happen.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Job is one execution of a run. Resuming a run starts a new execution
// under the same id.
type Job struct {
	ID          string         `json:"id"`
	State       JobState       `json:"state"`
	Config      *config.Config `json:"config"`
	AlgorithmID string         `json:"algorithmId"`
	Iteration   int            `json:"iteration"`
	Evaluations int64          `json:"evaluations"`
	Restarts    int            `json:"restarts"`
	Best        *float64       `json:"best,omitempty"`
	BestSummary string         `json:"bestSummary,omitempty"`
	StopReason  string         `json:"stopReason,omitempty"`
	Checkpoint  string         `json:"checkpoint,omitempty"`
	Resumed     bool           `json:"resumed"`
	StartTime   time.Time      `json:"startTime"`
	EndTime     *time.Time     `json:"endTime,omitempty"`
	Error       string         `json:"error,omitempty"`

	cancel context.CancelFunc
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a pending job for cfg. The job id is the run id; one
// is generated when cfg has none. A job that is still active cannot be
// replaced.
func (jm *JobManager) CreateJob(cfg *config.Config) (*Job, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	id := cfg.RunID
	if id == "" {
		id = uuid.New().String()
		cfg.RunID = id
	}
	if prev, ok := jm.jobs[id]; ok && !prev.State.Terminal() {
		return nil, fmt.Errorf("run %s is already %s", id, prev.State)
	}

	job := &Job{
		ID:          id,
		State:       StatePending,
		Config:      cfg,
		AlgorithmID: cfg.Algorithm,
		StartTime:   time.Now(),
	}
	jm.jobs[id] = job
	c := *job
	return &c, nil
}

// GetJob returns a copy of the job.
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	c := *job
	return &c, true
}

// ListJobs returns copies of all jobs, newest first.
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		c := *job
		jobs = append(jobs, &c)
	}
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].StartTime.Equal(jobs[k].StartTime) {
			return jobs[i].ID < jobs[k].ID
		}
		return jobs[i].StartTime.After(jobs[k].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			c := *job
			runningJobs = append(runningJobs, &c)
		}
	}
	return runningJobs
}

// CancelJob stops an active job. Its last checkpoint stays resumable.
func (jm *JobManager) CancelJob(id string) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	if job.State.Terminal() {
		return fmt.Errorf("job %s is already %s", id, job.State)
	}
	if job.cancel != nil {
		job.cancel()
	}
	return nil
}

// CancelAll stops every active job.
func (jm *JobManager) CancelAll() {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	for _, job := range jm.jobs {
		if !job.State.Terminal() && job.cancel != nil {
			job.cancel()
		}
	}
}
