// Package queue runs builds through a bounded worker pool. Jobs are processed
// at most once: the renderer's exit status is a final verdict and a failed
// build is never retried automatically.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docpress/internal/build"
	"git.home.luguber.info/inful/docpress/internal/metrics"
)

// JobStatus represents the current status of a queued build.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Job is one queued build request with its processing state.
type Job struct {
	ID          string        `json:"id"`
	Request     build.Request `json:"request"`
	Status      JobStatus     `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	ExitCode    int           `json:"exit_code"`
	Error       string        `json:"error,omitempty"`

	cancel context.CancelFunc
}

// NewJob wraps a build request in a job with a fresh id.
func NewJob(req build.Request) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Request:   req,
		CreatedAt: time.Now(),
		ExitCode:  -1,
	}
}

// Queue manages queued builds. Construct with New.
type Queue struct {
	jobs        chan *Job
	workers     int
	maxSize     int
	mu          sync.RWMutex
	active      map[string]*Job
	history     []*Job
	historySize int
	stopChan    chan struct{}
	wg          sync.WaitGroup
	service     build.Service
	recorder    metrics.Recorder
}

// New creates a queue backed by the given build service.
func New(maxSize, workers int, service build.Service) *Queue {
	if maxSize <= 0 {
		maxSize = 100
	}
	if workers <= 0 {
		workers = 2
	}
	if service == nil {
		panic("queue.New: build service is required")
	}
	return &Queue{
		jobs:        make(chan *Job, maxSize),
		workers:     workers,
		maxSize:     maxSize,
		active:      make(map[string]*Job),
		history:     make([]*Job, 0),
		historySize: 50,
		stopChan:    make(chan struct{}),
		service:     service,
		recorder:    metrics.NoopRecorder{},
	}
}

// SetRecorder injects a metrics recorder for queue length gauges (optional).
func (q *Queue) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	q.recorder = r
}

// Start begins processing jobs with the configured number of workers.
func (q *Queue) Start(ctx context.Context) {
	slog.Info("Starting build queue", "workers", q.workers, "max_size", q.maxSize)
	for i := range q.workers {
		q.wg.Add(1)
		go q.worker(ctx, fmt.Sprintf("worker-%d", i))
	}
}

// Stop cancels active jobs and waits for the workers to drain.
func (q *Queue) Stop(_ context.Context) {
	close(q.stopChan)

	q.mu.Lock()
	for _, job := range q.active {
		if job.cancel != nil {
			job.cancel()
		}
	}
	q.mu.Unlock()

	q.wg.Wait()
}

// Length returns the number of jobs waiting to be picked up.
func (q *Queue) Length() int {
	return len(q.jobs)
}

// Enqueue adds a job; it fails immediately when the queue is full.
func (q *Queue) Enqueue(job *Job) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}
	if job.ID == "" {
		return errors.New("job ID is required")
	}

	job.Status = StatusQueued

	select {
	case q.jobs <- job:
		q.recorder.SetQueueLength(len(q.jobs))
		return nil
	default:
		return errors.New("build queue is full")
	}
}

// ActiveJobs returns a copy of the currently running jobs.
func (q *Queue) ActiveJobs() []*Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	active := make([]*Job, 0, len(q.active))
	for _, job := range q.active {
		cp := *job
		active = append(active, &cp)
	}
	return active
}

// JobSnapshot returns a copy of a job (active first, then history).
func (q *Queue) JobSnapshot(id string) (*Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if j, ok := q.active[id]; ok {
		cp := *j
		return &cp, true
	}
	for _, j := range q.history {
		if j.ID == id {
			cp := *j
			return &cp, true
		}
	}
	return nil, false
}

func (q *Queue) worker(ctx context.Context, workerID string) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopChan:
			return
		case job := <-q.jobs:
			if job != nil {
				q.recorder.SetQueueLength(len(q.jobs))
				q.processJob(ctx, job, workerID)
			}
		}
	}
}

func (q *Queue) processJob(ctx context.Context, job *Job, workerID string) {
	jobCtx, cancel := context.WithCancel(ctx)
	job.cancel = cancel
	defer cancel()

	startTime := time.Now()
	q.mu.Lock()
	job.StartedAt = &startTime
	job.Status = StatusRunning
	q.active[job.ID] = job
	q.mu.Unlock()

	slog.Info("Processing build job",
		"job_id", job.ID,
		"instance_id", job.Request.InstanceID,
		"worker", workerID,
	)

	res, err := q.service.Build(jobCtx, job.Request)

	q.markJobCompleted(job, res, err)
}

func (q *Queue) markJobCompleted(job *Job, res *build.Result, err error) {
	endTime := time.Now()
	q.mu.Lock()
	defer q.mu.Unlock()

	job.CompletedAt = &endTime
	if job.StartedAt != nil {
		job.Duration = endTime.Sub(*job.StartedAt)
	}
	if res != nil && res.Report != nil {
		job.ExitCode = res.Report.ExitCode
	}
	delete(q.active, job.ID)
	q.addToHistory(job)
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		return
	}
	job.Status = StatusCompleted
}

func (q *Queue) addToHistory(job *Job) {
	q.history = append(q.history, job)
	if len(q.history) > q.historySize {
		copy(q.history, q.history[len(q.history)-q.historySize:])
		q.history = q.history[:q.historySize]
	}
}
