// Package registry tracks pipeline jobs and runs them on a bounded worker pool.
//
// Each job has exactly one writer at a time: the registry while it is PENDING and
// the worker that picked it up afterwards. Readers always get a copy of the last
// committed state.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/pipeline"
)

// ErrClosed is returned by Submit after Shutdown has started.
var ErrClosed = errors.New("registry is shutting down")

// Processor runs one document through the pipeline. It must not panic and must
// always return a result.
type Processor interface {
	Process(ctx context.Context, path, filename string) pipeline.Result
}

// Job is the externally visible status of one submitted document.
type Job struct {
	ID        string              `json:"job_id"`
	Filename  string              `json:"filename"`
	Status    constants.JobStatus `json:"status"`
	Stage     constants.Stage     `json:"stage,omitempty"`
	Error     string              `json:"error,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	Result    *pipeline.Result    `json:"-"`
}

type entry struct {
	job     Job
	path    string
	owned   bool
	deleted bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type Registry struct {
	proc    Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration
	now     func() time.Time

	ch   chan *entry
	wg   sync.WaitGroup
	once sync.Once

	// qmu guards closed and sends on ch; mu guards jobs.
	qmu    sync.Mutex
	closed bool

	mu   sync.RWMutex
	jobs map[string]*entry

	base       context.Context
	cancelBase context.CancelFunc
}

type Option func(*Registry)

func WithWorkers(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.ch = make(chan *entry, n)
		}
	}
}

// WithJobTimeout bounds a single Process call.
func WithJobTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func New(proc Processor, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	r := &Registry{
		proc:       proc,
		logger:     logger,
		workers:    4,
		timeout:    3 * time.Minute,
		now:        time.Now,
		ch:         make(chan *entry, 256),
		jobs:       make(map[string]*entry),
		base:       base,
		cancelBase: cancel,
	}
	for _, o := range opts {
		o(r)
	}
	r.start()
	return r
}

func (r *Registry) start() {
	r.once.Do(func() {
		for i := 0; i < r.workers; i++ {
			r.wg.Add(1)
			go func(workerID int) {
				defer r.wg.Done()
				r.logger.Debug("registry.worker.start", "worker_id", workerID)
				for e := range r.ch {
					r.run(workerID, e)
				}
				r.logger.Debug("registry.worker.stop", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Submit registers a PENDING job for the document at path. When owned is true the
// file is removed once the job is finished or deleted. Submit blocks while the
// queue is full, until ctx is done.
func (r *Registry) Submit(ctx context.Context, path, filename string, owned bool) (Job, error) {
	now := r.now()
	e := &entry{
		job: Job{
			ID:        uuid.NewString(),
			Filename:  filename,
			Status:    constants.JobStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
		path:  path,
		owned: owned,
		done:  make(chan struct{}),
	}

	r.qmu.Lock()
	defer r.qmu.Unlock()
	if r.closed {
		return Job{}, ErrClosed
	}

	r.mu.Lock()
	r.jobs[e.job.ID] = e
	r.mu.Unlock()

	select {
	case r.ch <- e:
	default:
		r.logger.Warn("registry.queue.full", "job_id", e.job.ID, "file", filename)
		select {
		case r.ch <- e:
		case <-ctx.Done():
			r.mu.Lock()
			delete(r.jobs, e.job.ID)
			r.mu.Unlock()
			return Job{}, ctx.Err()
		}
	}
	r.logger.Info("registry.job.submitted", "job_id", e.job.ID, "file", filename)
	return e.job, nil
}

func (r *Registry) run(workerID int, e *entry) {
	defer close(e.done)
	defer r.cleanup(e)

	r.mu.Lock()
	if e.deleted {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithTimeout(r.base, r.timeout)
	e.cancel = cancel
	e.job.Status = constants.JobStatusProcessing
	e.job.UpdatedAt = r.now()
	id, filename := e.job.ID, e.job.Filename
	r.mu.Unlock()
	defer cancel()

	start := time.Now()
	res := r.proc.Process(common.WithJobID(ctx, id), e.path, filename)

	r.mu.Lock()
	e.cancel = nil
	if res.Succeeded() {
		e.job.Status = constants.JobStatusCompleted
	} else {
		e.job.Status = constants.JobStatusFailed
		if res.Failure != nil {
			e.job.Error = res.Failure.Message
		}
	}
	e.job.Stage = res.Stage
	e.job.Result = &res
	e.job.UpdatedAt = r.now()
	deleted := e.deleted
	r.mu.Unlock()

	r.logger.Info("registry.job.done",
		"worker_id", workerID,
		"job_id", id,
		"file", filename,
		"status", res.Status,
		"deleted", deleted,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

func (r *Registry) cleanup(e *entry) {
	if !e.owned || e.path == "" {
		return
	}
	if err := os.Remove(e.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("registry.cleanup.failed", "job_id", e.job.ID, "path", e.path, "error", err)
	}
}

// Get returns a copy of the job's last committed state.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return e.job, true
}

// List returns all known jobs, newest first.
func (r *Registry) List() []Job {
	r.mu.RLock()
	out := make([]Job, 0, len(r.jobs))
	for _, e := range r.jobs {
		out = append(out, e.job)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Counts returns the number of jobs per status.
func (r *Registry) Counts() map[constants.JobStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[constants.JobStatus]int, 4)
	for _, e := range r.jobs {
		out[e.job.Status]++
	}
	return out
}

// Delete forgets a job. A pending job is never started and a running one is cancelled.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	e, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return common.ErrNotFound
	}
	delete(r.jobs, id)
	e.deleted = true
	cancel := e.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.logger.Info("registry.job.deleted", "job_id", id, "running", cancel != nil)
	return nil
}

// Wait blocks until the job finishes or ctx is done.
func (r *Registry) Wait(ctx context.Context, id string) (Job, error) {
	r.mu.RLock()
	e, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return Job{}, common.ErrNotFound
	}
	select {
	case <-e.done:
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return e.job, nil
}

// Shutdown stops accepting jobs and waits for queued ones to drain. When ctx ends
// first, running jobs are cancelled and ctx.Err() is returned.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.qmu.Lock()
	if r.closed {
		r.qmu.Unlock()
		return nil
	}
	r.closed = true
	close(r.ch)
	r.qmu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); r.wg.Wait() }()

	select {
	case <-done:
		r.cancelBase()
		r.logger.Info("registry.shutdown.ok")
		return nil
	case <-ctx.Done():
		r.cancelBase()
		r.logger.Warn("registry.shutdown.interrupted", "error", ctx.Err())
		return ctx.Err()
	}
}
