// Package scheduler runs periodic jobs (one monitoring pass per currency,
// sweep checks, cold wallet reports) on cron specs. A job never overlaps
// itself: a tick that fires while the previous run is still going is skipped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrJobRunning is returned by Trigger when the job is already running.
var ErrJobRunning = errors.New("job already running")

// Job is a named periodic task.
type Job struct {
	Name string
	// Spec is a cron expression with a seconds field, or a descriptor such as "@every 15s".
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

type entry struct {
	job     Job
	id      cron.EntryID
	running atomic.Bool

	mu      sync.Mutex
	runs    int
	lastRun time.Time
	lastErr error
}

// JobStatus is a snapshot of one job.
type JobStatus struct {
	Name      string
	Spec      string
	Running   bool
	Runs      int
	LastRun   time.Time
	LastError string
	Next      time.Time
}

// Scheduler wraps robfig/cron with per-job timeouts and status.
type Scheduler struct {
	cron   *cron.Cron
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	jobs map[string]*entry
}

// New creates a stopped scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	cl := cronLogger{log: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*entry),
	}
}

// Register adds a job. It fails on duplicate names or invalid specs.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run function")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	e := &entry{job: job}
	id, err := s.cron.AddFunc(job.Spec, func() { s.execute(e) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", job.Spec, job.Name, err)
	}
	e.id = id
	s.jobs[job.Name] = e

	s.log.Info("Job registered", "job", job.Name, "spec", job.Spec)
	return nil
}

// Start begins firing jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Scheduler started", "jobs", len(s.jobs))
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.log.Info("Scheduler stopped")
}

// Trigger runs a job immediately in the caller's goroutine.
func (s *Scheduler) Trigger(name string) error {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %s not found", name)
	}
	if !s.execute(e) {
		return ErrJobRunning
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Status returns every job sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, e := range s.jobs {
		e.mu.Lock()
		st := JobStatus{
			Name:    e.job.Name,
			Spec:    e.job.Spec,
			Running: e.running.Load(),
			Runs:    e.runs,
			LastRun: e.lastRun,
			Next:    s.cron.Entry(e.id).Next,
		}
		if e.lastErr != nil {
			st.LastError = e.lastErr.Error()
		}
		e.mu.Unlock()
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// execute runs the job once. It reports false when the job was already running.
func (s *Scheduler) execute(e *entry) bool {
	if !e.running.CompareAndSwap(false, true) {
		s.log.Debug("Job still running, skipping", "job", e.job.Name)
		return false
	}
	defer e.running.Store(false)

	if s.ctx.Err() != nil {
		return true
	}
	s.wg.Add(1)
	defer s.wg.Done()

	ctx := s.ctx
	if e.job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.job.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := e.job.Run(ctx)

	e.mu.Lock()
	e.runs++
	e.lastRun = start
	e.lastErr = err
	e.mu.Unlock()

	if err != nil {
		s.log.Error("Job failed", "job", e.job.Name, "duration", time.Since(start), "error", err)
	} else {
		s.log.Debug("Job completed", "job", e.job.Name, "duration", time.Since(start))
	}
	return true
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
