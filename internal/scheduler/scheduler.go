// Package scheduler runs named recurring jobs on independent intervals with
// overlap prevention, manual triggering and per-job statistics.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Sentinel errors for scheduler operations.
var (
	// ErrDuplicateJob indicates a job id was registered twice. Registration
	// happens at process startup, so this aborts setup.
	ErrDuplicateJob = errors.New("job already registered")

	// ErrUnknownJob indicates an operation referenced an unregistered job id.
	ErrUnknownJob = errors.New("unknown job")
)

// Handler is one unit of recurring work. Implementations must not spawn
// detached work: the scheduler's duration measurement assumes the returned
// error represents the total run.
type Handler func(ctx context.Context) error

// EventKind classifies scheduler notifications.
type EventKind string

const (
	EventJobStarted   EventKind = "job_started"
	EventJobCompleted EventKind = "job_completed"
	EventJobFailed    EventKind = "job_failed"
)

// Event is a cross-cutting notification delivered to injected listeners.
type Event struct {
	Kind     EventKind
	JobID    string
	Duration time.Duration
	Err      error
}

// Listener receives scheduler events. Listeners are called synchronously on
// the run path and must be fast.
type Listener func(Event)

// Stats holds cumulative run statistics for one job. Stats are advisory
// observability data, never inputs to scheduling decisions, and are lost on
// restart.
type Stats struct {
	Runs          int64
	Failures      int64
	TotalDuration time.Duration
	LastDuration  time.Duration
}

// JobSpec describes a job at registration time.
type JobSpec struct {
	ID          string
	Name        string
	Description string
	Interval    time.Duration
	Enabled     bool
	Handler     Handler
}

// JobStatus is a read-only snapshot of a job's identity, run state and stats.
type JobStatus struct {
	ID          string
	Name        string
	Description string
	Interval    time.Duration
	Enabled     bool
	Running     bool
	LastRun     time.Time
	NextRun     time.Time
	Stats       Stats
}

// job is the mutable runtime state for one registered job.
type job struct {
	spec    JobSpec
	running atomic.Bool // overlap guard, CAS-acquired per run

	mu      sync.Mutex // guards the fields below
	enabled bool
	lastRun time.Time
	nextRun time.Time
	stats   Stats
	stop    chan struct{} // non-nil while the timer is armed
}

// Scheduler runs registered jobs, each on its own timer so a slow job cannot
// starve the others.
type Scheduler struct {
	log       *slog.Logger
	listeners []Listener
	now       func() time.Time

	mu      sync.Mutex
	jobs    map[string]*job
	order   []string // registration order, for stable status listings
	started bool

	tickers sync.WaitGroup // armed timer goroutines
	runs    sync.WaitGroup // in-flight handler executions
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithListener injects a notification callback. Replaces a process-wide
// event emitter so the scheduler stays independently testable.
func WithListener(l Listener) Option {
	return func(s *Scheduler) {
		s.listeners = append(s.listeners, l)
	}
}

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// New creates an empty scheduler.
func New(log *slog.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{
		log:  log,
		now:  time.Now,
		jobs: make(map[string]*job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a job. Fails with ErrDuplicateJob if the id is taken.
// Jobs registered after Start are not armed until explicitly toggled.
func (s *Scheduler) Register(spec JobSpec) error {
	if spec.ID == "" {
		return fmt.Errorf("register job: empty id")
	}
	if spec.Handler == nil {
		return fmt.Errorf("register job %q: nil handler", spec.ID)
	}
	if spec.Interval <= 0 {
		return fmt.Errorf("register job %q: interval must be positive", spec.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[spec.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, spec.ID)
	}

	s.jobs[spec.ID] = &job{spec: spec, enabled: spec.Enabled}
	s.order = append(s.order, spec.ID)

	s.log.Info("job registered", "job_id", spec.ID, "interval", spec.Interval, "enabled", spec.Enabled)
	return nil
}

// Start arms a repeating timer for every enabled job. Idempotent: calling
// again while running logs a warning and does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.log.Warn("scheduler already started")
		return
	}
	s.started = true

	for _, id := range s.order {
		j := s.jobs[id]
		j.mu.Lock()
		if j.enabled {
			s.arm(j)
		}
		j.mu.Unlock()
	}

	s.log.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop cancels all timers and waits for in-flight runs until ctx is done.
// It does not interrupt a running handler.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false

	for _, j := range s.jobs {
		j.mu.Lock()
		s.disarm(j)
		j.mu.Unlock()
	}
	s.mu.Unlock()

	s.tickers.Wait()

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with runs in flight")
		return ctx.Err()
	}
}

// arm starts the timer goroutine for a job. Callers hold both s.mu and j.mu.
func (s *Scheduler) arm(j *job) {
	if j.stop != nil {
		return
	}
	stop := make(chan struct{})
	j.stop = stop
	j.nextRun = s.now().Add(j.spec.Interval)

	s.tickers.Add(1)
	go func() {
		defer s.tickers.Done()
		ticker := time.NewTicker(j.spec.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Run(context.Background(), j.spec.ID)
			case <-stop:
				return
			}
		}
	}()
}

// disarm stops the timer goroutine for a job. Callers hold j.mu.
func (s *Scheduler) disarm(j *job) {
	if j.stop == nil {
		return
	}
	close(j.stop)
	j.stop = nil
}

// Run executes a job once, subject to the overlap guard. Unknown, disabled
// and already-running jobs are skipped with a log line only; a handler error
// or panic becomes a failure stat and never propagates. Reports whether the
// handler was executed.
func (s *Scheduler) Run(ctx context.Context, id string) bool {
	ran, _ := s.run(ctx, id)
	return ran
}

func (s *Scheduler) run(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	j := s.jobs[id]
	s.mu.Unlock()

	if j == nil {
		s.log.Warn("run skipped: unknown job", "job_id", id)
		return false, nil
	}

	j.mu.Lock()
	enabled := j.enabled
	j.mu.Unlock()
	if !enabled {
		s.log.Debug("run skipped: job disabled", "job_id", id)
		return false, nil
	}

	// At most one concurrent execution per job id.
	if !j.running.CompareAndSwap(false, true) {
		s.log.Debug("run skipped: job already running", "job_id", id)
		return false, nil
	}

	s.runs.Add(1)
	start := s.now()

	j.mu.Lock()
	j.lastRun = start
	j.nextRun = start.Add(j.spec.Interval)
	j.mu.Unlock()

	s.emit(Event{Kind: EventJobStarted, JobID: id})
	s.log.Debug("job run started", "job_id", id)

	err := s.invoke(ctx, j)
	duration := s.now().Sub(start)

	j.mu.Lock()
	j.stats.Runs++
	j.stats.TotalDuration += duration
	j.stats.LastDuration = duration
	if err != nil {
		j.stats.Failures++
	}
	j.mu.Unlock()

	// Release the guard on every path.
	j.running.Store(false)
	s.runs.Done()

	if err != nil {
		s.emit(Event{Kind: EventJobFailed, JobID: id, Duration: duration, Err: err})
		s.log.Error("job run failed", "job_id", id, "duration_ms", duration.Milliseconds(), "error", err)
		return true, err
	}

	s.emit(Event{Kind: EventJobCompleted, JobID: id, Duration: duration})
	s.log.Info("job run completed", "job_id", id, "duration_ms", duration.Milliseconds())
	return true, nil
}

// invoke runs the handler, converting a panic into an error.
func (s *Scheduler) invoke(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return j.spec.Handler(ctx)
}

// Toggle flips a job's enabled flag. If the scheduler is running, the job's
// timer is armed or disarmed immediately to match. An in-flight run is not
// interrupted by disabling.
func (s *Scheduler) Toggle(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := s.jobs[id]
	if j == nil {
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.enabled = enabled
	if s.started {
		if enabled {
			s.arm(j)
		} else {
			s.disarm(j)
		}
	}

	s.log.Info("job toggled", "job_id", id, "enabled", enabled)
	return nil
}

// Trigger runs a job once outside its timer cadence, subject to the same
// overlap guard. Returns the handler error, or ErrUnknownJob.
func (s *Scheduler) Trigger(ctx context.Context, id string) error {
	s.mu.Lock()
	_, known := s.jobs[id]
	s.mu.Unlock()
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}

	_, err := s.run(ctx, id)
	return err
}

// TriggerResult is the outcome of one job in a TriggerAll pass.
type TriggerResult struct {
	JobID   string
	Success bool
	Err     error
}

// TriggerAll sequentially triggers every non-excluded job. One job's failure
// does not abort the others.
func (s *Scheduler) TriggerAll(ctx context.Context, exclude ...string) []TriggerResult {
	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	s.mu.Lock()
	ids := make([]string, 0, len(s.order))
	for _, id := range s.order {
		if _, skip := excluded[id]; !skip {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	results := make([]TriggerResult, 0, len(ids))
	for _, id := range ids {
		_, err := s.run(ctx, id)
		results = append(results, TriggerResult{JobID: id, Success: err == nil, Err: err})
	}
	return results
}

// Status returns a snapshot of one job.
func (s *Scheduler) Status(id string) (JobStatus, bool) {
	s.mu.Lock()
	j := s.jobs[id]
	s.mu.Unlock()

	if j == nil {
		return JobStatus{}, false
	}
	return s.snapshot(j), true
}

// AllStatus returns snapshots of every job in registration order.
func (s *Scheduler) AllStatus() []JobStatus {
	s.mu.Lock()
	jobs := make([]*job, 0, len(s.order))
	for _, id := range s.order {
		jobs = append(jobs, s.jobs[id])
	}
	s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(jobs))
	for _, j := range jobs {
		statuses = append(statuses, s.snapshot(j))
	}
	return statuses
}

func (s *Scheduler) snapshot(j *job) JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobStatus{
		ID:          j.spec.ID,
		Name:        j.spec.Name,
		Description: j.spec.Description,
		Interval:    j.spec.Interval,
		Enabled:     j.enabled,
		Running:     j.running.Load(),
		LastRun:     j.lastRun,
		NextRun:     j.nextRun,
		Stats:       j.stats,
	}
}

func (s *Scheduler) emit(e Event) {
	for _, l := range s.listeners {
		l(e)
	}
}
