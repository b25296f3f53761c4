package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/donnabot/donna/internal/observability"
)

const (
	defaultTickInterval = 30 * time.Second
	defaultPruneAge     = 30 * 24 * time.Hour
	pruneEvery          = 6 * time.Hour
)

// Runner executes one scheduled binding and returns the agent output.
type Runner interface {
	RunJob(ctx context.Context, binding Binding) (string, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, binding Binding) (string, error)

func (f RunnerFunc) RunJob(ctx context.Context, binding Binding) (string, error) {
	return f(ctx, binding)
}

// JobStatus is a read-only snapshot of one bound job.
type JobStatus struct {
	Binding Binding
	NextRun time.Time
	Running bool
}

type boundJob struct {
	binding Binding
	nextRun time.Time
	running bool
	queued  bool
}

// Scheduler fires schedule-document bindings. A firing that lands inside
// quiet hours is suppressed, and a firing that overlaps an in-flight run of
// the same job is dropped unless the binding opted into queue_one.
type Scheduler struct {
	runner  Runner
	store   ExecutionStore
	quiet   QuietHours
	logger  *observability.Logger
	metrics *observability.Metrics

	mu   sync.Mutex
	jobs []*boundJob

	now       func() time.Time
	tick      time.Duration
	pruneAge  time.Duration
	lastPrune time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithNow injects a clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithTickInterval overrides how often due jobs are checked.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.tick = d }
}

// WithPruneAge overrides how long execution history is retained.
func WithPruneAge(d time.Duration) Option {
	return func(s *Scheduler) { s.pruneAge = d }
}

// New creates a scheduler. Call Reload to load bindings, then Start.
func New(runner Runner, store ExecutionStore, quiet QuietHours, logger *observability.Logger, metrics *observability.Metrics, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:   runner,
		store:    store,
		quiet:    quiet,
		logger:   logger.With("component", "scheduler"),
		metrics:  metrics,
		now:      time.Now,
		tick:     defaultTickInterval,
		pruneAge: defaultPruneAge,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reload parses the schedule document and swaps the binding set. Rejected
// rows are returned without failing the reload; jobs whose row content is
// unchanged keep their run state and next firing.
func (s *Scheduler) Reload(ctx context.Context, data []byte) (int, []*BindingError) {
	bindings, warnings, errs := ParseDocument(data, s.quiet.loc)
	for _, w := range warnings {
		s.logger.Warn(ctx, "schedule document warning", "warning", w)
	}
	for _, e := range errs {
		s.logger.Warn(ctx, "schedule row rejected", "line", e.Line, "error", e.Err)
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := make(map[string]*boundJob, len(s.jobs))
	for _, job := range s.jobs {
		prev[job.binding.Hash] = job
	}

	jobs := make([]*boundJob, 0, len(bindings))
	for _, b := range bindings {
		if old, ok := prev[b.Hash]; ok {
			old.binding = b
			jobs = append(jobs, old)
			continue
		}
		job := &boundJob{binding: b}
		if b.Enabled {
			job.nextRun = b.Spec.Next(now)
		}
		jobs = append(jobs, job)
	}
	s.jobs = jobs

	s.logger.Info(ctx, "schedule loaded", "bindings", len(jobs), "rejected", len(errs))
	return len(jobs), errs
}

// Start runs the tick loop until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.runDue(runCtx)
			}
		}
	}()
}

// Stop cancels the loop and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Jobs returns a snapshot of the bound jobs for status reporting.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, JobStatus{
			Binding: job.binding,
			NextRun: job.nextRun,
			Running: job.running,
		})
	}
	return out
}

// runDue fires every due binding once. Exported behaviour is driven by the
// tick loop; tests call it with a stepped clock.
func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()
	s.maybePrune(ctx, now)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if !job.binding.Enabled || job.nextRun.IsZero() || now.Before(job.nextRun) {
			continue
		}
		job.nextRun = job.binding.Spec.Next(now)

		if s.quiet.Contains(now) && !job.binding.IgnoreQuiet {
			s.recordSkip(ctx, job.binding, now, StatusSuppressed)
			continue
		}

		if job.running {
			if job.binding.QueueOne && !job.queued {
				job.queued = true
				s.logger.Debug(ctx, "job queued behind running instance", "job", job.binding.Job)
			} else {
				s.recordSkip(ctx, job.binding, now, StatusDropped)
			}
			continue
		}

		job.running = true
		s.wg.Add(1)
		go s.execute(ctx, job, job.binding)
	}
}

func (s *Scheduler) execute(ctx context.Context, job *boundJob, binding Binding) {
	defer s.wg.Done()

	jobCtx := observability.WithJob(ctx, binding.Job)
	started := s.now()
	s.logger.Info(jobCtx, "job started", "skill", binding.Skill, "channel", binding.Channel)

	output, err := s.runner.RunJob(jobCtx, binding)
	completed := s.now()

	exec := &JobExecution{
		ID:          uuid.NewString(),
		Job:         binding.Job,
		Skill:       binding.Skill,
		StartedAt:   started,
		CompletedAt: completed,
		Status:      StatusOK,
		Output:      truncateOutput(output),
	}
	if err != nil {
		exec.Status = StatusError
		exec.Error = err.Error()
		s.logger.Error(jobCtx, "job failed", "error", err, "duration", completed.Sub(started))
	} else {
		s.logger.Info(jobCtx, "job completed", "duration", completed.Sub(started))
	}
	if rerr := s.store.Record(jobCtx, exec); rerr != nil {
		s.logger.Warn(jobCtx, "execution record failed", "error", rerr)
	}
	s.metrics.SchedulerRuns.WithLabelValues(string(exec.Status)).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	job.running = false
	if job.queued {
		job.queued = false
		job.running = true
		s.wg.Add(1)
		go s.execute(ctx, job, job.binding)
	}
}

func (s *Scheduler) recordSkip(ctx context.Context, binding Binding, now time.Time, status ExecutionStatus) {
	exec := &JobExecution{
		ID:          uuid.NewString(),
		Job:         binding.Job,
		Skill:       binding.Skill,
		StartedAt:   now,
		CompletedAt: now,
		Status:      status,
	}
	if err := s.store.Record(ctx, exec); err != nil {
		s.logger.Warn(ctx, "execution record failed", "error", err)
	}
	s.metrics.SchedulerRuns.WithLabelValues(string(status)).Inc()
	s.logger.Info(ctx, "job skipped", "job", binding.Job, "status", string(status))
}

func (s *Scheduler) maybePrune(ctx context.Context, now time.Time) {
	if s.pruneAge <= 0 || now.Sub(s.lastPrune) < pruneEvery {
		return
	}
	s.lastPrune = now
	pruned, err := s.store.Prune(ctx, now.Add(-s.pruneAge))
	if err != nil {
		s.logger.Warn(ctx, "execution prune failed", "error", err)
		return
	}
	if pruned > 0 {
		s.logger.Info(ctx, "execution history pruned", "removed", pruned)
	}
}

func truncateOutput(out string) string {
	const keep = 500
	if len(out) <= keep {
		return out
	}
	return out[:keep] + fmt.Sprintf("... (%d bytes)", len(out))
}
