package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/meterkit/pkg/logger"
)

// JobFunc is the work of a scheduled job.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	schedule Schedule
	fn       JobFunc
	timeout  time.Duration
	next     time.Time
	running  bool
}

// Scheduler runs registered jobs in process when they fall due. With a
// Locker each run is claimed first, so replicas sharing the locker run a job
// once.
type Scheduler struct {
	mu       sync.Mutex
	jobs     map[string]*job
	interval time.Duration
	locker   Locker
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

// New creates a Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:     make(map[string]*job),
		interval: 30 * time.Second,
		locker:   NewMemoryLocker(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddJob registers fn to run on schedule. Each run gets its own context
// bounded by the job timeout (default 10 minutes), which is also how long
// the run holds its lock. A schedule whose next run is not after the current
// time, such as Every(0), fails with ErrInvalidSchedule.
func (s *Scheduler) AddJob(name string, schedule Schedule, fn JobFunc, opts ...JobOption) error {
	if name == "" || schedule == nil || fn == nil {
		return ErrInvalidJob
	}
	j := &job{name: name, schedule: schedule, fn: fn, timeout: 10 * time.Minute}
	for _, opt := range opts {
		opt(j)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return ErrJobAlreadyRegistered
	}
	now := s.now()
	j.next = schedule.Next(now)
	if !j.next.After(now) {
		return fmt.Errorf("%w: %s", ErrInvalidSchedule, schedule)
	}
	s.jobs[name] = j

	s.logger.Info("registered job",
		slog.String("job", name),
		slog.String("schedule", schedule.String()),
		slog.Time("next_run", j.next),
	)
	return nil
}

// Jobs lists the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Start checks for due jobs every interval until ctx is cancelled, then
// waits for running jobs to return.
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.Jobs()) == 0 {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Tick starts every job that is due now. Start calls it on each interval.
func (s *Scheduler) Tick(ctx context.Context) {
	s.tick(ctx)
}

// Wait blocks until every started run returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if j.running || j.next.After(now) {
			continue
		}
		j.running = true
		j.next = advance(j.schedule, j.next, now)
		due = append(due, j)
	}
	s.mu.Unlock()

	for _, j := range due {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.finish(j)
			_ = s.run(ctx, j)
		}()
	}
}

// advance returns the first run of schedule after now. Runs missed while the
// process was down are not replayed. A schedule that stops moving forward is
// restarted from now.
func advance(schedule Schedule, prev, now time.Time) time.Time {
	next := prev
	for !next.After(now) {
		n := schedule.Next(next)
		if !n.After(next) {
			return schedule.Next(now)
		}
		next = n
	}
	return next
}

// RunNow runs a job synchronously, outside its schedule. It still takes the
// job's lock and returns ErrJobSkipped when another holder has it.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}
	return s.run(ctx, j)
}

func (s *Scheduler) finish(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.running = false
}

func (s *Scheduler) run(ctx context.Context, j *job) (err error) {
	log := s.logger.With(slog.String("job", j.name))

	release, ok, err := s.locker.TryLock(ctx, j.name, j.timeout)
	if err != nil {
		log.ErrorContext(ctx, "failed to acquire job lock", logger.Error(err))
		s.metrics.observe(j.name, OutcomeFailed, 0)
		return err
	}
	if !ok {
		log.DebugContext(ctx, "job held by another runner")
		s.metrics.observe(j.name, OutcomeSkipped, 0)
		return ErrJobSkipped
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			log.WarnContext(ctx, "failed to release job lock", logger.Error(rerr))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(ErrJobPanicked, errorFromPanic(r))
			log.ErrorContext(ctx, "job panicked", slog.Any("panic", r))
			s.metrics.observe(j.name, OutcomeFailed, time.Since(start))
		}
	}()

	log.InfoContext(ctx, "job started")
	err = j.fn(runCtx)
	elapsed := time.Since(start)
	if err != nil {
		log.ErrorContext(ctx, "job failed", logger.Duration(elapsed), logger.Error(err))
		s.metrics.observe(j.name, OutcomeFailed, elapsed)
		return err
	}
	log.InfoContext(ctx, "job finished", logger.Duration(elapsed))
	s.metrics.observe(j.name, OutcomeSucceeded, elapsed)
	return nil
}
