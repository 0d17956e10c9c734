package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phrazzld/taskforperks/internal/platform/clock"
)

// Run outcomes reported to an Observer.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

// ErrAlreadyStarted is returned by Start on a running scheduler.
var ErrAlreadyStarted = errors.New("scheduler already started")

// Observer receives run and skip notifications, typically for metrics.
type Observer interface {
	ObserveRun(job string, d time.Duration, outcome string)
	ObserveSkip(job string)
}

// SchedulerConfig holds configuration for a Scheduler.
type SchedulerConfig struct {
	// Interval between ticks.
	Interval time.Duration

	// Timeout bounds a single run. Zero means Interval/2.
	Timeout time.Duration

	// Jitter adds a random delay in [0, Jitter) to every tick.
	Jitter time.Duration

	// RunOnStart triggers a run immediately after Start.
	RunOnStart bool
}

// Scheduler runs a Job periodically on a single worker goroutine.
// A tick that arrives while the previous run is still queued or in
// progress is skipped rather than queued behind it.
type Scheduler struct {
	job      Job
	config   SchedulerConfig
	clock    clock.Clock
	logger   *slog.Logger
	observer Observer

	// queue holds at most one pending run; busy is set from enqueue until
	// that run finishes.
	queue chan string
	busy  atomic.Bool

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	errHandler func(job Job, err error)
	jitterFn   func(max time.Duration) time.Duration
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock replaces the real clock, for tests.
func WithClock(c clock.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

// WithObserver registers an Observer.
func WithObserver(o Observer) SchedulerOption {
	return func(s *Scheduler) { s.observer = o }
}

// WithErrorHandler replaces the default handler, which only logs.
func WithErrorHandler(fn func(job Job, err error)) SchedulerOption {
	return func(s *Scheduler) { s.errHandler = fn }
}

// NewScheduler creates a scheduler for job.
func NewScheduler(job Job, config SchedulerConfig, logger *slog.Logger, opts ...SchedulerOption) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("job cannot be nil")
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", config.Interval)
	}
	if config.Timeout < 0 || config.Jitter < 0 {
		return nil, fmt.Errorf("timeout and jitter must not be negative")
	}
	if config.Timeout == 0 {
		config.Timeout = config.Interval / 2
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		job:    job,
		config: config,
		clock:  clock.Real(),
		logger: logger.With("component", "scheduler", "job", job.Name()),
		queue:  make(chan string, 1),
		jitterFn: func(max time.Duration) time.Duration {
			return time.Duration(rand.Int64N(int64(max)))
		},
	}
	s.errHandler = func(job Job, err error) {
		s.logger.Error("job run failed", "error", err)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the tick loop and the worker. Runs continue until Stop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(2)
	go s.worker(ctx)
	go s.ticker(ctx)

	s.logger.Info("scheduler started",
		"interval", s.config.Interval,
		"timeout", s.config.Timeout,
		"jitter", s.config.Jitter)

	if s.config.RunOnStart {
		s.Trigger("start")
	}
	return nil
}

// Stop cancels any in-flight run and waits for the goroutines to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started || s.cancel == nil {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Trigger requests a run now. It returns false, and counts a skip, if a run
// is already queued or in progress.
func (s *Scheduler) Trigger(reason string) bool {
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Warn("previous run still in progress, skipping", "reason", reason)
		if s.observer != nil {
			s.observer.ObserveSkip(s.job.Name())
		}
		return false
	}
	s.queue <- reason
	return true
}

func (s *Scheduler) ticker(ctx context.Context) {
	defer s.wg.Done()

	for {
		timer := s.clock.NewTimer(s.nextDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C():
			s.Trigger("tick")
		}
	}
}

func (s *Scheduler) nextDelay() time.Duration {
	if s.config.Jitter <= 0 {
		return s.config.Interval
	}
	return s.config.Interval + s.jitterFn(s.config.Jitter)
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-s.queue:
			s.runOnce(ctx, reason)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, reason string) {
	runCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := s.clock.Now()
	s.logger.Debug("job run starting", "reason", reason)

	err := s.safeRun(runCtx)
	elapsed := s.clock.Now().Sub(start)

	outcome := OutcomeSuccess
	switch {
	case err == nil:
		s.logger.Debug("job run finished", "duration", elapsed)
	case errors.Is(err, context.DeadlineExceeded) && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		outcome = OutcomeTimeout
		s.errHandler(s.job, fmt.Errorf("run exceeded timeout %s: %w", s.config.Timeout, err))
	default:
		outcome = OutcomeFailure
		s.errHandler(s.job, err)
	}

	s.busy.Store(false)
	if s.observer != nil {
		s.observer.ObserveRun(s.job.Name(), elapsed, outcome)
	}
}

// safeRun turns a panicking job into an error so the worker survives.
func (s *Scheduler) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "panic", r)
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return s.job.Run(ctx)
}
