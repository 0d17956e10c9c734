// Package sweeper expires overdue pending claims and tells each affected
// task's subscribers to refresh.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforperks/internal/platform/clock"
	"github.com/phrazzld/taskforperks/internal/platform/logger"
	"github.com/phrazzld/taskforperks/internal/realtime"
	"github.com/phrazzld/taskforperks/internal/store"
	"golang.org/x/sync/errgroup"
)

// JobName identifies the sweeper in logs and metrics.
const JobName = "claim-expiry"

// DefaultPublishConcurrency bounds concurrent publishes when unset.
const DefaultPublishConcurrency = 8

// Recorder receives sweep counters, typically for metrics.
type Recorder interface {
	ClaimsExpired(n int64)
	NotificationPublished(err error)
}

// Result summarises one sweep cycle.
type Result struct {
	// Matched is the number of overdue pending claims found.
	Matched int
	// Expired is the number of claims the guarded update changed. It is
	// lower than Matched when claims moved on concurrently.
	Expired int64
	// TasksNotified is the number of distinct tasks published to.
	TasksNotified int
	// PublishFailures is the number of those publishes that failed.
	PublishFailures int
}

// Sweeper runs expiry cycles. It holds no state between cycles.
type Sweeper struct {
	claims      store.ClaimStore
	publisher   realtime.Publisher
	clock       clock.Clock
	recorder    Recorder
	concurrency int
	logger      *slog.Logger
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithRecorder registers a Recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Sweeper) { s.recorder = r }
}

// WithPublishConcurrency bounds how many publishes run at once.
func WithPublishConcurrency(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithClock replaces the real clock.
func WithClock(c clock.Clock) Option {
	return func(s *Sweeper) { s.clock = c }
}

// New creates a Sweeper.
func New(claims store.ClaimStore, publisher realtime.Publisher, logger *slog.Logger, opts ...Option) *Sweeper {
	if claims == nil {
		panic("claims store cannot be nil")
	}
	if publisher == nil {
		panic("publisher cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		claims:      claims,
		publisher:   publisher,
		clock:       clock.Real(),
		concurrency: DefaultPublishConcurrency,
		logger:      logger.With("component", "sweeper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements task.Job.
func (s *Sweeper) Name() string { return JobName }

// Run implements task.Job.
func (s *Sweeper) Run(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}

// Sweep expires every pending claim whose deadline is strictly before now
// and publishes one "updated" event per affected task.
//
// A store failure aborts the cycle before anything is published. Publish
// failures are logged and counted in the Result but do not fail the cycle.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	now := s.clock.Now()
	log := logger.FromContextOrDefault(ctx, s.logger).With("sweep_at", now)

	overdue, err := s.claims.FindOverdue(ctx, now)
	if err != nil {
		return res, fmt.Errorf("failed to find overdue claims: %w", err)
	}
	res.Matched = len(overdue)
	if len(overdue) == 0 {
		log.Debug("no overdue claims")
		return res, nil
	}

	ids := make([]uuid.UUID, 0, len(overdue))
	taskIDs := make([]uuid.UUID, 0, len(overdue))
	seen := make(map[uuid.UUID]struct{}, len(overdue))
	for _, c := range overdue {
		ids = append(ids, c.ID)
		if _, ok := seen[c.TaskID]; ok {
			continue
		}
		seen[c.TaskID] = struct{}{}
		taskIDs = append(taskIDs, c.TaskID)
	}

	expired, err := s.claims.ExpireClaims(ctx, ids, now)
	if err != nil {
		return res, fmt.Errorf("failed to expire %d claims: %w", len(ids), err)
	}
	res.Expired = expired
	if s.recorder != nil {
		s.recorder.ClaimsExpired(expired)
	}
	if expired < int64(len(ids)) {
		log.Info("some overdue claims changed state concurrently and were left untouched",
			"matched", len(ids),
			"expired", expired)
	}

	res.TasksNotified = len(taskIDs)
	res.PublishFailures = s.notify(ctx, log, taskIDs)

	log.Info("sweep completed",
		"matched", res.Matched,
		"expired", res.Expired,
		"tasks_notified", res.TasksNotified,
		"publish_failures", res.PublishFailures)
	return res, nil
}

// notify publishes to every task concurrently and returns the number of
// failed publishes.
func (s *Sweeper) notify(ctx context.Context, log *slog.Logger, taskIDs []uuid.UUID) int {
	var failures atomic.Int32
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, taskID := range taskIDs {
		g.Go(func() error {
			channel := realtime.ChannelForTask(taskID)
			err := s.publisher.Publish(ctx, channel, realtime.EventUpdated, struct{}{})
			if s.recorder != nil {
				s.recorder.NotificationPublished(err)
			}
			if err != nil {
				failures.Add(1)
				log.Warn("failed to publish task update",
					"error", err,
					"task_id", taskID,
					"channel", channel)
			}
			// Failures are counted here, never returned to the group.
			return nil
		})
	}
	_ = g.Wait()
	return int(failures.Load())
}
