package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/phrazzld/taskforperks/internal/domain"
	"github.com/phrazzld/taskforperks/internal/mocks"
	"github.com/phrazzld/taskforperks/internal/platform/clock"
	"github.com/phrazzld/taskforperks/internal/platform/logger"
	"github.com/phrazzld/taskforperks/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pendingClaim(taskID uuid.UUID, fee float64, expiresAt time.Time) *domain.Claim {
	return &domain.Claim{
		ID:        uuid.New(),
		TaskID:    taskID,
		HelperID:  uuid.New(),
		Fee:       fee,
		Status:    domain.ClaimStatusPending,
		ExpiresAt: expiresAt,
		CreatedAt: expiresAt.Add(-time.Hour),
		UpdatedAt: expiresAt.Add(-time.Hour),
	}
}

type fixture struct {
	claims    *mocks.MockClaimStore
	publisher *mocks.MockPublisher
	clock     *clock.Fake
	sweeper   *Sweeper
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		claims:    mocks.NewMockClaimStore(),
		publisher: mocks.NewMockPublisher(),
		clock:     clock.NewFake(baseTime),
	}
	opts = append([]Option{WithClock(f.clock)}, opts...)
	f.sweeper = New(f.claims, f.publisher, discardLogger(), opts...)
	return f
}

type countingRecorder struct {
	expired  atomic.Int64
	ok, fail atomic.Int32
}

func (r *countingRecorder) ClaimsExpired(n int64) { r.expired.Add(n) }

func (r *countingRecorder) NotificationPublished(err error) {
	if err != nil {
		r.fail.Add(1)
		return
	}
	r.ok.Add(1)
}

func TestNewPanicsOnMissingDependencies(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { New(nil, mocks.NewMockPublisher(), nil) })
	assert.Panics(t, func() { New(mocks.NewMockClaimStore(), nil, nil) })
}

func TestSweepNothingOverdue(t *testing.T) {
	t.Parallel()

	f := newFixture()
	future := pendingClaim(uuid.New(), 10, baseTime.Add(time.Hour))
	f.claims.Put(future)

	res, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Zero(t, f.claims.CallCount("ExpireClaims"), "no bulk update without overdue claims")
	assert.Empty(t, f.publisher.Publications())
	assert.Equal(t, domain.ClaimStatusPending, f.claims.Get(future.ID).Status)
}

func TestSweepExpiryBoundary(t *testing.T) {
	t.Parallel()

	f := newFixture()
	taskID := uuid.New()
	atDeadline := pendingClaim(taskID, 10, baseTime)
	justPast := pendingClaim(taskID, 10, baseTime.Add(-time.Microsecond))
	f.claims.Put(atDeadline)
	f.claims.Put(justPast)

	res, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, domain.ClaimStatusPending, f.claims.Get(atDeadline.ID).Status,
		"a claim expiring exactly now is not overdue")
	assert.Equal(t, domain.ClaimStatusExpired, f.claims.Get(justPast.ID).Status)

	f.clock.Advance(time.Microsecond)
	res, err = f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Expired)
	assert.Equal(t, domain.ClaimStatusExpired, f.claims.Get(atDeadline.ID).Status)
}

func TestSweepGroupsNotificationsByTask(t *testing.T) {
	t.Parallel()

	f := newFixture()
	t1, t2 := uuid.New(), uuid.New()
	f.claims.Put(pendingClaim(t1, 10, baseTime.Add(-3*time.Minute)))
	f.claims.Put(pendingClaim(t1, 20, baseTime.Add(-2*time.Minute)))
	f.claims.Put(pendingClaim(t2, 30, baseTime.Add(-1*time.Minute)))

	res, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Matched: 3, Expired: 3, TasksNotified: 2}, res)

	got := f.publisher.Publications()
	sort.Slice(got, func(i, j int) bool { return got[i].Channel < got[j].Channel })
	want := []mocks.Publication{
		{Channel: realtime.ChannelForTask(t1), Event: realtime.EventUpdated, Payload: struct{}{}},
		{Channel: realtime.ChannelForTask(t2), Event: realtime.EventUpdated, Payload: struct{}{}},
	}
	sort.Slice(want, func(i, j int) bool { return want[i].Channel < want[j].Channel })
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("publications mismatch (-want +got):\n%s", diff)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	taskID := uuid.New()
	c := pendingClaim(taskID, 10, baseTime.Add(-time.Minute))
	f.claims.Put(c)

	first, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Expired)

	second, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, second)
	assert.Len(t, f.publisher.Publications(), 1, "second sweep publishes nothing")
	assert.Equal(t, domain.ClaimStatusExpired, f.claims.Get(c.ID).Status)
}

func TestSweepNeverTouchesNonPendingClaims(t *testing.T) {
	t.Parallel()

	f := newFixture()
	taskID := uuid.New()
	var ids []uuid.UUID
	for _, status := range []domain.ClaimStatus{
		domain.ClaimStatusAccepted,
		domain.ClaimStatusCompleted,
		domain.ClaimStatusCancelled,
		domain.ClaimStatusExpired,
	} {
		c := pendingClaim(taskID, 10, baseTime.Add(-time.Hour))
		c.Status = status
		f.claims.Put(c)
		ids = append(ids, c.ID)
	}

	res, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Matched)
	for i, want := range []domain.ClaimStatus{
		domain.ClaimStatusAccepted,
		domain.ClaimStatusCompleted,
		domain.ClaimStatusCancelled,
		domain.ClaimStatusExpired,
	} {
		assert.Equal(t, want, f.claims.Get(ids[i]).Status)
	}
}

func TestSweepConcurrentAcceptWins(t *testing.T) {
	t.Parallel()

	f := newFixture()
	taskID := uuid.New()
	raced := pendingClaim(taskID, 10, baseTime.Add(-time.Minute))
	other := pendingClaim(taskID, 20, baseTime.Add(-time.Minute))
	f.claims.Put(raced)
	f.claims.Put(other)

	// Between the scan and the bulk update, the claim gets accepted.
	f.claims.AfterFindOverdue = func([]domain.OverdueClaim) {
		f.claims.AfterFindOverdue = nil
		accepted := f.claims.Get(raced.ID)
		accepted.Status = domain.ClaimStatusAccepted
		f.claims.Put(accepted)
	}

	res, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, int64(1), res.Expired)
	assert.Equal(t, domain.ClaimStatusAccepted, f.claims.Get(raced.ID).Status)
	assert.Equal(t, domain.ClaimStatusExpired, f.claims.Get(other.ID).Status)
	assert.Equal(t, []string{realtime.ChannelForTask(taskID)}, f.publisher.Channels())
}

func TestSweepStoreFailureAbortsWithoutPublishing(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")

	t.Run("scan fails", func(t *testing.T) {
		f := newFixture()
		f.claims.FindOverdueFn = func(context.Context, time.Time) ([]domain.OverdueClaim, error) {
			return nil, boom
		}

		_, err := f.sweeper.Sweep(context.Background())
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, f.publisher.Publications())
	})

	t.Run("bulk update fails", func(t *testing.T) {
		f := newFixture()
		c := pendingClaim(uuid.New(), 10, baseTime.Add(-time.Minute))
		f.claims.Put(c)
		f.claims.ExpireClaimsFn = func(context.Context, []uuid.UUID, time.Time) (int64, error) {
			return 0, boom
		}

		res, err := f.sweeper.Sweep(context.Background())
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, res.Matched)
		assert.Empty(t, f.publisher.Publications())
		assert.Equal(t, domain.ClaimStatusPending, f.claims.Get(c.ID).Status)
	})

	t.Run("run reports the error to the scheduler", func(t *testing.T) {
		f := newFixture()
		f.claims.FindOverdueFn = func(context.Context, time.Time) ([]domain.OverdueClaim, error) {
			return nil, boom
		}
		assert.ErrorIs(t, f.sweeper.Run(context.Background()), boom)
		assert.Equal(t, JobName, f.sweeper.Name())
	})
}

func TestSweepPublishFailureIsIsolated(t *testing.T) {
	t.Parallel()

	rec := &countingRecorder{}
	f := newFixture(WithRecorder(rec))
	failing, healthy := uuid.New(), uuid.New()
	f.claims.Put(pendingClaim(failing, 10, baseTime.Add(-time.Minute)))
	f.claims.Put(pendingClaim(healthy, 10, baseTime.Add(-time.Minute)))
	f.publisher.Errors[realtime.ChannelForTask(failing)] = errors.New("transport down")

	res, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err, "publish failures do not fail the cycle")
	assert.Equal(t, 2, res.TasksNotified)
	assert.Equal(t, 1, res.PublishFailures)
	assert.ElementsMatch(t,
		[]string{realtime.ChannelForTask(failing), realtime.ChannelForTask(healthy)},
		f.publisher.Channels())

	assert.Equal(t, int64(2), rec.expired.Load())
	assert.Equal(t, int32(1), rec.ok.Load())
	assert.Equal(t, int32(1), rec.fail.Load())
}

func TestSweepPublishFailureLogsWithCycleContext(t *testing.T) {
	t.Parallel()

	f := newFixture()
	taskID := uuid.New()
	f.claims.Put(pendingClaim(taskID, 10, baseTime.Add(-time.Minute)))
	f.publisher.Errors[realtime.ChannelForTask(taskID)] = errors.New("transport down")

	ctxLogger, buf := logger.NewTestLogger()
	ctx := logger.WithLogger(context.Background(), ctxLogger.With("trace_id", "sweep-trace-1"))

	res, err := f.sweeper.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.PublishFailures)

	entries, err := buf.Entries()
	require.NoError(t, err)
	var warning map[string]any
	for _, e := range entries {
		if e["msg"] == "failed to publish task update" {
			warning = e
		}
	}
	require.NotNil(t, warning, "publish failure must be logged on the context logger")
	assert.Equal(t, "WARN", warning["level"])
	assert.Equal(t, "sweep-trace-1", warning["trace_id"])
	assert.Contains(t, warning, "sweep_at")
	assert.Equal(t, taskID.String(), warning["task_id"])
}

func TestSweepBoundsPublishConcurrency(t *testing.T) {
	t.Parallel()

	const limit = 2
	f := newFixture(WithPublishConcurrency(limit))
	for i := 0; i < 6; i++ {
		f.claims.Put(pendingClaim(uuid.New(), 10, baseTime.Add(-time.Minute)))
	}

	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	f.publisher.PublishFn = func(context.Context, string, string, any) error {
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	}

	res, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, res.TasksNotified)
	assert.LessOrEqual(t, peak, limit)
}

func TestSweepEndToEndScenario(t *testing.T) {
	t.Parallel()

	f := newFixture()
	t1 := uuid.New()
	c1 := pendingClaim(t1, 30, baseTime.Add(-5*time.Minute))
	c2 := pendingClaim(t1, 20, baseTime.Add(time.Hour))
	f.claims.Put(c1)
	f.claims.Put(c2)

	_, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.ClaimStatusExpired, f.claims.Get(c1.ID).Status)
	assert.Equal(t, domain.ClaimStatusPending, f.claims.Get(c2.ID).Status)
	assert.Equal(t, []string{"task-" + t1.String()}, f.publisher.Channels())

	summary, err := f.claims.PendingSummary(context.Background(), t1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CountPending)
	require.NotNil(t, summary.BestOffer)
	assert.Equal(t, 20.0, summary.BestOffer.Fee)
}
