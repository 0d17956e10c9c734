package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforperks/internal/domain"
	"github.com/phrazzld/taskforperks/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func putClaim(s *mocks.MockClaimStore, taskID uuid.UUID, fee float64, createdAt time.Time, status domain.ClaimStatus) *domain.Claim {
	c := &domain.Claim{
		ID:        uuid.New(),
		TaskID:    taskID,
		HelperID:  uuid.New(),
		Fee:       fee,
		Status:    status,
		ExpiresAt: testNow.Add(time.Hour),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	s.Put(c)
	return c
}

func TestNewSummaryServiceRequiresStore(t *testing.T) {
	t.Parallel()
	_, err := NewSummaryService(nil, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetSummary(t *testing.T) {
	t.Parallel()

	t.Run("cheapest pending offer, earliest wins ties", func(t *testing.T) {
		t.Parallel()
		claims := mocks.NewMockClaimStore()
		taskID := uuid.New()

		putClaim(claims, taskID, 40, testNow.Add(-4*time.Minute), domain.ClaimStatusPending)
		later := putClaim(claims, taskID, 25, testNow.Add(-1*time.Minute), domain.ClaimStatusPending)
		earlier := putClaim(claims, taskID, 25, testNow.Add(-3*time.Minute), domain.ClaimStatusPending)
		putClaim(claims, taskID, 50, testNow.Add(-2*time.Minute), domain.ClaimStatusPending)
		// Non-pending and other-task claims are ignored even when cheaper.
		putClaim(claims, taskID, 5, testNow.Add(-5*time.Minute), domain.ClaimStatusExpired)
		putClaim(claims, uuid.New(), 1, testNow, domain.ClaimStatusPending)

		claims.SetRating(earlier.HelperID, 4.8)
		claims.SetRating(later.HelperID, 3.1)

		svc, err := NewSummaryService(claims, discardLogger())
		require.NoError(t, err)

		got, err := svc.GetSummary(context.Background(), taskID)
		require.NoError(t, err)
		assert.Equal(t, 4, got.CountPending)
		require.NotNil(t, got.BestOffer)
		assert.Equal(t, 25.0, got.BestOffer.Fee)
		require.NotNil(t, got.BestOffer.HelperRating)
		assert.Equal(t, 4.8, *got.BestOffer.HelperRating)
	})

	t.Run("unrated helper", func(t *testing.T) {
		t.Parallel()
		claims := mocks.NewMockClaimStore()
		taskID := uuid.New()
		putClaim(claims, taskID, 12, testNow, domain.ClaimStatusPending)

		svc, err := NewSummaryService(claims, discardLogger())
		require.NoError(t, err)
		got, err := svc.GetSummary(context.Background(), taskID)
		require.NoError(t, err)
		require.NotNil(t, got.BestOffer)
		assert.Nil(t, got.BestOffer.HelperRating)
	})

	t.Run("unknown task is empty", func(t *testing.T) {
		t.Parallel()
		svc, err := NewSummaryService(mocks.NewMockClaimStore(), discardLogger())
		require.NoError(t, err)

		got, err := svc.GetSummary(context.Background(), uuid.New())
		require.NoError(t, err)
		assert.Equal(t, 0, got.CountPending)
		assert.Nil(t, got.BestOffer)
	})

	t.Run("nil id", func(t *testing.T) {
		t.Parallel()
		svc, err := NewSummaryService(mocks.NewMockClaimStore(), discardLogger())
		require.NoError(t, err)

		_, err = svc.GetSummary(context.Background(), uuid.Nil)
		assert.ErrorIs(t, err, domain.ErrInvalidID)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("connection refused")
		claims := mocks.NewMockClaimStore()
		claims.PendingSummaryFn = func(context.Context, uuid.UUID) (*domain.ClaimSummary, error) {
			return nil, boom
		}
		svc, err := NewSummaryService(claims, discardLogger())
		require.NoError(t, err)

		got, err := svc.GetSummary(context.Background(), uuid.New())
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, got)
		var svcErr *ServiceError
		assert.ErrorAs(t, err, &svcErr)
	})
}
