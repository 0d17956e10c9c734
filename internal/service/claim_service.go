package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforperks/internal/domain"
	"github.com/phrazzld/taskforperks/internal/platform/clock"
	"github.com/phrazzld/taskforperks/internal/platform/logger"
	"github.com/phrazzld/taskforperks/internal/realtime"
	"github.com/phrazzld/taskforperks/internal/store"
)

// CreateClaimInput is a helper's offer on a task.
type CreateClaimInput struct {
	TaskID   uuid.UUID
	HelperID uuid.UUID
	Fee      float64
	// TTL is how long the claim stays pending.
	TTL time.Duration
}

// ClaimService manages the claim lifecycle outside the expiry sweep.
type ClaimService interface {
	// CreateClaim records a pending claim. Returns store.ErrTaskNotFound for
	// unknown tasks and store.ErrPendingClaimExists when the helper already
	// has a pending claim on the task.
	CreateClaim(ctx context.Context, in CreateClaimInput) (*domain.Claim, error)

	// AcceptClaim accepts a pending, unexpired claim and cancels the other
	// pending claims on the same task. Returns store.ErrClaimNotPending if
	// the claim already expired or moved on.
	AcceptClaim(ctx context.Context, claimID uuid.UUID) (*domain.Claim, error)

	// GetClaim retrieves a claim by ID.
	GetClaim(ctx context.Context, claimID uuid.UUID) (*domain.Claim, error)
}

type claimServiceImpl struct {
	claims    store.ClaimStore
	publisher realtime.Publisher
	clock     clock.Clock
	logger    *slog.Logger
}

// NewClaimService creates a ClaimService. A nil clock means the real clock.
func NewClaimService(
	claims store.ClaimStore,
	publisher realtime.Publisher,
	clk clock.Clock,
	logger *slog.Logger,
) (ClaimService, error) {
	if claims == nil {
		return nil, domain.NewValidationError("claims", "cannot be nil", domain.ErrValidation)
	}
	if publisher == nil {
		return nil, domain.NewValidationError("publisher", "cannot be nil", domain.ErrValidation)
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &claimServiceImpl{
		claims:    claims,
		publisher: publisher,
		clock:     clk,
		logger:    logger.With(slog.String("component", "claim_service")),
	}, nil
}

// CreateClaim implements ClaimService.CreateClaim.
func (s *claimServiceImpl) CreateClaim(ctx context.Context, in CreateClaimInput) (*domain.Claim, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	claim, err := domain.NewClaim(in.TaskID, in.HelperID, in.Fee, in.TTL, s.clock.Now())
	if err != nil {
		return nil, claimValidationError(err)
	}

	if err := s.claims.Create(ctx, claim); err != nil {
		if !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrDuplicate) {
			log.Error("failed to create claim",
				slog.String("error", err.Error()),
				slog.String("task_id", in.TaskID.String()))
		}
		return nil, NewServiceError("claim", "create", "failed to save claim", err)
	}

	s.publishUpdate(ctx, claim.TaskID)
	return claim, nil
}

// AcceptClaim implements ClaimService.AcceptClaim.
func (s *claimServiceImpl) AcceptClaim(ctx context.Context, claimID uuid.UUID) (*domain.Claim, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if claimID == uuid.Nil {
		return nil, domain.NewValidationError("claimId", "cannot be empty", domain.ErrInvalidID)
	}

	now := s.clock.Now()
	var accepted *domain.Claim
	var cancelled int64
	err := s.claims.RunInTx(ctx, func(ctx context.Context, tx store.ClaimStore) error {
		claim, err := tx.Accept(ctx, claimID, now)
		if err != nil {
			return err
		}
		n, err := tx.CancelPendingExcept(ctx, claim.TaskID, claim.ID, now)
		if err != nil {
			return err
		}
		accepted, cancelled = claim, n
		return nil
	})
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrConflict) {
			log.Error("failed to accept claim",
				slog.String("error", err.Error()),
				slog.String("claim_id", claimID.String()))
		}
		return nil, NewServiceError("claim", "accept", "failed to accept claim", err)
	}

	log.Info("claim accepted",
		slog.String("claim_id", accepted.ID.String()),
		slog.String("task_id", accepted.TaskID.String()),
		slog.Int64("cancelled_claims", cancelled))

	s.publishUpdate(ctx, accepted.TaskID)
	return accepted, nil
}

// GetClaim implements ClaimService.GetClaim.
func (s *claimServiceImpl) GetClaim(ctx context.Context, claimID uuid.UUID) (*domain.Claim, error) {
	if claimID == uuid.Nil {
		return nil, domain.NewValidationError("claimId", "cannot be empty", domain.ErrInvalidID)
	}
	claim, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, NewServiceError("claim", "get", "failed to load claim", err)
	}
	return claim, nil
}

// publishUpdate tells the task's subscribers to refresh. The write is
// already committed, so a failed publish is only logged.
func (s *claimServiceImpl) publishUpdate(ctx context.Context, taskID uuid.UUID) {
	channel := realtime.ChannelForTask(taskID)
	if err := s.publisher.Publish(ctx, channel, realtime.EventUpdated, struct{}{}); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Warn("failed to publish task update",
			slog.String("error", err.Error()),
			slog.String("channel", channel))
	}
}

func claimValidationError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidClaimTTL):
		return domain.NewValidationError("ttl",
			"must be between "+domain.MinClaimTTL.String()+" and "+domain.MaxClaimTTL.String(), err)
	case errors.Is(err, domain.ErrInvalidClaimFee):
		return domain.NewValidationError("fee", "must be a non-negative number", err)
	case errors.Is(err, domain.ErrEmptyClaimTaskID):
		return domain.NewValidationError("taskId", "cannot be empty", domain.ErrInvalidID)
	case errors.Is(err, domain.ErrEmptyClaimHelperID):
		return domain.NewValidationError("helperId", "cannot be empty", domain.ErrInvalidID)
	default:
		return domain.NewValidationError("claim", err.Error(), err)
	}
}
