package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforperks/internal/domain"
	"github.com/phrazzld/taskforperks/internal/platform/logger"
	"github.com/phrazzld/taskforperks/internal/store"
)

// SummaryService reports the pending-claims snapshot of a task.
type SummaryService interface {
	// GetSummary returns the number of pending claims and the cheapest one.
	// A task with no pending claims, or an unknown task, yields
	// {CountPending: 0, BestOffer: nil}.
	GetSummary(ctx context.Context, taskID uuid.UUID) (*domain.ClaimSummary, error)
}

type summaryServiceImpl struct {
	claims store.ClaimStore
	logger *slog.Logger
}

// NewSummaryService creates a SummaryService.
func NewSummaryService(claims store.ClaimStore, logger *slog.Logger) (SummaryService, error) {
	if claims == nil {
		return nil, domain.NewValidationError("claims", "cannot be nil", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &summaryServiceImpl{
		claims: claims,
		logger: logger.With(slog.String("component", "summary_service")),
	}, nil
}

// GetSummary implements SummaryService.GetSummary.
func (s *summaryServiceImpl) GetSummary(ctx context.Context, taskID uuid.UUID) (*domain.ClaimSummary, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if taskID == uuid.Nil {
		return nil, domain.NewValidationError("taskId", "cannot be empty", domain.ErrInvalidID)
	}

	summary, err := s.claims.PendingSummary(ctx, taskID)
	if err != nil {
		log.Error("failed to read claim summary",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return nil, NewServiceError("summary", "get summary", "failed to read pending claims", err)
	}
	return summary, nil
}
