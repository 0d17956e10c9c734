package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/taskforperks/internal/api/shared"
	"github.com/phrazzld/taskforperks/internal/platform/logger"
	"github.com/phrazzld/taskforperks/internal/service"
)

// SummaryHandler serves the live pending-claims summary of a task.
type SummaryHandler struct {
	summaries service.SummaryService
	logger    *slog.Logger
}

// NewSummaryHandler creates a SummaryHandler.
func NewSummaryHandler(summaries service.SummaryService, logger *slog.Logger) *SummaryHandler {
	if summaries == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("summary service cannot be nil for SummaryHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SummaryHandler{
		summaries: summaries,
		logger:    logger.With(slog.String("component", "summary_handler")),
	}
}

// GetSummary handles GET /api/tasks/{id}/summary.
func (h *SummaryHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	taskID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	summary, err := h.summaries.GetSummary(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load claim summary")
		return
	}

	log.Debug("claim summary served",
		slog.String("task_id", taskID.String()),
		slog.Int("count_pending", summary.CountPending))

	w.Header().Set("Cache-Control", "no-store")
	shared.RespondWithJSON(w, r, http.StatusOK, summary)
}
