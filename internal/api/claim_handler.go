package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/taskforperks/internal/api/shared"
	"github.com/phrazzld/taskforperks/internal/domain"
	"github.com/phrazzld/taskforperks/internal/platform/logger"
	"github.com/phrazzld/taskforperks/internal/service"
)

// CreateClaimRequest is the body of POST /api/tasks/{id}/claims.
type CreateClaimRequest struct {
	Fee        *float64 `json:"fee" validate:"required,gte=0"`
	TTLSeconds int64    `json:"ttlSeconds" validate:"required,gt=0"`
}

// ClaimResponse is the JSON representation of a claim.
type ClaimResponse struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	HelperID  string    `json:"helperId"`
	Fee       float64   `json:"fee"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func claimToResponse(c *domain.Claim) ClaimResponse {
	return ClaimResponse{
		ID:        c.ID.String(),
		TaskID:    c.TaskID.String(),
		HelperID:  c.HelperID.String(),
		Fee:       c.Fee,
		Status:    string(c.Status),
		ExpiresAt: c.ExpiresAt,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// ClaimHandler handles claim creation, lookup and acceptance.
type ClaimHandler struct {
	claims service.ClaimService
	logger *slog.Logger
}

// NewClaimHandler creates a ClaimHandler.
func NewClaimHandler(claims service.ClaimService, logger *slog.Logger) *ClaimHandler {
	if claims == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("claim service cannot be nil for ClaimHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClaimHandler{
		claims: claims,
		logger: logger.With(slog.String("component", "claim_handler")),
	}
}

// CreateClaim handles POST /api/tasks/{id}/claims. The authenticated user
// is the helper making the offer.
func (h *ClaimHandler) CreateClaim(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	helperID, taskID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	var req CreateClaimRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	claim, err := h.claims.CreateClaim(r.Context(), service.CreateClaimInput{
		TaskID:   taskID,
		HelperID: helperID,
		Fee:      *req.Fee,
		TTL:      time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create claim")
		return
	}

	log.Info("claim created",
		slog.String("claim_id", claim.ID.String()),
		slog.String("task_id", claim.TaskID.String()))

	shared.RespondWithJSON(w, r, http.StatusCreated, claimToResponse(claim))
}

// GetClaim handles GET /api/claims/{id}.
func (h *ClaimHandler) GetClaim(w http.ResponseWriter, r *http.Request) {
	_, claimID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	claim, err := h.claims.GetClaim(r.Context(), claimID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get claim")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, claimToResponse(claim))
}

// AcceptClaim handles POST /api/claims/{id}/accept.
func (h *ClaimHandler) AcceptClaim(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, claimID, ok := handleUserIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	claim, err := h.claims.AcceptClaim(r.Context(), claimID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to accept claim")
		return
	}

	log.Info("claim accepted via API",
		slog.String("claim_id", claim.ID.String()),
		slog.String("accepted_by", userID.String()))

	shared.RespondWithJSON(w, r, http.StatusOK, claimToResponse(claim))
}
