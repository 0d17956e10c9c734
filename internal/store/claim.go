package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforperks/internal/domain"
)

// ClaimStore defines the persistence operations of the claim lifecycle.
// Every status write is conditioned on the claim still being PENDING in the
// same statement, so concurrent writers never overwrite each other's
// transitions.
type ClaimStore interface {
	// FindOverdue returns the id and task id of every PENDING claim whose
	// expiry is strictly before now.
	FindOverdue(ctx context.Context, now time.Time) ([]domain.OverdueClaim, error)

	// ExpireClaims marks the given claims EXPIRED in one statement, touching
	// only those still PENDING. It returns the number of claims changed;
	// claims that moved on concurrently are skipped, not reported as errors.
	ExpireClaims(ctx context.Context, ids []uuid.UUID, now time.Time) (int64, error)

	// PendingSummary returns the pending count and cheapest pending offer
	// for a task, ties broken by earliest creation then lowest id. Unknown
	// tasks yield an empty summary.
	PendingSummary(ctx context.Context, taskID uuid.UUID) (*domain.ClaimSummary, error)

	// Create inserts a new claim.
	// Returns ErrTaskNotFound if the task does not exist and
	// ErrPendingClaimExists if the helper already has a pending claim on it.
	Create(ctx context.Context, claim *domain.Claim) error

	// GetByID retrieves a claim. Returns ErrClaimNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Claim, error)

	// Accept moves a PENDING, unexpired claim to ACCEPTED and returns it.
	// Returns ErrClaimNotFound for unknown ids and ErrClaimNotPending when
	// the guard fails.
	Accept(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Claim, error)

	// CancelPendingExcept cancels every PENDING claim on the task except keep.
	CancelPendingExcept(ctx context.Context, taskID, keep uuid.UUID, now time.Time) (int64, error)

	// RunInTx executes fn with a ClaimStore bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx ClaimStore) error) error
}

// TaskStore gives read access to tasks.
type TaskStore interface {
	// Exists reports whether a task with the given id exists.
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}
