package testdb

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforperks/internal/domain"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// InsertUser creates a user with an optional rating and returns its id.
func InsertUser(t *testing.T, db bun.IDB, rating *float64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	_, err := db.ExecContext(ctx,
		"INSERT INTO users (id, display_name, rating) VALUES (?, ?, ?)",
		id, "user-"+id.String()[:8], rating)
	require.NoError(t, err, "failed to insert user")
	return id
}

// InsertTask creates a task posted by posterID and returns its id.
func InsertTask(t *testing.T, db bun.IDB, posterID uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	_, err := db.ExecContext(ctx,
		"INSERT INTO tasks (id, poster_id, title) VALUES (?, ?, ?)",
		id, posterID, "task-"+id.String()[:8])
	require.NoError(t, err, "failed to insert task")
	return id
}

// ClaimFixture describes a claim row to insert. Zero times default to now.
type ClaimFixture struct {
	TaskID    uuid.UUID
	HelperID  uuid.UUID
	Fee       float64
	Status    domain.ClaimStatus
	ExpiresAt time.Time
	CreatedAt time.Time
}

// InsertClaim writes the claim row directly, bypassing store validation,
// and returns its id.
func InsertClaim(t *testing.T, db bun.IDB, f ClaimFixture) uuid.UUID {
	t.Helper()
	now := time.Now().UTC()
	if f.Status == "" {
		f.Status = domain.ClaimStatusPending
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	if f.ExpiresAt.IsZero() {
		f.ExpiresAt = now.Add(time.Hour)
	}

	id := uuid.New()
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	_, err := db.ExecContext(ctx, `INSERT INTO claims
		(id, task_id, helper_id, fee, status, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, f.TaskID, f.HelperID, f.Fee, string(f.Status), f.ExpiresAt, f.CreatedAt, f.CreatedAt)
	require.NoError(t, err, "failed to insert claim")
	return id
}

// ClaimStatus reads a claim's current status.
func ClaimStatus(t *testing.T, db bun.IDB, id uuid.UUID) domain.ClaimStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	var status string
	err := db.QueryRowContext(ctx, "SELECT status FROM claims WHERE id = ?", id).Scan(&status)
	require.NoError(t, err, "failed to read claim status")
	return domain.ClaimStatus(status)
}
