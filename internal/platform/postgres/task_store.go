package postgres

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforperks/internal/store"
	"github.com/uptrace/bun"
)

// PostgresTaskStore implements store.TaskStore.
type PostgresTaskStore struct {
	db     bun.IDB
	logger *slog.Logger
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db bun.IDB, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Exists implements store.TaskStore.Exists.
func (s *PostgresTaskStore) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := s.db.NewSelect().
		Table("tasks").
		Where("id = ?", id).
		Exists(ctx)
	if err != nil {
		s.logger.Error("failed to check task existence",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return false, store.NewStoreError("task", "exists", "query failed", MapError(err))
	}
	return ok, nil
}
