package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforperks/internal/domain"
	"github.com/phrazzld/taskforperks/internal/platform/logger"
	"github.com/phrazzld/taskforperks/internal/store"
	"github.com/uptrace/bun"
)

// Constraint names from the claims migration.
const (
	pendingClaimUniqueIndex = "uq_claims_pending_task_helper"
	claimTaskForeignKey     = "claims_task_id_fkey"
)

// claimColumns selects a full claim row. fee is numeric in the schema and
// is cast so it scans straight into float64.
const claimColumns = "id, task_id, helper_id, fee::float8 AS fee, status, expires_at, created_at, updated_at"

// claimModel is the bun mapping of the claims table.
type claimModel struct {
	bun.BaseModel `bun:"table:claims"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	TaskID    uuid.UUID `bun:"task_id,type:uuid"`
	HelperID  uuid.UUID `bun:"helper_id,type:uuid"`
	Fee       float64   `bun:"fee"`
	Status    string    `bun:"status"`
	ExpiresAt time.Time `bun:"expires_at"`
	CreatedAt time.Time `bun:"created_at"`
	UpdatedAt time.Time `bun:"updated_at"`
}

func claimModelFromDomain(c *domain.Claim) *claimModel {
	return &claimModel{
		ID:        c.ID,
		TaskID:    c.TaskID,
		HelperID:  c.HelperID,
		Fee:       c.Fee,
		Status:    string(c.Status),
		ExpiresAt: c.ExpiresAt.UTC(),
		CreatedAt: c.CreatedAt.UTC(),
		UpdatedAt: c.UpdatedAt.UTC(),
	}
}

func (m *claimModel) toDomain() *domain.Claim {
	return &domain.Claim{
		ID:        m.ID,
		TaskID:    m.TaskID,
		HelperID:  m.HelperID,
		Fee:       m.Fee,
		Status:    domain.ClaimStatus(m.Status),
		ExpiresAt: m.ExpiresAt.UTC(),
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

// summaryRow is one row of the pending summary query.
type summaryRow struct {
	CountPending int             `bun:"count_pending"`
	Fee          float64         `bun:"fee"`
	HelperRating sql.NullFloat64 `bun:"helper_rating"`
}

// PostgresClaimStore implements store.ClaimStore with the bun query
// builder over the pgx driver.
type PostgresClaimStore struct {
	root   *bun.DB
	db     bun.IDB
	logger *slog.Logger
}

// Ensure PostgresClaimStore implements store.ClaimStore interface
var _ store.ClaimStore = (*PostgresClaimStore)(nil)

// NewPostgresClaimStore creates a claim store on top of db.
// If logger is nil, a default logger will be used.
func NewPostgresClaimStore(db *bun.DB, logger *slog.Logger) *PostgresClaimStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresClaimStore{
		root:   db,
		db:     db,
		logger: logger.With(slog.String("component", "claim_store")),
	}
}

// FindOverdue implements store.ClaimStore.FindOverdue.
func (s *PostgresClaimStore) FindOverdue(ctx context.Context, now time.Time) ([]domain.OverdueClaim, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var rows []claimModel
	err := s.db.NewSelect().
		Model(&rows).
		Column("id", "task_id").
		Where("status = ?", string(domain.ClaimStatusPending)).
		Where("expires_at < ?", now.UTC()).
		OrderExpr("expires_at ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		log.Error("failed to query overdue claims", slog.String("error", err.Error()))
		return nil, store.NewStoreError("claim", "find overdue", "query failed", MapError(err))
	}

	overdue := make([]domain.OverdueClaim, 0, len(rows))
	for _, r := range rows {
		overdue = append(overdue, domain.OverdueClaim{ID: r.ID, TaskID: r.TaskID})
	}
	return overdue, nil
}

// ExpireClaims implements store.ClaimStore.ExpireClaims.
// The status and deadline guards are part of the UPDATE itself, so a claim
// accepted between the scan and this statement is left untouched.
func (s *PostgresClaimStore) ExpireClaims(ctx context.Context, ids []uuid.UUID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	log := logger.FromContextOrDefault(ctx, s.logger)

	res, err := s.db.NewUpdate().
		Model((*claimModel)(nil)).
		Set("status = ?", string(domain.ClaimStatusExpired)).
		Set("updated_at = ?", now.UTC()).
		Where("id IN (?)", bun.In(ids)).
		Where("status = ?", string(domain.ClaimStatusPending)).
		Where("expires_at < ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		log.Error("failed to expire claims",
			slog.String("error", err.Error()),
			slog.Int("claim_count", len(ids)))
		return 0, store.NewStoreError("claim", "expire", "bulk update failed", MapError(err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected, nil
}

// PendingSummary implements store.ClaimStore.PendingSummary.
// A single statement yields both the count (window over the filtered rows,
// evaluated before LIMIT) and the cheapest claim, so both come from the
// same snapshot.
func (s *PostgresClaimStore) PendingSummary(ctx context.Context, taskID uuid.UUID) (*domain.ClaimSummary, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var row summaryRow
	err := s.db.NewSelect().
		TableExpr("claims AS c").
		ColumnExpr("count(*) OVER () AS count_pending").
		ColumnExpr("c.fee::float8 AS fee").
		ColumnExpr("u.rating::float8 AS helper_rating").
		Join("LEFT JOIN users AS u ON u.id = c.helper_id").
		Where("c.task_id = ?", taskID).
		Where("c.status = ?", string(domain.ClaimStatusPending)).
		OrderExpr("c.fee ASC, c.created_at ASC, c.id ASC").
		Limit(1).
		Scan(ctx, &row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EmptyClaimSummary(), nil
	}
	if err != nil {
		log.Error("failed to query claim summary",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return nil, store.NewStoreError("claim", "summary", "query failed", MapError(err))
	}

	summary := &domain.ClaimSummary{
		CountPending: row.CountPending,
		BestOffer:    &domain.BestOffer{Fee: row.Fee},
	}
	if row.HelperRating.Valid {
		rating := row.HelperRating.Float64
		summary.BestOffer.HelperRating = &rating
	}
	return summary, nil
}

// Create implements store.ClaimStore.Create.
func (s *PostgresClaimStore) Create(ctx context.Context, claim *domain.Claim) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := claim.Validate(); err != nil {
		log.Warn("claim validation failed during create",
			slog.String("error", err.Error()),
			slog.String("claim_id", claim.ID.String()))
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	_, err := s.db.NewInsert().Model(claimModelFromDomain(claim)).Exec(ctx)
	if err != nil {
		switch {
		case IsUniqueViolation(err) && constraintName(err) == pendingClaimUniqueIndex:
			log.Debug("helper already has a pending claim",
				slog.String("task_id", claim.TaskID.String()),
				slog.String("helper_id", claim.HelperID.String()))
			return store.ErrPendingClaimExists
		case IsForeignKeyViolation(err) && constraintName(err) == claimTaskForeignKey:
			return store.ErrTaskNotFound
		}
		log.Error("failed to create claim",
			slog.String("error", err.Error()),
			slog.String("claim_id", claim.ID.String()))
		return MapError(err)
	}

	log.Info("claim created",
		slog.String("claim_id", claim.ID.String()),
		slog.String("task_id", claim.TaskID.String()),
		slog.Time("expires_at", claim.ExpiresAt))
	return nil
}

// GetByID implements store.ClaimStore.GetByID.
func (s *PostgresClaimStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	m := new(claimModel)
	err := s.db.NewSelect().
		Model(m).
		ColumnExpr(claimColumns).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrClaimNotFound
	}
	if err != nil {
		log.Error("failed to get claim by ID",
			slog.String("error", err.Error()),
			slog.String("claim_id", id.String()))
		return nil, MapError(err)
	}
	return m.toDomain(), nil
}

// Accept implements store.ClaimStore.Accept.
func (s *PostgresClaimStore) Accept(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Claim, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	m := new(claimModel)
	err := s.db.NewUpdate().
		Model(m).
		Set("status = ?", string(domain.ClaimStatusAccepted)).
		Set("updated_at = ?", now.UTC()).
		Where("id = ?", id).
		Where("status = ?", string(domain.ClaimStatusPending)).
		Where("expires_at >= ?", now.UTC()).
		Returning(claimColumns).
		Scan(ctx)
	if err == nil {
		log.Info("claim accepted",
			slog.String("claim_id", id.String()),
			slog.String("task_id", m.TaskID.String()))
		return m.toDomain(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		log.Error("failed to accept claim",
			slog.String("error", err.Error()),
			slog.String("claim_id", id.String()))
		return nil, MapError(err)
	}

	// The guard matched nothing: tell "missing" apart from "moved on".
	if _, getErr := s.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, store.ErrClaimNotPending
}

// CancelPendingExcept implements store.ClaimStore.CancelPendingExcept.
func (s *PostgresClaimStore) CancelPendingExcept(
	ctx context.Context,
	taskID, keep uuid.UUID,
	now time.Time,
) (int64, error) {
	res, err := s.db.NewUpdate().
		Model((*claimModel)(nil)).
		Set("status = ?", string(domain.ClaimStatusCancelled)).
		Set("updated_at = ?", now.UTC()).
		Where("task_id = ?", taskID).
		Where("id <> ?", keep).
		Where("status = ?", string(domain.ClaimStatusPending)).
		Exec(ctx)
	if err != nil {
		return 0, store.NewStoreError("claim", "cancel pending", "bulk update failed", MapError(err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected, nil
}

// RunInTx implements store.ClaimStore.RunInTx. A store that is already bound
// to a transaction runs fn inside that transaction.
func (s *PostgresClaimStore) RunInTx(
	ctx context.Context,
	fn func(ctx context.Context, tx store.ClaimStore) error,
) error {
	if _, inTx := s.db.(bun.Tx); inTx {
		return fn(ctx, s)
	}

	return store.RunInTransaction(ctx, s.root, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, s.withTx(tx))
	})
}

func (s *PostgresClaimStore) withTx(tx bun.Tx) *PostgresClaimStore {
	return &PostgresClaimStore{
		root:   s.root,
		db:     tx,
		logger: s.logger,
	}
}
