package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/taskforperks/internal/store"
	"github.com/stretchr/testify/assert"
)

func newPgError(code, constraint string) *pgconn.PgError {
	return &pgconn.PgError{
		Code:           code,
		Message:        "error message",
		SchemaName:     "public",
		TableName:      "claims",
		ColumnName:     "fee",
		ConstraintName: constraint,
	}
}

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{"nil", nil, nil},
		{"no rows", sql.ErrNoRows, store.ErrNotFound},
		{"unique", newPgError(uniqueViolationCode, "uq"), store.ErrDuplicate},
		{"foreign key", newPgError(foreignKeyViolationCode, "fk"), store.ErrInvalidEntity},
		{"check", newPgError(checkViolationCode, "claims_fee_check"), store.ErrInvalidEntity},
		{"not null", newPgError(notNullViolationCode, ""), store.ErrInvalidEntity},
		{"wrapped unique", fmt.Errorf("insert: %w", newPgError(uniqueViolationCode, "uq")), store.ErrDuplicate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := MapError(tt.err)
			if tt.expected == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.expected)
		})
	}

	t.Run("unmapped error passes through", func(t *testing.T) {
		t.Parallel()
		orig := errors.New("connection reset")
		assert.Same(t, orig, MapError(orig))
	})
}

func TestViolationPredicates(t *testing.T) {
	t.Parallel()

	unique := newPgError(uniqueViolationCode, pendingClaimUniqueIndex)
	fk := newPgError(foreignKeyViolationCode, claimTaskForeignKey)
	check := newPgError(checkViolationCode, "claims_fee_check")

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(fk))
	assert.True(t, IsForeignKeyViolation(fk))
	assert.False(t, IsForeignKeyViolation(errors.New("plain")))
	assert.True(t, IsCheckConstraintViolation(check))

	assert.Equal(t, pendingClaimUniqueIndex, constraintName(fmt.Errorf("wrap: %w", unique)))
	assert.Equal(t, "", constraintName(errors.New("plain")))
}
