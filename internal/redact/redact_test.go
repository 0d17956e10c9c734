package redact_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/phrazzld/taskforperks/internal/redact"
	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "plain message is untouched",
			input:    "failed to publish task update",
			expected: "failed to publish task update",
		},
		{
			name:     "connection string credentials",
			input:    "dial postgres://app:hunter2@db:5432/tfp failed",
			expected: "dial postgres://[REDACTED_CREDENTIAL]@db:5432/tfp failed",
		},
		{
			name:     "password parameter",
			input:    "auth failed password=s3cr3t for user",
			expected: "auth failed password=[REDACTED] for user",
		},
		{
			name:     "secret with colon",
			input:    "config secret: abcdefgh12345678 rejected",
			expected: "config secret: [REDACTED] rejected",
		},
		{
			name: "jwt",
			input: "bad bearer eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9." +
				"eyJzdWIiOiIxMjM0NTY3ODkwIn0.SflKxwRJSMeKKF2QT4fwpMeJf36POk6yJV_adQssw5c here",
			expected: "bad bearer [REDACTED_JWT] here",
		},
		{
			name:     "email",
			input:    "helper alice@example.com not found",
			expected: "helper [REDACTED_EMAIL] not found",
		},
		{
			name:     "sql statement",
			input:    `ERROR: deadlock detected in UPDATE claims SET status = 'EXPIRED' WHERE id = $1`,
			expected: "ERROR: deadlock detected in [REDACTED_SQL]",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, redact.String(tc.input))
		})
	}
}

func TestError(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.Equal(t, "", redact.Error(nil))
	})

	t.Run("wrapped error", func(t *testing.T) {
		base := errors.New("connect postgres://u:p@localhost/db refused")
		err := fmt.Errorf("open database: %w", base)
		assert.Equal(t,
			"open database: connect postgres://[REDACTED_CREDENTIAL]@localhost/db refused",
			redact.Error(err))
	})
}
