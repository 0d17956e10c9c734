package domain

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// ClaimStatus is the lifecycle state of a claim.
type ClaimStatus string

// Claim status values. Only PENDING is mutable; every other status is
// terminal from the point of view of this service.
const (
	ClaimStatusPending   ClaimStatus = "PENDING"
	ClaimStatusExpired   ClaimStatus = "EXPIRED"
	ClaimStatusAccepted  ClaimStatus = "ACCEPTED"
	ClaimStatusCompleted ClaimStatus = "COMPLETED"
	ClaimStatusCancelled ClaimStatus = "CANCELLED"
)

// Bounds on how long a new claim may stay pending.
const (
	MinClaimTTL = time.Minute
	MaxClaimTTL = 7 * 24 * time.Hour
)

// Validation errors for Claim.
var (
	ErrEmptyClaimID       = errors.New("claim ID cannot be empty")
	ErrEmptyClaimTaskID   = errors.New("claim task ID cannot be empty")
	ErrEmptyClaimHelperID = errors.New("claim helper ID cannot be empty")
	ErrInvalidClaimFee    = errors.New("claim fee must be a non-negative number")
	ErrInvalidClaimStatus = errors.New("invalid claim status")
	ErrInvalidClaimTTL    = errors.New("claim time-to-live out of range")
)

// Claim is one helper's offer to fulfill a task for a fee.
type Claim struct {
	ID        uuid.UUID   `json:"id"`
	TaskID    uuid.UUID   `json:"task_id"`
	HelperID  uuid.UUID   `json:"helper_id"`
	Fee       float64     `json:"fee"`
	Status    ClaimStatus `json:"status"`
	ExpiresAt time.Time   `json:"expires_at"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NewClaim creates a pending claim that expires ttl after now.
func NewClaim(taskID, helperID uuid.UUID, fee float64, ttl time.Duration, now time.Time) (*Claim, error) {
	if ttl < MinClaimTTL || ttl > MaxClaimTTL {
		return nil, ErrInvalidClaimTTL
	}

	now = now.UTC()
	c := &Claim{
		ID:        uuid.New(),
		TaskID:    taskID,
		HelperID:  helperID,
		Fee:       fee,
		Status:    ClaimStatusPending,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks if the Claim has valid data.
func (c *Claim) Validate() error {
	if c.ID == uuid.Nil {
		return ErrEmptyClaimID
	}
	if c.TaskID == uuid.Nil {
		return ErrEmptyClaimTaskID
	}
	if c.HelperID == uuid.Nil {
		return ErrEmptyClaimHelperID
	}
	if c.Fee < 0 || math.IsNaN(c.Fee) || math.IsInf(c.Fee, 0) {
		return ErrInvalidClaimFee
	}
	if !c.Status.Valid() {
		return ErrInvalidClaimStatus
	}
	return nil
}

// IsOverdue reports whether a pending claim is eligible for expiry at now.
// The comparison is strict: a claim expiring exactly at now is not overdue.
func (c *Claim) IsOverdue(now time.Time) bool {
	return c.Status == ClaimStatusPending && now.After(c.ExpiresAt)
}

// Valid reports whether s is a known claim status.
func (s ClaimStatus) Valid() bool {
	switch s {
	case ClaimStatusPending, ClaimStatusExpired, ClaimStatusAccepted,
		ClaimStatusCompleted, ClaimStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s ClaimStatus) Terminal() bool {
	return s != ClaimStatusPending
}

// OverdueClaim is the projection the expiry sweeper works with.
type OverdueClaim struct {
	ID     uuid.UUID
	TaskID uuid.UUID
}
