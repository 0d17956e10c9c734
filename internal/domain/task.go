package domain

import (
	"time"

	"github.com/google/uuid"
)

// Task is an errand posted by a user. Tasks are created outside this
// service; it only reads them.
type Task struct {
	ID        uuid.UUID `json:"id"`
	PosterID  uuid.UUID `json:"poster_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}
