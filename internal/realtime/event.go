package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventUpdated tells subscribers that a task's claims changed and the
// summary should be fetched again.
const EventUpdated = "updated"

const taskChannelPrefix = "task-"

var (
	// ErrInvalidChannel indicates a channel name that is not task-{uuid}.
	ErrInvalidChannel = errors.New("invalid channel name")

	// ErrInvalidEvent indicates an event with no name.
	ErrInvalidEvent = errors.New("invalid event name")
)

// Event is one notification on a channel.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Channel   string          `json:"channel"`
	Name      string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEvent builds an event for channel. A nil payload is sent as {}.
func NewEvent(channel, name string, payload any) (*Event, error) {
	if _, err := TaskIDFromChannel(channel); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidEvent
	}

	data := json.RawMessage(`{}`)
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode event payload: %w", err)
		}
		data = b
	}

	return &Event{
		ID:        uuid.New(),
		Channel:   channel,
		Name:      name,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// UnmarshalData decodes the event payload into v.
func (e *Event) UnmarshalData(v any) error {
	return json.Unmarshal(e.Data, v)
}

// ChannelForTask returns the channel key for a task.
func ChannelForTask(taskID uuid.UUID) string {
	return taskChannelPrefix + taskID.String()
}

// TaskIDFromChannel parses a channel key back into its task ID.
func TaskIDFromChannel(channel string) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(channel, taskChannelPrefix)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidChannel, channel)
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil || id.String() != raw {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidChannel, channel)
	}
	return id, nil
}
