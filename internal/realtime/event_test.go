package realtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelForTaskRoundTrip(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	ch := ChannelForTask(id)
	assert.Equal(t, "task-"+id.String(), ch)

	parsed, err := TaskIDFromChannel(ch)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestTaskIDFromChannelRejects(t *testing.T) {
	t.Parallel()

	for _, ch := range []string{
		"",
		"task-",
		"task-not-a-uuid",
		"private-task-" + uuid.NewString(),
		"task-" + uuid.Nil.String(),
		"task-" + "{" + uuid.NewString() + "}",
	} {
		_, err := TaskIDFromChannel(ch)
		assert.ErrorIs(t, err, ErrInvalidChannel, ch)
	}
}

func TestNewEvent(t *testing.T) {
	t.Parallel()

	ch := ChannelForTask(uuid.New())

	ev, err := NewEvent(ch, EventUpdated, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(ev.Data))
	assert.Equal(t, EventUpdated, ev.Name)
	assert.NotEqual(t, uuid.Nil, ev.ID)

	ev, err = NewEvent(ch, EventUpdated, map[string]int{"count": 2})
	require.NoError(t, err)
	var got map[string]int
	require.NoError(t, ev.UnmarshalData(&got))
	assert.Equal(t, 2, got["count"])

	_, err = NewEvent(ch, " ", nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = NewEvent("bogus", EventUpdated, nil)
	assert.ErrorIs(t, err, ErrInvalidChannel)

	_, err = NewEvent(ch, EventUpdated, func() {})
	assert.Error(t, err)
}
