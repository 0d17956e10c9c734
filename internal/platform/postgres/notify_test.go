package postgres

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/taskforperks/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// eventPayload matches the JSON body of a NOTIFY for the given channel.
type eventPayload struct{ channel string }

func (m eventPayload) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	var ev realtime.Event
	if err := json.Unmarshal([]byte(s), &ev); err != nil {
		return false
	}
	return ev.Channel == m.channel && ev.Name == realtime.EventUpdated && string(ev.Data) == "{}"
}

func TestNotifyPublisherPublish(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	channel := realtime.ChannelForTask(uuid.New())
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_notify($1, $2)")).
		WithArgs("tfp_events", eventPayload{channel: channel}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	pub := NewNotifyPublisher(db, "tfp_events", discardLogger())
	require.NoError(t, pub.Publish(context.Background(), channel, realtime.EventUpdated, struct{}{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifyPublisherErrors(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	pub := NewNotifyPublisher(db, "tfp_events", discardLogger())
	channel := realtime.ChannelForTask(uuid.New())

	t.Run("invalid channel", func(t *testing.T) {
		err := pub.Publish(context.Background(), "lobby", realtime.EventUpdated, nil)
		assert.ErrorIs(t, err, realtime.ErrInvalidChannel)
	})

	t.Run("payload too large", func(t *testing.T) {
		big := map[string]string{"blob": strings.Repeat("x", maxNotifyPayload)}
		err := pub.Publish(context.Background(), channel, realtime.EventUpdated, big)
		assert.ErrorIs(t, err, ErrNotifyPayloadTooLarge)
	})

	t.Run("database failure", func(t *testing.T) {
		boom := errors.New("connection refused")
		mock.ExpectExec(regexp.QuoteMeta("SELECT pg_notify($1, $2)")).WillReturnError(boom)
		err := pub.Publish(context.Background(), channel, realtime.EventUpdated, nil)
		assert.ErrorIs(t, err, boom)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListenerHandle(t *testing.T) {
	t.Parallel()

	hub := realtime.NewHub(4, discardLogger())
	defer hub.Close()
	l := NewListener("postgres://unused", "tfp_events", hub, discardLogger())

	channel := realtime.ChannelForTask(uuid.New())
	sub, unsub, err := hub.Subscribe(channel)
	require.NoError(t, err)
	defer unsub()

	ev, err := realtime.NewEvent(channel, realtime.EventUpdated, nil)
	require.NoError(t, err)
	body, err := json.Marshal(ev)
	require.NoError(t, err)

	l.handle("not json")
	l.handle(`{"channel":"lobby","event":"updated","data":{}}`)
	assert.Len(t, sub, 0)

	l.handle(string(body))
	require.Len(t, sub, 1)
	got := <-sub
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, channel, got.Channel)
}

func TestListenerRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	hub := realtime.NewHub(1, discardLogger())
	defer hub.Close()
	l := NewListener("postgres://127.0.0.1:1/none?connect_timeout=1", "tfp_events", hub, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Run(ctx), context.Canceled)
}

// scriptedConn delivers its notifications and then fails.
type scriptedConn struct {
	payloads []string
	listened []string
}

func (c *scriptedConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.listened = append(c.listened, sql)
	return pgconn.CommandTag{}, nil
}

func (c *scriptedConn) WaitForNotification(context.Context) (*pgconn.Notification, error) {
	if len(c.payloads) == 0 {
		return nil, errors.New("connection reset")
	}
	p := c.payloads[0]
	c.payloads = c.payloads[1:]
	return &pgconn.Notification{Channel: "tfp_events", Payload: p}, nil
}

func (c *scriptedConn) Close(context.Context) error { return nil }

func TestListenerRunResetsBackoffAfterListen(t *testing.T) {
	t.Parallel()

	hub := realtime.NewHub(4, discardLogger())
	defer hub.Close()
	channel := realtime.ChannelForTask(uuid.New())
	sub, unsub, err := hub.Subscribe(channel)
	require.NoError(t, err)
	defer unsub()

	ev, err := realtime.NewEvent(channel, realtime.EventUpdated, nil)
	require.NoError(t, err)
	body, err := json.Marshal(ev)
	require.NoError(t, err)

	conn := &scriptedConn{payloads: []string{string(body)}}
	refused := errors.New("connection refused")
	// Three refusals, one healthy connection, then refusals again.
	attempts := []listenConn{nil, nil, nil, conn}

	l := NewListener("postgres://unused", "tfp_events", hub, discardLogger())
	l.connect = func(context.Context, string) (listenConn, error) {
		if len(attempts) == 0 {
			return nil, refused
		}
		next := attempts[0]
		attempts = attempts[1:]
		if next == nil {
			return nil, refused
		}
		return next, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var waits []time.Duration
	l.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) == 5 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	assert.ErrorIs(t, l.Run(ctx), context.Canceled)
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second,
		time.Second, 2 * time.Second,
	}, waits)

	select {
	case <-l.Ready():
	default:
		t.Fatal("listener never reported ready")
	}
	assert.Equal(t, []string{`LISTEN "tfp_events"`}, conn.listened)
	require.Len(t, sub, 1)
	assert.Equal(t, ev.ID, (<-sub).ID)
}
