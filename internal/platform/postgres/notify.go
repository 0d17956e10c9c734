package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/taskforperks/internal/realtime"
	"github.com/phrazzld/taskforperks/internal/store"
)

// maxNotifyPayload is PostgreSQL's NOTIFY payload limit (8000 bytes) minus
// the terminator.
const maxNotifyPayload = 7999

// ErrNotifyPayloadTooLarge is returned when an encoded event exceeds the
// NOTIFY payload limit.
var ErrNotifyPayloadTooLarge = errors.New("notify payload too large")

// NotifyPublisher implements realtime.Publisher with pg_notify, so that a
// Listener in every API instance sees the event.
type NotifyPublisher struct {
	db      store.DBTX
	channel string
	logger  *slog.Logger
}

// Ensure NotifyPublisher implements realtime.Publisher interface
var _ realtime.Publisher = (*NotifyPublisher)(nil)

// NewNotifyPublisher creates a publisher that notifies on notifyChannel.
// db must accept $n placeholders, so pass the *sql.DB rather than bun.
func NewNotifyPublisher(db store.DBTX, notifyChannel string, logger *slog.Logger) *NotifyPublisher {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyPublisher{
		db:      db,
		channel: notifyChannel,
		logger:  logger.With(slog.String("component", "notify_publisher")),
	}
}

// Publish implements realtime.Publisher.
func (p *NotifyPublisher) Publish(ctx context.Context, channel, event string, payload any) error {
	ev, err := realtime.NewEvent(channel, event, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if len(body) > maxNotifyPayload {
		return fmt.Errorf("%w: %d bytes", ErrNotifyPayloadTooLarge, len(body))
	}

	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", p.channel, string(body)); err != nil {
		p.logger.Error("pg_notify failed",
			slog.String("error", err.Error()),
			slog.String("channel", channel))
		return fmt.Errorf("failed to notify: %w", err)
	}
	return nil
}

// Dispatcher receives events decoded by a Listener.
type Dispatcher interface {
	Dispatch(ev *realtime.Event) (int, error)
}

// Listener holds a dedicated connection on LISTEN and forwards every
// notification to a Dispatcher. It reconnects with backoff until its
// context is cancelled.
type Listener struct {
	dsn     string
	channel string
	sink    Dispatcher
	logger  *slog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
	connect    func(ctx context.Context, dsn string) (listenConn, error)
	sleep      func(ctx context.Context, d time.Duration) error

	readyOnce sync.Once
	ready     chan struct{}
}

// NewListener creates a listener for notifyChannel on the database at dsn.
func NewListener(dsn, notifyChannel string, sink Dispatcher, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		dsn:        dsn,
		channel:    notifyChannel,
		sink:       sink,
		logger:     logger.With(slog.String("component", "notify_listener")),
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		connect:    connectPgx,
		sleep:      sleepContext,
		ready:      make(chan struct{}),
	}
}

// listenConn is the part of *pgx.Conn the listener uses.
type listenConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

func connectPgx(ctx context.Context, dsn string) (listenConn, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Ready is closed once the first LISTEN has been issued.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Run listens until ctx is cancelled. It returns ctx.Err(). The backoff
// starts over after every connection that got as far as LISTEN.
func (l *Listener) Run(ctx context.Context) error {
	backoff := l.minBackoff
	for {
		listened, err := l.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if listened {
			backoff = l.minBackoff
		}
		l.logger.Warn("notification listener disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff))

		if err := l.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff = min(backoff*2, l.maxBackoff)
	}
}

// listen reports whether LISTEN was issued before the connection failed.
func (l *Listener) listen(ctx context.Context) (bool, error) {
	conn, err := l.connect(ctx, l.dsn)
	if err != nil {
		return false, fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return false, fmt.Errorf("failed to listen on %s: %w", l.channel, err)
	}
	l.logger.Info("listening for notifications", slog.String("channel", l.channel))
	l.readyOnce.Do(func() { close(l.ready) })

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return true, err
		}
		l.handle(n.Payload)
	}
}

func (l *Listener) handle(payload string) {
	var ev realtime.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		l.logger.Warn("discarding undecodable notification", slog.String("error", err.Error()))
		return
	}
	if _, err := realtime.TaskIDFromChannel(ev.Channel); err != nil || ev.Name == "" {
		l.logger.Warn("discarding notification for invalid channel", slog.String("channel", ev.Channel))
		return
	}
	if _, err := l.sink.Dispatch(&ev); err != nil {
		l.logger.Warn("failed to dispatch notification",
			slog.String("error", err.Error()),
			slog.String("channel", ev.Channel))
	}
}
