package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrHubClosed is returned by Subscribe and Publish after Close.
var ErrHubClosed = errors.New("realtime hub closed")

// DefaultSubscriberBuffer is used when NewHub is given a non-positive size.
const DefaultSubscriberBuffer = 16

// Hub is an in-process fan-out of events to channel subscribers. Publishing
// never blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*subscriber]struct{}
	closed   bool

	buffer  int
	dropped atomic.Uint64
	onDrop  func(channel string)
	logger  *slog.Logger
}

type subscriber struct {
	ch chan *Event
}

// Ensure Hub implements Publisher interface
var _ Publisher = (*Hub)(nil)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithDropHook registers fn to be called for every dropped event.
func WithDropHook(fn func(channel string)) HubOption {
	return func(h *Hub) { h.onDrop = fn }
}

// NewHub creates a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int, logger *slog.Logger, opts ...HubOption) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		channels: make(map[string]map[*subscriber]struct{}),
		buffer:   buffer,
		logger:   logger.With("component", "realtime_hub"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a subscriber on channel. The returned function
// unsubscribes and closes the event channel; it is safe to call twice.
func (h *Hub) Subscribe(channel string) (<-chan *Event, func(), error) {
	if _, err := TaskIDFromChannel(channel); err != nil {
		return nil, nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, nil, ErrHubClosed
	}

	sub := &subscriber{ch: make(chan *Event, h.buffer)}
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.channels[channel] = subs
	}
	subs[sub] = struct{}{}

	h.logger.Debug("subscriber added", "channel", channel, "subscriber_count", len(subs))

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() { h.remove(channel, sub) })
	}, nil
}

func (h *Hub) remove(channel string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.channels[channel]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(h.channels, channel)
	}
}

// Publish implements Publisher by dispatching to local subscribers.
func (h *Hub) Publish(ctx context.Context, channel, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev, err := NewEvent(channel, event, payload)
	if err != nil {
		return err
	}
	if _, err := h.Dispatch(ev); err != nil {
		return err
	}
	return nil
}

// Dispatch delivers ev to every subscriber of its channel and returns the
// number that received it.
func (h *Hub) Dispatch(ev *Event) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrHubClosed
	}

	delivered := 0
	for sub := range h.channels[ev.Channel] {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			h.dropped.Add(1)
			if h.onDrop != nil {
				h.onDrop(ev.Channel)
			}
			h.logger.Warn("subscriber buffer full, event dropped",
				"channel", ev.Channel,
				"event", ev.Name,
				"event_id", ev.ID)
		}
	}
	return delivered, nil
}

// Subscribers returns the number of subscribers on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Dropped returns the total number of events dropped for slow subscribers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close unsubscribes everyone. Subsequent calls are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for channel, subs := range h.channels {
		for sub := range subs {
			close(sub.ch)
		}
		delete(h.channels, channel)
	}
}
