package realtime

import "context"

// Publisher sends an event on a channel. Delivery is fire-and-forget: a nil
// error means the transport accepted the event, not that anyone received it.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload any) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, channel, event string, payload any) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, channel, event string, payload any) error {
	return f(ctx, channel, event, payload)
}
