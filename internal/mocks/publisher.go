package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/taskforperks/internal/realtime"
)

// Publication is one recorded Publish call.
type Publication struct {
	Channel string
	Event   string
	Payload any
}

// MockPublisher implements realtime.Publisher and records every call.
type MockPublisher struct {
	PublishFn func(ctx context.Context, channel, event string, payload any) error

	// Errors makes Publish fail for the given channels.
	Errors map[string]error

	mu    sync.Mutex
	calls []Publication
}

var _ realtime.Publisher = (*MockPublisher)(nil)

// NewMockPublisher creates a publisher that accepts everything.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{Errors: make(map[string]error)}
}

// Publish implements realtime.Publisher.
func (p *MockPublisher) Publish(ctx context.Context, channel, event string, payload any) error {
	p.mu.Lock()
	p.calls = append(p.calls, Publication{Channel: channel, Event: event, Payload: payload})
	err := p.Errors[channel]
	fn := p.PublishFn
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, channel, event, payload)
	}
	return err
}

// Publications returns a copy of the recorded calls.
func (p *MockPublisher) Publications() []Publication {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Publication(nil), p.calls...)
}

// Channels returns the channel of every recorded call, in call order.
func (p *MockPublisher) Channels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.calls))
	for _, c := range p.calls {
		out = append(out, c.Channel)
	}
	return out
}
