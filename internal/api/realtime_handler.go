package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/taskforperks/internal/api/shared"
	"github.com/phrazzld/taskforperks/internal/domain"
	"github.com/phrazzld/taskforperks/internal/platform/logger"
	"github.com/phrazzld/taskforperks/internal/realtime"
)

// DefaultHeartbeatInterval is how often an idle stream sends a comment
// line to keep intermediaries from closing it.
const DefaultHeartbeatInterval = 25 * time.Second

// SubscriptionAuthorizer issues and checks channel subscription tokens.
type SubscriptionAuthorizer interface {
	Authorize(ctx context.Context, socketID, channel string) (string, error)
	Verify(ctx context.Context, token, socketID, channel string) error
}

// Subscriber attaches to a channel's event stream.
type Subscriber interface {
	Subscribe(channel string) (<-chan *realtime.Event, func(), error)
}

// RealtimeAuthRequest is the body of POST /api/realtime/auth.
type RealtimeAuthRequest struct {
	SocketID    string `json:"socket_id" validate:"required"`
	ChannelName string `json:"channel_name" validate:"required"`
}

// RealtimeAuthResponse carries the subscription token.
type RealtimeAuthResponse struct {
	Auth string `json:"auth"`
}

// RealtimeHandler authorizes subscriptions and streams channel events as
// server-sent events.
type RealtimeHandler struct {
	gateway   SubscriptionAuthorizer
	hub       Subscriber
	heartbeat time.Duration
	logger    *slog.Logger
}

// RealtimeOption customizes a RealtimeHandler.
type RealtimeOption func(*RealtimeHandler)

// WithHeartbeat sets the idle heartbeat interval.
func WithHeartbeat(d time.Duration) RealtimeOption {
	return func(h *RealtimeHandler) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// NewRealtimeHandler creates a RealtimeHandler.
func NewRealtimeHandler(
	gateway SubscriptionAuthorizer,
	hub Subscriber,
	logger *slog.Logger,
	opts ...RealtimeOption,
) *RealtimeHandler {
	if gateway == nil || hub == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("gateway and hub cannot be nil for RealtimeHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &RealtimeHandler{
		gateway:   gateway,
		hub:       hub,
		heartbeat: DefaultHeartbeatInterval,
		logger:    logger.With(slog.String("component", "realtime_handler")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Authorize handles POST /api/realtime/auth.
func (h *RealtimeHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	if _, ok := getUserIDFromContext(r); !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	var req RealtimeAuthRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	token, err := h.gateway.Authorize(r.Context(), req.SocketID, req.ChannelName)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to authorize subscription")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, RealtimeAuthResponse{Auth: token})
}

// Stream handles GET /api/realtime/stream?socket_id=&channel=&token=. It
// holds the connection open and writes each channel event until the client
// disconnects or the hub shuts down.
func (h *RealtimeHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	socketID, channel, token := q.Get("socket_id"), q.Get("channel"), q.Get("token")

	if err := h.gateway.Verify(ctx, token, socketID, channel); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	events, unsubscribe, err := h.hub.Subscribe(channel)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to subscribe")
		return
	}
	defer unsubscribe()

	log := logger.FromContextOrDefault(ctx, h.logger).With(
		slog.String("channel", channel),
		slog.String("socket_id", socketID))

	rc := http.NewResponseController(w)
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": subscribed\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		log.Warn("response does not support streaming", slog.String("error", err.Error()))
		return
	}

	log.Debug("stream opened")
	defer log.Debug("stream closed")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, ev *realtime.Event) error {
	_, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Name, ev.Data)
	return err
}
