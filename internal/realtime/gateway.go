package realtime

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/taskforperks/internal/config"
	"github.com/phrazzld/taskforperks/internal/platform/clock"
	"github.com/phrazzld/taskforperks/internal/platform/logger"
)

const subscriptionTokenType = "subscription"

var (
	// ErrInvalidSocketID indicates a missing or malformed socket identifier.
	ErrInvalidSocketID = errors.New("invalid socket id")

	// ErrChannelNotFound indicates the channel's task does not exist.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrInvalidSubscriptionToken indicates a subscription token that is
	// malformed, expired, or bound to another socket or channel.
	ErrInvalidSubscriptionToken = errors.New("invalid subscription token")
)

var socketIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// TaskLookup reports whether a task exists.
type TaskLookup interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Gateway authorizes a client socket to subscribe to a task channel.
type Gateway struct {
	signingKey []byte
	lifetime   time.Duration
	tasks      TaskLookup
	clock      clock.Clock
}

type subscriptionClaims struct {
	SocketID  string `json:"sid"`
	Channel   string `json:"ch"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// NewGateway creates a gateway from the realtime configuration.
func NewGateway(cfg config.RealtimeConfig, tasks TaskLookup, clk clock.Clock) (*Gateway, error) {
	if len(cfg.SigningSecret) < 32 {
		return nil, fmt.Errorf("realtime signing secret must be at least 32 characters")
	}
	if cfg.TokenLifetime <= 0 {
		return nil, fmt.Errorf("realtime token lifetime must be positive")
	}
	if tasks == nil {
		return nil, fmt.Errorf("task lookup cannot be nil")
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Gateway{
		signingKey: []byte(cfg.SigningSecret),
		lifetime:   cfg.TokenLifetime,
		tasks:      tasks,
		clock:      clk,
	}, nil
}

// Authorize returns a token binding socketID to channel. The channel must
// name an existing task.
func (g *Gateway) Authorize(ctx context.Context, socketID, channel string) (string, error) {
	log := logger.FromContext(ctx)

	if !socketIDPattern.MatchString(socketID) {
		return "", ErrInvalidSocketID
	}
	taskID, err := TaskIDFromChannel(channel)
	if err != nil {
		return "", err
	}

	exists, err := g.tasks.Exists(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("failed to look up task for channel: %w", err)
	}
	if !exists {
		log.Debug("subscription refused: unknown task", "channel", channel)
		return "", ErrChannelNotFound
	}

	now := g.clock.Now()
	claims := subscriptionClaims{
		SocketID:  socketID,
		Channel:   channel,
		TokenType: subscriptionTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.lifetime)),
			ID:        uuid.New().String(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign subscription token: %w", err)
	}

	log.Debug("subscription authorized", "channel", channel, "socket_id", socketID)
	return signed, nil
}

// Verify checks that token was issued for this socketID and channel and has
// not expired.
func (g *Gateway) Verify(ctx context.Context, token, socketID, channel string) error {
	log := logger.FromContext(ctx)
	now := g.clock.Now()

	parsed, err := jwt.ParseWithClaims(
		token,
		&subscriptionClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return g.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		log.Debug("subscription token rejected", "error", err)
		return ErrInvalidSubscriptionToken
	}

	claims, ok := parsed.Claims.(*subscriptionClaims)
	if !ok || !parsed.Valid ||
		claims.TokenType != subscriptionTokenType ||
		claims.SocketID != socketID ||
		claims.Channel != channel {
		log.Debug("subscription token does not match request",
			"channel", channel,
			"socket_id", socketID)
		return ErrInvalidSubscriptionToken
	}
	return nil
}
