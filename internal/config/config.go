package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Realtime RealtimeConfig `mapstructure:"realtime" validate:"required"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gt=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gt=0"`
}

// AuthConfig holds the bearer token settings shared with the identity
// provider.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`
}

// RealtimeConfig configures the notification channel and the subscription
// token gateway.
type RealtimeConfig struct {
	// Transport selects how published events reach subscribers: "memory"
	// keeps them in process, "postgres" fans them out through LISTEN/NOTIFY
	// so every API instance sees them.
	Transport     string        `mapstructure:"transport" validate:"required,oneof=memory postgres"`
	NotifyChannel string        `mapstructure:"notify_channel" validate:"required_if=Transport postgres"`
	SigningSecret string        `mapstructure:"signing_secret" validate:"required,min=32"`
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`
	// SubscriberBuffer is the per-subscriber event buffer; events beyond it
	// are dropped for that subscriber.
	SubscriberBuffer int `mapstructure:"subscriber_buffer" validate:"gt=0"`
}

// SweeperConfig configures the claim expiry sweeper.
type SweeperConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
	// Timeout bounds a single sweep cycle. Zero means half the interval.
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
	// Jitter delays each cycle by a random duration in [0, Jitter).
	Jitter             time.Duration `mapstructure:"jitter" validate:"gte=0"`
	PublishConcurrency int           `mapstructure:"publish_concurrency" validate:"gt=0,lte=64"`
}

// CycleTimeout returns the effective per-cycle timeout.
func (c SweeperConfig) CycleTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return c.Interval / 2
}
