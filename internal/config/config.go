package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string        `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Database
	DatabaseURL string `env:"DATABASE_URL,required"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"2"`

	// Notification listener
	ReconnectBaseDelay   time.Duration `env:"RECONNECT_BASE_DELAY" envDefault:"5s"`
	ReconnectMaxDelay    time.Duration `env:"RECONNECT_MAX_DELAY" envDefault:"60s"`
	MaxReconnectAttempts int           `env:"MAX_RECONNECT_ATTEMPTS" envDefault:"10"`
	HealthCheckInterval  time.Duration `env:"HEALTH_CHECK_INTERVAL" envDefault:"30s"`

	// Queues
	QueueMaxDepth   int           `env:"QUEUE_MAX_DEPTH" envDefault:"1000"`
	DispatchTimeout time.Duration `env:"DISPATCH_TIMEOUT" envDefault:"0"` // 0 = no per-item timeout

	// Reply (secondary) queue
	ReplyMinSpacing time.Duration `env:"REPLY_MIN_SPACING" envDefault:"60s"`

	// Startup recovery
	RecoveryMaxAge    time.Duration `env:"RECOVERY_MAX_AGE" envDefault:"1h"`
	RecoveryBatchSize int           `env:"RECOVERY_BATCH_SIZE" envDefault:"10"`

	// Posting collaborator (formats + publishes a record)
	PosterBaseURL  string        `env:"POSTER_BASE_URL" envDefault:"http://localhost:9090/post"`
	PosterReplyURL string        `env:"POSTER_REPLY_URL"` // empty disables the reply workflow
	PosterTimeout  time.Duration `env:"POSTER_TIMEOUT" envDefault:"30s"`

	// Per-category automation switches and the record-age cutoff the
	// dispatcher settings snapshot is built from.
	PostSales         bool          `env:"POST_SALES" envDefault:"true"`
	PostRegistrations bool          `env:"POST_REGISTRATIONS" envDefault:"true"`
	PostBids          bool          `env:"POST_BIDS" envDefault:"true"`
	MaxRecordAge      time.Duration `env:"MAX_RECORD_AGE" envDefault:"2h"`

	// Requests per second allowed on the status API.
	StatusRateLimit int `env:"STATUS_RATE_LIMIT" envDefault:"10"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.ReconnectBaseDelay <= 0 || cfg.ReconnectMaxDelay < cfg.ReconnectBaseDelay {
		return nil, fmt.Errorf("invalid reconnect delays: base=%s max=%s",
			cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay)
	}
	if cfg.MaxReconnectAttempts < 1 {
		return nil, fmt.Errorf("MAX_RECONNECT_ATTEMPTS must be at least 1")
	}
	if cfg.QueueMaxDepth < 1 {
		return nil, fmt.Errorf("QUEUE_MAX_DEPTH must be at least 1")
	}
	return cfg, nil
}
