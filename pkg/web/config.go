package web

import (
	"log/slog"
	"time"
)

// Config holds dashboard server configuration.
type Config struct {
	// Port to listen on, without the colon.
	Port string

	// ServerURL is the classification endpoint, shown on the dashboard.
	ServerURL string

	// SnapTimeout bounds how long POST /api/snap?wait=1 blocks.
	SnapTimeout time.Duration

	// Debug enables per-request access logs.
	Debug bool

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring the server.
type Option func(*Config)

// WithPort sets the listen port.
func WithPort(port string) Option {
	return func(c *Config) { c.Port = port }
}

// WithServerURL sets the endpoint URL shown on the dashboard.
func WithServerURL(url string) Option {
	return func(c *Config) { c.ServerURL = url }
}

// WithSnapTimeout sets the wait bound for blocking snaps.
func WithSnapTimeout(d time.Duration) Option {
	return func(c *Config) { c.SnapTimeout = d }
}

// WithDebug enables access logging.
func WithDebug(debug bool) Option {
	return func(c *Config) { c.Debug = debug }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns a config listening on 8080.
func DefaultConfig() Config {
	return Config{
		Port:        "8080",
		SnapTimeout: 30 * time.Second,
		Logger:      slog.Default(),
	}
}
