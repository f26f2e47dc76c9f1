package upload

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// Config holds uploader configuration.
type Config struct {
	// Endpoint
	URL string // Absolute http(s) URL of the classification endpoint

	// Multipart layout
	FieldName   string // Form field carrying the image
	FileName    string // Filename metadata sent with the part
	ContentType string // Content type of the part

	// FallbackLabel replaces a missing label in successful responses.
	FallbackLabel string

	// Timeout bounds a request at the transport. Zero means no bound.
	Timeout time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithURL sets the endpoint URL.
func WithURL(u string) Option {
	return func(c *Config) { c.URL = u }
}

// WithFieldName sets the multipart field name.
func WithFieldName(name string) Option {
	return func(c *Config) { c.FieldName = name }
}

// WithFileName sets the multipart filename.
func WithFileName(name string) Option {
	return func(c *Config) { c.FileName = name }
}

// WithFallbackLabel sets the label used when the response has none.
func WithFallbackLabel(label string) Option {
	return func(c *Config) { c.FallbackLabel = label }
}

// WithTimeout sets the transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns defaults matching the reference /predict-file endpoint.
func DefaultConfig() *Config {
	return &Config{
		URL:           "http://localhost:8000/predict-file",
		FieldName:     "file",
		FileName:      "frame.jpg",
		ContentType:   "image/jpeg",
		FallbackLabel: "Unknown",
		Logger:        slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrNoURL
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("upload: parse url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upload: url must be absolute http(s), got %q", c.URL)
	}
	if c.FieldName == "" {
		return fmt.Errorf("upload: field name required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("upload: negative timeout")
	}
	return nil
}
