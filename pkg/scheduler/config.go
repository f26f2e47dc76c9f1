package scheduler

import (
	"log/slog"
	"time"

	"github.com/mixer/clock"
)

// OverlapPolicy decides what a timer tick does while the previous auto
// cycle is still waiting on the network.
type OverlapPolicy int

const (
	// OverlapSkip drops the tick. At most one auto cycle is in flight.
	OverlapSkip OverlapPolicy = iota

	// OverlapAllow dispatches anyway. Completions may arrive out of order;
	// results stay tagged with their Seq.
	OverlapAllow
)

// String implements fmt.Stringer.
func (p OverlapPolicy) String() string {
	if p == OverlapAllow {
		return "allow"
	}
	return "skip"
}

// Config holds scheduler configuration.
type Config struct {
	// Period between auto cycles, already floored.
	Period time.Duration

	// Overlap decides what to do with ticks that land on a busy cycle.
	Overlap OverlapPolicy

	// ErrorLabel is the label given to failed results.
	ErrorLabel string

	// Clock drives the ticker. Tests inject a mock.
	Clock clock.Clock

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring the scheduler.
type Option func(*Config)

// WithInterval sets the auto interval in seconds, applying the floor.
func WithInterval(seconds float64) Option {
	return func(c *Config) { c.Period = EffectivePeriod(seconds) }
}

// WithOverlap sets the overlap policy.
func WithOverlap(p OverlapPolicy) Option {
	return func(c *Config) { c.Overlap = p }
}

// WithErrorLabel sets the label used for failed results.
func WithErrorLabel(label string) Option {
	return func(c *Config) { c.ErrorLabel = label }
}

// WithClock injects the clock.
func WithClock(clk clock.Clock) Option {
	return func(c *Config) { c.Clock = clk }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns a 3s skip-on-overlap scheduler on the wall clock.
func DefaultConfig() *Config {
	return &Config{
		Period:     DefaultInterval,
		Overlap:    OverlapSkip,
		ErrorLabel: "Error",
		Clock:      clock.C,
		Logger:     slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
