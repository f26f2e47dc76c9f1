package stub

import (
	"log/slog"

	"github.com/mixer/clock"
)

const (
	// DefaultPath is the prediction route.
	DefaultPath = "/predict-file"

	// DefaultMinConfidence is the save threshold for non-normal labels.
	DefaultMinConfidence = 0.5

	// NoSubjectLabel answers frames the Detector rejects.
	NoSubjectLabel = "No Car Detected"
)

// Config holds stub server configuration.
type Config struct {
	Path          string
	SaveDir       string // empty disables saving
	MinConfidence float64
	FieldName     string
	BodyLimit     int

	Classifier Classifier
	Detector   Detector // optional

	Clock  clock.Clock
	Logger *slog.Logger
	Debug  bool
}

// Option is a functional option for configuring the stub.
type Option func(*Config)

// WithPath sets the prediction route.
func WithPath(path string) Option {
	return func(c *Config) { c.Path = path }
}

// WithSaveDir sets where flagged frames are written.
func WithSaveDir(dir string) Option {
	return func(c *Config) { c.SaveDir = dir }
}

// WithMinConfidence sets the save threshold.
func WithMinConfidence(v float64) Option {
	return func(c *Config) { c.MinConfidence = v }
}

// WithClassifier sets the model.
func WithClassifier(cl Classifier) Option {
	return func(c *Config) { c.Classifier = cl }
}

// WithDetector sets the subject detector.
func WithDetector(d Detector) Option {
	return func(c *Config) { c.Detector = d }
}

// WithClock injects the clock used for filenames.
func WithClock(clk clock.Clock) Option {
	return func(c *Config) { c.Clock = clk }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithDebug enables access logging.
func WithDebug(debug bool) Option {
	return func(c *Config) { c.Debug = debug }
}

// DefaultConfig returns the stub defaults.
func DefaultConfig() Config {
	return Config{
		Path:          DefaultPath,
		MinConfidence: DefaultMinConfidence,
		FieldName:     "file",
		BodyLimit:     16 * 1024 * 1024,
		Clock:         clock.C,
		Logger:        slog.Default(),
	}
}
