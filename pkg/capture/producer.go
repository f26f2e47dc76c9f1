package capture

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"math"
	"time"
)

// Config holds Producer settings.
type Config struct {
	// Quality is the JPEG quality factor in (0, 1].
	Quality float64

	// Fallback size when the source reports no dimensions.
	DefaultWidth  int
	DefaultHeight int
}

// Option configures a Producer.
type Option func(*Config)

// WithQuality sets the JPEG quality factor (0-1).
func WithQuality(q float64) Option {
	return func(c *Config) { c.Quality = q }
}

// WithDefaultSize sets the fallback resolution.
func WithDefaultSize(width, height int) Option {
	return func(c *Config) {
		c.DefaultWidth = width
		c.DefaultHeight = height
	}
}

// DefaultConfig returns the producer defaults (quality 0.8, 640x480 fallback).
func DefaultConfig() Config {
	return Config{
		Quality:       0.8,
		DefaultWidth:  DefaultWidth,
		DefaultHeight: DefaultHeight,
	}
}

// Producer encodes one still per call. It keeps no state between calls.
type Producer struct {
	source Source
	config Config
	now    func() time.Time
}

// NewProducer creates a producer sampling from src.
func NewProducer(src Source, opts ...Option) *Producer {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Producer{source: src, config: cfg, now: time.Now}
}

// JPEGQuality converts a 0-1 quality factor to the 1-100 scale.
func JPEGQuality(factor float64) int {
	if math.IsNaN(factor) {
		return 80
	}
	q := int(math.Round(factor * 100))
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

// Capture samples the source at its current native size and encodes it.
// Returns ErrSourceNotReady when nothing is playing.
func (p *Producer) Capture(ctx context.Context) (*Frame, error) {
	if p.source == nil || !p.source.Ready() {
		return nil, ErrSourceNotReady
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Re-read every call; resolution may change mid-session.
	w, h := p.source.Dimensions()
	if w <= 0 || h <= 0 {
		w, h = p.config.DefaultWidth, p.config.DefaultHeight
	}
	quality := JPEGQuality(p.config.Quality)
	at := p.now()

	if enc, ok := p.source.(Encoder); ok {
		data, err := enc.EncodeJPEG(w, h, quality)
		if err != nil {
			return nil, &EncodeError{Err: err}
		}
		return &Frame{Data: data, Width: w, Height: h, Quality: quality, CapturedAt: at}, nil
	}

	img, err := p.source.Sample(w, h)
	if err != nil {
		return nil, &EncodeError{Err: err}
	}

	data, err := EncodeJPEG(img, quality)
	if err != nil {
		return nil, &EncodeError{Err: err}
	}

	b := img.Bounds()
	return &Frame{Data: data, Width: b.Dx(), Height: b.Dy(), Quality: quality, CapturedAt: at}, nil
}

// EncodeJPEG encodes img at the given 1-100 quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(64 * 1024)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var _ Capturer = (*Producer)(nil)
