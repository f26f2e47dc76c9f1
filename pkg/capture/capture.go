// Package capture turns a live video source into encoded still frames.
//
// A Producer pulls one frame on demand from a Source and encodes it as JPEG:
//
//	src, _ := capture.LoadStill("car.jpg")
//	p := capture.NewProducer(src, capture.WithQuality(0.8))
//	frame, err := p.Capture(ctx)
//	if errors.Is(err, capture.ErrSourceNotReady) {
//	    // nothing playing, skip this cycle
//	}
package capture

import (
	"context"
	"image"
	"time"
)

// Fallback resolution used when a source cannot report its dimensions.
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// Source is a live video source the Producer samples from.
type Source interface {
	// Ready reports whether the source is playing (not paused, not ended).
	Ready() bool

	// Dimensions returns the current native frame size. Zero values mean unknown.
	Dimensions() (width, height int)

	// Sample grabs the current frame scaled to width x height.
	Sample(width, height int) (image.Image, error)
}

// Encoder is implemented by sources that can produce JPEG bytes natively,
// skipping the image.Image round trip.
type Encoder interface {
	EncodeJPEG(width, height, quality int) ([]byte, error)
}

// Frame is one encoded still.
type Frame struct {
	Data       []byte    // JPEG bytes
	Width      int       // Encoded width in pixels
	Height     int       // Encoded height in pixels
	Quality    int       // JPEG quality 1-100
	CapturedAt time.Time // When the frame was sampled
}

// Capturer produces encoded frames. *Producer implements it.
type Capturer interface {
	Capture(ctx context.Context) (*Frame, error)
}

// CapturerFunc adapts a function to the Capturer interface.
type CapturerFunc func(ctx context.Context) (*Frame, error)

// Capture calls f(ctx).
func (f CapturerFunc) Capture(ctx context.Context) (*Frame, error) {
	return f(ctx)
}
