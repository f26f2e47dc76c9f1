package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func TestProducerCapture(t *testing.T) {
	src := NewMock()
	p := NewProducer(src, WithQuality(0.8))

	frame, err := p.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	if frame.Width != 320 || frame.Height != 240 {
		t.Errorf("Expected 320x240, got %dx%d", frame.Width, frame.Height)
	}
	if frame.Quality != 80 {
		t.Errorf("Expected quality 80, got %d", frame.Quality)
	}

	img, err := jpeg.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		t.Fatalf("Frame is not a JPEG: %v", err)
	}
	if img.Bounds().Dx() != 320 {
		t.Errorf("Decoded width %d", img.Bounds().Dx())
	}
}

func TestProducerNotReady(t *testing.T) {
	src := NewMock()
	src.SetPlaying(false)
	p := NewProducer(src)

	frame, err := p.Capture(context.Background())
	if !errors.Is(err, ErrSourceNotReady) {
		t.Fatalf("Expected ErrSourceNotReady, got %v", err)
	}
	if frame != nil {
		t.Error("Expected no frame")
	}
	if len(src.Samples()) != 0 {
		t.Error("Source should not be sampled when not ready")
	}
}

func TestProducerNilSource(t *testing.T) {
	p := NewProducer(nil)
	if _, err := p.Capture(context.Background()); !errors.Is(err, ErrSourceNotReady) {
		t.Errorf("Expected ErrSourceNotReady, got %v", err)
	}
}

func TestProducerFallbackSize(t *testing.T) {
	src := NewMock()
	src.SetDimensions(0, 0)
	p := NewProducer(src)

	frame, err := p.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if frame.Width != DefaultWidth || frame.Height != DefaultHeight {
		t.Errorf("Expected fallback %dx%d, got %dx%d", DefaultWidth, DefaultHeight, frame.Width, frame.Height)
	}
}

func TestProducerRereadsDimensions(t *testing.T) {
	src := NewMock()
	p := NewProducer(src)
	ctx := context.Background()

	if _, err := p.Capture(ctx); err != nil {
		t.Fatal(err)
	}
	src.SetDimensions(160, 120)
	frame, err := p.Capture(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if frame.Width != 160 || frame.Height != 120 {
		t.Errorf("Expected 160x120 after resolution change, got %dx%d", frame.Width, frame.Height)
	}

	samples := src.Samples()
	if len(samples) != 2 || samples[0] != image.Pt(320, 240) || samples[1] != image.Pt(160, 120) {
		t.Errorf("Unexpected sample sizes %v", samples)
	}
}

func TestProducerSampleError(t *testing.T) {
	src := NewMock()
	src.SampleErr = errors.New("device unplugged")
	p := NewProducer(src)

	_, err := p.Capture(context.Background())

	var encErr *EncodeError
	if !errors.As(err, &encErr) {
		t.Fatalf("Expected EncodeError, got %T: %v", err, err)
	}
	if !errors.Is(err, src.SampleErr) {
		t.Error("EncodeError should unwrap to the sample error")
	}
}

type nativeSource struct {
	*Mock
	calls int
}

func (n *nativeSource) EncodeJPEG(width, height, quality int) ([]byte, error) {
	n.calls++
	return []byte{0xFF, 0xD8, byte(quality)}, nil
}

func TestProducerUsesNativeEncoder(t *testing.T) {
	src := &nativeSource{Mock: NewMock()}
	p := NewProducer(src, WithQuality(0.5))

	frame, err := p.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if src.calls != 1 {
		t.Errorf("Expected native encoder to be used once, got %d", src.calls)
	}
	if len(src.Samples()) != 0 {
		t.Error("Sample should be bypassed by native encoder")
	}
	if frame.Data[2] != 50 {
		t.Errorf("Expected quality 50 passed through, got %d", frame.Data[2])
	}
}

func TestProducerCancelledContext(t *testing.T) {
	p := NewProducer(NewMock())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Capture(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestJPEGQuality(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0.8, 80},
		{1, 100},
		{1.5, 100},
		{0, 1},
		{-1, 1},
		{0.005, 1},
		{0.123, 12},
	}
	for _, tt := range tests {
		if got := JPEGQuality(tt.in); got != tt.want {
			t.Errorf("JPEGQuality(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestStillSource(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))
	img.Set(0, 0, color.White)
	s := NewStillSource(img)

	if !s.Ready() {
		t.Fatal("Still source should start ready")
	}
	w, h := s.Dimensions()
	if w != 100 || h != 50 {
		t.Errorf("Expected 100x50, got %dx%d", w, h)
	}

	s.Pause()
	if s.Ready() {
		t.Error("Paused source should not be ready")
	}
	s.Resume()
	if !s.Ready() {
		t.Error("Resumed source should be ready")
	}
	s.End()
	if s.Ready() {
		t.Error("Ended source should not be ready")
	}

	scaled, err := s.Sample(50, 25)
	if err != nil {
		t.Fatal(err)
	}
	if scaled.Bounds().Dx() != 50 || scaled.Bounds().Dy() != 25 {
		t.Errorf("Expected 50x25 sample, got %v", scaled.Bounds())
	}
}

func TestThumbnail(t *testing.T) {
	wide := image.NewRGBA(image.Rect(0, 0, 640, 480))
	th := Thumbnail(wide, 160)
	if th.Bounds().Dx() != 160 || th.Bounds().Dy() != 120 {
		t.Errorf("Expected 160x120, got %v", th.Bounds())
	}

	tall := image.NewRGBA(image.Rect(0, 0, 300, 600))
	th = Thumbnail(tall, 160)
	if th.Bounds().Dx() != 80 || th.Bounds().Dy() != 160 {
		t.Errorf("Expected 80x160, got %v", th.Bounds())
	}

	small := image.NewRGBA(image.Rect(0, 0, 40, 30))
	if Thumbnail(small, 160) != image.Image(small) {
		t.Error("Small images should be returned unchanged")
	}
}
