package capture

import (
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for LoadStill
	_ "image/png"
	"os"
	"sync"
)

// StillSource serves a fixed image as if it were a live stream.
// Useful for headless runs against a saved photo and for tests.
type StillSource struct {
	mu     sync.RWMutex
	img    image.Image
	paused bool
	ended  bool
}

// NewStillSource wraps img. A nil image is never ready.
func NewStillSource(img image.Image) *StillSource {
	return &StillSource{img: img}
}

// LoadStill decodes a JPEG or PNG file into a StillSource.
func LoadStill(path string) (*StillSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open still: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode still %s: %w", path, err)
	}
	return NewStillSource(img), nil
}

// Ready reports whether the still is "playing".
func (s *StillSource) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.img != nil && !s.paused && !s.ended
}

// Dimensions returns the image size.
func (s *StillSource) Dimensions() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.img == nil {
		return 0, 0
	}
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// Sample returns the image scaled to width x height.
func (s *StillSource) Sample(width, height int) (image.Image, error) {
	s.mu.RLock()
	img := s.img
	s.mu.RUnlock()
	if img == nil {
		return nil, ErrSourceNotReady
	}
	return Scale(img, width, height), nil
}

// SetImage swaps the served image, e.g. to simulate a resolution change.
func (s *StillSource) SetImage(img image.Image) {
	s.mu.Lock()
	s.img = img
	s.mu.Unlock()
}

// Pause stops the source being ready until Resume.
func (s *StillSource) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume undoes Pause.
func (s *StillSource) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

// End marks the source permanently finished.
func (s *StillSource) End() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
}

var _ Source = (*StillSource)(nil)
