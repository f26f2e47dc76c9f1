package capture

import (
	"image"
	"image/color"
	"sync"
)

// Mock implements Source for testing.
type Mock struct {
	mu sync.Mutex

	// Playing controls Ready().
	Playing bool

	// Width and Height are reported by Dimensions. Zero means unknown.
	Width, Height int

	// SampleErr, when set, is returned by Sample.
	SampleErr error

	// Fill is the solid colour of sampled frames.
	Fill color.Color

	samples []image.Point
}

// NewMock returns a playing 320x240 mock source.
func NewMock() *Mock {
	return &Mock{Playing: true, Width: 320, Height: 240, Fill: color.RGBA{R: 90, G: 120, B: 200, A: 255}}
}

// Ready returns Playing.
func (m *Mock) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Playing
}

// Dimensions returns Width and Height.
func (m *Mock) Dimensions() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Width, m.Height
}

// Sample records the requested size and returns a solid frame.
func (m *Mock) Sample(width, height int) (image.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, image.Pt(width, height))
	if m.SampleErr != nil {
		return nil, m.SampleErr
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill := m.Fill
	if fill == nil {
		fill = color.Black
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}
	return img, nil
}

// SetPlaying toggles readiness.
func (m *Mock) SetPlaying(playing bool) {
	m.mu.Lock()
	m.Playing = playing
	m.mu.Unlock()
}

// SetDimensions changes the reported size.
func (m *Mock) SetDimensions(width, height int) {
	m.mu.Lock()
	m.Width, m.Height = width, height
	m.mu.Unlock()
}

// Samples returns the sizes requested so far.
func (m *Mock) Samples() []image.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]image.Point, len(m.samples))
	copy(out, m.samples)
	return out
}

var _ Source = (*Mock)(nil)
