package upload

import (
	"context"
	"sync"
	"time"
)

// Mock implements Uploader for testing.
type Mock struct {
	// UploadFunc is called when Upload is invoked.
	UploadFunc func(ctx context.Context, image []byte) (*Response, error)

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records an upload.
type MockCall struct {
	Size int
	Time time.Time
}

// NewMock returns a mock that classifies everything as "normal" at 0.9.
func NewMock() *Mock {
	return &Mock{
		UploadFunc: func(ctx context.Context, image []byte) (*Response, error) {
			return &Response{Label: "normal", Confidence: 0.9}, nil
		},
	}
}

// WithError returns a mock that always fails with err.
func WithError(err error) *Mock {
	return &Mock{
		UploadFunc: func(ctx context.Context, image []byte) (*Response, error) {
			return nil, err
		},
	}
}

// Upload records the call and delegates to UploadFunc.
func (m *Mock) Upload(ctx context.Context, image []byte) (*Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Size: len(image), Time: time.Now()})
	fn := m.UploadFunc
	m.mu.Unlock()

	if fn == nil {
		return nil, ErrNoURL
	}
	return fn(ctx, image)
}

// CallCount returns the number of uploads.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns all recorded uploads.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Verify Mock implements Uploader at compile time.
var _ Uploader = (*Mock)(nil)
