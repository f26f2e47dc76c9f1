// Package history keeps the bounded, newest-first list of completed cycles
// shown on the dashboard.
package history

import (
	"bytes"
	"image/jpeg"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-snapclass/pkg/capture"
	"github.com/teslashibe/go-snapclass/pkg/scheduler"
)

// DefaultCapacity is how many entries the dashboard keeps.
const DefaultCapacity = 50

// Entry is one history item.
type Entry struct {
	ID            string    `json:"id"`
	Seq           uint64    `json:"seq"`
	Trigger       string    `json:"trigger"`
	Label         string    `json:"label"`
	Confidence    float64   `json:"confidence"`
	Saved         bool      `json:"saved"`
	SavedFilename string    `json:"saved_filename,omitempty"`
	Error         string    `json:"error,omitempty"`
	Kind          string    `json:"kind,omitempty"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	HasImage      bool      `json:"has_image"`
	CapturedAt    time.Time `json:"captured_at"`
	CompletedAt   time.Time `json:"completed_at"`

	image []byte
	thumb []byte
}

// Config holds buffer configuration.
type Config struct {
	Capacity     int
	ThumbSize    int // longest thumbnail side in pixels
	ThumbQuality int // JPEG quality 1-100
	Logger       *slog.Logger
}

// Option is a functional option for configuring the buffer.
type Option func(*Config)

// WithCapacity sets the maximum number of entries.
func WithCapacity(n int) Option {
	return func(c *Config) { c.Capacity = n }
}

// WithThumbSize sets the longest thumbnail side.
func WithThumbSize(px int) Option {
	return func(c *Config) { c.ThumbSize = px }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns a 50 entry buffer with 160px thumbnails.
func DefaultConfig() Config {
	return Config{
		Capacity:     DefaultCapacity,
		ThumbSize:    160,
		ThumbQuality: 70,
		Logger:       slog.Default(),
	}
}

// Buffer is a fixed-capacity history ordered newest-first by Seq.
type Buffer struct {
	config Config
	logger *slog.Logger

	mu      sync.RWMutex
	entries []*Entry
	byID    map[string]*Entry
}

// New creates an empty buffer.
func New(opts ...Option) *Buffer {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Buffer{
		config:  cfg,
		logger:  cfg.Logger.With("component", "history"),
		entries: make([]*Entry, 0, cfg.Capacity),
		byID:    make(map[string]*Entry, cfg.Capacity),
	}
}

// Append implements scheduler.Sink.
func (b *Buffer) Append(r scheduler.Result) {
	b.Add(r)
}

// Add inserts r at its Seq position and evicts the oldest entry on overflow.
// The returned bool is false when r was itself the entry evicted.
func (b *Buffer) Add(r scheduler.Result) (Entry, bool) {
	e := &Entry{
		ID:            uuid.NewString(),
		Seq:           r.Seq,
		Trigger:       string(r.Trigger),
		Label:         r.DisplayLabel(),
		Confidence:    r.Confidence,
		Saved:         r.Saved,
		SavedFilename: r.SavedFilename,
		Error:         r.Message(),
		Kind:          string(r.Kind),
		Width:         r.Width,
		Height:        r.Height,
		HasImage:      len(r.Image) > 0,
		CapturedAt:    r.CapturedAt,
		CompletedAt:   r.CompletedAt,
		image:         r.Image,
	}
	if e.HasImage {
		e.thumb = b.thumbnail(r.Image)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	i := sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].Seq < e.Seq
	})
	b.entries = append(b.entries, nil)
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = e
	b.byID[e.ID] = e

	kept := true
	for len(b.entries) > b.config.Capacity {
		last := b.entries[len(b.entries)-1]
		b.entries[len(b.entries)-1] = nil
		b.entries = b.entries[:len(b.entries)-1]
		delete(b.byID, last.ID)
		if last == e {
			kept = false
		}
	}
	return *e, kept
}

// List returns the entries newest-first.
func (b *Buffer) List() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, len(b.entries))
	for i, e := range b.entries {
		out[i] = *e
	}
	return out
}

// Get returns the entry with the given ID.
func (b *Buffer) Get(id string) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// BySeq returns the entry for a cycle sequence number.
func (b *Buffer) BySeq(seq uint64) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	i := sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].Seq <= seq
	})
	if i < len(b.entries) && b.entries[i].Seq == seq {
		return *b.entries[i], true
	}
	return Entry{}, false
}

// Latest returns the newest entry.
func (b *Buffer) Latest() (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.entries) == 0 {
		return Entry{}, false
	}
	return *b.entries[0], true
}

// Image returns the full JPEG for an entry.
func (b *Buffer) Image(id string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.byID[id]
	if !ok || len(e.image) == 0 {
		return nil, false
	}
	return e.image, true
}

// Thumb returns the thumbnail JPEG for an entry, falling back to the full image.
func (b *Buffer) Thumb(id string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.byID[id]
	if !ok {
		return nil, false
	}
	if len(e.thumb) > 0 {
		return e.thumb, true
	}
	if len(e.image) > 0 {
		return e.image, true
	}
	return nil, false
}

// Len returns the number of entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Capacity returns the maximum number of entries.
func (b *Buffer) Capacity() int {
	return b.config.Capacity
}

// Clear drops every entry.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = b.entries[:0]
	clear(b.byID)
}

func (b *Buffer) thumbnail(data []byte) []byte {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		b.logger.Debug("thumbnail decode failed", "error", err)
		return nil
	}
	thumb, err := capture.EncodeJPEG(capture.Thumbnail(img, b.config.ThumbSize), b.config.ThumbQuality)
	if err != nil {
		b.logger.Debug("thumbnail encode failed", "error", err)
		return nil
	}
	return thumb
}

// Verify Buffer implements scheduler.Sink at compile time.
var _ scheduler.Sink = (*Buffer)(nil)
