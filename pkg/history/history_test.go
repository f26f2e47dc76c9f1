package history

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-snapclass/internal/log"
	"github.com/teslashibe/go-snapclass/pkg/capture"
	"github.com/teslashibe/go-snapclass/pkg/scheduler"
	"github.com/teslashibe/go-snapclass/pkg/upload"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	data, err := capture.EncodeJPEG(img, 80)
	require.NoError(t, err)
	return data
}

func seqs(entries []Entry) []uint64 {
	out := make([]uint64, len(entries))
	for i, e := range entries {
		out[i] = e.Seq
	}
	return out
}

func TestAppendNewestFirst(t *testing.T) {
	b := New(WithLogger(log.Discard()))
	for seq := uint64(1); seq <= 3; seq++ {
		b.Append(scheduler.Result{Seq: seq, Label: "normal"})
	}

	assert.Equal(t, []uint64{3, 2, 1}, seqs(b.List()))

	latest, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(3), latest.Seq)
}

func TestOutOfOrderInsertion(t *testing.T) {
	b := New(WithLogger(log.Discard()))
	for _, seq := range []uint64{2, 5, 1, 4, 3} {
		b.Append(scheduler.Result{Seq: seq})
	}
	assert.Equal(t, []uint64{5, 4, 3, 2, 1}, seqs(b.List()))
}

func TestBySeq(t *testing.T) {
	b := New(WithLogger(log.Discard()))
	for _, seq := range []uint64{3, 1, 7} {
		b.Append(scheduler.Result{Seq: seq, Label: "x"})
	}

	e, ok := b.BySeq(3)
	require.True(t, ok)
	assert.Equal(t, uint64(3), e.Seq)

	_, ok = b.BySeq(4)
	assert.False(t, ok)
}

func TestEvictsOldest(t *testing.T) {
	b := New(WithCapacity(50), WithLogger(log.Discard()))
	var firstID string
	for seq := uint64(1); seq <= 51; seq++ {
		e, kept := b.Add(scheduler.Result{Seq: seq})
		require.True(t, kept)
		if seq == 1 {
			firstID = e.ID
		}
	}

	assert.Equal(t, 50, b.Len())
	list := b.List()
	assert.Equal(t, uint64(51), list[0].Seq)
	assert.Equal(t, uint64(2), list[len(list)-1].Seq)

	_, ok := b.Get(firstID)
	assert.False(t, ok, "evicted entry must not be reachable by id")
}

func TestLateOldResultIsDropped(t *testing.T) {
	b := New(WithCapacity(2), WithLogger(log.Discard()))
	b.Append(scheduler.Result{Seq: 5})
	b.Append(scheduler.Result{Seq: 6})

	_, kept := b.Add(scheduler.Result{Seq: 4})
	assert.False(t, kept)
	assert.Equal(t, []uint64{6, 5}, seqs(b.List()))
}

func TestEntryFields(t *testing.T) {
	b := New(WithLogger(log.Discard()))
	img := testJPEG(t, 640, 480)

	e, _ := b.Add(scheduler.Result{
		Seq:           1,
		Trigger:       scheduler.TriggerManual,
		Image:         img,
		Width:         640,
		Height:        480,
		Label:         "defect",
		Confidence:    0.73,
		Saved:         true,
		SavedFilename: "20260101_120000_defect_73.jpg",
	})

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "manual", e.Trigger)
	assert.Equal(t, "defect", e.Label)
	assert.True(t, e.Saved)
	assert.True(t, e.HasImage)
	assert.Empty(t, e.Error)

	got, ok := b.Get(e.ID)
	require.True(t, ok)
	assert.Equal(t, e.Seq, got.Seq)

	full, ok := b.Image(e.ID)
	require.True(t, ok)
	assert.Equal(t, img, full)

	thumb, ok := b.Thumb(e.ID)
	require.True(t, ok)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, 160, cfg.Width)
	assert.Equal(t, 120, cfg.Height)
}

func TestFailedEntry(t *testing.T) {
	b := New(WithLogger(log.Discard()))

	e, _ := b.Add(scheduler.Result{
		Seq:   1,
		Err:   &upload.StatusError{StatusCode: 500},
		Kind:  scheduler.KindServer,
		Label: "Error",
	})
	assert.Equal(t, "Error", e.Label)
	assert.Equal(t, "HTTP 500", e.Error)
	assert.Equal(t, "server", e.Kind)
	assert.False(t, e.Saved)
	assert.False(t, e.HasImage)

	_, ok := b.Image(e.ID)
	assert.False(t, ok)
	_, ok = b.Thumb(e.ID)
	assert.False(t, ok)
}

func TestUndecodableImageFallsBackToFull(t *testing.T) {
	b := New(WithLogger(log.Discard()))
	e, _ := b.Add(scheduler.Result{Seq: 1, Image: []byte("not a jpeg")})

	thumb, ok := b.Thumb(e.ID)
	require.True(t, ok)
	assert.Equal(t, []byte("not a jpeg"), thumb)
}

func TestConcurrentAppend(t *testing.T) {
	b := New(WithCapacity(10), WithLogger(log.Discard()))
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(seq uint64) {
			defer wg.Done()
			b.Append(scheduler.Result{Seq: seq, Err: errors.New("x")})
		}(uint64(i))
	}
	wg.Wait()

	list := b.List()
	require.Len(t, list, 10)
	for i, e := range list {
		assert.Equal(t, uint64(100-i), e.Seq)
	}
}

func TestClear(t *testing.T) {
	b := New(WithLogger(log.Discard()))
	e, _ := b.Add(scheduler.Result{Seq: 1})
	b.Clear()
	assert.Zero(t, b.Len())
	_, ok := b.Get(e.ID)
	assert.False(t, ok)
}
