// Package cv provides a capture.Source backed by an OpenCV VideoCapture.
// The device may be a camera index ("0") or anything OpenCV can open
// (a file path, an RTSP or HTTP stream URL).
package cv

import (
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-snapclass/pkg/capture"
)

// maxReadFailures is how many consecutive failed reads mark the stream ended.
const maxReadFailures = 30

// Config holds capture device settings.
type Config struct {
	Device string // Camera index or stream URL
	Width  int    // Requested width, 0 keeps the device default
	Height int    // Requested height, 0 keeps the device default
	Logger *slog.Logger
}

// Source continuously grabs frames in the background and serves the latest one.
type Source struct {
	cap    *gocv.VideoCapture
	logger *slog.Logger

	// Device-reported size, read once in Open before grabLoop owns cap.
	propWidth  int
	propHeight int

	mu     sync.RWMutex
	latest gocv.Mat
	have   bool
	paused bool
	ended  bool

	stop chan struct{}
	done chan struct{}
}

// Open starts capturing from cfg.Device.
func Open(cfg Config) (*Source, error) {
	var device interface{} = cfg.Device
	if idx, err := strconv.Atoi(cfg.Device); err == nil {
		device = idx
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open video capture %q: %w", cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("video capture %q did not open", cfg.Device)
	}

	if cfg.Width > 0 && cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Source{
		cap:        vc,
		logger:     logger.With("component", "capture.cv", "device", cfg.Device),
		propWidth:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		propHeight: int(vc.Get(gocv.VideoCaptureFrameHeight)),
		latest:     gocv.NewMat(),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go s.grabLoop()
	return s, nil
}

// grabLoop keeps the newest frame so Sample never waits on the device.
func (s *Source) grabLoop() {
	defer close(s.done)

	frame := gocv.NewMat()
	defer frame.Close()

	failures := 0
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if ok := s.cap.Read(&frame); !ok || frame.Empty() {
			failures++
			if failures >= maxReadFailures {
				s.mu.Lock()
				s.ended = true
				s.mu.Unlock()
				s.logger.Warn("video stream ended", "failures", failures)
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		failures = 0

		s.mu.Lock()
		frame.CopyTo(&s.latest)
		s.have = true
		s.mu.Unlock()
	}
}

// Ready reports whether a frame is available and the stream is live.
func (s *Source) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.have && !s.paused && !s.ended
}

// Dimensions returns the size of the latest frame, falling back to the
// size the device reported at open before the first frame arrives.
func (s *Source) Dimensions() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.have {
		return s.latest.Cols(), s.latest.Rows()
	}
	return s.propWidth, s.propHeight
}

// Sample converts the latest frame to an image scaled to width x height.
func (s *Source) Sample(width, height int) (image.Image, error) {
	mat, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("mat to image: %w", err)
	}
	return capture.Scale(img, width, height), nil
}

// EncodeJPEG encodes the latest frame with OpenCV when no rescale is needed.
func (s *Source) EncodeJPEG(width, height, quality int) ([]byte, error) {
	mat, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	if mat.Cols() != width || mat.Rows() != height {
		img, err := mat.ToImage()
		if err != nil {
			return nil, fmt.Errorf("mat to image: %w", err)
		}
		return capture.EncodeJPEG(capture.Scale(img, width, height), quality)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("imencode: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}

func (s *Source) snapshot() (gocv.Mat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.have {
		return gocv.Mat{}, capture.ErrSourceNotReady
	}
	return s.latest.Clone(), nil
}

// Pause makes the source report not-ready without releasing the device.
func (s *Source) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume undoes Pause.
func (s *Source) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

// Close stops the grab loop and releases the device.
func (s *Source) Close() error {
	close(s.stop)
	<-s.done

	s.mu.Lock()
	s.ended = true
	s.latest.Close()
	s.mu.Unlock()

	return s.cap.Close()
}

var (
	_ capture.Source  = (*Source)(nil)
	_ capture.Encoder = (*Source)(nil)
)
