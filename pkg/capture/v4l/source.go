//go:build linux

// Package v4l provides a capture.Source reading MJPEG frames straight from a
// V4L2 device, without OpenCV.
package v4l

import (
	"bytes"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"

	"github.com/teslashibe/go-snapclass/pkg/capture"
)

// FormatMJPEG is the V4L2 fourcc for Motion-JPEG.
const FormatMJPEG webcam.PixelFormat = 0x47504A4D

// frameTimeout is the WaitForFrame timeout in seconds.
const frameTimeout = 1

// Config holds device settings.
type Config struct {
	Device string // e.g. /dev/video0
	Width  int
	Height int
	Logger *slog.Logger
}

// Source streams from a V4L2 device in a background goroutine and keeps
// only the latest frame.
type Source struct {
	logger *slog.Logger

	mu     sync.RWMutex
	frame  []byte
	width  int
	height int
	paused bool

	stopped atomic.Bool
	ended   atomic.Bool
	err     error
	done    chan struct{}
}

// Open negotiates MJPEG at the requested size and starts streaming.
func Open(cfg Config) (*Source, error) {
	cam, err := webcam.Open(cfg.Device)
	if err != nil {
		return nil, errors.Wrapf(err, "can not open device %s", cfg.Device)
	}

	format, err := pickFormat(cam.GetSupportedFormats())
	if err != nil {
		cam.Close()
		return nil, err
	}

	w, h := uint32(cfg.Width), uint32(cfg.Height)
	if w == 0 || h == 0 {
		w, h = capture.DefaultWidth, capture.DefaultHeight
	}
	_, gotW, gotH, err := cam.SetImageFormat(format, w, h)
	if err != nil {
		cam.Close()
		return nil, errors.Wrap(err, "can not set image format")
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, errors.Wrap(err, "can not start streaming")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Source{
		logger: logger.With("component", "capture.v4l", "device", cfg.Device),
		width:  int(gotW),
		height: int(gotH),
		done:   make(chan struct{}),
	}
	go s.run(cam)
	return s, nil
}

func pickFormat(formats map[webcam.PixelFormat]string) (webcam.PixelFormat, error) {
	if _, ok := formats[FormatMJPEG]; ok {
		return FormatMJPEG, nil
	}
	names := make([]string, 0, len(formats))
	for _, name := range formats {
		names = append(names, name)
	}
	return 0, errors.Errorf("device does not support MJPEG (has %v)", names)
}

func (s *Source) run(cam *webcam.Webcam) {
	defer close(s.done)
	defer cam.Close()

	if err := s.stream(cam); err != nil {
		s.err = err
		s.logger.Error("v4l stream stopped", "error", err)
	}
	s.ended.Store(true)
}

func (s *Source) stream(cam *webcam.Webcam) error {
	for !s.stopped.Load() {
		err := cam.WaitForFrame(frameTimeout)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			s.logger.Debug("frame wait timed out")
			continue
		default:
			return errors.Wrap(err, "frame wait failed")
		}

		buf, err := cam.ReadFrame()
		if err != nil {
			return errors.Wrap(err, "read frame failed")
		}
		if len(buf) == 0 {
			continue
		}

		frame := make([]byte, len(buf))
		copy(frame, buf)

		s.mu.Lock()
		s.frame = frame
		s.mu.Unlock()
	}
	return nil
}

// Ready reports whether a frame has arrived and the stream is alive.
func (s *Source) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame != nil && !s.paused && !s.ended.Load()
}

// Dimensions returns the negotiated frame size.
func (s *Source) Dimensions() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

// Sample decodes the latest MJPEG frame and scales it.
func (s *Source) Sample(width, height int) (image.Image, error) {
	s.mu.RLock()
	frame := s.frame
	s.mu.RUnlock()
	if frame == nil {
		return nil, capture.ErrSourceNotReady
	}

	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, errors.Wrap(err, "can not decode mjpeg frame")
	}
	return capture.Scale(img, width, height), nil
}

// Pause makes the source report not-ready.
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

// Err returns the error that ended the stream, if any.
func (s *Source) Err() error {
	<-s.done
	return s.err
}

// Close stops streaming and releases the device.
func (s *Source) Close() error {
	s.stopped.Store(true)
	<-s.done
	return nil
}

var _ capture.Source = (*Source)(nil)
