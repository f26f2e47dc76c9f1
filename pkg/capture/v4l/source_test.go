//go:build linux

package v4l

import (
	"testing"

	"github.com/blackjack/webcam"
)

func TestPickFormat(t *testing.T) {
	formats := map[webcam.PixelFormat]string{
		0x56595559:  "YUYV 4:2:2",
		FormatMJPEG: "Motion-JPEG",
	}

	got, err := pickFormat(formats)
	if err != nil {
		t.Fatalf("pickFormat failed: %v", err)
	}
	if got != FormatMJPEG {
		t.Errorf("Expected MJPEG, got %#x", got)
	}
}

func TestPickFormatNoMJPEG(t *testing.T) {
	formats := map[webcam.PixelFormat]string{
		0x56595559: "YUYV 4:2:2",
	}

	if _, err := pickFormat(formats); err == nil {
		t.Error("Expected error when MJPEG is unsupported")
	}
}

func TestSampleBeforeFirstFrame(t *testing.T) {
	s := &Source{width: 640, height: 480, done: make(chan struct{})}

	if s.Ready() {
		t.Error("Source without frames should not be ready")
	}
	if _, err := s.Sample(640, 480); err == nil {
		t.Error("Expected error sampling before first frame")
	}
}
