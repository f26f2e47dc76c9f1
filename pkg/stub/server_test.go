package stub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mixer/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-snapclass/internal/log"
	"github.com/teslashibe/go-snapclass/pkg/capture"
	"github.com/teslashibe/go-snapclass/pkg/upload"
)

var fixedTime = time.Date(2026, 5, 2, 14, 3, 9, 0, time.UTC)

func solidJPEG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	data, err := capture.EncodeJPEG(img, 90)
	require.NoError(t, err)
	return data
}

func fixed(label string, conf float64) Classifier {
	return ClassifierFunc(func(image.Image) (Prediction, error) {
		return Prediction{Label: label, Confidence: conf, Probs: []float64{conf, 1 - conf}}, nil
	})
}

type detectorFunc func([]byte) (bool, error)

func (f detectorFunc) Detect(data []byte) (bool, error) { return f(data) }

func newStub(t *testing.T, opts ...Option) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	clk := clock.NewMockClock(fixedTime)
	opts = append([]Option{WithSaveDir(dir), WithClock(clk), WithLogger(log.Discard())}, opts...)
	s, err := NewServer(opts...)
	require.NoError(t, err)
	return s, dir
}

func multipartBody(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "frame.jpg")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func post(t *testing.T, s *Server, field string, data []byte) (*http.Response, map[string]any) {
	t.Helper()
	body, ct := multipartBody(t, field, data)
	req := httptest.NewRequest(http.MethodPost, DefaultPath, body)
	req.Header.Set("Content-Type", ct)

	resp, err := s.App().Test(req, 3000)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestShouldSave(t *testing.T) {
	tests := []struct {
		label string
		conf  float64
		want  bool
	}{
		{"Front Breakage", 0.5, true},
		{"Front Breakage", 0.49, false},
		{"Rear Normal", 0.99, false},
		{"NORMAL", 0.9, false},
		{"abnormality", 0.9, false},
		{"Rear Crushed", 1, true},
	}
	for _, tt := range tests {
		if got := ShouldSave(tt.label, tt.conf, DefaultMinConfidence); got != tt.want {
			t.Errorf("ShouldSave(%q, %v) = %v, want %v", tt.label, tt.conf, got, tt.want)
		}
	}
}

func TestSaveFilename(t *testing.T) {
	assert.Equal(t, "20260502_140309_Front_Breakage_87.jpg", SaveFilename(fixedTime, "Front Breakage", 0.876))
	assert.Equal(t, "20260502_140309_a_b_50.jpg", SaveFilename(fixedTime, "a/b", 0.5))
}

func TestPredictSavesDamage(t *testing.T) {
	s, dir := newStub(t, WithClassifier(fixed("Front Breakage", 0.82)))

	resp, out := post(t, s, "file", solidJPEG(t, color.Gray{Y: 100}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Front Breakage", out["label"])
	assert.InDelta(t, 0.82, out["confidence"], 1e-9)
	assert.Equal(t, "20260502_140309_Front_Breakage_82.jpg", out["saved_filename"])

	_, err := os.Stat(filepath.Join(dir, "20260502_140309_Front_Breakage_82.jpg"))
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), s.Stats().Saved)
}

func TestPredictNormalNotSaved(t *testing.T) {
	s, dir := newStub(t, WithClassifier(fixed("Rear Normal", 0.97)))

	resp, out := post(t, s, "file", solidJPEG(t, color.White))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, out["saved_filename"])

	files, _ := os.ReadDir(dir)
	assert.Empty(t, files)
}

func TestPredictRejectsNonImage(t *testing.T) {
	s, _ := newStub(t)

	resp, out := post(t, s, "file", []byte("definitely not an image"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, out["detail"], "decode")
	assert.Equal(t, uint64(1), s.Stats().Rejected)
}

func TestPredictMissingField(t *testing.T) {
	s, _ := newStub(t)

	resp, _ := post(t, s, "image", solidJPEG(t, color.Black))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDetectorRejection(t *testing.T) {
	s, dir := newStub(t,
		WithClassifier(fixed("Front Crushed", 0.9)),
		WithDetector(detectorFunc(func([]byte) (bool, error) { return false, nil })))

	resp, out := post(t, s, "file", solidJPEG(t, color.Black))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, NoSubjectLabel, out["label"])
	assert.Equal(t, 1.0, out["confidence"])
	assert.Nil(t, out["saved_filename"])

	files, _ := os.ReadDir(dir)
	assert.Empty(t, files)
}

func TestDetectorError(t *testing.T) {
	s, _ := newStub(t, WithDetector(detectorFunc(func([]byte) (bool, error) {
		return false, errors.New("cascade missing")
	})))

	resp, out := post(t, s, "file", solidJPEG(t, color.Black))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, out["detail"], "cascade missing")
	assert.Equal(t, uint64(0), s.Stats().Rejected, "server faults are not client rejections")
}

func TestClassifierErrorIsServerFault(t *testing.T) {
	s, _ := newStub(t, WithClassifier(ClassifierFunc(func(image.Image) (Prediction, error) {
		return Prediction{}, errors.New("model unavailable")
	})))

	resp, _ := post(t, s, "file", solidJPEG(t, color.White))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestPredictUndecodable(t *testing.T) {
	s, _ := newStub(t)

	_, err := s.Predict([]byte("not an image"))
	assert.ErrorIs(t, err, ErrUndecodable)
}

func TestLuminanceClassifier(t *testing.T) {
	c := NewLuminanceClassifier(nil)

	black := image.NewGray(image.Rect(0, 0, 10, 10))
	pred, err := c.Classify(black)
	require.NoError(t, err)
	assert.Equal(t, DefaultClasses[0], pred.Label)

	white := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range white.Pix {
		white.Pix[i] = 255
	}
	pred, err = c.Classify(white)
	require.NoError(t, err)
	assert.Equal(t, DefaultClasses[len(DefaultClasses)-1], pred.Label)

	var sum float64
	for _, p := range pred.Probs {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Len(t, pred.Probs, len(DefaultClasses))
}

func TestLoadClasses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.txt")
	require.NoError(t, os.WriteFile(path, []byte("cat\n\n dog \n"), 0o600))

	classes, err := LoadClasses(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog"}, classes)

	classes, err = LoadClasses(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	assert.Equal(t, DefaultClasses, classes)
}

// The upload client and the stub must agree on the wire format.
func TestUploadClientAgainstStub(t *testing.T) {
	s, _ := newStub(t, WithClassifier(fixed("Rear Breakage", 0.64)))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.Serve(ln)
	defer s.Shutdown()

	client, err := upload.NewClient(upload.WithURL("http://"+ln.Addr().String()+DefaultPath), upload.WithLogger(log.Discard()))
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	resp, err := client.Upload(ctx, solidJPEG(t, color.Gray{Y: 200}))
	require.NoError(t, err)
	assert.Equal(t, "Rear Breakage", resp.Label)
	assert.InDelta(t, 0.64, resp.Confidence, 1e-9)
	assert.True(t, resp.Saved)
	assert.Equal(t, "20260502_140309_Rear_Breakage_64.jpg", resp.SavedFilename)
	assert.Len(t, resp.Probs, 2)
}

func TestNewServerValidatesPath(t *testing.T) {
	_, err := NewServer(WithPath("predict"), WithLogger(log.Discard()))
	assert.Error(t, err)
}
