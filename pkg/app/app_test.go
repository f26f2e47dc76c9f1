package app

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mixer/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-snapclass/internal/config"
	"github.com/teslashibe/go-snapclass/internal/log"
	"github.com/teslashibe/go-snapclass/pkg/capture"
)

func writeStill(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for i := range img.Pix {
		img.Pix[i] = 180
	}
	data, err := capture.EncodeJPEG(img, 85)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "car.jpg")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func predictServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func settings(t *testing.T, serverURL string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.ServerURL = serverURL
	cfg.Source = "file:" + writeStill(t)
	return cfg
}

func TestNewRequiresValidSettings(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	cfg := config.Default()
	cfg.ServerURL = "not a url"
	_, err = New(Config{Settings: cfg})
	assert.Error(t, err)
}

func TestHeadlessRunRecordsResults(t *testing.T) {
	srv := predictServer(t, `{"label":"Front Crushed","confidence":0.77,"saved_filename":"x.jpg"}`)
	cfg := settings(t, srv.URL+"/predict-file")
	cfg.EventLog = filepath.Join(t.TempDir(), "detections.csv")

	a, err := New(Config{
		Settings: cfg,
		Headless: true,
		Clock:    clock.NewMockClock(),
		Logger:   log.Discard(),
	})
	require.NoError(t, err)
	require.NoError(t, a.Init())
	assert.Nil(t, a.Web())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return a.History().Len() == 1 }, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	require.NoError(t, a.Shutdown(shutdownCtx))

	latest, ok := a.History().Latest()
	require.True(t, ok)
	assert.Equal(t, "Front Crushed", latest.Label)
	assert.True(t, latest.Saved)
	assert.Equal(t, "auto", latest.Trigger)

	data, err := os.ReadFile(cfg.EventLog)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[1], ",x.jpg,Front Crushed,0.7700"))
}

func TestDashboardModeWaitsForStart(t *testing.T) {
	srv := predictServer(t, `{"label":"Rear Normal","confidence":0.9}`)
	cfg := settings(t, srv.URL+"/predict-file")

	a, err := New(Config{Settings: cfg, Clock: clock.NewMockClock(), Logger: log.Discard()})
	require.NoError(t, err)
	require.NoError(t, a.Init())
	require.NotNil(t, a.Web())

	// Without auto start nothing is captured until asked.
	assert.Zero(t, a.Scheduler().Stats().Dispatched)

	c := a.Scheduler().Snap()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	res, err := c.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Rear Normal", res.Label)
	assert.Equal(t, 1, a.History().Len())

	require.NoError(t, a.Shutdown(ctx))
}

func TestUnreachableEndpointBecomesErrorEntry(t *testing.T) {
	srv := predictServer(t, `{}`)
	url := srv.URL + "/predict-file"
	srv.Close()

	a, err := New(Config{Settings: settings(t, url), Headless: true, Clock: clock.NewMockClock(), Logger: log.Discard()})
	require.NoError(t, err)
	require.NoError(t, a.Init())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	res, err := a.Scheduler().Snap().Wait(ctx)
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.Equal(t, "Error", res.DisplayLabel())

	latest, ok := a.History().Latest()
	require.True(t, ok)
	assert.Equal(t, "transport", latest.Kind)
	assert.False(t, latest.Saved)

	require.NoError(t, a.Shutdown(ctx))
}

func TestOpenerUsedForDeviceSources(t *testing.T) {
	srv := predictServer(t, `{"label":"ok","confidence":1}`)
	cfg := settings(t, srv.URL+"/predict-file")
	cfg.Source = "cv:2"
	cfg.Width, cfg.Height = 1280, 720

	var gotKind, gotTarget string
	var gotW, gotH int
	mock := capture.NewMock()
	mock.Fill = color.White

	a, err := New(Config{
		Settings: cfg,
		Headless: true,
		Clock:    clock.NewMockClock(),
		Logger:   log.Discard(),
		Open: func(kind, target string, width, height int, _ *slog.Logger) (capture.Source, io.Closer, error) {
			gotKind, gotTarget, gotW, gotH = kind, target, width, height
			return mock, nil, nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, a.Init())

	assert.Equal(t, "cv", gotKind)
	assert.Equal(t, "2", gotTarget)
	assert.Equal(t, 1280, gotW)
	assert.Equal(t, 720, gotH)
	require.NoError(t, a.Shutdown(context.Background()))
}

func TestOpenerFailure(t *testing.T) {
	cfg := settings(t, "http://localhost:8000/predict-file")
	cfg.Source = "v4l:/dev/video9"

	a, err := New(Config{
		Settings: cfg,
		Logger:   log.Discard(),
		Open: func(string, string, int, int, *slog.Logger) (capture.Source, io.Closer, error) {
			return nil, nil, errors.New("no such device")
		},
	})
	require.NoError(t, err)
	assert.ErrorContains(t, a.Init(), "no such device")
}

func TestMissingOpener(t *testing.T) {
	cfg := settings(t, "http://localhost:8000/predict-file")
	cfg.Source = "cv:0"

	a, err := New(Config{Settings: cfg, Logger: log.Discard()})
	require.NoError(t, err)
	assert.Error(t, a.Init())
}

func TestRunBeforeInit(t *testing.T) {
	a, err := New(Config{Settings: settings(t, "http://localhost:8000/predict-file"), Logger: log.Discard()})
	require.NoError(t, err)
	assert.Error(t, a.Run(context.Background()))
}
