// Package app wires the capture loop: source, producer, uploader,
// scheduler and the sinks that present results.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/mixer/clock"

	"github.com/teslashibe/go-snapclass/internal/config"
	"github.com/teslashibe/go-snapclass/pkg/capture"
	"github.com/teslashibe/go-snapclass/pkg/eventlog"
	"github.com/teslashibe/go-snapclass/pkg/history"
	"github.com/teslashibe/go-snapclass/pkg/scheduler"
	"github.com/teslashibe/go-snapclass/pkg/upload"
	"github.com/teslashibe/go-snapclass/pkg/web"
)

// OpenFunc opens the source named by kind and target (see config.SplitSource).
// The returned closer may be nil.
type OpenFunc func(kind, target string, width, height int, logger *slog.Logger) (capture.Source, io.Closer, error)

// Config holds everything App needs. Settings is loaded by internal/config;
// the rest comes from flags.
type Config struct {
	Settings *config.Config

	// Headless runs auto capture without the dashboard.
	Headless bool

	// Debug enables access logs on the dashboard.
	Debug bool

	// Open resolves non-file sources. File sources are handled here.
	Open OpenFunc

	Clock  clock.Clock
	Logger *slog.Logger
}

// App is the snapclass orchestrator.
type App struct {
	config Config
	logger *slog.Logger

	source   capture.Source
	closer   io.Closer
	producer *capture.Producer
	uploader *upload.Client
	history  *history.Buffer
	events   *eventlog.Log
	web      *web.Server
	sched    *scheduler.Scheduler
}

// New validates cfg and returns an uninitialised App.
func New(cfg Config) (*App, error) {
	if cfg.Settings == nil {
		return nil, errors.New("app: settings required")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.C
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &App{config: cfg, logger: cfg.Logger.With("component", "app")}, nil
}

// Init opens the source and builds every component.
func (a *App) Init() error {
	s := a.config.Settings

	if err := a.openSource(); err != nil {
		return err
	}

	a.producer = capture.NewProducer(a.source, capture.WithQuality(s.Quality))

	uploader, err := upload.NewClient(
		upload.WithURL(s.ServerURL),
		upload.WithFallbackLabel(s.FallbackLabel),
		upload.WithTimeout(s.UploadTimeoutDuration()),
		upload.WithLogger(a.config.Logger),
	)
	if err != nil {
		return fmt.Errorf("app: uploader: %w", err)
	}
	a.uploader = uploader

	a.history = history.New(history.WithCapacity(s.HistorySize), history.WithLogger(a.config.Logger))

	sinks := scheduler.Sinks{}
	if a.config.Headless {
		sinks = append(sinks, a.history)
	} else {
		a.web = web.NewServer(a.history,
			web.WithPort(s.Port),
			web.WithServerURL(s.ServerURL),
			web.WithDebug(a.config.Debug),
			web.WithLogger(a.config.Logger))
		sinks = append(sinks, a.web)
	}

	if s.EventLog != "" {
		events, err := eventlog.Open(s.EventLog, a.config.Logger)
		if err != nil {
			return err
		}
		a.events = events
		sinks = append(sinks, events)
	}
	sinks = append(sinks, scheduler.SinkFunc(a.logResult))

	sched, err := scheduler.New(a.producer, a.uploader, sinks,
		scheduler.WithInterval(s.Interval),
		scheduler.WithErrorLabel(s.ErrorLabel),
		scheduler.WithClock(a.config.Clock),
		scheduler.WithLogger(a.config.Logger))
	if err != nil {
		return fmt.Errorf("app: scheduler: %w", err)
	}
	a.sched = sched
	if a.web != nil {
		a.web.Bind(sched)
	}

	a.logger.Info("initialised",
		"source", s.Source,
		"endpoint", s.ServerURL,
		"period", sched.Period(),
		"headless", a.config.Headless)
	return nil
}

func (a *App) openSource() error {
	s := a.config.Settings
	kind, target, err := config.SplitSource(s.Source)
	if err != nil {
		return err
	}

	if kind == "file" {
		still, err := capture.LoadStill(target)
		if err != nil {
			return fmt.Errorf("app: source: %w", err)
		}
		a.source = still
		return nil
	}

	if a.config.Open == nil {
		return fmt.Errorf("app: no opener for %q sources", kind)
	}
	src, closer, err := a.config.Open(kind, target, s.Width, s.Height, a.config.Logger)
	if err != nil {
		return fmt.Errorf("app: source %s: %w", s.Source, err)
	}
	a.source, a.closer = src, closer
	return nil
}

// Run serves the dashboard and, when configured, the auto loop until ctx
// is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.sched == nil {
		return errors.New("app: Init not called")
	}

	serveErr := make(chan error, 1)
	if a.web != nil {
		go func() { serveErr <- a.web.Start() }()
	}

	if a.config.Headless || a.config.Settings.AutoStart {
		a.sched.Start()
	}

	notify(a.logger, daemon.SdNotifyReady)
	go a.watchdog(ctx)

	select {
	case <-ctx.Done():
		return nil
	case err := <-serveErr:
		return fmt.Errorf("app: dashboard: %w", err)
	}
}

// Shutdown stops the loop and waits for in-flight cycles until ctx ends.
func (a *App) Shutdown(ctx context.Context) error {
	notify(a.logger, daemon.SdNotifyStopping)

	var errs []error
	if a.sched != nil {
		if err := a.sched.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("scheduler: %w", err))
		}
		st := a.sched.Stats()
		a.logger.Info("capture loop stopped",
			"dispatched", st.Dispatched,
			"completed", st.Completed,
			"failed", st.Failed,
			"dropped", st.Dropped)
	}
	if a.web != nil {
		if err := a.web.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("web: %w", err))
		}
	}
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("eventlog: %w", err))
		}
	}
	if a.uploader != nil {
		a.uploader.Close()
	}
	if a.closer != nil {
		if err := a.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("source: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Scheduler returns the scheduler, nil before Init.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.sched
}

// History returns the history buffer, nil before Init.
func (a *App) History() *history.Buffer {
	return a.history
}

// Web returns the dashboard, nil in headless mode.
func (a *App) Web() *web.Server {
	return a.web
}

func (a *App) logResult(r scheduler.Result) {
	if r.Failed() {
		a.logger.Warn("result",
			"seq", r.Seq,
			"trigger", r.Trigger,
			"label", r.DisplayLabel(),
			"error", r.Message())
		return
	}
	a.logger.Info("result",
		"seq", r.Seq,
		"trigger", r.Trigger,
		"label", r.Label,
		"confidence", fmt.Sprintf("%.2f", r.Confidence),
		"saved", r.SavedFilename)
}

func (a *App) watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			notify(a.logger, daemon.SdNotifyWatchdog)
		}
	}
}

func notify(logger *slog.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logger.Warn("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		logger.Debug("sd_notify", "state", state)
	}
}
