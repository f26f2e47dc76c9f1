// Package web serves the snapclass dashboard: the control API, the live
// results websocket and the embedded UI. The Server is also a scheduler
// sink, so every completed cycle lands in history and on the websocket.
package web

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-snapclass/pkg/history"
	"github.com/teslashibe/go-snapclass/pkg/hub"
	"github.com/teslashibe/go-snapclass/pkg/scheduler"
)

//go:embed static
var staticFS embed.FS

// Controller is the scheduler surface the dashboard drives.
type Controller interface {
	Start() *scheduler.Cycle
	Stop()
	Toggle() scheduler.State
	Snap() *scheduler.Cycle
	SetInterval(seconds float64) time.Duration
	SetIntervalText(text string) time.Duration
	Status() scheduler.Status
}

// Server is the dashboard server.
type Server struct {
	app    *fiber.App
	config Config
	logger *slog.Logger

	history *history.Buffer
	results *hub.Hub

	mu   sync.RWMutex
	ctrl Controller

	hubOnce   sync.Once
	hubCancel context.CancelFunc
	listening atomic.Bool
}

// NewServer creates a dashboard backed by the given history buffer.
func NewServer(h *history.Buffer, opts ...Option) *Server {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if h == nil {
		h = history.New(history.WithLogger(cfg.Logger))
	}

	s := &Server{
		config:  cfg,
		logger:  cfg.Logger.With("component", "web"),
		history: h,
		results: hub.New("results", cfg.Logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "snapclass",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if cfg.Debug {
		app.Use(logger.New())
	}

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/snap", s.handleSnap)
	api.Post("/auto/start", s.handleAutoStart)
	api.Post("/auto/stop", s.handleAutoStop)
	api.Post("/auto/toggle", s.handleAutoToggle)
	api.Put("/interval", s.handleSetInterval)
	api.Get("/history", s.handleHistory)
	api.Get("/history/:id", s.handleHistoryEntry)
	api.Get("/history/:id/image", s.handleHistoryImage)
	api.Get("/history/:id/thumb", s.handleHistoryThumb)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/results", websocket.New(s.handleResultsWS))

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	app.Use("/", filesystem.New(filesystem.Config{
		Root:  http.FS(static),
		Index: "index.html",
	}))

	s.app = app
	return s
}

// Bind attaches the scheduler. Control routes answer 503 until bound.
func (s *Server) Bind(ctrl Controller) {
	s.mu.Lock()
	s.ctrl = ctrl
	s.mu.Unlock()
}

func (s *Server) controller() Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctrl
}

// Append implements scheduler.Sink: records r in history and pushes the
// entry to websocket clients.
func (s *Server) Append(r scheduler.Result) {
	entry, kept := s.history.Add(r)
	if !kept {
		s.logger.Debug("result older than history window", "seq", r.Seq)
		return
	}
	if err := s.results.BroadcastEvent("result", entry); err != nil {
		s.logger.Warn("broadcast result failed", "seq", r.Seq, "error", err)
	}
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the results hub.
func (s *Server) Hub() *hub.Hub {
	return s.results
}

// History returns the history buffer.
func (s *Server) History() *history.Buffer {
	return s.history
}

func (s *Server) startHub() {
	s.hubOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.hubCancel = cancel
		go s.results.Run(ctx)
	})
}

// Start listens on the configured port. It blocks until Shutdown.
func (s *Server) Start() error {
	s.startHub()
	s.listening.Store(true)
	s.logger.Info("dashboard listening", "url", "http://localhost:"+s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Serve accepts connections on ln. It blocks until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.startHub()
	s.listening.Store(true)
	s.logger.Info("dashboard listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// StartAsync runs Start in a goroutine and logs its error.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("web server error", "error", err)
		}
	}()
}

// Shutdown stops the hub and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hubOnce.Do(func() {})
	if s.hubCancel != nil {
		s.hubCancel()
	}
	if !s.listening.Load() {
		return nil
	}
	return s.app.ShutdownWithContext(ctx)
}

// Verify Server implements scheduler.Sink at compile time.
var _ scheduler.Sink = (*Server)(nil)
