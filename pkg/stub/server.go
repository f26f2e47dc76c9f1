// Package stub is a stand-in classification endpoint. It accepts the same
// multipart upload the capture loop sends, labels the frame with a
// pluggable Classifier and saves frames that look like damage.
package stub

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/teslashibe/go-snapclass/pkg/capture"
)

// TimestampLayout prefixes saved filenames (UTC).
const TimestampLayout = "20060102_150405"

// ErrUndecodable is returned by Predict when the upload is not an image.
var ErrUndecodable = errors.New("stub: cannot decode image")

// PredictResponse is the endpoint's JSON body.
type PredictResponse struct {
	Label         string    `json:"label"`
	Confidence    float64   `json:"confidence"`
	Probs         []float64 `json:"probs"`
	SavedFilename *string   `json:"saved_filename"`
}

// Stats counts handled requests.
type Stats struct {
	Predictions uint64 `json:"predictions"`
	Saved       uint64 `json:"saved"`
	Rejected    uint64 `json:"rejected"`
}

// Server is the stub classification endpoint.
type Server struct {
	app    *fiber.App
	config Config
	logger *slog.Logger

	predictions atomic.Uint64
	saved       atomic.Uint64
	rejected    atomic.Uint64
}

// NewServer builds the stub. The save directory is created if set.
func NewServer(opts ...Option) (*Server, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Classifier == nil {
		cfg.Classifier = NewLuminanceClassifier(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Path == "" || !strings.HasPrefix(cfg.Path, "/") {
		return nil, fmt.Errorf("stub: path must start with /, got %q", cfg.Path)
	}
	if cfg.SaveDir != "" {
		if err := os.MkdirAll(cfg.SaveDir, 0o755); err != nil {
			return nil, fmt.Errorf("stub: create save dir: %w", err)
		}
	}

	s := &Server{
		config: cfg,
		logger: cfg.Logger.With("component", "stub"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "predict-stub",
		DisableStartupMessage: true,
		BodyLimit:             cfg.BodyLimit,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	if cfg.Debug {
		app.Use(logger.New())
	}

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "snapclass prediction stub. POST an image to " + cfg.Path})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "stats": s.Stats()})
	})
	app.Post(cfg.Path, s.handlePredict)

	s.app = app
	return s, nil
}

// App exposes the fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("prediction stub listening", "addr", addr, "path", s.config.Path)
	return s.app.Listen(addr)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Stats returns request counters.
func (s *Server) Stats() Stats {
	return Stats{
		Predictions: s.predictions.Load(),
		Saved:       s.saved.Load(),
		Rejected:    s.rejected.Load(),
	}
}

func (s *Server) handlePredict(c *fiber.Ctx) error {
	fh, err := c.FormFile(s.config.FieldName)
	if err != nil {
		s.rejected.Add(1)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": "missing file field " + s.config.FieldName})
	}
	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": err.Error()})
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": err.Error()})
	}

	resp, err := s.Predict(data)
	if errors.Is(err, ErrUndecodable) {
		s.rejected.Add(1)
		s.logger.Debug("prediction rejected", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": err.Error()})
	}
	if err != nil {
		s.logger.Error("prediction failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"detail": err.Error()})
	}
	return c.JSON(resp)
}

// Predict runs detection, classification and the save rule on raw bytes.
func (s *Server) Predict(data []byte) (*PredictResponse, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	s.predictions.Add(1)

	if s.config.Detector != nil {
		found, err := s.config.Detector.Detect(data)
		if err != nil {
			return nil, fmt.Errorf("detector: %w", err)
		}
		if !found {
			return &PredictResponse{Label: NoSubjectLabel, Confidence: 1, Probs: make([]float64, s.classCount())}, nil
		}
	}

	pred, err := s.config.Classifier.Classify(img)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	resp := &PredictResponse{Label: pred.Label, Confidence: pred.Confidence, Probs: pred.Probs}
	if resp.Probs == nil {
		resp.Probs = []float64{}
	}

	if s.config.SaveDir != "" && ShouldSave(pred.Label, pred.Confidence, s.config.MinConfidence) {
		name := SaveFilename(s.config.Clock.Now(), pred.Label, pred.Confidence)
		if err := s.save(name, img); err != nil {
			s.logger.Warn("save failed", "file", name, "error", err)
		} else {
			resp.SavedFilename = &name
			s.saved.Add(1)
		}
	}

	s.logger.Info("prediction",
		"label", resp.Label,
		"confidence", fmt.Sprintf("%.3f", resp.Confidence),
		"format", format,
		"saved", resp.SavedFilename != nil)
	return resp, nil
}

func (s *Server) classCount() int {
	if lc, ok := s.config.Classifier.(*LuminanceClassifier); ok {
		return len(lc.Classes)
	}
	return len(DefaultClasses)
}

func (s *Server) save(name string, img image.Image) error {
	data, err := capture.EncodeJPEG(img, 95)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.config.SaveDir, name), data, 0o644)
}

// ShouldSave applies the save rule: labels that do not mention "normal"
// at or above the confidence threshold.
func ShouldSave(label string, confidence, threshold float64) bool {
	return !strings.Contains(strings.ToLower(label), "normal") && confidence >= threshold
}

// SaveFilename builds YYYYMMDD_HHMMSS_<label>_<percent>.jpg.
func SaveFilename(at time.Time, label string, confidence float64) string {
	clean := strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(label)
	return fmt.Sprintf("%s_%s_%d.jpg", at.UTC().Format(TimestampLayout), clean, int(confidence*100))
}
