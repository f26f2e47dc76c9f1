// snapclass - periodic camera capture and remote classification
//
// Grabs stills from a camera (or a file), posts them to a /predict-file
// endpoint and shows label, confidence and history on a local dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-snapclass/internal/config"
	"github.com/teslashibe/go-snapclass/internal/log"
	"github.com/teslashibe/go-snapclass/pkg/app"
)

const version = "0.3.0"

func main() {
	cfg, flags := parseFlags()

	logger := log.Setup(os.Stdout, cfg.LogLevel, logFormat())

	fmt.Println()
	fmt.Println("📸 snapclass v" + version)
	fmt.Printf("   Source:   %s\n", cfg.Source)
	fmt.Printf("   Endpoint: %s\n", cfg.ServerURL)
	fmt.Printf("   Interval: %gs\n", cfg.Interval)
	if flags.headless {
		fmt.Println("   Mode:     headless")
	} else {
		fmt.Printf("   Dashboard: http://localhost:%s\n", cfg.Port)
	}
	fmt.Println()

	a, err := app.New(app.Config{
		Settings: cfg,
		Headless: flags.headless,
		Debug:    flags.debug,
		Open:     openSource,
		Logger:   logger,
	})
	if err != nil {
		stdlog.Fatalf("❌ Configuration error: %v", err)
	}
	if err := a.Init(); err != nil {
		stdlog.Fatalf("❌ Initialization failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runErr := a.Run(ctx)

	fmt.Println("\n👋 Shutting down...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), flags.drain)
	defer stop()
	if err := a.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", "error", err)
	}

	if runErr != nil {
		stdlog.Fatalf("❌ Runtime error: %v", runErr)
	}
}

type cliFlags struct {
	headless bool
	debug    bool
	drain    time.Duration
}

// parseFlags loads the config file and environment, then applies any
// flags that were set explicitly.
func parseFlags() (*config.Config, cliFlags) {
	def := config.Default()

	configPath := flag.String("config", os.Getenv("SNAPCLASS_CONFIG"), "Path to JSON config file")
	serverURL := flag.String("server-url", "", "Classification endpoint (default derived from -host)")
	host := flag.String("host", "", "Endpoint host for the default URL (empty or localhost means local)")
	interval := flag.Float64("interval", def.Interval, "Seconds between auto captures (floor 0.2)")
	quality := flag.Float64("quality", def.Quality, "JPEG quality factor 0-1")
	source := flag.String("source", def.Source, "Video source: cv:<index|url>, v4l:<device>, file:<path>")
	width := flag.Int("width", 0, "Requested capture width (0 = device default)")
	height := flag.Int("height", 0, "Requested capture height (0 = device default)")
	historySize := flag.Int("history", def.HistorySize, "History entries kept")
	uploadTimeout := flag.Duration("upload-timeout", 0, "Per-upload transport timeout (0 = none)")
	port := flag.String("port", def.Port, "Dashboard port")
	eventLog := flag.String("event-log", "", "Append results to this CSV file")
	logLevel := flag.String("log-level", def.LogLevel, "Log level: debug, info, warn, error")
	auto := flag.Bool("auto", false, "Start auto capture on launch")
	headless := flag.Bool("headless", false, "Run auto capture without the dashboard")
	debug := flag.Bool("debug", false, "Enable debug logging and access logs")
	drain := flag.Duration("drain", 10*time.Second, "How long to wait for in-flight uploads on shutdown")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		stdlog.Fatalf("❌ Config error: %v", err)
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["host"] {
		cfg.ServerHost = *host
		cfg.ServerURL = config.DefaultServerURL(*host)
	}
	if set["server-url"] {
		cfg.ServerURL = *serverURL
	}
	if set["interval"] {
		cfg.Interval = *interval
	}
	if set["quality"] {
		cfg.Quality = *quality
	}
	if set["source"] {
		cfg.Source = *source
	}
	if set["width"] {
		cfg.Width = *width
	}
	if set["height"] {
		cfg.Height = *height
	}
	if set["history"] {
		cfg.HistorySize = *historySize
	}
	if set["upload-timeout"] {
		cfg.UploadTimeout = uploadTimeout.Seconds()
	}
	if set["port"] {
		cfg.Port = *port
	}
	if set["event-log"] {
		cfg.EventLog = *eventLog
	}
	if set["log-level"] {
		cfg.LogLevel = *logLevel
	}
	if *auto {
		cfg.AutoStart = true
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	return cfg, cliFlags{headless: *headless, debug: *debug, drain: *drain}
}

func logFormat() string {
	if os.Getenv("GO_ENV") == "production" {
		return "json"
	}
	return "text"
}
