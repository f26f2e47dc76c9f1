// predict-stub - local stand-in for the /predict-file classification service
//
// Answers the same multipart upload as the real model server with a
// deterministic label, and keeps copies of frames that look like damage.
package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-snapclass/internal/log"
	"github.com/teslashibe/go-snapclass/pkg/stub"
	"github.com/teslashibe/go-snapclass/pkg/stub/cascade"
)

func main() {
	port := flag.Int("port", 8000, "Port to listen on")
	path := flag.String("path", stub.DefaultPath, "Prediction route")
	saveDir := flag.String("save-dir", envOr("SAVE_DIR", "server_captures"), "Where flagged frames are saved (empty disables)")
	classesPath := flag.String("classes", "classes.txt", "Class list, one label per line")
	cascadePath := flag.String("cascade", os.Getenv("CASCADE_PATH"), "Haar cascade XML; frames without a match get \""+stub.NoSubjectLabel+"\"")
	minConf := flag.Float64("min-confidence", stub.DefaultMinConfidence, "Save threshold for non-normal labels")
	debug := flag.Bool("debug", false, "Enable debug logging and access logs")
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	log.Init(level)

	if envPort := os.Getenv("PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", port)
	}

	classes, err := stub.LoadClasses(*classesPath)
	if err != nil {
		stdlog.Fatalf("❌ Class list: %v", err)
	}

	opts := []stub.Option{
		stub.WithPath(*path),
		stub.WithSaveDir(*saveDir),
		stub.WithMinConfidence(*minConf),
		stub.WithClassifier(stub.NewLuminanceClassifier(classes)),
		stub.WithLogger(log.L()),
		stub.WithDebug(*debug),
	}

	if *cascadePath != "" {
		det, err := cascade.Load(*cascadePath, cascade.DefaultParams())
		if err != nil {
			stdlog.Fatalf("❌ Cascade: %v", err)
		}
		defer det.Close()
		opts = append(opts, stub.WithDetector(det))
	}

	srv, err := stub.NewServer(opts...)
	if err != nil {
		stdlog.Fatalf("❌ Configuration error: %v", err)
	}

	fmt.Println()
	fmt.Println("🧪 predict-stub")
	fmt.Printf("   Classes:  %v\n", classes)
	fmt.Printf("   Endpoint: http://localhost:%d%s\n", *port, *path)
	if *saveDir != "" {
		fmt.Printf("   Saving:   %s\n", *saveDir)
	}
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := srv.Listen(fmt.Sprintf(":%d", *port)); err != nil {
			stdlog.Fatalf("❌ Server error: %v", err)
		}
	}()

	<-ctx.Done()
	fmt.Println("\n👋 Goodbye!")
	if err := srv.Shutdown(); err != nil {
		log.Warn("shutdown", "error", err)
	}
	st := srv.Stats()
	log.Info("stub stopped", "predictions", st.Predictions, "saved", st.Saved, "rejected", st.Rejected)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
