package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/teslashibe/go-snapclass/pkg/capture"
	"github.com/teslashibe/go-snapclass/pkg/capture/cv"
)

// openSource resolves device sources for app.Config.Open.
func openSource(kind, target string, width, height int, logger *slog.Logger) (capture.Source, io.Closer, error) {
	switch kind {
	case "cv":
		src, err := cv.Open(cv.Config{Device: target, Width: width, Height: height, Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		return src, src, nil
	case "v4l":
		return openV4L(target, width, height, logger)
	}
	return nil, nil, fmt.Errorf("unknown source kind %q", kind)
}
