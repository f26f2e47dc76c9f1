//go:build linux

package main

import (
	"io"
	"log/slog"

	"github.com/teslashibe/go-snapclass/pkg/capture"
	"github.com/teslashibe/go-snapclass/pkg/capture/v4l"
)

func openV4L(device string, width, height int, logger *slog.Logger) (capture.Source, io.Closer, error) {
	src, err := v4l.Open(v4l.Config{Device: device, Width: width, Height: height, Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	return src, src, nil
}
