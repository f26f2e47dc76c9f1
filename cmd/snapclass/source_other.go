//go:build !linux

package main

import (
	"errors"
	"io"
	"log/slog"

	"github.com/teslashibe/go-snapclass/pkg/capture"
)

func openV4L(string, int, int, *slog.Logger) (capture.Source, io.Closer, error) {
	return nil, nil, errors.New("v4l sources are only available on linux")
}
