// Package eventlog appends one CSV row per completed cycle.
//
// The file layout is timestamp_utc,filename,label,confidence with the
// header written once when the file is new or empty.
package eventlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/teslashibe/go-snapclass/pkg/scheduler"
)

// TimestampLayout matches the capture filenames (UTC).
const TimestampLayout = "20060102_150405"

// Header is the CSV column row.
var Header = []string{"timestamp_utc", "filename", "label", "confidence"}

// Log is a CSV sink. Safe for concurrent use.
type Log struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
	logger *slog.Logger
	rows   int
}

// Open opens path for appending, creating it if needed.
func Open(path string, logger *slog.Logger) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("eventlog: stat %s: %w", path, err)
	}

	l, err := newLog(f, f, info.Size() == 0, logger)
	if err != nil {
		f.Close()
		return nil, err
	}
	l.logger.Info("event log opened", "path", path)
	return l, nil
}

// New writes rows to w, with a header first.
func New(w io.Writer, logger *slog.Logger) (*Log, error) {
	return newLog(w, nil, true, logger)
}

func newLog(w io.Writer, closer io.Closer, header bool, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Log{
		w:      csv.NewWriter(w),
		closer: closer,
		logger: logger.With("component", "eventlog"),
	}
	if header {
		if err := l.write(Header); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Append implements scheduler.Sink. Failed cycles are logged with the
// error label and zero confidence.
func (l *Log) Append(r scheduler.Result) {
	ts := r.CompletedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	row := Row(ts, r.SavedFilename, r.DisplayLabel(), r.Confidence)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.write(row); err != nil {
		l.logger.Warn("event log write failed", "seq", r.Seq, "error", err)
		return
	}
	l.rows++
}

// Row formats one CSV record.
func Row(ts time.Time, filename, label string, confidence float64) []string {
	return []string{
		ts.UTC().Format(TimestampLayout),
		filename,
		label,
		strconv.FormatFloat(confidence, 'f', 4, 64),
	}
}

// Rows returns how many records have been written, excluding the header.
func (l *Log) Rows() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rows
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.w.Flush()
	err := l.w.Error()
	if l.closer != nil {
		if cerr := l.closer.Close(); err == nil {
			err = cerr
		}
		l.closer = nil
	}
	return err
}

func (l *Log) write(record []string) error {
	if err := l.w.Write(record); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

// Verify Log implements scheduler.Sink at compile time.
var _ scheduler.Sink = (*Log)(nil)
