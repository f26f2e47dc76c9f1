package eventlog

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-snapclass/internal/log"
	"github.com/teslashibe/go-snapclass/pkg/scheduler"
)

var at = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func TestNewWritesHeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, log.Discard())
	require.NoError(t, err)

	l.Append(scheduler.Result{Seq: 1, Label: "Front Normal", Confidence: 0.91234, CompletedAt: at})
	l.Append(scheduler.Result{Seq: 2, Label: "Rear Crushed", Confidence: 0.7, Saved: true,
		SavedFilename: "20260314_092653_Rear_Crushed_70.jpg", CompletedAt: at})
	require.NoError(t, l.Close())

	want := "timestamp_utc,filename,label,confidence\n" +
		"20260314_092653,,Front Normal,0.9123\n" +
		"20260314_092653,20260314_092653_Rear_Crushed_70.jpg,Rear Crushed,0.7000\n"
	assert.Equal(t, want, buf.String())
	assert.Equal(t, 2, l.Rows())
}

func TestFailedResultRow(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, log.Discard())
	require.NoError(t, err)

	l.Append(scheduler.Result{Seq: 1, Err: errors.New("HTTP 500"), CompletedAt: at})
	assert.Contains(t, buf.String(), "20260314_092653,,Error,0.0000\n")
}

func TestOpenWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.csv")

	l, err := Open(path, log.Discard())
	require.NoError(t, err)
	l.Append(scheduler.Result{Label: "a", CompletedAt: at})
	require.NoError(t, l.Close())

	l, err = Open(path, log.Discard())
	require.NoError(t, err)
	l.Append(scheduler.Result{Label: "b", CompletedAt: at})
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "timestamp_utc"))
	assert.Equal(t, 3, strings.Count(string(data), "\n"))
}

func TestOpenBadPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "x.csv"), log.Discard())
	assert.Error(t, err)
}

func TestRowUsesUTC(t *testing.T) {
	local := at.In(time.FixedZone("X", 3*3600))
	assert.Equal(t, "20260314_092653", Row(local, "", "x", 0)[0])
}
