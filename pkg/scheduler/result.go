package scheduler

import (
	"errors"
	"time"

	"github.com/teslashibe/go-snapclass/pkg/capture"
	"github.com/teslashibe/go-snapclass/pkg/upload"
)

// Trigger says what dispatched a cycle.
type Trigger string

const (
	TriggerAuto   Trigger = "auto"
	TriggerManual Trigger = "manual"
)

// ErrorKind classifies a failed cycle.
type ErrorKind string

const (
	KindNone      ErrorKind = ""
	KindEncode    ErrorKind = "encode"
	KindTransport ErrorKind = "transport"
	KindServer    ErrorKind = "server"
	KindMalformed ErrorKind = "malformed"
	KindUnknown   ErrorKind = "unknown"
)

// Classify maps a cycle error onto the failure taxonomy.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var (
		encErr       *capture.EncodeError
		statusErr    *upload.StatusError
		transportErr *upload.TransportError
		malformedErr *upload.MalformedResponseError
	)
	switch {
	case errors.As(err, &encErr):
		return KindEncode
	case errors.As(err, &statusErr):
		return KindServer
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.As(err, &malformedErr):
		return KindMalformed
	}
	return KindUnknown
}

// Result is the outcome of one completed cycle. When Err is set the
// Label holds the display error label, Confidence is 0 and Saved is false.
type Result struct {
	Seq     uint64
	Trigger Trigger

	// Encoded still. Owned by the sink once appended.
	Image  []byte
	Width  int
	Height int

	Label         string
	Confidence    float64
	Saved         bool
	SavedFilename string

	Err  error
	Kind ErrorKind

	CapturedAt  time.Time
	CompletedAt time.Time
}

// Failed reports whether the cycle ended in an error.
func (r Result) Failed() bool {
	return r.Err != nil
}

// DisplayLabel is the label to show: the error label for failures.
func (r Result) DisplayLabel() string {
	if r.Err != nil && r.Label == "" {
		return "Error"
	}
	return r.Label
}

// Message is the text shown in the confidence slot for failures.
func (r Result) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Latency is the time from capture to completion.
func (r Result) Latency() time.Duration {
	if r.CapturedAt.IsZero() || r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.CapturedAt)
}

// Sink receives every completed cycle, success or failure.
type Sink interface {
	Append(r Result)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(r Result)

// Append calls f(r).
func (f SinkFunc) Append(r Result) {
	f(r)
}

// Sinks fans a result out to several sinks in order.
type Sinks []Sink

// Append forwards r to every non-nil sink.
func (s Sinks) Append(r Result) {
	for _, sink := range s {
		if sink != nil {
			sink.Append(r)
		}
	}
}
