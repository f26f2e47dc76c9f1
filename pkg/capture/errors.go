package capture

import (
	"errors"
	"fmt"
)

// ErrSourceNotReady is returned when the source is absent, paused or ended.
// Callers treat it as "nothing to capture" rather than a failure.
var ErrSourceNotReady = errors.New("capture: source not ready")

// EncodeError reports that a frame could not be sampled or encoded.
type EncodeError struct {
	Err error
}

// Error implements the error interface.
func (e *EncodeError) Error() string {
	return fmt.Sprintf("capture: encode failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *EncodeError) Unwrap() error {
	return e.Err
}
