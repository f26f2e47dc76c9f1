package scheduler

import (
	"context"
	"errors"
)

// ErrSkipped resolves cycles that found the source not ready. No result
// is emitted for them.
var ErrSkipped = errors.New("scheduler: cycle skipped")

// Cycle is a handle on one dispatched capture-upload cycle.
type Cycle struct {
	Seq     uint64
	Trigger Trigger

	done   chan struct{}
	result Result
	err    error
}

func newCycle(seq uint64, trigger Trigger) *Cycle {
	return &Cycle{Seq: seq, Trigger: trigger, done: make(chan struct{})}
}

func (c *Cycle) finish(r Result, err error) {
	c.result = r
	c.err = err
	close(c.done)
}

// Done is closed when the cycle has completed or been skipped.
func (c *Cycle) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the cycle completes. Failed uploads still return a
// Result with a nil error; only skipped cycles and ctx expiry return errors.
func (c *Cycle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
