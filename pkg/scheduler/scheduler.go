// Package scheduler drives capture-upload cycles, either on a fixed cadence
// or on demand, and hands every completed cycle to a Sink.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mixer/clock"

	"github.com/teslashibe/go-snapclass/pkg/capture"
	"github.com/teslashibe/go-snapclass/pkg/upload"
)

// State is the auto-capture state.
type State int

const (
	Idle State = iota
	Running
)

// String implements fmt.Stringer.
func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Dispatched uint64 `json:"dispatched"`
	Completed  uint64 `json:"completed"`
	Failed     uint64 `json:"failed"`
	Skipped    uint64 `json:"skipped"`
	Dropped    uint64 `json:"dropped"`
	InFlight   int64  `json:"in_flight"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	State  State
	Period time.Duration
	Stats  Stats
}

// Scheduler owns the auto-capture timer and dispatches cycles.
type Scheduler struct {
	producer capture.Capturer
	uploader upload.Uploader
	sink     Sink
	config   *Config
	clock    clock.Clock
	logger   *slog.Logger

	// Base context for cycles, cancelled only when Close gives up waiting.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	period   time.Duration
	stopLoop chan struct{}
	loopDone chan struct{}
	closed   bool

	seq          atomic.Uint64
	autoInFlight atomic.Int64
	inFlight     atomic.Int64
	wg           sync.WaitGroup

	dispatched atomic.Uint64
	completed  atomic.Uint64
	failed     atomic.Uint64
	skipped    atomic.Uint64
	dropped    atomic.Uint64
}

// New creates an idle scheduler.
func New(producer capture.Capturer, uploader upload.Uploader, sink Sink, opts ...Option) (*Scheduler, error) {
	if producer == nil {
		return nil, errors.New("scheduler: producer is required")
	}
	if uploader == nil {
		return nil, errors.New("scheduler: uploader is required")
	}
	if sink == nil {
		sink = Sinks(nil)
	}

	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.Clock == nil {
		cfg.Clock = clock.C
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Period < MinPeriod {
		cfg.Period = MinPeriod
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		producer: producer,
		uploader: uploader,
		sink:     sink,
		config:   cfg,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With("component", "scheduler"),
		ctx:      ctx,
		cancel:   cancel,
		period:   cfg.Period,
	}, nil
}

// Start enters Running: one cycle is dispatched immediately and the ticker
// is armed at the current period. Returns nil if already running or closed.
func (s *Scheduler) Start() *Cycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state == Running {
		return nil
	}
	return s.startLocked()
}

// Stop returns to Idle and disarms the ticker. In-flight cycles run to
// completion and still reach the sink.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle {
		return
	}
	s.stopLocked()
}

// Toggle flips between Idle and Running and returns the new state.
// A closed scheduler stays Idle.
func (s *Scheduler) Toggle() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == Running:
		s.stopLocked()
	case !s.closed:
		s.startLocked()
	}
	return s.state
}

// Snap dispatches one manual cycle without touching the auto timer.
// Returns nil once the scheduler is closed.
func (s *Scheduler) Snap() *Cycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.dispatch(TriggerManual)
}

// startLocked arms the ticker and dispatches the first cycle. Caller holds
// s.mu, so a concurrent Close waits for the cycle it dispatched.
func (s *Scheduler) startLocked() *Cycle {
	s.state = Running
	s.armLocked()
	s.logger.Info("auto capture started", "period", s.period, "overlap", s.config.Overlap)
	return s.dispatch(TriggerAuto)
}

func (s *Scheduler) stopLocked() {
	s.state = Idle
	s.disarmLocked()
	s.logger.Info("auto capture stopped", "in_flight", s.inFlight.Load())
}

// SetInterval changes the period, in seconds, with the 200ms floor applied.
// A running ticker is re-armed at the new period without an extra cycle.
func (s *Scheduler) SetInterval(seconds float64) time.Duration {
	return s.SetPeriod(EffectivePeriod(seconds))
}

// SetIntervalText parses free-text input the way ParseInterval does.
func (s *Scheduler) SetIntervalText(text string) time.Duration {
	return s.SetPeriod(ParseInterval(text))
}

// SetPeriod sets the ticker period directly.
func (s *Scheduler) SetPeriod(d time.Duration) time.Duration {
	if d < MinPeriod {
		d = MinPeriod
	}

	s.mu.Lock()
	changed := d != s.period
	s.period = d
	if changed && s.state == Running {
		s.disarmLocked()
		s.armLocked()
	}
	s.mu.Unlock()

	if changed {
		s.logger.Debug("interval changed", "period", d)
	}
	return d
}

// Period returns the current effective period.
func (s *Scheduler) Period() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.period
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a counter snapshot.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Dispatched: s.dispatched.Load(),
		Completed:  s.completed.Load(),
		Failed:     s.failed.Load(),
		Skipped:    s.skipped.Load(),
		Dropped:    s.dropped.Load(),
		InFlight:   s.inFlight.Load(),
	}
}

// Status returns state, period and counters together.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st := Status{State: s.state, Period: s.period}
	s.mu.Unlock()
	st.Stats = s.Stats()
	return st
}

// Close stops the scheduler and waits for in-flight cycles. If ctx ends
// first, outstanding uploads are cancelled and ctx.Err() is returned.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if s.state == Running {
		s.stopLocked()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

// armLocked starts a ticker loop. Caller holds s.mu.
func (s *Scheduler) armLocked() {
	ticker := s.clock.NewTicker(s.period)
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stopLoop = stop
	s.loopDone = done
	go s.loop(ticker, stop, done)
}

// disarmLocked stops the ticker loop and waits for it. Caller holds s.mu.
func (s *Scheduler) disarmLocked() {
	if s.stopLoop == nil {
		return
	}
	close(s.stopLoop)
	<-s.loopDone
	s.stopLoop = nil
	s.loopDone = nil
}

func (s *Scheduler) loop(ticker clock.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			select {
			case <-stop:
				return
			default:
			}
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	if s.config.Overlap == OverlapSkip && s.autoInFlight.Load() > 0 {
		n := s.dropped.Add(1)
		s.logger.Debug("tick dropped, previous cycle still in flight", "dropped", n)
		return
	}
	s.dispatch(TriggerAuto)
}

func (s *Scheduler) dispatch(trigger Trigger) *Cycle {
	c := newCycle(s.seq.Add(1), trigger)
	s.dispatched.Add(1)
	s.inFlight.Add(1)
	if trigger == TriggerAuto {
		s.autoInFlight.Add(1)
	}
	s.wg.Add(1)
	go s.run(c)
	return c
}

func (s *Scheduler) run(c *Cycle) {
	defer s.wg.Done()

	res, err := s.execute(c)

	if err == nil {
		s.sink.Append(res)
		s.completed.Add(1)
		if res.Failed() {
			s.failed.Add(1)
		}
	} else {
		s.skipped.Add(1)
	}

	s.inFlight.Add(-1)
	if c.Trigger == TriggerAuto {
		s.autoInFlight.Add(-1)
	}
	c.finish(res, err)
}

// execute runs one capture-upload cycle. A non-nil error means the cycle
// was skipped and produced no result.
func (s *Scheduler) execute(c *Cycle) (Result, error) {
	log := s.logger.With("seq", c.Seq, "trigger", c.Trigger)

	frame, err := s.producer.Capture(s.ctx)
	if errors.Is(err, capture.ErrSourceNotReady) {
		log.Debug("source not ready, cycle skipped")
		return Result{}, fmt.Errorf("%w: %w", ErrSkipped, err)
	}
	if err == nil && frame == nil {
		err = &capture.EncodeError{Err: errors.New("producer returned no frame")}
	}

	res := Result{
		Seq:        c.Seq,
		Trigger:    c.Trigger,
		CapturedAt: s.clock.Now(),
	}
	if err != nil {
		return s.fail(log, res, err), nil
	}

	res.Image = frame.Data
	res.Width = frame.Width
	res.Height = frame.Height
	if !frame.CapturedAt.IsZero() {
		res.CapturedAt = frame.CapturedAt
	}

	resp, err := s.uploader.Upload(s.ctx, frame.Data)
	if err != nil {
		return s.fail(log, res, err), nil
	}

	res.Label = resp.Label
	res.Confidence = resp.Confidence
	res.Saved = resp.Saved
	res.SavedFilename = resp.SavedFilename
	res.CompletedAt = s.clock.Now()

	log.Debug("cycle complete",
		"label", res.Label,
		"confidence", res.Confidence,
		"saved", res.Saved,
		"latency", res.Latency())
	return res, nil
}

func (s *Scheduler) fail(log *slog.Logger, res Result, err error) Result {
	res.Err = err
	res.Kind = Classify(err)
	res.Label = s.config.ErrorLabel
	res.Confidence = 0
	res.Saved = false
	res.SavedFilename = ""
	res.CompletedAt = s.clock.Now()

	log.Warn("cycle failed", "kind", res.Kind, "error", err)
	return res
}
