// Package keepalive implements a self-rescheduling ping timer bound to a
// single open connection.
//
// A Timer fires once per interval. Each firing sends one ping and, only if the
// ping succeeded, arms the next firing for the same interval. A failed ping
// stops the cycle and is reported once through the failure callback so that
// the owning connection can be torn down.
package keepalive

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrInvalidInterval is returned by New for non-positive intervals.
var ErrInvalidInterval = errors.New("keepalive interval must be positive")

// State is the lifecycle state of a Timer.
type State int

// Timer states. The only valid transitions are
// Idle -> Armed, Armed -> Fired, Fired -> Armed and any -> Canceled.
const (
	Idle State = iota
	Armed
	Fired
	Canceled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Fired:
		return "fired"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Pinger sends a single ping frame on an open connection.
type Pinger interface {
	Ping() error
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func() error

// Ping calls f.
func (f PingerFunc) Ping() error { return f() }

// stopper is the subset of *time.Timer used by Timer.
type stopper interface {
	Stop() bool
}

// scheduler arranges for fn to run once after d.
type scheduler func(d time.Duration, fn func()) stopper

func afterFunc(d time.Duration, fn func()) stopper {
	return time.AfterFunc(d, fn)
}

// Timer is a single-shot timer that re-arms itself after every successful ping.
type Timer struct {
	pinger   Pinger
	onFail   func(error)
	logger   *slog.Logger
	schedule scheduler
	pending  stopper
	interval time.Duration
	pings    int
	mu       sync.Mutex // held across the ping send so Cancel waits for it
	state    State
}

// New creates an idle timer. onFail may be nil.
func New(interval time.Duration, pinger Pinger, onFail func(error), logger *slog.Logger) (*Timer, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if pinger == nil {
		return nil, errors.New("pinger is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Timer{
		interval: interval,
		pinger:   pinger,
		onFail:   onFail,
		logger:   logger,
		schedule: afterFunc,
	}, nil
}

// Arm schedules the first firing. It has no effect unless the timer is idle.
func (t *Timer) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Idle {
		return
	}
	t.armLocked()
}

func (t *Timer) armLocked() {
	t.state = Armed
	t.pending = t.schedule(t.interval, t.fire)
}

// fire runs on the scheduler's goroutine.
func (t *Timer) fire() {
	t.mu.Lock()
	if t.state != Armed {
		t.mu.Unlock()
		return
	}
	t.state = Fired
	t.pending = nil

	t.logger.Debug("[KEEP-ALIVE] Sending ping", "interval", t.interval)
	if err := t.pinger.Ping(); err != nil {
		t.state = Canceled
		t.mu.Unlock()
		t.logger.Warn("[KEEP-ALIVE] Ping failed, not re-arming", "error", err)
		if t.onFail != nil {
			t.onFail(err)
		}
		return
	}
	t.pings++
	t.armLocked()
	t.mu.Unlock()
}

// Cancel stops the timer permanently. It waits for an in-flight ping to finish,
// so once Cancel returns no further ping is sent. Safe to call repeatedly.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	t.state = Canceled
}

// State returns the current state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Pings returns the number of pings sent successfully.
func (t *Timer) Pings() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pings
}

// Interval returns the configured interval.
func (t *Timer) Interval() time.Duration {
	return t.interval
}
