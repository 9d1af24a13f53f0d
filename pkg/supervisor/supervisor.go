// Package supervisor keeps exactly one authenticated WebSocket connection to
// the watchdog endpoint alive.
//
// Each iteration of the supervisor loop opens one connection, keeps it alive
// with periodic pings and blocks until it terminates. Every termination, from
// a refused dial to a clean remote close, increments a shared failure counter;
// every successful open resets it. Reconnection is immediate. When the counter
// reaches MaxFailures the loop gives up and Run returns ErrRetriesExhausted.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/codeGROOVE-dev/watchdog/pkg/keepalive"
	"github.com/codeGROOVE-dev/watchdog/pkg/metrics"
)

const (
	// MaxFailures is the number of consecutive connection-ending events
	// tolerated before the supervisor gives up.
	MaxFailures = 3

	// DefaultKeepAlive is the ping interval used when none is configured.
	DefaultKeepAlive = 120 * time.Second

	separatorLine = "!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!"
)

var (
	// ErrMissingCredentials is returned by New when the URL or token is empty.
	ErrMissingCredentials = errors.New("url and token are required")

	// ErrRetriesExhausted is returned by Run once MaxFailures consecutive
	// attempts have ended.
	ErrRetriesExhausted = errors.New("reached retries limit")

	// ErrClosedByPeer reports a connection closed by the watchdog.
	ErrClosedByPeer = errors.New("connection closed by peer")
)

// Config holds the supervisor configuration.
type Config struct {
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Counter      *Counter
	OnConnect    func()
	OnDisconnect func(error)
	URL          string
	Token        string
	KeepAlive    time.Duration
}

// Supervisor owns the reconnect loop and the shared failure counter.
type Supervisor struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	counter *Counter
	pinger  keepalive.Pinger // replaces the socket ping when set
	cfg     Config
}

// New validates cfg and creates a supervisor. A non-positive KeepAlive falls
// back to DefaultKeepAlive. A nil Counter gets a fresh one.
func New(cfg Config) (*Supervisor, error) {
	if cfg.URL == "" || cfg.Token == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	counter := cfg.Counter
	if counter == nil {
		counter = NewCounter()
	}

	return &Supervisor{
		cfg:     cfg,
		logger:  logger,
		metrics: cfg.Metrics,
		counter: counter,
	}, nil
}

// Failures returns the current value of the shared failure counter.
func (s *Supervisor) Failures() int {
	return s.counter.Value()
}

// Run connects and reconnects until the failure budget is exhausted or ctx is
// cancelled. It returns an error wrapping ErrRetriesExhausted in the first
// case and ctx.Err() in the second. Only one attempt is in flight at a time
// and no delay separates attempts.
func (s *Supervisor) Run(ctx context.Context) error {
	attempt := 0
	// Set once the loop decides to stop. The retry library only keeps a
	// bounded history of attempt errors, so the outcome is tracked here.
	var final error
	stop := func(err error) error {
		final = err
		return retry.Unrecoverable(err)
	}

	err := retry.Do(func() error {
		if err := ctx.Err(); err != nil {
			return stop(err)
		}

		attempt++
		if attempt == 1 {
			s.logger.Info("CONNECTING to watchdog", "url", s.cfg.URL)
		} else {
			s.logger.Info("RECONNECTING to watchdog", "url", s.cfg.URL, "attempt", attempt)
		}

		s.metrics.Attempt()
		sessErr := newSession(s).run(ctx)

		failures := s.counter.Increment()
		s.metrics.Failed(failures)

		if ctx.Err() != nil {
			s.logger.Info("Supervisor context cancelled, shutting down")
			return stop(ctx.Err())
		}

		s.logger.Warn(separatorLine)
		s.logger.Warn("WebSocket CONNECTION LOST!", "error", sessErr, "failures", failures, "limit", MaxFailures)
		s.logger.Warn(separatorLine)

		if s.cfg.OnDisconnect != nil {
			s.cfg.OnDisconnect(sessErr)
		}

		if failures >= MaxFailures {
			s.logger.Error("Reached retries limit!", "failures", failures)
			return stop(fmt.Errorf("%w: %d consecutive failures: %w", ErrRetriesExhausted, failures, sessErr))
		}
		return sessErr
	},
		retry.Context(ctx),
		retry.UntilSucceeded(),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if final != nil {
		return final
	}
	return err
}
