package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/codeGROOVE-dev/watchdog/pkg/handshake"
	"github.com/codeGROOVE-dev/watchdog/pkg/keepalive"
)

// pingWriteTimeout bounds a single ping write so a stalled peer cannot hold
// the keepalive timer forever.
const pingWriteTimeout = 10 * time.Second

type sessionState int

const (
	stateConnecting sessionState = iota
	stateOpen
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateOpen:
		return "open"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// session is one connection attempt, from dial to termination. It owns the
// socket and the keepalive timer of that attempt.
type session struct {
	sup       *Supervisor
	logger    *slog.Logger
	ws        *websocket.Conn
	timer     *keepalive.Timer
	cause     error
	id        string
	mu        sync.Mutex
	state     sessionState
	closeOnce sync.Once
}

func newSession(sup *Supervisor) *session {
	id := uuid.NewString()
	return &session{
		sup:    sup,
		id:     id,
		logger: sup.logger.With("session_id", id),
		state:  stateConnecting,
	}
}

// run performs the attempt and blocks until it ends. The returned error is
// never nil: every way out of a session is a termination.
func (ss *session) run(ctx context.Context) error {
	wsCfg, err := handshake.Build(ss.sup.cfg.URL, ss.sup.cfg.Token)
	if err != nil {
		ss.setState(stateClosed)
		return fmt.Errorf("handshake: %w", err)
	}

	ss.logger.Info("Establishing WebSocket connection", "url", ss.sup.cfg.URL)
	ws, err := wsCfg.DialContext(ctx)
	if err != nil {
		ss.setState(stateClosed)
		if isBadStatus(err) {
			ss.logger.Warn("Watchdog refused the handshake", "error", err)
		}
		return fmt.Errorf("dial: %w", err)
	}

	if err := ss.onOpen(ws); err != nil {
		ss.onClose(err)
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		ss.terminate(ctx.Err())
	})
	defer stop()

	readErr := ss.readLoop()
	return ss.onClose(readErr)
}

// onOpen runs once the handshake is acknowledged.
func (ss *session) onOpen(ws *websocket.Conn) error {
	// The core only ever writes pings, so every Write is a ping frame.
	ws.PayloadType = websocket.PingFrame

	ss.mu.Lock()
	ss.ws = ws
	ss.state = stateOpen
	ss.mu.Unlock()

	ss.sup.counter.Reset()
	ss.sup.metrics.Opened()
	ss.logger.Info("✓ Connection established")

	var pinger keepalive.Pinger = keepalive.PingerFunc(ss.onTimerFire)
	if ss.sup.pinger != nil {
		pinger = ss.sup.pinger
	}
	timer, err := keepalive.New(ss.sup.cfg.KeepAlive, pinger, ss.terminate, ss.logger)
	if err != nil {
		return fmt.Errorf("keepalive: %w", err)
	}
	ss.mu.Lock()
	ss.timer = timer
	ss.mu.Unlock()
	timer.Arm()
	ss.logger.Debug("[KEEP-ALIVE] Timer armed", "interval", timer.Interval())

	if ss.sup.cfg.OnConnect != nil {
		ss.sup.cfg.OnConnect()
	}
	return nil
}

// onTimerFire sends one ping frame. It is called by the keepalive timer.
func (ss *session) onTimerFire() error {
	if err := ss.ws.SetWriteDeadline(time.Now().Add(pingWriteTimeout)); err != nil {
		ss.sup.metrics.Ping(err)
		return fmt.Errorf("set write deadline: %w", err)
	}
	_, err := ss.ws.Write(nil)
	ss.sup.metrics.Ping(err)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	ss.logger.Debug("[KEEP-ALIVE] ✓ Ping sent")
	return nil
}

// readLoop drains inbound frames until the connection fails. Control frames
// are answered by the transport; payloads are discarded.
func (ss *session) readLoop() error {
	for {
		var msg []byte
		if err := websocket.Message.Receive(ss.ws, &msg); err != nil {
			if errors.Is(err, io.EOF) {
				return ErrClosedByPeer
			}
			return fmt.Errorf("read: %w", err)
		}
		ss.logger.Debug("Discarding inbound message", "bytes", len(msg))
	}
}

// terminate ends the session from outside the read loop: ping failure or
// local shutdown. The first recorded cause wins.
func (ss *session) terminate(cause error) {
	ss.mu.Lock()
	if ss.cause == nil {
		ss.cause = cause
	}
	ss.mu.Unlock()
	ss.release()
}

// onClose finalizes the session and returns the termination cause.
func (ss *session) onClose(readErr error) error {
	ss.release()

	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.state = stateClosed
	if ss.cause != nil {
		return ss.cause
	}
	if readErr == nil {
		readErr = ErrClosedByPeer
	}
	ss.cause = readErr
	return readErr
}

// release cancels the timer before closing the socket, exactly once.
func (ss *session) release() {
	ss.closeOnce.Do(func() {
		ss.mu.Lock()
		timer, ws := ss.timer, ss.ws
		ss.mu.Unlock()

		if timer != nil {
			timer.Cancel()
		}
		if ws != nil {
			if err := ws.Close(); err != nil {
				ss.logger.Debug("Failed to close websocket cleanly", "error", err)
			}
		}
	})
}

// isBadStatus reports whether the handshake was answered with a non-101 status.
// DialError does not implement Unwrap, so errors.Is cannot see through it.
func isBadStatus(err error) bool {
	var de *websocket.DialError
	return errors.As(err, &de) && de.Err == websocket.ErrBadStatus
}

func (ss *session) setState(s sessionState) {
	ss.mu.Lock()
	ss.state = s
	ss.mu.Unlock()
}

func (ss *session) currentState() sessionState {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.state
}
