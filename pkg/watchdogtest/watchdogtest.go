// Package watchdogtest provides an in-process watchdog endpoint for tests and
// local runs. It authenticates bearer tokens, counts handshakes and keepalive
// pings, and can be scripted to refuse or drop individual connection attempts.
package watchdogtest

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = time.Second

// Behavior decides what happens to connection attempt n (1-based).
type Behavior struct {
	// Reject, when non-zero, answers the attempt with this HTTP status
	// instead of upgrading.
	Reject int
	// CloseAfterUpgrade closes the connection right after a successful upgrade.
	CloseAfterUpgrade bool
}

// Server is a fake watchdog endpoint.
type Server struct {
	logger   *slog.Logger
	httpSrv  *httptest.Server
	script   func(attempt int) Behavior
	conns    map[*websocket.Conn]struct{}
	pingCh   chan int
	upgrader websocket.Upgrader
	token    string
	auth     []string
	mu       sync.Mutex
	attempts int
	upgrades int
	pings    int
}

// Option configures a Server.
type Option func(*Server)

// WithScript sets the per-attempt behavior.
func WithScript(script func(attempt int) Behavior) Option {
	return func(s *Server) { s.script = script }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New starts a server on a loopback port that accepts connections bearing token.
func New(token string, opts ...Option) *Server {
	s := newServer(token, opts...)
	s.httpSrv = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	return s
}

// Listen starts a server on addr, for running outside of tests.
func Listen(addr, token string, opts ...Option) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	s := newServer(token, opts...)
	s.httpSrv = httptest.NewUnstartedServer(http.HandlerFunc(s.serveHTTP))
	_ = s.httpSrv.Listener.Close() //nolint:errcheck // replaced below
	s.httpSrv.Listener = ln
	s.httpSrv.Start()
	return s, nil
}

func newServer(token string, opts ...Option) *Server {
	s := &Server{
		token:  token,
		conns:  make(map[*websocket.Conn]struct{}),
		pingCh: make(chan int, 1024),
		logger: slog.Default(),
		script: func(int) Behavior { return Behavior{} },
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// URL returns the ws:// address of the endpoint.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.httpSrv.URL, "http") + "/ws"
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	authz := r.Header.Get("Authorization")

	s.mu.Lock()
	s.attempts++
	n := s.attempts
	s.auth = append(s.auth, authz)
	s.mu.Unlock()

	b := s.script(n)
	if b.Reject != 0 {
		s.logger.Debug("rejecting attempt", "attempt", n, "status", b.Reject)
		http.Error(w, http.StatusText(b.Reject), b.Reject)
		return
	}

	want := "Bearer " + s.token
	if subtle.ConstantTimeCompare([]byte(authz), []byte(want)) != 1 {
		s.logger.Debug("unauthorized attempt", "attempt", n)
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "attempt", n, "error", err)
		return
	}

	s.mu.Lock()
	s.upgrades++
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close() //nolint:errcheck // best-effort cleanup
	}()

	if b.CloseAfterUpgrade {
		s.logger.Debug("closing after upgrade", "attempt", n)
		_ = conn.WriteControl(websocket.CloseMessage, //nolint:errcheck // peer may already be gone
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		return
	}

	conn.SetPingHandler(func(data string) error {
		s.mu.Lock()
		s.pings++
		count := s.pings
		s.mu.Unlock()
		select {
		case s.pingCh <- count:
		default:
		}
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Pinged delivers the running ping total each time a ping frame arrives.
func (s *Server) Pinged() <-chan int {
	return s.pingCh
}

// Attempts returns the number of HTTP requests received.
func (s *Server) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Upgrades returns the number of successful WebSocket handshakes.
func (s *Server) Upgrades() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upgrades
}

// Pings returns the number of ping frames received.
func (s *Server) Pings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings
}

// Authorizations returns the Authorization header of every attempt in order.
func (s *Server) Authorizations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.auth...)
}

// DropSessions closes every open connection without a close handshake.
func (s *Server) DropSessions() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close() //nolint:errcheck // best-effort
	}
}

// Close drops open sessions and shuts the server down.
func (s *Server) Close() {
	s.DropSessions()
	s.httpSrv.Close()
}
