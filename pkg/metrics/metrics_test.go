package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecording(t *testing.T) {
	m := New()

	m.Attempt()
	m.Failed(1)
	m.Attempt()
	m.Opened()
	m.Ping(nil)
	m.Ping(nil)
	m.Ping(errors.New("broken pipe"))
	m.Failed(1)
	m.Attempt()
	m.Failed(2)

	assert.InDelta(t, 3, testutil.ToFloat64(m.ConnectionAttempts), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ConnectionsOpened), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.ConnectionFailures), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.ConsecutiveFailures), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.PingsSent), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PingFailures), 0)

	m.Opened()
	assert.InDelta(t, 0, testutil.ToFloat64(m.ConsecutiveFailures), 0)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Attempt()
		m.Opened()
		m.Failed(3)
		m.Ping(nil)
		m.Ping(errors.New("x"))
	})
}

func TestServerExposesMetrics(t *testing.T) {
	m := New()
	m.Attempt()

	srv := NewServer("127.0.0.1:0", m, nil)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Stop(ctx) //nolint:errcheck // best-effort cleanup
	})

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "watchdog_connection_attempts_total 1"),
		"attempt counter missing from exposition")

	health, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
