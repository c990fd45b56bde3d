package metrics_test

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebvel/dolar-pipeline/internal/common/metrics"
)

func TestServeMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_test_events_total",
		Help: "Test counter.",
	})
	require.NoError(t, reg.Register(counter), "Setup: could not register counter")
	counter.Add(3)

	s := metrics.New(metrics.Config{Host: "localhost", Port: 0}, reg)

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe() }()
	t.Cleanup(func() { s.Close() })

	require.Eventually(t, func() bool { return s.Addr() != "" },
		2*time.Second, 10*time.Millisecond, "server should report its address once listening")

	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", s.Addr()))
	require.NoError(t, err, "GET /metrics error")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "status code")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "could not read metrics body")
	assert.Contains(t, string(body), "pipeline_test_events_total 3", "registered counter should be exported")

	require.NoError(t, s.Shutdown(t.Context()), "Shutdown() error")
	select {
	case err := <-done:
		require.ErrorIs(t, err, http.ErrServerClosed, "ListenAndServe() should report the server closed")
	case <-time.After(2 * time.Second):
		t.Fatal("ListenAndServe() did not return after shutdown")
	}
}

func TestServeLiveness(t *testing.T) {
	t.Parallel()

	s := metrics.New(metrics.Config{Host: "localhost", Port: 0}, prometheus.NewRegistry())
	go s.ListenAndServe()
	t.Cleanup(func() { s.Close() })

	require.Eventually(t, func() bool { return s.Addr() != "" },
		2*time.Second, 10*time.Millisecond, "server should report its address once listening")

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", s.Addr()))
	require.NoError(t, err, "GET /healthz error")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "status code")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "could not read liveness body")
	assert.JSONEq(t, `{"status":"ok"}`, string(body), "liveness body")
}

func TestListenFailure(t *testing.T) {
	t.Parallel()

	s := metrics.New(metrics.Config{Host: "localhost", Port: 0}, prometheus.NewRegistry())
	go s.ListenAndServe()
	t.Cleanup(func() { s.Close() })

	require.Eventually(t, func() bool { return s.Addr() != "" },
		2*time.Second, 10*time.Millisecond, "server should report its address once listening")

	_, portStr, err := net.SplitHostPort(s.Addr())
	require.NoError(t, err, "could not parse listen address")
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err, "could not parse listen port")

	other := metrics.New(metrics.Config{Host: "localhost", Port: port}, prometheus.NewRegistry())
	require.Error(t, other.ListenAndServe(), "binding an occupied port should fail")
}
