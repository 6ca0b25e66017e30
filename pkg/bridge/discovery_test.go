package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDiscoveryServer(t *testing.T, handler http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestDiscoverReturnsControlAddress(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok", "session_id": "abc"})
	})
	mux.HandleFunc(ServerInfoPath, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, ServerInfo{Host: "127.0.0.1", Port: 9001})
	})
	addr := testDiscoveryServer(t, mux)

	d := NewDiscoverer(DiscoveryConfig{Addr: addr, Retries: 3, Delay: time.Millisecond}, zerolog.Nop())
	info, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", info.Host)
	assert.Equal(t, 9001, info.Port)
}

func TestDiscoverMakesExactlyTheBudgetedAttempts(t *testing.T) {
	var attempts atomic.Int64
	addr := testDiscoveryServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	d := NewDiscoverer(DiscoveryConfig{Addr: addr, Retries: 4, Delay: time.Millisecond}, zerolog.Nop())
	_, err := d.Discover(context.Background())
	require.Error(t, err)

	// Each attempt stops at the failing health probe, so requests equal
	// attempts exactly.
	assert.Equal(t, int64(4), attempts.Load())
	assert.Contains(t, err.Error(), "after 4 attempts")
	assert.Contains(t, err.Error(), "the host process is not running")
	assert.Contains(t, err.Error(), "the bridge component is not injected")
	assert.Contains(t, err.Error(), "the discovery port is occupied")
}

func TestDiscoverRejectsMissingControlPort(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	mux.HandleFunc(ServerInfoPath, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, ServerInfo{})
	})
	addr := testDiscoveryServer(t, mux)

	d := NewDiscoverer(DiscoveryConfig{Addr: addr, Retries: 2, Delay: time.Millisecond}, zerolog.Nop())
	_, err := d.Discover(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no control port")
}

func TestDiscoverStopsOnCancel(t *testing.T) {
	addr := testDiscoveryServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDiscoverer(DiscoveryConfig{Addr: addr, Retries: 10, Delay: time.Hour}, zerolog.Nop())
	start := time.Now()
	_, err := d.Discover(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
