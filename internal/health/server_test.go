package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer() (*Server, *Registry) {
	reg := NewRegistry()
	promReg := prometheus.NewRegistry()
	metrics := NewMetrics(promReg)
	s := NewServer(DefaultConfig(0), reg, metrics, promReg)
	return s, reg
}

func TestHealthEndpoint_OKWhenAllTasksAlive(t *testing.T) {
	s, reg := newTestServer()
	reg.Heartbeat("collector")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
}

func TestHealthEndpoint_UnavailableWhenTaskDead(t *testing.T) {
	s, reg := newTestServer()
	reg.Heartbeat("collector")
	reg.MarkDead("collector")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyEndpoint_ReportsDependencyFailure(t *testing.T) {
	s, reg := newTestServer()
	reg.RegisterDependency("nats", func() error { return errors.New("down") })

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body readyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Dependencies, 1)
	assert.False(t, body.Dependencies[0].Reachable)
}

func TestMetricsEndpoint_ExposesPrometheusText(t *testing.T) {
	s, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "marketprism_orderbook_sync_state")
}

func TestRequestIDMiddleware_SetsResponseHeader(t *testing.T) {
	s, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
