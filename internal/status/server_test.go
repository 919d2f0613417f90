package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer() *Server {
	registry := prometheus.NewRegistry()
	return NewServer("127.0.0.1:0", registry, func() Snapshot {
		return Snapshot{
			RunID:     "run-1",
			StartedAt: time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC),
			Year:      2024,
			Page:      7,
			Items:     123,
		}
	})
}

func TestHealthz(t *testing.T) {
	s := testServer()

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestStatusReportsSnapshot(t *testing.T) {
	s := testServer()

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, 2024, snap.Year)
	assert.Equal(t, 7, snap.Page)
	assert.Equal(t, 123, snap.Items)
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "harvester_pages_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	s := NewServer("127.0.0.1:0", registry, func() Snapshot { return Snapshot{} })

	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "harvester_pages_total 1")
}
