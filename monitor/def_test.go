package monitor

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_Counters(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.ObserveRequest("/detect", 200)
	m.ObserveRequest("/detect", 200)
	m.ObserveRequest("/detect", 422)
	m.ObserveRequest("", 404)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("/detect", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("/detect", "422")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("unmatched", "404")))

	m.ObserveRPC("/grpc.health.v1.Health/Check", "OK")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.grpcTotal.WithLabelValues("/grpc.health.v1.Health/Check", "OK")))

	m.SetModelLoaded(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelLoaded))
	m.SetModelLoaded(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.modelLoaded))
}

func TestMonitor_Handler(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	m.ObserveDetection(3)
	m.CheckProcessInfo()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "memory_usage_Megabytes")
	assert.Contains(t, string(body), "cpu_usage_percent")
	assert.Contains(t, string(body), "detected_items_count 1")
}

func TestMonitor_NilIsNoop(t *testing.T) {
	var m *Monitor
	assert.NotPanics(t, func() {
		m.ObserveRequest("/", 200)
		m.ObserveDetection(1)
		m.ObserveRPC("/x", "OK")
		m.SetModelLoaded(true)
	})
}
