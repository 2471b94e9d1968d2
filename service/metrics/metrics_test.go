package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordRPCCall("getHealth", "success", "https://rpc.test", 0.1)
		m.RecordClusterProbe("error", 1)
		m.RecordTransactionSent("partial", "success", 0.2)
		m.RecordSnapshotWrite("file", errors.New("disk full"))
		m.RecordHTTPRequest("/healthz", "GET", 200, 0.01)
	})
}

func TestRecordSnapshotWrite(t *testing.T) {
	// Setup
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	// Act
	m.RecordSnapshotWrite("postgres", nil)
	m.RecordSnapshotWrite("postgres", nil)
	m.RecordSnapshotWrite("nats-kv", errors.New("timeout"))

	// Assert
	assert.Equal(t, 2.0, testutil.ToFloat64(m.snapshotWritesTotal.WithLabelValues("postgres", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.snapshotWritesTotal.WithLabelValues("nats-kv", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.snapshotWritesTotal))
}

func TestHTTPMetricsMiddleware_CapturesStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		bucket string
	}{
		{name: "ok", status: http.StatusOK, bucket: "2xx"},
		{name: "not found", status: http.StatusNotFound, bucket: "4xx"},
		{name: "server error", status: http.StatusBadGateway, bucket: "5xx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			reg := prometheus.NewRegistry()
			m := NewMetrics(reg)
			handler := HTTPMetricsMiddleware(m, "/api/v1/state")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			// Act
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/state", nil))

			// Assert
			require.Equal(t, tt.status, rec.Code)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/api/v1/state", "GET", tt.bucket)))
		})
	}
}

func TestStatusCodeToString(t *testing.T) {
	assert.Equal(t, "3xx", statusCodeToString(http.StatusFound))
	assert.Equal(t, "unknown", statusCodeToString(0))
}
