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

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRemoteCall("helius", "fetch", 0.1, nil)
		m.RecordSync(1, 2, 3, 2, 1, 0, nil)
		m.RecordClassified("SWAP", "mixed")
		m.RecordPriceCache(true)
		m.RecordFXFallback()
		m.RecordDBQuery("scan_all", "transactions", 0.01, nil)
		m.RecordHTTPRequest("/healthz", "GET", 200, 0.01)
		m.RecordNATSPublish("txns.w", "success", 0.01)
	})
}

func TestRecordSync(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSync(1.5, 2, 10, 7, 3, 0, nil)
	m.RecordSync(0.5, 1, 0, 0, 0, 0, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncRunsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncRunsTotal.WithLabelValues("error")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.transactionsInserted))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.transactionsSkipped))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	handler := HTTPMetricsMiddleware(m, "/test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/test", "GET", "4xx")))
}
