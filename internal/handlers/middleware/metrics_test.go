package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/snapgram/internal/metrics"
)

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewHTTP(reg)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	handler := MetricsMiddleware(m, "/auth/login")(h)

	for range 2 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login?x=1", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}

	require.InDelta(t, 2, promtest.ToFloat64(m.Requests.WithLabelValues("/auth/login", http.MethodPost, "400")), 0)

	n, err := promtest.GatherAndCount(reg, "snapgram_http_request_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
