package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nkiryanov/snapgram/internal/metrics"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Count and time requests of one route
// Route pattern is used as label, raw path would explode label cardinality
func MetricsMiddleware(m *metrics.HTTP, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			m.Requests.WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).Inc()
			m.Duration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		})
	}
}
