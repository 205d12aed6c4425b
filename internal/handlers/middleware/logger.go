package middleware

import (
	"net/http"
	"time"

	"github.com/nkiryanov/snapgram/internal/handlers/render"
)

type logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type logData struct {
	responseStatus int
	responseSize   int
}

type logWriter struct {
	http.ResponseWriter
	data        logData
	wroteHeader bool
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.wroteHeader = true
	size, err := w.ResponseWriter.Write(p)
	w.data.responseSize += size
	return size, err
}

func (w *logWriter) WriteHeader(statusCode int) {
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(statusCode)
	w.data.responseStatus = statusCode
}

// Log every request. Panic in handler is logged and turned into 500
func LoggerMiddleware(l logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			lw := &logWriter{
				ResponseWriter: w,
				data:           logData{responseStatus: http.StatusOK, responseSize: 0},
			}

			defer func() {
				if rec := recover(); rec != nil {
					l.Error("panic while handling request", "uri", r.RequestURI, "panic", rec)
					if !lw.wroteHeader {
						render.ServiceError(lw, "Internal server error", http.StatusInternalServerError)
					}
				}

				args := []any{
					"method", r.Method,
					"uri", r.RequestURI,
					"duration", time.Since(start),
					"status", lw.data.responseStatus,
					"size", lw.data.responseSize,
				}
				if lw.data.responseStatus >= http.StatusInternalServerError {
					l.Error("got HTTP request", args...)
					return
				}
				l.Info("got HTTP request", args...)
			}()

			next.ServeHTTP(lw, r)
		})
	}
}
