package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	t.Run("allow burst then reject", func(t *testing.T) {
		rl := NewRateLimiter(60, 3)

		for i := range 3 {
			require.True(t, rl.Allow("10.0.0.1"), "request %d is within burst", i)
		}
		require.False(t, rl.Allow("10.0.0.1"), "burst is exhausted")
	})

	t.Run("clients are independent", func(t *testing.T) {
		rl := NewRateLimiter(60, 1)

		require.True(t, rl.Allow("10.0.0.1"))
		require.False(t, rl.Allow("10.0.0.1"))
		require.True(t, rl.Allow("10.0.0.2"), "other client has own bucket")
	})

	t.Run("idle clients are forgotten", func(t *testing.T) {
		rl := NewRateLimiter(60, 1)
		require.True(t, rl.Allow("10.0.0.1"))

		rl.clients["10.0.0.1"].lastSeen = time.Now().Add(-2 * limiterIdleTTL)
		rl.lastSweep = time.Now().Add(-2 * limiterIdleTTL)

		require.True(t, rl.Allow("10.0.0.2"))
		require.NotContains(t, rl.clients, "10.0.0.1")
	})

	t.Run("middleware", func(t *testing.T) {
		rl := NewRateLimiter(1, 1)
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		srv := httptest.NewServer(rl.Middleware(h))
		defer srv.Close()

		get := func() (int, string) {
			resp, err := http.Get(srv.URL + "/login")
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			defer resp.Body.Close() // nolint:errcheck
			return resp.StatusCode, string(body)
		}

		code, _ := get()
		require.Equal(t, http.StatusOK, code)

		code, body := get()
		require.Equal(t, http.StatusTooManyRequests, code)
		require.JSONEq(t, `{"error": "service_error", "message": "Too many requests"}`, body)
	})
}
