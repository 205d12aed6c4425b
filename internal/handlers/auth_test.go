package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/snapgram/internal/apperrors"
	"github.com/nkiryanov/snapgram/internal/handlers/middleware"
	"github.com/nkiryanov/snapgram/internal/logger"
	"github.com/nkiryanov/snapgram/internal/metrics"
	"github.com/nkiryanov/snapgram/internal/repository/postgres"
	"github.com/nkiryanov/snapgram/internal/service/auth"
	"github.com/nkiryanov/snapgram/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/snapgram/internal/service/user"
	"github.com/nkiryanov/snapgram/internal/testutil"
)

type googleFunc func(ctx context.Context, credential string) (auth.GoogleIdentity, error)

func (f googleFunc) Verify(ctx context.Context, credential string) (auth.GoogleIdentity, error) {
	return f(ctx, credential)
}

// Accepts credentials in form 'valid:<email>'
var testGoogle = googleFunc(func(_ context.Context, credential string) (auth.GoogleIdentity, error) {
	email, ok := strings.CutPrefix(credential, "valid:")
	if !ok {
		return auth.GoogleIdentity{}, errors.Join(apperrors.ErrExternalCredential, errors.New("token signature is invalid"))
	}
	return auth.GoogleIdentity{Subject: "sub", Email: email, EmailVerified: true}, nil
})

type client struct {
	t   *testing.T
	url string
}

// Send request with optional JSON body and bearer token, return status and body
func (c client) do(method string, path string, body string, access string) (int, string) {
	c.t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(c.t.Context(), method, c.url+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode, string(respBody)
}

func (c client) post(path string, body string) (int, string) {
	c.t.Helper()
	return c.do(http.MethodPost, path, body, "")
}

type tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
}

func decode[T any](t *testing.T, body string) T {
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v), "body is not expected JSON: %s", body)
	return v
}

func Test_AuthHandlers(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Run http server with production router and services
	withTx := func(t *testing.T, limiter *middleware.RateLimiter, fn func(c client)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			reg := prometheus.NewRegistry()

			tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"})
			require.NoError(t, err, "token manager should be created without errors")

			authService, err := auth.NewService(
				auth.Config{Google: testGoogle, Metrics: metrics.NewAuth(reg)},
				tokenManager,
				storage.User(),
			)
			require.NoError(t, err, "auth service starting error")

			router := NewRouter(authService, user.NewService(storage.User()), RouterConfig{LoginLimiter: limiter, Registry: reg}, logger.NewNoOpLogger())
			srv := httptest.NewServer(router)
			defer srv.Close()

			fn(client{t: t, url: srv.URL})
		})
	}

	const alice = `{"username": "alice", "password": "pw123", "email": "a@x.com"}`
	const aliceLogin = `{"username": "alice", "password": "pw123"}`

	t.Run("register ok", func(t *testing.T) {
		withTx(t, nil, func(c client) {
			code, body := c.post("/auth/register", alice)

			require.Equalf(t, http.StatusOK, code, "not expected code. Body: %s", body)
			got := decode[map[string]any](t, body)
			require.NotEmpty(t, got["_id"])
			require.Equal(t, "alice", got["username"])
			require.Equal(t, "a@x.com", got["email"])
			require.NotContains(t, body, "password", "credential material must never leave")
			require.NotContains(t, body, "$2a$")
			require.NotContains(t, body, "refreshToken")
		})
	})

	t.Run("register existed user fails", func(t *testing.T) {
		withTx(t, nil, func(c client) {
			code, _ := c.post("/auth/register", alice)
			require.Equal(t, http.StatusOK, code)

			code, body := c.post("/auth/register", alice)

			require.Equalf(t, http.StatusBadRequest, code, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "User already exists"
				}`, body)
		})
	})

	t.Run("register validation", func(t *testing.T) {
		withTx(t, nil, func(c client) {
			code, body := c.post("/auth/register", `{"username": "alice"}`)

			require.Equalf(t, http.StatusBadRequest, code, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "validation_failed",
					"message": "Request validation failed",
					"fields": {
						"password": "This field is required",
						"email": "This field is required"
					}
				}`, body)
		})
	})

	t.Run("register password too long in bytes", func(t *testing.T) {
		withTx(t, nil, func(c client) {
			password := strings.Repeat("é", 40)

			code, body := c.post("/auth/register", `{"username": "alice", "password": "`+password+`", "email": "a@x.com"}`)

			require.Equalf(t, http.StatusBadRequest, code, "not expected code. Body: %s", body)
			require.Equal(t, "validation_failed", decode[map[string]any](t, body)["error"])
		})
	})

	t.Run("register with uploaded profile image", func(t *testing.T) {
		withTx(t, nil, func(c client) {
			for i, image := range []string{"/uploads/a.png", "https://cdn.example.com/a.png"} {
				username := fmt.Sprintf("user%d", i)

				code, body := c.post("/auth/register", `{"username": "`+username+`", "password": "pw123", "email": "`+username+`@x.com", "profileImage": "`+image+`"}`)

				require.Equalf(t, http.StatusOK, code, "not expected code. Body: %s", body)
				require.Equal(t, image, decode[map[string]any](t, body)["profileImage"])
			}
		})
	})

	t.Run("register with invalid profile image", func(t *testing.T) {
		withTx(t, nil, func(c client) {
			code, body := c.post("/auth/register", `{"username": "alice", "password": "pw123", "email": "a@x.com", "profileImage": "not a reference"}`)

			require.Equalf(t, http.StatusBadRequest, code, "not expected code. Body: %s", body)
			require.Contains(t, decode[map[string]any](t, body)["fields"], "profileImage")
		})
	})

	t.Run("login ok", func(t *testing.T) {
		withTx(t, nil, func(c client) {
			_, registered := c.post("/auth/register", alice)
			id := decode[map[string]any](t, registered)["_id"]

			code, body := c.post("/auth/login", aliceLogin)

			require.Equalf(t, http.StatusOK, code, "not expected code. Body: %s", body)
			pair := decode[tokens](t, body)
			require.NotEmpty(t, pair.AccessToken)
			require.NotEmpty(t, pair.RefreshToken)
			require.Equal(t, id, pair.UserID)

			code, me := c.do(http.MethodGet, "/users/me", "", pair.AccessToken)
			require.Equalf(t, http.StatusOK, code, "access token must authenticate. Body: %s", me)
			require.Equal(t, id, decode[map[string]any](t, me)["_id"], "access token recovers the same subject")
		})
	})

	t.Run("wrong password and unknown user are identical", func(t *testing.T) {
		withTx(t, nil, func(c client) {
			c.post("/auth/register", alice)

			wrongCode, wrongBody := c.post("/auth/login", `{"username": "alice", "password": "WRONG"}`)
			unknownCode, unknownBody := c.post("/auth/login", `{"username": "nobody", "password": "pw123"}`)

			require.Equal(t, http.StatusBadRequest, wrongCode)
			require.Equal(t, wrongCode, unknownCode)
			require.Equal(t, wrongBody, unknownBody)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Wrong username or password"
				}`, wrongBody)
		})
	})

	t.Run("scenario", func(t *testing.T) {
		withTx(t, nil, func(c client) {
			code, body := c.post("/auth/register", alice)
			require.Equalf(t, http.StatusOK, code, "register. Body: %s", body)

			code, body = c.post("/auth/login", aliceLogin)
			require.Equalf(t, http.StatusOK, code, "login. Body: %s", body)
			first := decode[tokens](t, body)

			code, body = c.post("/auth/refresh", `{"refreshToken": "`+first.RefreshToken+`"}`)
			require.Equalf(t, http.StatusOK, code, "refresh. Body: %s", body)
			second := decode[tokens](t, body)
			require.NotEqual(t, first.RefreshToken, second.RefreshToken)
			require.Equal(t, first.UserID, second.UserID)

			code, body = c.post("/auth/logout", `{"refreshToken": "`+second.RefreshToken+`"}`)
			require.Equalf(t, http.StatusOK, code, "logout. Body: %s", body)

			code, body = c.post("/auth/refresh", `{"refreshToken": "`+second.RefreshToken+`"}`)
			require.Equalf(t, http.StatusBadRequest, code, "refresh after logout. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Invalid refresh token"
				}`, body)
		})
	})

	t.Run("stale refresh token burns session", func(t *testing.T) {
		withTx(t, nil, func(c client) {
			c.post("/auth/register", alice)
			_, body := c.post("/auth/login", aliceLogin)
			first := decode[tokens](t, body)
			_, body = c.post("/auth/refresh", `{"refreshToken": "`+first.RefreshToken+`"}`)
			second := decode[tokens](t, body)

			code, _ := c.post("/auth/refresh", `{"refreshToken": "`+first.RefreshToken+`"}`)
			require.Equal(t, http.StatusBadRequest, code, "reuse of rotated token fails")

			code, _ = c.post("/auth/refresh", `{"refreshToken": "`+second.RefreshToken+`"}`)
			require.Equal(t, http.StatusBadRequest, code, "current token is burned as well")
		})
	})

	t.Run("refresh garbage token", func(t *testing.T) {
		withTx(t, nil, func(c client) {
			code, body := c.post("/auth/refresh", `{"refreshToken": "garbage"}`)

			require.Equalf(t, http.StatusBadRequest, code, "not expected code. Body: %s", body)
		})
	})

	t.Run("logout twice fails harmlessly", func(t *testing.T) {
		withTx(t, nil, func(c client) {
			c.post("/auth/register", alice)
			_, body := c.post("/auth/login", aliceLogin)
			pair := decode[tokens](t, body)

			code, _ := c.post("/auth/logout", `{"refreshToken": "`+pair.RefreshToken+`"}`)
			require.Equal(t, http.StatusOK, code)

			code, _ = c.post("/auth/logout", `{"refreshToken": "`+pair.RefreshToken+`"}`)
			require.Equal(t, http.StatusBadRequest, code)
		})
	})

	t.Run("google", func(t *testing.T) {
		t.Run("login unknown user", func(t *testing.T) {
			withTx(t, nil, func(c client) {
				code, body := c.post("/auth/google/login", `{"credential": "valid:new@gmail.com"}`)

				require.Equalf(t, http.StatusNotFound, code, "not expected code. Body: %s", body)
			})
		})

		t.Run("register then login", func(t *testing.T) {
			withTx(t, nil, func(c client) {
				code, body := c.post("/auth/google/register", `{"credential": "valid:new@gmail.com"}`)
				require.Equalf(t, http.StatusOK, code, "not expected code. Body: %s", body)
				registered := decode[map[string]any](t, body)
				require.Equal(t, "new", registered["username"])
				require.NotContains(t, body, "google-login")

				code, body = c.post("/auth/google/login", `{"credential": "valid:new@gmail.com"}`)
				require.Equalf(t, http.StatusOK, code, "not expected code. Body: %s", body)
				require.Equal(t, registered["_id"], decode[tokens](t, body).UserID)

				code, _ = c.post("/auth/login", `{"username": "new", "password": "google-login"}`)
				require.Equal(t, http.StatusBadRequest, code, "sentinel password never logs in")
			})
		})

		t.Run("register existing email", func(t *testing.T) {
			withTx(t, nil, func(c client) {
				c.post("/auth/register", alice)

				code, body := c.post("/auth/google/register", `{"credential": "valid:a@x.com"}`)

				require.Equalf(t, http.StatusBadRequest, code, "not expected code. Body: %s", body)
			})
		})

		t.Run("bad credential reason not forwarded", func(t *testing.T) {
			withTx(t, nil, func(c client) {
				code, body := c.post("/auth/google/login", `{"credential": "forged"}`)

				require.Equalf(t, http.StatusBadRequest, code, "not expected code. Body: %s", body)
				require.JSONEq(t, `
					{
						"error": "service_error",
						"message": "Invalid Google credential"
					}`, body)
			})
		})
	})

	t.Run("login rate limited", func(t *testing.T) {
		withTx(t, middleware.NewRateLimiter(1, 2), func(c client) {
			for range 2 {
				code, _ := c.post("/auth/login", aliceLogin)
				require.Equal(t, http.StatusBadRequest, code)
			}

			code, _ := c.post("/auth/login", aliceLogin)
			require.Equal(t, http.StatusTooManyRequests, code)

			code, _ = c.post("/auth/register", alice)
			require.Equal(t, http.StatusOK, code, "register is not limited")
		})
	})

	t.Run("metrics exposed", func(t *testing.T) {
		withTx(t, nil, func(c client) {
			c.post("/auth/login", aliceLogin)

			code, body := c.do(http.MethodGet, "/metrics", "", "")

			require.Equal(t, http.StatusOK, code)
			require.Contains(t, body, `snapgram_auth_operations_total{operation="login",result="invalid"} 1`)
			require.Contains(t, body, `snapgram_http_requests_total{code="400",method="POST",path="/auth/login"} 1`)
		})
	})
}
