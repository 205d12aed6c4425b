package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/snapgram/internal/logger"
	"github.com/nkiryanov/snapgram/internal/repository/postgres"
	"github.com/nkiryanov/snapgram/internal/service/auth"
	"github.com/nkiryanov/snapgram/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/snapgram/internal/service/user"
	"github.com/nkiryanov/snapgram/internal/testutil"
)

func Test_UserHandlers(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Server with two registered users, 'alice' is logged in
	withTx := func(t *testing.T, fn func(c client, access string, bobID string)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)

			tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"})
			require.NoError(t, err)
			authService, err := auth.NewService(auth.Config{}, tokenManager, storage.User())
			require.NoError(t, err)

			srv := httptest.NewServer(NewRouter(authService, user.NewService(storage.User()), RouterConfig{}, logger.NewNoOpLogger()))
			defer srv.Close()
			c := client{t: t, url: srv.URL}

			code, _ := c.post("/auth/register", `{"username": "alice", "password": "pw123", "email": "a@x.com"}`)
			require.Equal(t, http.StatusOK, code)
			code, body := c.post("/auth/register", `{"username": "bob", "password": "pw123", "email": "b@x.com"}`)
			require.Equal(t, http.StatusOK, code)
			bobID, _ := decode[map[string]any](t, body)["_id"].(string)

			_, body = c.post("/auth/login", `{"username": "alice", "password": "pw123"}`)
			access := decode[tokens](t, body).AccessToken

			fn(c, access, bobID)
		})
	}

	t.Run("access denied without token", func(t *testing.T) {
		withTx(t, func(c client, _ string, bobID string) {
			for _, path := range []string{"/users/me", "/users/profile/" + bobID} {
				code, body := c.do(http.MethodGet, path, "", "")

				require.Equalf(t, http.StatusUnauthorized, code, "path %s. Body: %s", path, body)
				require.JSONEq(t, `{"error": "service_error", "message": "Access denied"}`, body)
			}
		})
	})

	t.Run("refresh token is not accepted as access", func(t *testing.T) {
		withTx(t, func(c client, _ string, _ string) {
			_, body := c.post("/auth/login", `{"username": "bob", "password": "pw123"}`)
			refresh := decode[tokens](t, body).RefreshToken

			code, _ := c.do(http.MethodGet, "/users/me", "", refresh)

			require.Equal(t, http.StatusUnauthorized, code)
		})
	})

	t.Run("profile ok", func(t *testing.T) {
		withTx(t, func(c client, access string, bobID string) {
			code, body := c.do(http.MethodGet, "/users/profile/"+bobID, "", access)

			require.Equalf(t, http.StatusOK, code, "not expected code. Body: %s", body)
			require.JSONEq(t, `{"_id": "`+bobID+`", "username": "bob", "email": "b@x.com", "profileImage": ""}`, body)
		})
	})

	t.Run("profile not found", func(t *testing.T) {
		withTx(t, func(c client, access string, _ string) {
			code, _ := c.do(http.MethodGet, "/users/profile/"+uuid.NewString(), "", access)

			require.Equal(t, http.StatusNotFound, code)
		})
	})

	t.Run("profile bad id", func(t *testing.T) {
		withTx(t, func(c client, access string, _ string) {
			code, _ := c.do(http.MethodGet, "/users/profile/42", "", access)

			require.Equal(t, http.StatusBadRequest, code)
		})
	})

	t.Run("update username", func(t *testing.T) {
		withTx(t, func(c client, access string, _ string) {
			code, body := c.do(http.MethodPut, "/users/username", `{"username": "alicia"}`, access)
			require.Equalf(t, http.StatusOK, code, "not expected code. Body: %s", body)
			require.Equal(t, "alicia", decode[map[string]any](t, body)["username"])

			code, body = c.post("/auth/login", `{"username": "alicia", "password": "pw123"}`)
			require.Equalf(t, http.StatusOK, code, "login with new username. Body: %s", body)
		})
	})

	t.Run("update username on camel case path", func(t *testing.T) {
		withTx(t, func(c client, access string, _ string) {
			code, body := c.do(http.MethodPut, "/users/userName", `{"username": "alicia"}`, access)

			require.Equalf(t, http.StatusOK, code, "not expected code. Body: %s", body)
			require.Equal(t, "alicia", decode[map[string]any](t, body)["username"])
		})
	})

	t.Run("update username taken", func(t *testing.T) {
		withTx(t, func(c client, access string, _ string) {
			code, body := c.do(http.MethodPut, "/users/username", `{"username": "bob"}`, access)

			require.Equalf(t, http.StatusBadRequest, code, "not expected code. Body: %s", body)
			require.JSONEq(t, `{"error": "service_error", "message": "Username already taken"}`, body)
		})
	})
}
