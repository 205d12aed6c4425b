package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/nkiryanov/snapgram/internal/handlers/render"
	"github.com/nkiryanov/snapgram/internal/handlers/userctx"
	"github.com/nkiryanov/snapgram/internal/models"
)

const bearerScheme = "Bearer"

type authService interface {
	// Resolve user by access token
	Authenticate(ctx context.Context, access string) (models.User, error)
}

// Require valid access token in 'Authorization: Bearer <token>' header
// Authenticated user is put into request context, see userctx
func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, ok := bearerToken(r)
			if !ok {
				render.ServiceError(w, "Access denied", http.StatusUnauthorized)
				return
			}

			user, err := as.Authenticate(r.Context(), access)
			if err != nil {
				render.ServiceError(w, "Access denied", http.StatusUnauthorized)
				return
			}

			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}
