package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nkiryanov/snapgram/internal/handlers/middleware"
	"github.com/nkiryanov/snapgram/internal/logger"
	"github.com/nkiryanov/snapgram/internal/metrics"
	"github.com/nkiryanov/snapgram/internal/models"
	"github.com/nkiryanov/snapgram/internal/service/auth"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type RouterConfig struct {
	// Limits login attempts per client
	LoginLimiter *middleware.RateLimiter

	// Registry for http metrics and source for /metrics endpoint
	// New one is created if not set
	Registry *prometheus.Registry
}

func NewRouter(
	authService authService,
	userService userService,
	cfg RouterConfig,
	logger logger.Logger,
) http.Handler {
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	httpMetrics := metrics.NewHTTP(cfg.Registry)

	withAuth := middleware.AuthMiddleware(authService)
	withLimit := func(h http.Handler) http.Handler { return h }
	if cfg.LoginLimiter != nil {
		withLimit = cfg.LoginLimiter.Middleware
	}

	// Register pattern on mux, route is the full path used as metrics label
	handle := func(mux *http.ServeMux, pattern string, route string, h http.Handler, mds ...func(http.Handler) http.Handler) {
		mds = append([]func(http.Handler) http.Handler{middleware.MetricsMiddleware(httpMetrics, route)}, mds...)
		mux.Handle(pattern, chain(h, mds...))
	}

	apiauth := http.NewServeMux()
	handle(apiauth, "POST /register", "/auth/register", handleRegister(authService, logger))
	handle(apiauth, "POST /login", "/auth/login", handleLogin(authService, logger), withLimit)
	handle(apiauth, "POST /refresh", "/auth/refresh", handleRefresh(authService, logger))
	handle(apiauth, "POST /logout", "/auth/logout", handleLogout(authService, logger))
	handle(apiauth, "POST /google/login", "/auth/google/login", handleGoogleLogin(authService, logger), withLimit)
	handle(apiauth, "POST /google/register", "/auth/google/register", handleGoogleRegister(authService, logger))

	apiusers := http.NewServeMux()
	handle(apiusers, "GET /me", "/users/me", handleUserMe(), withAuth)
	handle(apiusers, "GET /profile/{id}", "/users/profile/{id}", handleUserProfile(userService, logger), withAuth)
	handle(apiusers, "PUT /username", "/users/username", handleUpdateUsername(userService, logger), withAuth)
	handle(apiusers, "PUT /userName", "/users/userName", handleUpdateUsername(userService, logger), withAuth)

	root := http.NewServeMux()
	root.Handle("/auth/", http.StripPrefix("/auth", apiauth))
	root.Handle("/users/", http.StripPrefix("/users", apiusers))
	root.Handle("GET /metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{Registry: cfg.Registry}))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Register user
	// Has to return apperrors.ErrUserAlreadyExists if username or email is taken
	Register(ctx context.Context, params auth.RegisterParams) (models.User, error)

	// Has to return apperrors.ErrWrongCredentials if user not found or password is wrong
	Login(ctx context.Context, username string, password string) (models.Session, error)

	// Rotate refresh token
	// Any verification failure is apperrors.ErrTokenInvalid
	Refresh(ctx context.Context, refresh string) (models.Session, error)
	Logout(ctx context.Context, refresh string) error

	GoogleSignIn(ctx context.Context, credential string) (models.Session, error)
	GoogleSignUp(ctx context.Context, credential string) (models.User, error)

	// Get user by access token
	Authenticate(ctx context.Context, access string) (models.User, error)
}

type userService interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (models.User, error)
	UpdateUsername(ctx context.Context, userID uuid.UUID, username string) (models.User, error)
}
