package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nkiryanov/snapgram/internal/db"
	"github.com/nkiryanov/snapgram/internal/handlers"
	"github.com/nkiryanov/snapgram/internal/handlers/middleware"
	"github.com/nkiryanov/snapgram/internal/logger"
	"github.com/nkiryanov/snapgram/internal/metrics"
	"github.com/nkiryanov/snapgram/internal/repository"
	"github.com/nkiryanov/snapgram/internal/repository/mongodb"
	"github.com/nkiryanov/snapgram/internal/repository/postgres"
	"github.com/nkiryanov/snapgram/internal/service/auth"
	"github.com/nkiryanov/snapgram/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/snapgram/internal/service/user"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger logger.Logger

	// Release storage connections, called after server stopped
	closeStorage func(ctx context.Context) error
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	l, err := newLogger(c)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	storage, closeStorage, err := openStorage(ctx, c)
	if err != nil {
		return nil, err
	}

	app, err := newServerApp(ctx, c, l, storage)
	if err != nil {
		_ = closeStorage(ctx)
		return nil, err
	}
	app.closeStorage = closeStorage

	return app, nil
}

func newServerApp(ctx context.Context, c *Config, l logger.Logger, storage repository.Storage) (*ServerApp, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		SecretKey:  c.SecretKey,
		AccessTTL:  c.AccessTokenTTL,
		RefreshTTL: c.RefreshTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	authCfg := auth.Config{
		Logger:  l,
		Metrics: metrics.NewAuth(reg),
	}
	if c.GoogleClientID != "" {
		verifier, err := auth.NewGoogleVerifier(ctx, c.GoogleClientID)
		if err != nil {
			return nil, fmt.Errorf("error while creating google verifier. Err: %w", err)
		}
		authCfg.Google = verifier
	} else {
		l.Warn("google client id not set, google sign in disabled")
	}

	authService, err := auth.NewService(authCfg, tokenManager, storage.User())
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}
	userService := user.NewService(storage.User())

	routerCfg := handlers.RouterConfig{Registry: reg}
	if c.LoginRateLimit > 0 {
		routerCfg.LoginLimiter = middleware.NewRateLimiter(c.LoginRateLimit, c.LoginRateLimit)
	}

	return &ServerApp{
		ListenAddr:   c.ListenAddr,
		Handler:      handlers.NewRouter(authService, userService, routerCfg, l),
		logger:       l,
		closeStorage: func(context.Context) error { return nil },
	}, nil
}

func newLogger(c *Config) (logger.Logger, error) {
	if c.Environment == envDevelopment {
		return logger.NewTextLogger(c.LogLevel)
	}
	return logger.NewJSONLogger(c.LogLevel)
}

// Connect to configured storage backend, migrations and indexes are applied on connect
func openStorage(ctx context.Context, c *Config) (repository.Storage, func(context.Context) error, error) {
	switch c.Storage {
	case storageMongo:
		client, err := db.ConnectMongo(ctx, c.MongoURI)
		if err != nil {
			return nil, nil, fmt.Errorf("error while connecting to mongo. Err: %w", err)
		}
		database := client.Database(c.MongoDatabase)
		if err := db.EnsureMongoIndexes(ctx, database); err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, fmt.Errorf("error while creating mongo indexes. Err: %w", err)
		}
		return mongodb.NewStorage(database), client.Disconnect, nil

	case storagePostgres:
		pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("error while connecting to db. Err: %w", err)
		}
		return postgres.NewStorage(pool), func(context.Context) error { pool.Close(); return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage %q", c.Storage)
	}
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		if err := s.closeStorage(timeoutCtx); err != nil {
			s.logger.Error("storage close failed", "error", err.Error())
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
