package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/snapgram/internal/logger"
)

const (
	envDevelopment = "dev"
	envProduction  = "prod"

	storagePostgres = "postgres"
	storageMongo    = "mongo"
)

const (
	defaultListenAddr      = "localhost:8000"
	defaultLoggingLevel    = logger.LevelInfo
	defaultEnvironment     = envProduction
	defaultStorage         = storagePostgres
	defaultMongoDatabase   = "snapgram"
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 24 * time.Hour
	defaultLoginRateLimit  = 20
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Storage backend: 'postgres' or 'mongo'
	Storage string

	// Database to connect to when postgres storage is used
	DatabaseDSN string

	// Mongo server and database when mongo storage is used
	MongoURI      string
	MongoDatabase string

	// Secret key
	// Access and refresh tokens are signed with it (HMAC), so it is required
	SecretKey string

	// Token lifetimes
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// OAuth client id tokens of Google sign in are issued for
	// Google sign in is disabled if empty
	GoogleClientID string

	// Login attempts per minute allowed for one client, 0 disables limit
	LoginRateLimit int

	// Environment (dev, prod)
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:        defaultLoggingLevel,
		ListenAddr:      defaultListenAddr,
		Storage:         defaultStorage,
		MongoDatabase:   defaultMongoDatabase,
		AccessTokenTTL:  defaultAccessTokenTTL,
		RefreshTokenTTL: defaultRefreshTokenTTL,
		LoginRateLimit:  defaultLoginRateLimit,
		Environment:     defaultEnvironment,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = n
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":       setString(&c.ListenAddr),
		"STORAGE":           setString(&c.Storage),
		"DATABASE_URI":      setString(&c.DatabaseDSN),
		"MONGO_URI":         setString(&c.MongoURI),
		"MONGO_DATABASE":    setString(&c.MongoDatabase),
		"SECRET_KEY":        setString(&c.SecretKey),
		"ACCESS_TOKEN_TTL":  setDuration(&c.AccessTokenTTL),
		"REFRESH_TOKEN_TTL": setDuration(&c.RefreshTokenTTL),
		"GOOGLE_CLIENT_ID":  setString(&c.GoogleClientID),
		"LOGIN_RATE_LIMIT":  setInt(&c.LoginRateLimit),
		"LOG_LEVEL":         setString(&c.LogLevel),
		"ENVIRONMENT":       setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("snapgram", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVar(&c.Storage, "storage", c.Storage, "Storage backend (postgres, mongo)")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Postgres connection string")
	fs.StringVar(&c.MongoURI, "mongo-uri", c.MongoURI, "Mongo connection string")
	fs.StringVar(&c.MongoDatabase, "mongo-database", c.MongoDatabase, "Mongo database name")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.DurationVar(&c.AccessTokenTTL, "access-ttl", c.AccessTokenTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTokenTTL, "refresh-ttl", c.RefreshTokenTTL, "Refresh token lifetime")
	fs.StringVar(&c.GoogleClientID, "google-client-id", c.GoogleClientID, "Google OAuth client id")
	fs.IntVar(&c.LoginRateLimit, "login-rate-limit", c.LoginRateLimit, "Login attempts per minute per client (0 disables)")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}

// Check config is complete, so the app fails on start rather than on first request
func (c *Config) Validate() error {
	var errs []error

	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.LoginRateLimit < 0 {
		errs = append(errs, errors.New("login rate limit must not be negative"))
	}

	switch c.Storage {
	case storagePostgres:
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("database uri is required for postgres storage"))
		}
	case storageMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			errs = append(errs, errors.New("mongo uri and database are required for mongo storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q", c.Storage))
	}

	switch c.Environment {
	case envDevelopment, envProduction:
	default:
		errs = append(errs, fmt.Errorf("unknown environment %q", c.Environment))
	}

	return errors.Join(errs...)
}
