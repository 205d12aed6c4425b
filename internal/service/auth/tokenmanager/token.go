package tokenmanager

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/snapgram/internal/apperrors"
	"github.com/nkiryanov/snapgram/internal/models"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultSigningMethod   = "HS256"
	defaultRefreshTokenTTL = 24 * time.Hour

	nonceBytes = 16
)

// Payload of both access and refresh tokens
// Subject is the user id, tokens of one pair share the nonce
type Claims struct {
	jwt.RegisteredClaims
	Nonce string `json:"nonce"`
	Kind  string `json:"kind"`
}

// Called by jwt parser after exp/iat/nbf checks
func (c Claims) Validate() error {
	if _, err := uuid.Parse(c.Subject); err != nil {
		return fmt.Errorf("malformed subject: %w", err)
	}
	if c.Nonce == "" {
		return errors.New("nonce is missing")
	}
	if c.IssuedAt == nil {
		return errors.New("issued at is missing")
	}
	switch c.Kind {
	case models.TokenKindAccess, models.TokenKindRefresh:
		return nil
	default:
		return fmt.Errorf("unknown token kind %q", c.Kind)
	}
}

// Token manager with sensible default
type Config struct {
	// Secret key to sign tokens
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type TokenManager struct {
	key string
	alg jwt.SigningMethod

	accessTTL  time.Duration
	refreshTTL time.Duration
}

func New(cfg Config) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("secret key must not be empty: %w", apperrors.ErrNotConfigured)
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg, ok := jwt.GetSigningMethod(cfg.Alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("signing method %q is not supported: %w", cfg.Alg, apperrors.ErrNotConfigured)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, fmt.Errorf("token lifetime must be positive: %w", apperrors.ErrNotConfigured)
	}

	return &TokenManager{
		key:        cfg.SecretKey,
		alg:        alg,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}, nil
}

// Issue access and refresh tokens for the subject
func (m *TokenManager) Issue(subjectID uuid.UUID) (models.TokenPair, error) {
	var pair models.TokenPair

	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return pair, fmt.Errorf("error while generating nonce. Err: %w", err)
	}
	nonce := hex.EncodeToString(b)

	now := time.Now().Truncate(time.Second)

	access, err := m.sign(subjectID, nonce, models.TokenKindAccess, now, now.Add(m.accessTTL))
	if err != nil {
		return pair, err
	}
	refresh, err := m.sign(subjectID, nonce, models.TokenKindRefresh, now, now.Add(m.refreshTTL))
	if err != nil {
		return pair, err
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

func (m *TokenManager) sign(subjectID uuid.UUID, nonce string, kind string, now time.Time, expiresAt time.Time) (models.IssuedToken, error) {
	token := jwt.NewWithClaims(m.alg, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subjectID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Nonce: nonce,
		Kind:  kind,
	})

	value, err := token.SignedString([]byte(m.key))
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing %s token. Err: %w", kind, err)
	}

	return models.IssuedToken{Value: value, ExpiresAt: expiresAt}, nil
}

// Parse and validate access token
func (m *TokenManager) ParseAccess(access string) (models.TokenClaims, error) {
	return m.parse(access, models.TokenKindAccess)
}

// Parse and validate refresh token
// It says nothing about whether the token is still the active one for the user
func (m *TokenManager) ParseRefresh(refresh string) (models.TokenClaims, error) {
	return m.parse(refresh, models.TokenKindRefresh)
}

func (m *TokenManager) parse(value string, kind string) (models.TokenClaims, error) {
	if value == "" {
		return models.TokenClaims{}, apperrors.ErrTokenMissing
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		value,
		claims,
		func(t *jwt.Token) (any, error) {
			return []byte(m.key), nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return models.TokenClaims{}, fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
	}

	if claims.Kind != kind {
		return models.TokenClaims{}, fmt.Errorf("%w: expected %s token, got %s", apperrors.ErrTokenInvalid, kind, claims.Kind)
	}

	return models.TokenClaims{
		SubjectID: uuid.MustParse(claims.Subject), // checked in Validate
		Nonce:     claims.Nonce,
		Kind:      claims.Kind,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
