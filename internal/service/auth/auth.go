package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nkiryanov/snapgram/internal/apperrors"
	"github.com/nkiryanov/snapgram/internal/logger"
	"github.com/nkiryanov/snapgram/internal/metrics"
	"github.com/nkiryanov/snapgram/internal/models"
	"github.com/nkiryanov/snapgram/internal/repository"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

// Issues and parses signed token pairs
type TokenManager interface {
	Issue(subjectID uuid.UUID) (models.TokenPair, error)
	ParseAccess(access string) (models.TokenClaims, error)
	ParseRefresh(refresh string) (models.TokenClaims, error)
}

// Verifies credential issued by Google sign in
type GoogleTokenVerifier interface {
	Verify(ctx context.Context, credential string) (GoogleIdentity, error)
}

type Config struct {
	// Hasher to use during user registration or login process
	// BcryptHasher if not set
	Hasher PasswordHasher

	// Google sign in is disabled if not set
	Google GoogleTokenVerifier

	Logger  logger.Logger
	Metrics *metrics.Auth
}

type RegisterParams struct {
	Username     string
	Password     string
	Email        string
	ProfileImage string
}

// Auth service
type AuthService struct {
	// Manager to issue token pairs (access and refresh)
	tokens TokenManager

	// hasher to hash or compare user passwords
	hasher PasswordHasher

	// Hash compared against when user is unknown, so both login paths cost one bcrypt run
	dummyHash string

	google GoogleTokenVerifier

	// Users, each holds its single active refresh token
	userRepo repository.UserRepo

	logger  logger.Logger
	metrics *metrics.Auth
}

func NewService(cfg Config, tokens TokenManager, userRepo repository.UserRepo) (*AuthService, error) {
	if tokens == nil || userRepo == nil {
		return nil, errors.New("token manager and user repo must not be nil")
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	l := cfg.Logger
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.NewAuth(prometheus.NewRegistry())
	}

	dummyHash, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("error while preparing dummy hash. Err: %w", err)
	}

	return &AuthService{
		tokens:    tokens,
		hasher:    hasher,
		dummyHash: dummyHash,
		google:    cfg.Google,
		userRepo:  userRepo,
		logger:    l.With("service", "auth"),
		metrics:   m,
	}, nil
}

func (s *AuthService) Register(ctx context.Context, params RegisterParams) (models.User, error) {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"username", params.Username},
		{"password", params.Password},
		{"email", params.Email},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		s.metrics.Observe(metrics.OpRegister, metrics.ResultInvalid)
		return models.User{}, fmt.Errorf("%w: %s", apperrors.ErrMissingField, strings.Join(missing, ", "))
	}
	if len(params.Password) > maxPasswordBytes {
		s.metrics.Observe(metrics.OpRegister, metrics.ResultInvalid)
		return models.User{}, fmt.Errorf("%w: password is longer than %d bytes", apperrors.ErrInvalidField, maxPasswordBytes)
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		s.metrics.Observe(metrics.OpRegister, metrics.ResultInvalid)
		return models.User{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	user, err := s.userRepo.CreateUser(ctx, repository.CreateUserParams{
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: hash,
		ProfileImage: params.ProfileImage,
	})
	switch {
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		s.metrics.Observe(metrics.OpRegister, metrics.ResultConflict)
		return user, err
	case err != nil:
		s.metrics.Observe(metrics.OpRegister, metrics.ResultError)
		return user, fmt.Errorf("error while creating user. Err: %w", err)
	}

	s.metrics.Observe(metrics.OpRegister, metrics.ResultOK)
	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login with username and password
// Unknown user, wrong password and google only account are indistinguishable for the caller
func (s *AuthService) Login(ctx context.Context, username string, password string) (models.Session, error) {
	user, err := s.userRepo.GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		_ = s.hasher.Compare(s.dummyHash, password)
		s.metrics.Observe(metrics.OpLogin, metrics.ResultInvalid)
		return models.Session{}, apperrors.ErrWrongCredentials
	case err != nil:
		s.metrics.Observe(metrics.OpLogin, metrics.ResultError)
		return models.Session{}, fmt.Errorf("error while looking up user. Err: %w", err)
	}

	if user.IsGoogleOnly() {
		_ = s.hasher.Compare(s.dummyHash, password)
		s.metrics.Observe(metrics.OpLogin, metrics.ResultInvalid)
		return models.Session{}, apperrors.ErrWrongCredentials
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		s.metrics.Observe(metrics.OpLogin, metrics.ResultInvalid)
		return models.Session{}, apperrors.ErrWrongCredentials
	}

	session, err := s.startSession(ctx, user)
	if err != nil {
		s.metrics.Observe(metrics.OpLogin, metrics.ResultError)
		return models.Session{}, err
	}

	s.metrics.Observe(metrics.OpLogin, metrics.ResultOK)
	return session, nil
}

// Exchange active refresh token for a new pair
// The presented token becomes unusable
func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.Session, error) {
	user, err := s.verifyRefresh(ctx, metrics.OpRefresh, refresh)
	if err != nil {
		return models.Session{}, err
	}

	pair, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.metrics.Observe(metrics.OpRefresh, metrics.ResultError)
		return models.Session{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	err = s.userRepo.SwapRefreshToken(ctx, user.ID, refresh, pair.Refresh.Value)
	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenMismatch):
		// Concurrent refresh or logout won the race with the same token
		s.burn(ctx, metrics.OpRefresh, user.ID, "refresh token rotated concurrently")
		return models.Session{}, fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
	case err != nil:
		s.metrics.Observe(metrics.OpRefresh, metrics.ResultError)
		return models.Session{}, fmt.Errorf("error while rotating refresh token. Err: %w", err)
	}

	user.RefreshToken = pair.Refresh.Value
	s.metrics.PairIssued()
	s.metrics.Observe(metrics.OpRefresh, metrics.ResultOK)
	return models.Session{User: user, Pair: pair}, nil
}

// Revoke active refresh token
// Second logout with the same token fails
func (s *AuthService) Logout(ctx context.Context, refresh string) error {
	user, err := s.verifyRefresh(ctx, metrics.OpLogout, refresh)
	if err != nil {
		return err
	}

	err = s.userRepo.SwapRefreshToken(ctx, user.ID, refresh, "")
	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenMismatch):
		s.metrics.Observe(metrics.OpLogout, metrics.ResultInvalid)
		return fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
	case err != nil:
		s.metrics.Observe(metrics.OpLogout, metrics.ResultError)
		return fmt.Errorf("error while clearing refresh token. Err: %w", err)
	}

	s.metrics.Observe(metrics.OpLogout, metrics.ResultOK)
	s.logger.Info("user logged out", "user_id", user.ID)
	return nil
}

// Sign in with Google credential
// Account must be registered before, it is never created here
func (s *AuthService) GoogleSignIn(ctx context.Context, credential string) (models.Session, error) {
	identity, err := s.verifyGoogle(ctx, metrics.OpGoogleSignIn, credential)
	if err != nil {
		return models.Session{}, err
	}

	user, err := s.userRepo.GetUserByEmail(ctx, identity.Email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		s.metrics.Observe(metrics.OpGoogleSignIn, metrics.ResultNotFound)
		return models.Session{}, err
	case err != nil:
		s.metrics.Observe(metrics.OpGoogleSignIn, metrics.ResultError)
		return models.Session{}, fmt.Errorf("error while looking up user. Err: %w", err)
	}

	session, err := s.startSession(ctx, user)
	if err != nil {
		s.metrics.Observe(metrics.OpGoogleSignIn, metrics.ResultError)
		return models.Session{}, err
	}

	s.metrics.Observe(metrics.OpGoogleSignIn, metrics.ResultOK)
	return session, nil
}

// Create account for Google identity
// The account has no local password, password login always fails for it
func (s *AuthService) GoogleSignUp(ctx context.Context, credential string) (models.User, error) {
	identity, err := s.verifyGoogle(ctx, metrics.OpGoogleSignUp, credential)
	if err != nil {
		return models.User{}, err
	}

	_, err = s.userRepo.GetUserByEmail(ctx, identity.Email)
	switch {
	case err == nil:
		s.metrics.Observe(metrics.OpGoogleSignUp, metrics.ResultConflict)
		return models.User{}, apperrors.ErrUserAlreadyExists
	case !errors.Is(err, apperrors.ErrUserNotFound):
		s.metrics.Observe(metrics.OpGoogleSignUp, metrics.ResultError)
		return models.User{}, fmt.Errorf("error while looking up user. Err: %w", err)
	}

	username, _, _ := strings.Cut(identity.Email, "@")
	user, err := s.userRepo.CreateUser(ctx, repository.CreateUserParams{
		Username:     username,
		Email:        identity.Email,
		PasswordHash: models.GoogleLoginPassword,
		ProfileImage: identity.Picture,
	})
	switch {
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		s.metrics.Observe(metrics.OpGoogleSignUp, metrics.ResultConflict)
		return user, err
	case err != nil:
		s.metrics.Observe(metrics.OpGoogleSignUp, metrics.ResultError)
		return user, fmt.Errorf("error while creating user. Err: %w", err)
	}

	s.metrics.Observe(metrics.OpGoogleSignUp, metrics.ResultOK)
	s.logger.Info("user registered with google", "user_id", user.ID)
	return user, nil
}

// Resolve user by access token
func (s *AuthService) Authenticate(ctx context.Context, access string) (models.User, error) {
	claims, err := s.tokens.ParseAccess(access)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.userRepo.GetUserByID(ctx, claims.SubjectID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return user, fmt.Errorf("%w: subject not found", apperrors.ErrTokenInvalid)
	case err != nil:
		return user, fmt.Errorf("error while looking up user. Err: %w", err)
	}

	return user, nil
}

// Issue new pair and make its refresh token the only active one
func (s *AuthService) startSession(ctx context.Context, user models.User) (models.Session, error) {
	pair, err := s.tokens.Issue(user.ID)
	if err != nil {
		return models.Session{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	if err := s.userRepo.SetRefreshToken(ctx, user.ID, pair.Refresh.Value); err != nil {
		return models.Session{}, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	user.RefreshToken = pair.Refresh.Value
	s.metrics.PairIssued()
	return models.Session{User: user, Pair: pair}, nil
}

// Check refresh token and that it is the one stored for the user
// Well signed token that is not the stored one burns the stored token
func (s *AuthService) verifyRefresh(ctx context.Context, op string, refresh string) (models.User, error) {
	claims, err := s.tokens.ParseRefresh(refresh)
	if err != nil {
		s.metrics.Observe(op, metrics.ResultInvalid)
		return models.User{}, err
	}

	user, err := s.userRepo.GetUserByID(ctx, claims.SubjectID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		s.metrics.Observe(op, metrics.ResultInvalid)
		return models.User{}, fmt.Errorf("%w: subject not found", apperrors.ErrTokenInvalid)
	case err != nil:
		s.metrics.Observe(op, metrics.ResultError)
		return models.User{}, fmt.Errorf("error while looking up user. Err: %w", err)
	}

	if user.RefreshToken != refresh {
		s.burn(ctx, op, user.ID, "stale refresh token presented")
		return models.User{}, fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, apperrors.ErrRefreshTokenMismatch)
	}

	return user, nil
}

// Clear stored refresh token: the user has to log in again
func (s *AuthService) burn(ctx context.Context, op string, userID uuid.UUID, reason string) {
	s.metrics.Observe(op, metrics.ResultBurned)
	s.logger.Warn("refresh token burned", "user_id", userID, "reason", reason)

	if err := s.userRepo.ClearRefreshToken(ctx, userID); err != nil {
		s.logger.Error("error while burning refresh token", "user_id", userID, "error", err)
	}
}

func (s *AuthService) verifyGoogle(ctx context.Context, op string, credential string) (GoogleIdentity, error) {
	if s.google == nil {
		s.metrics.Observe(op, metrics.ResultError)
		return GoogleIdentity{}, fmt.Errorf("google sign in is disabled: %w", apperrors.ErrNotConfigured)
	}

	identity, err := s.google.Verify(ctx, credential)
	if err != nil {
		s.metrics.Observe(op, metrics.ResultInvalid)
		s.logger.Warn("google credential rejected", "error", err)
		return GoogleIdentity{}, err
	}

	return identity, nil
}
