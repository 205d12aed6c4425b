package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/snapgram/internal/models"
)

type CreateUserParams struct {
	Username     string
	Email        string
	PasswordHash string
	ProfileImage string
}

// User repository interface
// The user record is also the session store: it holds at most one refresh token
type UserRepo interface {
	// Create user
	// If user with username or email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)

	// Get user by it's id, username or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// Change username
	// Has to return apperrors.ErrUserAlreadyExists if username is taken and apperrors.ErrUserNotFound if user not exists
	UpdateUsername(ctx context.Context, userID uuid.UUID, username string) (models.User, error)

	// Overwrite stored refresh token unconditionally
	SetRefreshToken(ctx context.Context, userID uuid.UUID, token string) error

	// Replace stored refresh token only if it still equals 'old'; empty 'new' clears the token
	// Has to return apperrors.ErrRefreshTokenMismatch if nothing was updated
	SwapRefreshToken(ctx context.Context, userID uuid.UUID, old string, new string) error

	// Remove stored refresh token, so no refresh token is valid for the user anymore
	ClearRefreshToken(ctx context.Context, userID uuid.UUID) error
}

type Storage interface {
	User() UserRepo
}
