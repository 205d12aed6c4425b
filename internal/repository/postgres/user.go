package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/snapgram/internal/apperrors"
	"github.com/nkiryanov/snapgram/internal/models"
	"github.com/nkiryanov/snapgram/internal/repository"
)

type UserRepo struct {
	DB DBTX
}

const userColumns = `id, created_at, username, email, password_hash, COALESCE(refresh_token, ''), profile_image`

const createUser = `-- name: CreateUser
INSERT INTO users (id, username, email, password_hash, profile_image)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + userColumns

func (r *UserRepo) CreateUser(ctx context.Context, params repository.CreateUserParams) (models.User, error) {
	rows, _ := r.DB.Query(ctx, createUser, uuid.New(), params.Username, params.Email, params.PasswordHash, params.ProfileImage)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		if isUniqueViolation(err) {
			return user, apperrors.ErrUserAlreadyExists
		}

		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const getUserByID = `-- name: GetUserByID
SELECT ` + userColumns + ` FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	return r.getOne(ctx, getUserByID, id)
}

const getUserByUsername = `-- name: GetUserByUsername
SELECT ` + userColumns + ` FROM users
WHERE username = $1
`

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return r.getOne(ctx, getUserByUsername, username)
}

const getUserByEmail = `-- name: GetUserByEmail
SELECT ` + userColumns + ` FROM users
WHERE email = $1
`

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.getOne(ctx, getUserByEmail, email)
}

const updateUsername = `-- name: UpdateUsername
UPDATE users
SET username = $2
WHERE id = $1
RETURNING ` + userColumns

func (r *UserRepo) UpdateUsername(ctx context.Context, userID uuid.UUID, username string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, updateUsername, userID, username)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	case isUniqueViolation(err):
		return user, apperrors.ErrUserAlreadyExists
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

const setRefreshToken = `-- name: SetRefreshToken
UPDATE users
SET refresh_token = NULLIF($2, '')
WHERE id = $1
`

func (r *UserRepo) SetRefreshToken(ctx context.Context, userID uuid.UUID, token string) error {
	tag, err := r.DB.Exec(ctx, setRefreshToken, userID, token)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrUserNotFound
	}

	return nil
}

// Compare-and-swap: the row is updated only if it still holds the old token
// NULL never equals anything, so a cleared token never matches
const swapRefreshToken = `-- name: SwapRefreshToken
UPDATE users
SET refresh_token = NULLIF($3, '')
WHERE id = $1 AND refresh_token = $2
`

func (r *UserRepo) SwapRefreshToken(ctx context.Context, userID uuid.UUID, old string, new string) error {
	if old == "" {
		return apperrors.ErrRefreshTokenMismatch
	}

	tag, err := r.DB.Exec(ctx, swapRefreshToken, userID, old, new)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrRefreshTokenMismatch
	}

	return nil
}

func (r *UserRepo) ClearRefreshToken(ctx context.Context, userID uuid.UUID) error {
	return r.SetRefreshToken(ctx, userID, "")
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (models.User, error) {
	rows, _ := r.DB.Query(ctx, query, arg)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Username, &u.Email, &u.PasswordHash, &u.RefreshToken, &u.ProfileImage)
	return u, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
