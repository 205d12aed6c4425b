package apperrors

import (
	"errors"
)

var (
	ErrMissingField = errors.New("required field is missing")
	ErrInvalidField = errors.New("field value is invalid")

	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrWrongCredentials  = errors.New("wrong username or password")

	ErrTokenMissing         = errors.New("token is missing")
	ErrTokenInvalid         = errors.New("token is invalid")
	ErrRefreshTokenMismatch = errors.New("refresh token does not match stored one")

	ErrNotConfigured      = errors.New("service is not configured")
	ErrExternalCredential = errors.New("external credential rejected")
)
