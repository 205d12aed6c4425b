package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issues by TokenManager, AuthService
// Both tokens share the same nonce
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// Decoded and validated token payload
type TokenClaims struct {
	SubjectID uuid.UUID
	Nonce     string
	Kind      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Result of successful login: the user and its fresh tokens
type Session struct {
	User User
	Pair TokenPair
}
