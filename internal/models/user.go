package models

import (
	"time"

	"github.com/google/uuid"
)

// Password hash stored for accounts created through Google sign up.
// It is not a valid bcrypt hash, so password login always fails for such accounts.
const GoogleLoginPassword = "google-login"

type User struct {
	ID           uuid.UUID
	CreatedAt    time.Time
	Username     string
	Email        string
	PasswordHash string `json:"-"`
	RefreshToken string `json:"-"` // empty means no active session
	ProfileImage string
}

// User has no local password and may sign in with Google only
func (u User) IsGoogleOnly() bool {
	return u.PasswordHash == GoogleLoginPassword
}
