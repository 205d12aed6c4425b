package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// Work factor of stored hashes; existing hashes keep their own cost encoded
const bcryptCost = 10

// bcrypt reads at most this many bytes of input
const maxPasswordBytes = 72

// Bcrypt password hasher
// Salt and cost are encoded in the hash itself
type BcryptHasher struct{}

func (h BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return string(hash), err
}

// Nil on match. Mismatch and malformed hash are both errors
func (h BcryptHasher) Compare(hashedPassword string, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (h BcryptHasher) Check(hashedPassword string, password string) bool {
	return h.Compare(hashedPassword, password) == nil
}
