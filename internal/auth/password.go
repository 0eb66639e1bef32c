package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// HashKey generates a bcrypt hash for a shared agent or admin key. Used by
// finctl to produce AGENT_KEY_HASH / ADMIN_KEY_HASH values.
func HashKey(key string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckKeyHash compares a presented key with a stored bcrypt hash. An empty
// hash never matches.
func CheckKeyHash(key, hash string) bool {
	if key == "" || hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	if err != nil && !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		// Malformed hash in config; treat as no match.
		return false
	}
	return err == nil
}
