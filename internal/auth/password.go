package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes an account password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a bcrypt hash with a candidate password.
func CheckPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// HashPassphrase hashes the secret an anonymous author sets when posting.
// Only the digest is stored; it later proves ownership for edit and delete.
func HashPassphrase(passphrase string) (string, error) {
	return HashPassword(passphrase)
}

// VerifyPassphrase reports whether passphrase matches the stored digest.
// An empty digest never matches.
func VerifyPassphrase(hash, passphrase string) bool {
	if hash == "" || passphrase == "" {
		return false
	}
	return CheckPassword(hash, passphrase) == nil
}
