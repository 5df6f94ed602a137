package cryptox

import (
	"crypto/rand"
	"errors"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost is the bcrypt work factor used for new hashes. 12 keeps a
	// single hash slow enough to blunt offline brute force without stalling
	// interactive logins.
	DefaultCost = 12

	// DefaultMinPasswordLength is the minimum accepted password length.
	DefaultMinPasswordLength = 8
)

var (
	// ErrWeakPassword reports a password that fails the strength policy.
	ErrWeakPassword = errors.New("cryptox: password too weak")

	// ErrMismatch reports a failed verification. Malformed hashes and wrong
	// passwords both map here so callers can't tell which one failed.
	ErrMismatch = errors.New("cryptox: password does not match")
)

// HashPassword generates a salted bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	return HashPasswordCost(password, DefaultCost)
}

// HashPasswordCost is HashPassword with an explicit work factor. Cost values
// outside bcrypt's supported range fall back to the bcrypt default.
func HashPasswordCost(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ValidatePassword enforces the password strength policy. minLength <= 0
// falls back to DefaultMinPasswordLength. Pure, no I/O.
func ValidatePassword(password string, minLength int) error {
	if minLength <= 0 {
		minLength = DefaultMinPasswordLength
	}
	if len(password) < minLength {
		return ErrWeakPassword
	}
	return nil
}

// VerifyPassword compares a plaintext password against a bcrypt hash.
// bcrypt performs the comparison in constant time. The plaintext is never
// logged or retained.
func VerifyPassword(password, encodedHash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)); err != nil {
		// Unrecognized hash formats are deliberately indistinguishable from
		// a plain mismatch.
		return ErrMismatch
	}
	return nil
}

// GeneratePassword returns a random alphanumeric password suitable for
// initial account provisioning.
func GeneratePassword() (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 12
	password := make([]byte, length)
	for i := range password {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		password[i] = charset[n.Int64()]
	}
	return string(password), nil
}
