package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// Password policy bounds, in characters.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 100
)

// bcrypt only reads the first 72 bytes of its input.
const bcryptMaxInput = 72

// HashCost is the bcrypt work factor used for new hashes.
var HashCost = bcrypt.DefaultCost

// ValidatePassword enforces the password policy.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength || n > MaxPasswordLength {
		return fmt.Errorf("%w: password must be between %d and %d characters", ErrWeakCredential, MinPasswordLength, MaxPasswordLength)
	}
	return nil
}

// HashPassword hashes plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(bcryptInput(password), HashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// PreparePassword validates password against the policy and returns its hash.
// Credential stores call it so no implementation ever persists plaintext.
func PreparePassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	return HashPassword(password)
}

// CheckPassword reports whether password matches hash. The comparison is constant time.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(password)) == nil
}

func bcryptInput(password string) []byte {
	if len(password) <= bcryptMaxInput {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}
