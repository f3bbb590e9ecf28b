package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	dErrors "attesto/pkg/domain-errors"
)

// Generate creates a cryptographically secure random admin token.
// Returns a base64-encoded string; operators hash it with Hash and configure
// the registry with the hash only.
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash creates a bcrypt hash of the provided token.
func Hash(token string) (string, error) {
	if token == "" {
		return "", dErrors.New(dErrors.CodeInvalidArgument, "token cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidArgument, "token is too long")
		}
		return "", fmt.Errorf("could not hash token: %w", err)
	}
	return string(hashed), nil
}

// Verify checks if a plaintext token matches a bcrypt hash.
func Verify(token, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid token")
		}
		return fmt.Errorf("could not verify token: %w", err)
	}
	return nil
}
