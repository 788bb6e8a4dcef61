package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// tokenBytes is the entropy of a session token. 32 bytes = 256 bits,
// twice the strength of a standard session secret.
const tokenBytes = 32

// TokenSource produces opaque session token values.
type TokenSource func() (string, error)

// NewToken generates a cryptographically random, URL-safe token value.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: cannot generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
