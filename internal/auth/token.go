package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// NewToken returns a url-safe random token with nbytes of entropy.
// Session tokens use 32 bytes; 16 is the floor (128 bits).
func NewToken(nbytes int) (string, error) {
	if nbytes < 16 {
		return "", errors.New("token size too small")
	}
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
