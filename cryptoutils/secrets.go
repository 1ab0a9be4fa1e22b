// Package cryptoutils generates and checks client secrets.
package cryptoutils

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// SecretSize is the number of random bytes in a client secret.
const SecretSize = 32

var ErrSecretMismatch = errors.New("secret mismatch")

// NewClientSecret returns a random URL-safe secret and its bcrypt hash.
// Only the hash should be stored.
func NewClientSecret() (secret string, hash []byte, err error) {
	raw := make([]byte, SecretSize)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("failed to generate client secret: %w", err)
	}
	secret = base64.RawURLEncoding.EncodeToString(raw)

	hash, err = bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash client secret: %w", err)
	}
	return secret, hash, nil
}

// VerifySecret checks secret against a hash produced by NewClientSecret.
func VerifySecret(hash []byte, secret string) error {
	if err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); err != nil {
		return ErrSecretMismatch
	}
	return nil
}
