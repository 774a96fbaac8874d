// internal/auth/static.go
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for static tokens. They run on every request, so the
// memory cost stays well below what a password store would pick.
const (
	argonTime    = 2
	argonMemory  = 19 * 1024
	argonThreads = 1
	argonKeyLen  = 32
	saltLen      = 16
)

// StaticSubject is the subject reported for requests carrying the shared token.
const StaticSubject = "static-token"

// HashToken generates a salted Argon2id hash of token. Both values are
// base64 encoded, ready for auth.token_hash and auth.token_salt.
func HashToken(token string) (string, string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", "", err
	}

	hash := deriveKey(token, salt)

	encodedHash := base64.StdEncoding.EncodeToString(hash)
	encodedSalt := base64.StdEncoding.EncodeToString(salt)

	return encodedHash, encodedSalt, nil
}

func deriveKey(token string, salt []byte) []byte {
	return argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// StaticVerifier accepts a single shared token, stored only as its hash.
// It is meant for local development and machine clients.
type StaticVerifier struct {
	hash []byte
	salt []byte
}

// NewStaticVerifier decodes the base64 hash and salt produced by HashToken.
func NewStaticVerifier(hash, salt string) (*StaticVerifier, error) {
	decodedSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}

	decodedHash, err := base64.StdEncoding.DecodeString(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hash: %w", err)
	}

	return &StaticVerifier{hash: decodedHash, salt: decodedSalt}, nil
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthenticated)
	}
	if subtle.ConstantTimeCompare(deriveKey(token, v.salt), v.hash) != 1 {
		return nil, fmt.Errorf("%w: token mismatch", ErrUnauthenticated)
	}
	return &Claims{Subject: StaticSubject}, nil
}
