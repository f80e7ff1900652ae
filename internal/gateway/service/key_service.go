// Package service provides node credential generation and verification.
// Node keys are random 256-bit values stored only as Argon2id hashes.
package service

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/allisson/go-pwdhash"

	apperrors "github.com/edgepos/edgesync/internal/errors"
)

// KeyService generates and verifies node keys.
type KeyService interface {
	// GenerateKey creates a new random node key and its hash. The plain key
	// is shown once at registration and never stored.
	GenerateKey() (plainKey string, hashedKey string, err error)

	// CompareKey performs a constant-time comparison of a plain key against
	// its stored hash.
	CompareKey(plainKey string, hashedKey string) bool
}

// keyService implements KeyService using Argon2id hashing.
type keyService struct {
	hasher *pwdhash.PasswordHasher
}

// GenerateKey creates a new cryptographically secure 32-byte random key.
func (s *keyService) GenerateKey() (string, string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", apperrors.Wrap(err, "failed to generate random key")
	}

	plainKey := base64.URLEncoding.EncodeToString(randomBytes)

	hashedKey, err := s.hasher.Hash([]byte(plainKey))
	if err != nil {
		return "", "", apperrors.Wrap(err, "failed to hash key")
	}

	return plainKey, hashedKey, nil
}

// CompareKey performs a constant-time comparison between a plain key and its hash.
func (s *keyService) CompareKey(plainKey string, hashedKey string) bool {
	ok, err := s.hasher.Verify([]byte(plainKey), hashedKey)
	if err != nil {
		return false
	}
	return ok
}

// NewKeyService creates a KeyService using the moderate Argon2id policy.
func NewKeyService() KeyService {
	hasher, err := pwdhash.New(
		pwdhash.WithPolicy(pwdhash.PolicyModerate),
	)
	if err != nil {
		// This should never happen with a valid policy
		panic(err)
	}

	return &keyService{hasher: hasher}
}
