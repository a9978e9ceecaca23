package auth

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// DerivedKeyLength is the length of derived keys in bytes (256 bits for HMAC-SHA256).
	DerivedKeyLength = 32

	purposeSessionJWT = "eventsphere-session-jwt-v1"
)

var ErrInvalidMasterSecret = errors.New("master secret cannot be empty")

// DeriveKey derives a signing key from the process master secret using
// HKDF-SHA256 (RFC 5869). Distinct purpose strings yield cryptographically
// independent keys, so the raw master secret never signs anything directly.
func DeriveKey(masterSecret []byte, purpose string) ([]byte, error) {
	if len(masterSecret) == 0 {
		return nil, ErrInvalidMasterSecret
	}

	reader := hkdf.New(sha256.New, masterSecret, nil, []byte(purpose))
	derived := make([]byte, DerivedKeyLength)
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, err
	}
	return derived, nil
}

// DeriveSessionKey derives the key used for signing session JWTs.
func DeriveSessionKey(masterSecret []byte) ([]byte, error) {
	return DeriveKey(masterSecret, purposeSessionJWT)
}
