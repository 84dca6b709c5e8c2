// Package crypto implements server-side secret hashing and verification.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32

	saltLen = 16
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashSecret returns Argon2id hash of secret using the provided salt.
func HashSecret(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// NewSecret draws a fresh salt and hashes secret with it.
func NewSecret(secret string) (hash, salt []byte, err error) {
	salt, err = RandBytes(saltLen)
	if err != nil {
		return nil, nil, err
	}
	return HashSecret([]byte(secret), salt), salt, nil
}

// VerifySecret verifies secret against expected Argon2id hash and salt.
func VerifySecret(secret, salt, expected []byte) bool {
	if len(expected) == 0 {
		return false
	}
	got := HashSecret(secret, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}
