// Package auth generates and verifies the bearer tokens nasguard's
// HTTP API uses to authenticate clients.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

const tokenBytes = 32

// GenerateAPIToken returns a new random API token, hex-encoded.
func GenerateAPIToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashAPIToken returns the deterministic SHA3-256 hash of token, as a
// 64-character hex string, for storing in place of the raw token.
func HashAPIToken(token string) string {
	sum := sha3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CompareAPIToken reports whether token hashes to hashed, using a
// constant-time comparison so response timing can't leak the hash.
func CompareAPIToken(token, hashed string) bool {
	computed := HashAPIToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hashed)) == 1
}
