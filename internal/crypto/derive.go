// Package crypto implements the client side of the exchange's
// challenge-response login: PBKDF2 key derivation with server-supplied
// parameters and HMAC-SHA256 challenge signing. The raw secret and the
// derived key never cross the transport; only the signature does.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultKeyLen and DefaultIterations are used when this client chooses
	// the derivation parameters itself (account creation). Login always uses
	// the parameters the server sends with the challenge.
	DefaultKeyLen     = 32
	DefaultIterations = 1000

	// saltLen is the random salt length in bytes for NewSalt.
	saltLen = 16
)

// ChallengeParams are the key-derivation parameters the server attaches to an
// authentication challenge. They live for a single login attempt.
type ChallengeParams struct {
	KeyLen     int    `json:"keylen"`
	Salt       string `json:"salt"`
	Iterations int    `json:"iterations"`
}

// Validate rejects parameter sets a well-behaved server never sends.
func (p ChallengeParams) Validate() error {
	if p.KeyLen <= 0 {
		return fmt.Errorf("crypto: non-positive keylen %d", p.KeyLen)
	}
	if p.Iterations <= 0 {
		return fmt.Errorf("crypto: non-positive iterations %d", p.Iterations)
	}
	if p.Salt == "" {
		return fmt.Errorf("crypto: empty salt")
	}
	return nil
}

// DeriveKey computes PBKDF2-HMAC-SHA256 over secret with the given parameters
// and returns the key base64 standard-encoded. The encoded form is what both
// sides feed into challenge signing.
func DeriveKey(secret string, p ChallengeParams) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	key := pbkdf2.Key([]byte(secret), []byte(p.Salt), p.Iterations, p.KeyLen, sha256.New)
	return base64.StdEncoding.EncodeToString(key), nil
}

// SignChallenge computes HMAC-SHA256 of the challenge using the encoded
// derived key and returns the signature base64 standard-encoded.
func SignChallenge(challenge, derivedKey string) string {
	mac := hmac.New(sha256.New, []byte(derivedKey))
	mac.Write([]byte(challenge))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// NewSalt returns a fresh random salt for account creation, base64
// URL-encoded so it stays printable inside JSON payloads.
func NewSalt() (string, error) {
	buf := make([]byte, saltLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("crypto: generating salt: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
