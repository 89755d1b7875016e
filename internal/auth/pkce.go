package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/oauth2"
)

const (
	// VerifierLength is the length of every generated code verifier.
	VerifierLength = 43

	verifierEntropyBytes = 32
)

// PKCE is a code verifier and its S256 challenge (RFC 7636).
type PKCE struct {
	CodeVerifier  string `json:"code_verifier"`
	CodeChallenge string `json:"code_challenge"`
}

// GeneratePKCE creates a fresh verifier from crypto/rand. Each login must use
// its own pair.
func GeneratePKCE() (PKCE, error) {
	return GeneratePKCEFrom(rand.Reader)
}

// GeneratePKCEFrom creates a pair reading randomness from r.
func GeneratePKCEFrom(r io.Reader) (PKCE, error) {
	buf := make([]byte, verifierEntropyBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return PKCE{}, fmt.Errorf("failed to read random bytes: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(buf)
	if len(verifier) > VerifierLength {
		verifier = verifier[:VerifierLength]
	}

	return PKCE{
		CodeVerifier:  verifier,
		CodeChallenge: ChallengeFromVerifier(verifier),
	}, nil
}

// ChallengeFromVerifier returns base64url(SHA-256(verifier)) without padding.
func ChallengeFromVerifier(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}
