package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brizzai/fhir-chart/internal/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClaims struct {
	FHIRUser string `json:"fhirUser,omitempty"`
	Name     string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

func TestParseIdentity_Unverified(t *testing.T) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, testClaims{
		FHIRUser: "Practitioner/123",
		Name:     "Dr. Grey",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user-1",
			Issuer:  "https://auth.example.org",
		},
	}).SignedString([]byte("unknown-to-the-client"))
	require.NoError(t, err)

	id, err := auth.NewIdentityParser("", testClientID, nil).ParseIdentity(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, &auth.Identity{
		Subject:  "user-1",
		FHIRUser: "Practitioner/123",
		Name:     "Dr. Grey",
		Issuer:   "https://auth.example.org",
		Verified: false,
	}, id)
}

func TestParseIdentity_Errors(t *testing.T) {
	p := auth.NewIdentityParser("", testClientID, nil)

	_, err := p.ParseIdentity(context.Background(), "")
	assert.ErrorIs(t, err, auth.ErrNoIDToken)

	_, err = p.ParseIdentity(context.Background(), "not-a-jwt")
	assert.ErrorContains(t, err, "failed to decode ID token")
}

// oidcServer is a minimal OpenID provider publishing one RSA key.
type oidcServer struct {
	*httptest.Server
	key *rsa.PrivateKey
}

func newOIDCServer(t *testing.T) *oidcServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	op := &oidcServer{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                                op.URL,
			"authorization_endpoint":                op.URL + "/authorize",
			"token_endpoint":                        op.URL + "/token",
			"jwks_uri":                              op.URL + "/jwks",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "test-key",
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	})
	op.Server = httptest.NewServer(mux)
	t.Cleanup(op.Close)
	return op
}

func (op *oidcServer) sign(t *testing.T, audience string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, testClaims{
		FHIRUser: "Patient/pat-1",
		Name:     "Jane Doe",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-2",
			Issuer:    op.URL,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token.Header["kid"] = "test-key"
	raw, err := token.SignedString(op.key)
	require.NoError(t, err)
	return raw
}

func TestParseIdentity_Verified(t *testing.T) {
	provider := newOIDCServer(t)

	p := auth.NewIdentityParser(provider.URL, testClientID, provider.Client())
	id, err := p.ParseIdentity(context.Background(), provider.sign(t, testClientID))
	require.NoError(t, err)

	assert.Equal(t, "user-2", id.Subject)
	assert.Equal(t, "Patient/pat-1", id.FHIRUser)
	assert.Equal(t, "Jane Doe", id.Name)
	assert.Equal(t, provider.URL, id.Issuer)
	assert.True(t, id.Verified)
}

func TestParseIdentity_WrongAudience(t *testing.T) {
	provider := newOIDCServer(t)

	p := auth.NewIdentityParser(provider.URL, testClientID, provider.Client())
	_, err := p.ParseIdentity(context.Background(), provider.sign(t, "someone-else"))
	assert.ErrorContains(t, err, "failed to verify ID token")
}
