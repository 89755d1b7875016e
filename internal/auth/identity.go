package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// ErrNoIDToken is returned when the token response carried no id_token.
var ErrNoIDToken = errors.New("no id_token in token response")

// Identity is the user behind a login as stated by the id_token.
type Identity struct {
	Subject  string `json:"sub"`
	FHIRUser string `json:"fhirUser,omitempty"`
	Name     string `json:"name,omitempty"`
	Issuer   string `json:"iss,omitempty"`
	// Verified is false when the claims were decoded without a signature check.
	Verified bool `json:"verified"`
}

type idTokenClaims struct {
	FHIRUser string `json:"fhirUser"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

func (c *idTokenClaims) identity(verified bool) *Identity {
	return &Identity{
		Subject:  c.Subject,
		FHIRUser: c.FHIRUser,
		Name:     c.Name,
		Issuer:   c.Issuer,
		Verified: verified,
	}
}

// IdentityParser reads identities from id_tokens issued to clientID.
type IdentityParser struct {
	issuer     string
	clientID   string
	httpClient *http.Client
}

// NewIdentityParser creates a parser. With an empty issuer id_tokens are
// decoded without verification.
func NewIdentityParser(issuer, clientID string, httpClient *http.Client) *IdentityParser {
	return &IdentityParser{issuer: issuer, clientID: clientID, httpClient: httpClient}
}

// ParseIdentity extracts the identity claims from rawIDToken.
func (p *IdentityParser) ParseIdentity(ctx context.Context, rawIDToken string) (*Identity, error) {
	if rawIDToken == "" {
		return nil, ErrNoIDToken
	}
	if p.issuer == "" {
		return parseUnverified(rawIDToken)
	}

	if p.httpClient != nil {
		ctx = oidc.ClientContext(ctx, p.httpClient)
	}
	provider, err := oidc.NewProvider(ctx, p.issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	idToken, err := provider.Verifier(&oidc.Config{ClientID: p.clientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	return claims.identity(true), nil
}

func parseUnverified(rawIDToken string) (*Identity, error) {
	var claims idTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(rawIDToken, &claims); err != nil {
		return nil, fmt.Errorf("failed to decode ID token: %w", err)
	}
	return claims.identity(false), nil
}
