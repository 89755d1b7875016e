package requester

import (
	"errors"
	"net/http"

	"github.com/brizzai/fhir-chart/internal/config"
)

// ErrMissingToken is returned when a bearer token is required but empty
var ErrMissingToken = errors.New("access token is empty")

// AuthManager handles request authentication
type AuthManager interface {
	ApplyAuth(req *http.Request) error
}

// BearerAuth applies a fixed bearer token to every request
type BearerAuth struct {
	token string
}

// NewBearerAuth creates a BearerAuth for token
func NewBearerAuth(token string) *BearerAuth {
	return &BearerAuth{token: token}
}

// NewBearerAuthFromConfig creates a BearerAuth from the configured access token
func NewBearerAuthFromConfig(cfg *config.FHIRConfig) *BearerAuth {
	return NewBearerAuth(cfg.AccessToken)
}

// ApplyAuth adds the Authorization header to the request
func (a *BearerAuth) ApplyAuth(req *http.Request) error {
	if a.token == "" {
		return ErrMissingToken
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	return nil
}

// NoAuth leaves requests unauthenticated, e.g. for discovery documents
type NoAuth struct{}

// ApplyAuth implements AuthManager
func (NoAuth) ApplyAuth(*http.Request) error {
	return nil
}
