package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brizzai/fhir-chart/internal/auth/constants"
	"github.com/brizzai/fhir-chart/internal/config"
	"github.com/brizzai/fhir-chart/internal/logger"
	"github.com/brizzai/fhir-chart/internal/requester"
	"go.uber.org/zap"
)

// SMARTConfiguration is the SMART App Launch well-known document.
type SMARTConfiguration struct {
	Issuer                        string   `json:"issuer,omitempty"`
	JWKSURI                       string   `json:"jwks_uri,omitempty"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	TokenEndpointAuthMethods      []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	GrantTypes                    []string `json:"grant_types_supported,omitempty"`
	Scopes                        []string `json:"scopes_supported,omitempty"`
	ResponseTypes                 []string `json:"response_types_supported,omitempty"`
	Capabilities                  []string `json:"capabilities,omitempty"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// SupportsS256 reports whether the server advertises the S256 challenge
// method. Servers that list no methods are assumed to accept it.
func (c *SMARTConfiguration) SupportsS256() bool {
	if len(c.CodeChallengeMethodsSupported) == 0 {
		return true
	}
	for _, m := range c.CodeChallengeMethodsSupported {
		if m == constants.CodeChallengeMethodS256 {
			return true
		}
	}
	return false
}

// Discover fetches {fhirBaseURL}/.well-known/smart-configuration.
func Discover(ctx context.Context, client *requester.HTTPRequester, fhirBaseURL string) (*SMARTConfiguration, error) {
	endpoint := strings.TrimSuffix(fhirBaseURL, "/") + "/" + constants.SMARTConfigurationPath

	resp, err := client.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch SMART configuration: %w", err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("failed to fetch SMART configuration: status %d", resp.StatusCode)
	}

	var cfg SMARTConfiguration
	if err := json.Unmarshal(resp.Body, &cfg); err != nil {
		return nil, fmt.Errorf("invalid SMART configuration: %w", err)
	}
	if cfg.AuthorizationEndpoint == "" || cfg.TokenEndpoint == "" {
		return nil, fmt.Errorf("SMART configuration at %s lacks authorization or token endpoint", endpoint)
	}
	return &cfg, nil
}

// ResolveEndpoints fills in the authorize and token URLs from discovery when
// discovery is enabled and either is unset. Configured values always win.
func ResolveEndpoints(ctx context.Context, cfg *config.SMARTConfig, client *requester.HTTPRequester, fhirBaseURL string) error {
	if !cfg.Discover || (cfg.AuthorizeURL != "" && cfg.TokenURL != "") {
		return nil
	}

	discovered, err := Discover(ctx, client, fhirBaseURL)
	if err != nil {
		return err
	}
	if !discovered.SupportsS256() {
		logger.Warn("Authorization server does not advertise S256 PKCE",
			zap.Strings("code_challenge_methods_supported", discovered.CodeChallengeMethodsSupported))
	}

	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = discovered.AuthorizationEndpoint
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = discovered.TokenEndpoint
	}
	if cfg.Issuer == "" && discovered.Issuer != "" {
		logger.Debug("SMART configuration names an issuer; set smart.issuer to verify id tokens",
			zap.String("issuer", discovered.Issuer))
	}

	logger.Info("Discovered SMART endpoints",
		zap.String("authorize_url", cfg.AuthorizeURL),
		zap.String("token_url", cfg.TokenURL),
	)
	return nil
}
