package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brizzai/fhir-chart/internal/auth/constants"
	"github.com/brizzai/fhir-chart/internal/config"
	"github.com/brizzai/fhir-chart/internal/logger"
	"github.com/brizzai/fhir-chart/internal/requester"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// TokenResponse is the token endpoint response with the SMART launch
// context fields. The typed fields are a view over Raw; nothing is validated,
// so callers check AccessToken themselves.
type TokenResponse struct {
	AccessToken       string `json:"access_token"`
	TokenType         string `json:"token_type,omitempty"`
	ExpiresIn         int64  `json:"expires_in,omitempty"`
	RefreshToken      string `json:"refresh_token,omitempty"`
	Scope             string `json:"scope,omitempty"`
	IDToken           string `json:"id_token,omitempty"`
	Patient           string `json:"patient,omitempty"`
	Encounter         string `json:"encounter,omitempty"`
	NeedPatientBanner *bool  `json:"need_patient_banner,omitempty"`

	Expiry time.Time `json:"-"`
	// Raw is the response object as received, unknown fields included.
	Raw map[string]interface{} `json:"-"`
}

// MarshalJSON writes Raw when the response came from a token endpoint and
// the typed fields otherwise.
func (t TokenResponse) MarshalJSON() ([]byte, error) {
	if t.Raw != nil {
		return json.Marshal(t.Raw)
	}
	type plain TokenResponse
	return json.Marshal(plain(t))
}

func newTokenResponse(raw map[string]interface{}) *TokenResponse {
	resp := &TokenResponse{
		AccessToken:  stringField(raw, constants.AccessTokenField),
		TokenType:    stringField(raw, constants.TokenTypeField),
		ExpiresIn:    intField(raw, constants.ExpiresInField),
		RefreshToken: stringField(raw, constants.RefreshTokenField),
		Scope:        stringField(raw, constants.ScopeField),
		IDToken:      stringField(raw, constants.IDTokenField),
		Patient:      stringField(raw, constants.LaunchPatient),
		Encounter:    stringField(raw, constants.LaunchEncounter),
		Raw:          raw,
	}
	if b, ok := raw[constants.LaunchNeedPatientBanner].(bool); ok {
		resp.NeedPatientBanner = &b
	}
	if resp.ExpiresIn > 0 {
		resp.Expiry = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return resp
}

// Exchanger drives the client side of the authorization code flow for one
// SMART client registration.
type Exchanger struct {
	config     oauth2.Config
	audience   string
	httpClient *http.Client
}

// ExchangerOption configures an Exchanger.
type ExchangerOption func(*Exchanger)

// WithHTTPClient sets the client used for token requests.
func WithHTTPClient(c *http.Client) ExchangerOption {
	return func(e *Exchanger) {
		e.httpClient = c
	}
}

// NewExchanger creates an Exchanger for cfg. audience is the FHIR base URL
// sent as the SMART aud parameter.
func NewExchanger(cfg *config.SMARTConfig, audience string, opts ...ExchangerOption) *Exchanger {
	e := &Exchanger{
		config: oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizeURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: cfg.RedirectURI,
			Scopes:      cfg.ScopeList(),
		},
		audience: audience,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RedirectURI returns the redirect URI sent with authorization requests.
func (e *Exchanger) RedirectURI() string {
	return e.config.RedirectURL
}

// WithRedirectURI returns a copy of e that uses uri as redirect URI.
func (e *Exchanger) WithRedirectURI(uri string) *Exchanger {
	c := *e
	c.config.RedirectURL = uri
	return &c
}

// AuthorizationRequest is a prepared authorize URL and the values the
// callback must be checked against.
type AuthorizationRequest struct {
	URL         string
	State       string
	RedirectURI string
}

// AuthorizationRequest builds the authorize URL carrying the S256 challenge
// of p and a new random state.
func (e *Exchanger) AuthorizationRequest(p PKCE) *AuthorizationRequest {
	state := uuid.NewString()
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam(constants.CodeChallengeParam, p.CodeChallenge),
		oauth2.SetAuthURLParam(constants.CodeChallengeMethod, constants.CodeChallengeMethodS256),
	}
	if e.audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam(constants.AudienceParam, e.audience))
	}

	return &AuthorizationRequest{
		URL:         e.config.AuthCodeURL(state, opts...),
		State:       state,
		RedirectURI: e.config.RedirectURL,
	}
}

// ExchangeToken trades an authorization code and its verifier for a token.
// A non-2xx answer is returned as *AuthExchangeError. A 2xx body is decoded
// as JSON whatever its content type and returned without validation.
func (e *Exchanger) ExchangeToken(ctx context.Context, code, codeVerifier, redirectURI string) (*TokenResponse, error) {
	if redirectURI == "" {
		redirectURI = e.config.RedirectURL
	}
	tokenURL := e.config.Endpoint.TokenURL

	form := url.Values{
		constants.GrantTypeParam:    {constants.GrantTypeAuthorizationCode},
		constants.CodeParam:         {code},
		constants.RedirectURIParam:  {redirectURI},
		constants.ClientIDParam:     {e.config.ClientID},
		constants.CodeVerifierParam: {codeVerifier},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	req.Header.Set("Content-Type", constants.FormContentType)
	req.Header.Set("Accept", "application/json")

	resp, err := e.requester().Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	if !resp.OK() {
		logger.Warn("Token endpoint rejected the code exchange",
			zap.String("token_url", tokenURL),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &AuthExchangeError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, fmt.Errorf("token request failed: invalid JSON response: %w", err)
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}

	token := newTokenResponse(raw)
	logger.Debug("Exchanged authorization code",
		logger.Token("access_token", token.AccessToken),
		zap.String("scope", token.Scope),
		zap.String("patient", token.Patient),
	)
	return token, nil
}

func (e *Exchanger) requester() *requester.HTTPRequester {
	return requester.NewHTTPRequester(requester.HTTPRequesterParams{
		Client:      e.httpClient,
		AuthManager: requester.NoAuth{},
	})
}

func stringField(raw map[string]interface{}, key string) string {
	s, _ := raw[key].(string)
	return s
}

// intField accepts JSON numbers and numeric strings.
func intField(raw map[string]interface{}, key string) int64 {
	switch v := raw[key].(type) {
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}
