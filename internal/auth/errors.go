package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrStateMismatch is returned when the redirect carries a different state
	// than the authorization request.
	ErrStateMismatch = errors.New("authorization response state does not match the request")

	// ErrMissingCode is returned when the redirect carries neither a code nor an error.
	ErrMissingCode = errors.New("authorization response has no code")

	// ErrFlowUsed is returned by Login on a Flow that already ran.
	ErrFlowUsed = errors.New("login flow already used, start a new one")

	// ErrNoAccessToken is returned by Login when the token response lacks an access_token.
	ErrNoAccessToken = errors.New("token response has no access_token")
)

// AuthExchangeError is returned when the token endpoint rejects the code
// exchange. The login attempt is over and must restart from a new PKCE pair.
type AuthExchangeError struct {
	StatusCode int
	Body       string
}

func (e *AuthExchangeError) Error() string {
	return fmt.Sprintf("token request failed: %d - %s", e.StatusCode, e.Body)
}

// AuthorizeError is an error redirect from the authorization server.
type AuthorizeError struct {
	Code        string
	Description string
	URI         string
}

func (e *AuthorizeError) Error() string {
	msg := "authorization failed: " + e.Code
	if e.Description != "" {
		msg += " - " + e.Description
	}
	return msg
}
