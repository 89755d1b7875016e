package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/brizzai/fhir-chart/internal/auth/constants"
	"github.com/brizzai/fhir-chart/internal/logger"
	"github.com/brizzai/fhir-chart/internal/utils"
	"go.uber.org/zap"
)

const callbackDonePage = "Login complete. You can close this window and return to the terminal.\n"

// callbackResult is the query of the one redirect a CallbackServer accepts.
type callbackResult struct {
	code  string
	state string
	err   error
}

// CallbackServer receives the authorization redirect on a loopback address.
type CallbackServer struct {
	redirectURI string
	path        string

	listener net.Listener
	server   *http.Server

	once    sync.Once
	results chan callbackResult
}

// NewCallbackServer listens on the host and port of redirectURI. With port 0
// a free port is chosen and RedirectURI reflects it.
func NewCallbackServer(redirectURI string) (*CallbackServer, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect uri: %w", err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("redirect uri %q must use http on a loopback address", redirectURI)
	}

	port := u.Port()
	if port == "" {
		port = "80"
	}
	listener, err := net.Listen("tcp", net.JoinHostPort(u.Hostname(), port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen for the redirect: %w", err)
	}

	if port == "0" {
		_, actual, _ := net.SplitHostPort(listener.Addr().String())
		u.Host = net.JoinHostPort(u.Hostname(), actual)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	s := &CallbackServer{
		redirectURI: u.String(),
		path:        path,
		listener:    listener,
		results:     make(chan callbackResult, 1),
	}
	s.server = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// RedirectURI is the URI the authorization server must redirect to.
func (s *CallbackServer) RedirectURI() string {
	return s.redirectURI
}

// Start serves in the background until Shutdown.
func (s *CallbackServer) Start() {
	go func() {
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Callback server error", zap.Error(err))
		}
	}()
	logger.Debug("Waiting for authorization redirect", zap.String("redirect_uri", s.redirectURI))
}

// ServeHTTP handles the authorization redirect. Only the first redirect is
// accepted.
func (s *CallbackServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.path {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	result := callbackResult{
		code:  q.Get(constants.CodeParam),
		state: q.Get(constants.StateParam),
	}
	if code := q.Get(constants.ErrorParam); code != "" {
		result.err = &AuthorizeError{
			Code:        code,
			Description: q.Get(constants.ErrorDescriptionParam),
			URI:         q.Get(constants.ErrorURIParam),
		}
	} else if result.code == "" {
		result.err = ErrMissingCode
	}

	accepted := false
	s.once.Do(func() {
		s.results <- result
		accepted = true
	})
	if !accepted {
		utils.WriteError(w, "invalid_request", "Authorization response already received", http.StatusConflict)
		return
	}

	var authErr *AuthorizeError
	switch {
	case errors.As(result.err, &authErr):
		utils.WriteError(w, authErr.Code, authErr.Description, http.StatusBadRequest)
	case result.err != nil:
		utils.WriteError(w, "invalid_request", "Code is required", http.StatusBadRequest)
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(callbackDonePage))
	}
}

// Wait blocks until the redirect arrives or ctx is done, and returns the
// authorization code once state matches.
func (s *CallbackServer) Wait(ctx context.Context, state string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for authorization redirect: %w", ctx.Err())
	case result := <-s.results:
		if result.err != nil {
			return "", result.err
		}
		if result.state != state {
			return "", ErrStateMismatch
		}
		return result.code, nil
	}
}

// Shutdown stops the listener.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	// not tracked by the server when Start was never called
	_ = s.listener.Close()
	return err
}
