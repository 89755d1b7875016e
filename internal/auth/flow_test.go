package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/brizzai/fhir-chart/internal/auth"
	"github.com/brizzai/fhir-chart/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAuthServer issues "good-code" and only accepts it together with the
// verifier matching the challenge of the last authorize request.
type fakeAuthServer struct {
	*httptest.Server
	challenge string
}

func newFakeAuthServer(t *testing.T) *fakeAuthServer {
	t.Helper()
	fs := &fakeAuthServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseForm()) {
			return
		}
		if r.PostForm.Get("code") != "good-code" ||
			auth.ChallengeFromVerifier(r.PostForm.Get("code_verifier")) != fs.challenge {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("invalid_grant"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","patient":"pat-1"}`))
	}))
	t.Cleanup(fs.Close)
	return fs
}

// browser follows the authorize URL by redirecting straight back with code.
func (fs *fakeAuthServer) browser(t *testing.T, code string, tamperState bool) func(string) error {
	return func(authorizeURL string) error {
		u, err := url.Parse(authorizeURL)
		if err != nil {
			return err
		}
		q := u.Query()
		fs.challenge = q.Get("code_challenge")

		state := q.Get("state")
		if tamperState {
			state = "tampered"
		}
		back := url.Values{"code": {code}, "state": {state}}
		resp, err := http.Get(q.Get("redirect_uri") + "?" + back.Encode())
		if err != nil {
			return err
		}
		return resp.Body.Close()
	}
}

func newTestFlow(tokenURL string, opts ...auth.FlowOption) *auth.Flow {
	cfg := &config.SMARTConfig{
		ClientID:     testClientID,
		AuthorizeURL: "https://auth.example.org/authorize",
		TokenURL:     tokenURL,
		RedirectURI:  "http://127.0.0.1:0/callback",
		Scopes:       "openid",
	}
	return auth.NewFlow(auth.NewExchanger(cfg, testAudience), opts...)
}

func TestFlowLogin(t *testing.T) {
	as := newFakeAuthServer(t)
	flow := newTestFlow(as.URL)
	assert.Equal(t, auth.StateUnauthenticated, flow.State())

	token, err := flow.Login(context.Background(), as.browser(t, "good-code", false))
	require.NoError(t, err)

	assert.Equal(t, "tok", token.AccessToken)
	assert.Equal(t, "pat-1", token.Patient)
	assert.Equal(t, auth.StateAuthenticated, flow.State())
	assert.Equal(t, []auth.State{
		auth.StateUnauthenticated,
		auth.StatePendingAuthorization,
		auth.StateAuthorizationCodeReceived,
		auth.StateAuthenticated,
	}, flow.Transitions())

	_, err = flow.Login(context.Background(), as.browser(t, "good-code", false))
	assert.ErrorIs(t, err, auth.ErrFlowUsed)
}

func TestFlowLogin_ExchangeRejected(t *testing.T) {
	as := newFakeAuthServer(t)
	flow := newTestFlow(as.URL)

	_, err := flow.Login(context.Background(), as.browser(t, "stale-code", false))

	var exErr *auth.AuthExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, http.StatusBadRequest, exErr.StatusCode)
	assert.Equal(t, auth.StateFailed, flow.State())
	assert.Equal(t, []auth.State{
		auth.StateUnauthenticated,
		auth.StatePendingAuthorization,
		auth.StateAuthorizationCodeReceived,
		auth.StateFailed,
	}, flow.Transitions())
}

func TestFlowLogin_StateMismatch(t *testing.T) {
	as := newFakeAuthServer(t)
	flow := newTestFlow(as.URL)

	_, err := flow.Login(context.Background(), as.browser(t, "good-code", true))
	assert.ErrorIs(t, err, auth.ErrStateMismatch)
	assert.Equal(t, auth.StateFailed, flow.State())
}

func TestFlowLogin_OpenFails(t *testing.T) {
	flow := newTestFlow("http://unused.invalid")

	_, err := flow.Login(context.Background(), func(string) error {
		return errors.New("no browser")
	})
	assert.ErrorContains(t, err, "no browser")
	assert.Equal(t, auth.StateFailed, flow.State())
}

func TestFlowLogin_CallbackTimeout(t *testing.T) {
	flow := newTestFlow("http://unused.invalid", auth.WithCallbackTimeout(50*time.Millisecond))

	_, err := flow.Login(context.Background(), func(string) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, auth.StateFailed, flow.State())
}

func TestFlowLogin_NoAccessToken(t *testing.T) {
	as := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer as.Close()
	flow := newTestFlow(as.URL)

	browser := (&fakeAuthServer{}).browser(t, "any-code", false)
	_, err := flow.Login(context.Background(), browser)
	assert.ErrorIs(t, err, auth.ErrNoAccessToken)
	assert.Equal(t, auth.StateFailed, flow.State())
}

func TestFlowLogin_ConcurrentCallsRunOnce(t *testing.T) {
	flow := newTestFlow("http://unused.invalid")
	open := func(string) error { return errors.New("no browser") }

	const callers = 8
	var (
		ready = make(chan struct{})
		errs  = make(chan error, callers)
	)
	for i := 0; i < callers; i++ {
		go func() {
			<-ready
			_, err := flow.Login(context.Background(), open)
			errs <- err
		}()
	}
	close(ready)

	used := 0
	for i := 0; i < callers; i++ {
		if errors.Is(<-errs, auth.ErrFlowUsed) {
			used++
		}
	}
	assert.Equal(t, callers-1, used, "exactly one call runs the flow")
	assert.Equal(t, []auth.State{auth.StateUnauthenticated, auth.StatePendingAuthorization, auth.StateFailed}, flow.Transitions())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending_authorization", auth.StatePendingAuthorization.String())
	assert.Equal(t, "failed", auth.StateFailed.String())
	assert.Equal(t, "State(42)", auth.State(42).String())
}
