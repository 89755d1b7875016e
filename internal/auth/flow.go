package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brizzai/fhir-chart/internal/logger"
	"go.uber.org/zap"
)

// State is a step of the login state machine.
type State int

const (
	StateUnauthenticated State = iota
	StatePendingAuthorization
	StateAuthorizationCodeReceived
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StatePendingAuthorization:
		return "pending_authorization"
	case StateAuthorizationCodeReceived:
		return "authorization_code_received"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

const shutdownTimeout = 5 * time.Second

// Flow runs one login. A failed or finished Flow cannot be reused; the next
// attempt starts from a new Flow and a new PKCE pair.
type Flow struct {
	exchanger *Exchanger
	timeout   time.Duration

	mu          sync.Mutex
	started     bool
	state       State
	transitions []State
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithCallbackTimeout bounds the wait for the redirect. Zero waits for ctx.
func WithCallbackTimeout(d time.Duration) FlowOption {
	return func(f *Flow) {
		f.timeout = d
	}
}

// NewFlow creates a Flow in StateUnauthenticated.
func NewFlow(exchanger *Exchanger, opts ...FlowOption) *Flow {
	f := &Flow{
		exchanger:   exchanger,
		state:       StateUnauthenticated,
		transitions: []State{StateUnauthenticated},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Transitions returns every state the flow went through, in order.
func (f *Flow) Transitions() []State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]State(nil), f.transitions...)
}

func (f *Flow) transition(to State) {
	f.mu.Lock()
	from := f.state
	f.state = to
	f.transitions = append(f.transitions, to)
	f.mu.Unlock()
	logger.Debug("Login state changed", zap.Stringer("from", from), zap.Stringer("to", to))
}

// start claims the flow for one Login call.
func (f *Flow) start() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started || f.state != StateUnauthenticated {
		return false
	}
	f.started = true
	return true
}

func (f *Flow) fail(err error) error {
	f.transition(StateFailed)
	return err
}

// Login generates a PKCE pair, hands the authorize URL to open, waits for the
// redirect on the loopback callback server and exchanges the code.
func (f *Flow) Login(ctx context.Context, open func(url string) error) (*TokenResponse, error) {
	if !f.start() {
		return nil, ErrFlowUsed
	}

	pkce, err := GeneratePKCE()
	if err != nil {
		return nil, f.fail(err)
	}

	callback, err := NewCallbackServer(f.exchanger.RedirectURI())
	if err != nil {
		return nil, f.fail(err)
	}
	callback.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := callback.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to stop callback server", zap.Error(err))
		}
	}()

	exchanger := f.exchanger.WithRedirectURI(callback.RedirectURI())
	req := exchanger.AuthorizationRequest(pkce)
	f.transition(StatePendingAuthorization)

	if err := open(req.URL); err != nil {
		return nil, f.fail(fmt.Errorf("failed to open authorization URL: %w", err))
	}

	waitCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	code, err := callback.Wait(waitCtx, req.State)
	if err != nil {
		return nil, f.fail(err)
	}
	f.transition(StateAuthorizationCodeReceived)

	token, err := exchanger.ExchangeToken(ctx, code, pkce.CodeVerifier, req.RedirectURI)
	if err != nil {
		return nil, f.fail(err)
	}
	if token.AccessToken == "" {
		return nil, f.fail(ErrNoAccessToken)
	}
	f.transition(StateAuthenticated)

	logger.Info("Login succeeded", zap.String("patient", token.Patient), zap.String("scope", token.Scope))
	return token, nil
}
