package oauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const DefaultExchangeTimeout = 10 * time.Second

type AbortReason string

const (
	AbortAlreadySetup       AbortReason = "already_setup"
	AbortNoCode             AbortReason = "no_code"
	AbortAccessTokenTimeout AbortReason = "access_token_timeout"
	AbortAccessTokenFail    AbortReason = "access_token_fail"
	AbortAuthError          AbortReason = "auth_error"
	AbortInvalidState       AbortReason = "invalid_state"
)

// SetupAbort ends the linking flow with a reason the user can act on.
type SetupAbort struct {
	Reason AbortReason
	Err    error
}

func (e *SetupAbort) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("setup aborted (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("setup aborted (%s)", e.Reason)
}

func (e *SetupAbort) Unwrap() error {
	return e.Err
}

// SetupFlow drives the one-time account linking: hand out the authorization
// URL, then exchange the code the provider redirects back with. Codes are
// only accepted while no account is linked.
type SetupFlow struct {
	client          *Client
	exchangeTimeout time.Duration

	mu      sync.Mutex
	pending string
	// states issued by Start that have not been completed yet
	states map[string]struct{}
}

func NewSetupFlow(client *Client) *SetupFlow {
	return &SetupFlow{
		client:          client,
		exchangeTimeout: DefaultExchangeTimeout,
		states:          make(map[string]struct{}),
	}
}

// Start returns the URL the user has to open to grant access.
func (f *SetupFlow) Start() (string, error) {
	if f.client.HasToken() {
		return "", &SetupAbort{Reason: AbortAlreadySetup}
	}
	authURL, state := f.client.AuthorizationURL()

	f.mu.Lock()
	f.pending = authURL
	f.states[state] = struct{}{}
	f.mu.Unlock()

	log.Infof("Open the following URL to link the calendar account: %s", authURL)
	return authURL, nil
}

// Pending returns the authorization URL of a flow that is waiting for its
// code, if any.
func (f *SetupFlow) Pending() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending, f.pending != ""
}

// Complete exchanges the code of a callback. When Start handed out URLs, the
// callback state must be one of theirs.
func (f *SetupFlow) Complete(ctx context.Context, code string, state string) (Token, error) {
	if code == "" {
		return Token{}, &SetupAbort{Reason: AbortNoCode}
	}
	if f.client.HasToken() {
		log.Warn("Ignoring authorization code, calendar account is already linked")
		return Token{}, &SetupAbort{Reason: AbortAlreadySetup}
	}
	if !f.knownState(state) {
		log.Warnf("Ignoring authorization code with unknown state %q", state)
		return Token{}, &SetupAbort{Reason: AbortInvalidState}
	}

	ctx, cancel := context.WithTimeout(ctx, f.exchangeTimeout)
	defer cancel()

	token, err := f.client.ExchangeCode(ctx, code)
	if err != nil {
		var exchangeErr *AuthExchangeError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return Token{}, &SetupAbort{Reason: AbortAccessTokenTimeout, Err: err}
		case errors.As(err, &exchangeErr):
			return Token{}, &SetupAbort{Reason: AbortAccessTokenFail, Err: err}
		default:
			return Token{}, &SetupAbort{Reason: AbortAuthError, Err: err}
		}
	}

	f.mu.Lock()
	f.pending = ""
	clear(f.states)
	f.mu.Unlock()
	return token, nil
}

func (f *SetupFlow) knownState(state string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.states) == 0 {
		return true
	}
	_, ok := f.states[state]
	return ok
}
