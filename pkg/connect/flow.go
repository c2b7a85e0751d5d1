package connect

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/hashicorp/go-secure-stdlib/nonceutil"
	"github.com/segmentio/ksuid"
)

type AuthorizationState string

const (
	// AuthorizationStateUnknown is the idle state: no attempt is in
	// flight. Cancelled and abandoned attempts end up here.
	AuthorizationStateUnknown AuthorizationState = "unknown"
	// AuthorizationStatePending means an authorization URL has been
	// handed out and the redirect has not arrived yet.
	AuthorizationStatePending AuthorizationState = "pending"
	// AuthorizationStateApproved is the transient state between a
	// valid redirect and the completion of its processing.
	AuthorizationStateApproved AuthorizationState = "approved"
)

// StateSource issues the anti-CSRF state tokens bound to
// authorization attempts. Redeem consumes a token; a second redeem of
// the same token fails.
type StateSource interface {
	Issue() (string, error)
	Redeem(state string) error
}

type nonceStateSource struct {
	service nonceutil.NonceService
}

// NewNonceStateSource returns the default StateSource. Issued tokens
// are time-bound: a redirect arriving after the token expired is
// rejected the same way as a forged one, which doubles as the
// bounded deadline on abandoned attempts.
func NewNonceStateSource() (StateSource, error) {
	service := nonceutil.NewNonceService()
	if err := service.Initialize(); err != nil {
		return nil, fmt.Errorf("could not initialize nonce service: %w", err)
	}
	return &nonceStateSource{service}, nil
}

func (s *nonceStateSource) Issue() (string, error) {
	state, _, err := s.service.Get()
	if err != nil {
		return "", err
	}
	return state, nil
}

func (s *nonceStateSource) Redeem(state string) error {
	if ok := s.service.Redeem(state); !ok {
		return fmt.Errorf("state %s not found", state)
	}
	return nil
}

// CodeExchanger exchanges an authorization code for an access token.
// Client implements it.
type CodeExchanger interface {
	ExchangeCodeForToken(ctx context.Context, code string) (string, error)
}

// AuthorizationFlow drives a single authorization attempt from URL
// hand-out to redirect processing. At most one attempt is pending at
// a time; Start rejects overlapping attempts. The redirect and the
// app-resumed signals arrive asynchronously and may race, so both are
// safe against an attempt that has already been resolved or reset.
type AuthorizationFlow struct {
	cfg       Config
	states    StateSource
	exchanger CodeExchanger
	resolver  URLResolver

	lock      sync.Mutex
	state     AuthorizationState
	attemptID string
	expected  string
}

func NewAuthorizationFlow(cfg *Config, states StateSource, exchanger CodeExchanger) *AuthorizationFlow {
	return &AuthorizationFlow{
		cfg:       *cfg,
		states:    states,
		exchanger: exchanger,
		state:     AuthorizationStateUnknown,
	}
}

func (f *AuthorizationFlow) State() AuthorizationState {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.state
}

// Start issues a fresh anti-CSRF state, builds the authorization URL
// and moves the flow to pending. The caller presents the URL to the
// user; the outcome arrives later via HandleRedirect or HandleResume.
func (f *AuthorizationFlow) Start() (authURL, state string, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.state != AuthorizationStateUnknown {
		return "", "", ErrAuthorizationInProgress
	}

	state, err = f.states.Issue()
	if err != nil {
		return "", "", fmt.Errorf("unable to issue state: %w", err)
	}

	authURL, err = BuildAuthorizationURL(&f.cfg, state, f.resolver)
	if err != nil {
		return "", "", err
	}

	f.attemptID = ksuid.New().String()
	f.expected = state
	f.state = AuthorizationStatePending

	slog.Debug("authorization attempt started", "attempt", f.attemptID, "client_id", f.cfg.ClientID)
	return authURL, state, nil
}

// RedirectResult is the outcome of a successfully validated redirect.
// Exactly one of AccessToken (public client, code already exchanged)
// and Code (confidential client, exchange delegated to the backend)
// is set.
type RedirectResult struct {
	AccessToken string
	Code        string
}

// HandleRedirect processes the query string of an authorization
// redirect. The state parameter must match the pending attempt, else
// ErrStateMismatch; no token exchange happens on a mismatch. A
// matching redirect without a code means the user cancelled.
func (f *AuthorizationFlow) HandleRedirect(ctx context.Context, query string) (*RedirectResult, error) {
	f.lock.Lock()

	params := ParseRedirectQuery(query)
	state := params["state"]

	if f.state != AuthorizationStatePending || state == "" || state != f.expected {
		slog.Debug("redirect rejected", "attempt", f.attemptID, "flow_state", f.state)
		f.reset()
		f.lock.Unlock()
		return nil, ErrStateMismatch
	}

	if err := f.states.Redeem(state); err != nil {
		f.reset()
		f.lock.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrStateMismatch, err)
	}

	code := params["code"]
	if code == "" {
		slog.Info("authorization cancelled by user", "attempt", f.attemptID)
		f.reset()
		f.lock.Unlock()
		return nil, ErrUserCancelled
	}

	f.state = AuthorizationStateApproved
	attemptID := f.attemptID
	public := f.cfg.IsPublicClient()
	f.lock.Unlock()

	defer func() {
		f.lock.Lock()
		f.reset()
		f.lock.Unlock()
	}()

	if !public {
		// Confidential clients exchange the code on their backend;
		// hand it back untouched.
		return &RedirectResult{Code: code}, nil
	}

	accessToken, err := f.exchanger.ExchangeCodeForToken(ctx, code)
	if err != nil {
		return nil, err
	}

	slog.Debug("authorization attempt completed", "attempt", attemptID)
	return &RedirectResult{AccessToken: accessToken}, nil
}

// HandleResume signals that the app became active again without a
// redirect arriving. A pending attempt is treated as abandoned.
func (f *AuthorizationFlow) HandleResume() {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.state == AuthorizationStatePending {
		slog.Info("authorization attempt abandoned", "attempt", f.attemptID)
		f.reset()
	}
}

func (f *AuthorizationFlow) reset() {
	f.state = AuthorizationStateUnknown
	f.attemptID = ""
	f.expected = ""
}

// ParseRedirectQuery splits a raw query string into a key/value map.
// Keys and values are percent-decoded; a pair without '=' yields an
// empty value and a trailing '&' is ignored. Unencoded '=' or '&'
// inside values are split at the first delimiter only, a known
// limitation of the format.
func ParseRedirectQuery(raw string) map[string]string {
	raw = strings.TrimPrefix(raw, "?")

	params := make(map[string]string)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
		if key == "" {
			continue
		}
		params[key] = value
	}
	return params
}
