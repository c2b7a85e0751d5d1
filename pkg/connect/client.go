package connect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/telenordigital/connect-go/pkg/oauth2"
)

// Client manages the token lifecycle for one account: it decides
// whether an access request can be served from the stored session,
// satisfied by a refresh, or requires a fresh authorization attempt,
// and it performs the code and refresh-token exchanges.
type Client struct {
	cfg       Config
	store     SessionStore
	rest      RestClient
	states    StateSource
	flow      *AuthorizationFlow
	validator *IDTokenValidator
	now       func() time.Time

	lock    sync.Mutex
	session Session
}

type ClientOption func(*Client) error

func WithSessionStore(store SessionStore) ClientOption {
	return func(c *Client) error {
		c.store = store
		return nil
	}
}

func WithRestClient(rest RestClient) ClientOption {
	return func(c *Client) error {
		c.rest = rest
		return nil
	}
}

func WithStateSource(states StateSource) ClientOption {
	return func(c *Client) error {
		c.states = states
		return nil
	}
}

// WithClock overrides the time source. Tests use it to control token
// expiry.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) error {
		c.now = now
		return nil
	}
}

// NewClient builds a Client from the given config. The config is
// copied; a previously persisted session for the configured account
// is restored from the store when present.
func NewClient(cfg *Config, opts ...ClientOption) (*Client, error) {
	cc := *cfg
	if err := cc.Normalize(); err != nil {
		return nil, err
	}

	if cc.UseDiscovery {
		doc, err := FetchDiscoveryDocument(cc.Issuer + "/.well-known/openid-configuration")
		if err != nil {
			return nil, fmt.Errorf("unable to fetch discovery document: %w", err)
		}
		doc.ApplyTo(&cc)
	}

	c := &Client{
		cfg: cc,
		now: time.Now,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.store == nil {
		c.store = NewMemorySessionStore()
	}
	if c.rest == nil {
		c.rest = NewRestClient(cc.Issuer)
	}
	if c.states == nil {
		states, err := NewNonceStateSource()
		if err != nil {
			return nil, err
		}
		c.states = states
	}

	c.flow = NewAuthorizationFlow(&c.cfg, c.states, c)
	c.validator = NewIDTokenValidator(&c.cfg)

	if session, err := c.store.GetSession(c.cfg.AccountKey()); err != nil {
		return nil, fmt.Errorf("unable to restore session: %w", err)
	} else if session != nil {
		c.session = *session
		slog.Debug("restored persisted session", "account", c.cfg.AccountKey())
	}

	return c, nil
}

// Flow exposes the authorization flow for redirect and resume event
// injection by the platform layer.
func (c *Client) Flow() *AuthorizationFlow {
	return c.flow
}

// RequestAccess returns a valid access token if one can be obtained
// without user interaction: the stored token when unexpired, or the
// result of a refresh when a usable refresh token exists. Otherwise a
// new authorization attempt is started and the returned
// *AuthorizationRequiredError carries the URL the user must visit.
func (c *Client) RequestAccess(ctx context.Context) (string, error) {
	c.lock.Lock()
	now := c.now()
	if c.session.HasValidAccessToken(now) {
		token := c.session.AccessToken
		c.lock.Unlock()
		return token, nil
	}
	canRefresh := c.session.HasValidRefreshToken(now)
	c.lock.Unlock()

	if canRefresh {
		return c.Refresh(ctx)
	}

	authURL, state, err := c.flow.Start()
	if err != nil {
		return "", err
	}
	return "", &AuthorizationRequiredError{
		AuthorizationURL: authURL,
		State:            state,
	}
}

// ExchangeCodeForToken exchanges an authorization code for tokens and
// persists them. Implements CodeExchanger for the flow.
func (c *Client) ExchangeCodeForToken(ctx context.Context, code string) (string, error) {
	params := url.Values{}
	params.Set("grant_type", oauth2.GrantTypeAuthorizationCode)
	params.Set("code", code)
	params.Set("client_id", c.cfg.ClientID)
	params.Set("redirect_uri", c.cfg.RedirectURI)
	if !c.cfg.ClientSecret.IsEmpty() {
		params.Set("client_secret", c.cfg.ClientSecret.Value())
	}

	body, err := c.rest.Perform(ctx, http.MethodPost, c.cfg.TokenEndpoint, params, nil)
	if err != nil {
		return "", fmt.Errorf("unable to exchange code for token: %w", err)
	}

	response, err := c.parseTokenResponse(body)
	if err != nil {
		return "", err
	}

	c.adoptTokens(response)
	slog.Debug("authorization code exchanged", "account", c.cfg.AccountKey())
	return response.AccessToken, nil
}

// Refresh obtains a new access token with the stored refresh token.
// A 4xx rejection means the refresh token is permanently invalid: the
// whole session is cleared and the user has to authorize again.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	c.lock.Lock()
	refreshToken := c.session.RefreshToken
	c.lock.Unlock()

	if refreshToken == "" {
		return "", ErrMissingRefreshToken
	}

	params := url.Values{}
	params.Set("grant_type", oauth2.GrantTypeRefreshToken)
	params.Set("refresh_token", refreshToken)
	params.Set("client_id", c.cfg.ClientID)
	if !c.cfg.ClientSecret.IsEmpty() {
		params.Set("client_secret", c.cfg.ClientSecret.Value())
	}

	body, err := c.rest.Perform(ctx, http.MethodPost, c.cfg.TokenEndpoint, params, nil)
	if err != nil {
		var oauthErr *oauth2.Error
		if errors.As(err, &oauthErr) && oauthErr.StatusCode >= 400 && oauthErr.StatusCode < 500 {
			slog.Info("refresh token rejected, clearing session", "account", c.cfg.AccountKey(), "status", oauthErr.StatusCode)
			c.clearSession()
		}
		return "", fmt.Errorf("unable to refresh access token: %w", err)
	}

	response, err := c.parseTokenResponse(body)
	if err != nil {
		return "", err
	}

	c.adoptTokens(response)
	slog.Debug("access token refreshed", "account", c.cfg.AccountKey())
	return response.AccessToken, nil
}

// Revoke invalidates the stored access token at the server and clears
// the session. Without an access token it returns immediately and
// performs no network call.
func (c *Client) Revoke(ctx context.Context) error {
	c.lock.Lock()
	accessToken := c.session.AccessToken
	c.lock.Unlock()

	if accessToken == "" {
		return nil
	}

	params := url.Values{}
	params.Set("token", accessToken)
	if _, err := c.rest.Perform(ctx, http.MethodPost, c.cfg.RevocationEndpoint, params, nil); err != nil {
		return fmt.Errorf("unable to revoke token: %w", err)
	}

	c.clearSession()
	slog.Info("token revoked", "account", c.cfg.AccountKey())
	return nil
}

// UserInfo fetches the userinfo document with the stored access
// token.
func (c *Client) UserInfo(ctx context.Context) (map[string]any, error) {
	header := c.AuthorizationHeader()
	if header == nil {
		return nil, ErrMissingAccessToken
	}

	headers := http.Header{}
	for key, value := range header {
		headers.Set(key, value)
	}

	body, err := c.rest.Perform(ctx, http.MethodGet, c.cfg.UserinfoEndpoint, nil, headers)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch userinfo: %w", err)
	}

	var claims map[string]any
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, &UnexpectedResponseError{Reason: "userinfo is not a JSON object"}
	}
	return claims, nil
}

// IsAuthorized reports whether an unexpired access token is stored.
func (c *Client) IsAuthorized() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.session.HasValidAccessToken(c.now())
}

// AuthorizationHeader returns the bearer header for the stored access
// token, or nil when there is none. Expiry is deliberately not
// rechecked here.
func (c *Client) AuthorizationHeader() map[string]string {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.session.AccessToken == "" {
		return nil
	}
	return map[string]string{
		"Authorization": "Bearer " + c.session.AccessToken,
	}
}

// IDTokenPayload decodes and validates the stored id token and
// returns its claims. Returns (nil, nil) when identity handling is
// disabled or no id token is stored.
func (c *Client) IDTokenPayload(ctx context.Context) (map[string]any, error) {
	if !c.cfg.OpenIDConnect {
		return nil, nil
	}

	c.lock.Lock()
	idToken := c.session.IDToken
	c.lock.Unlock()

	if idToken == "" {
		return nil, nil
	}
	return c.validator.Payload(ctx, idToken, c.now())
}

// Session returns a copy of the current session.
func (c *Client) Session() Session {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.session
}

func (c *Client) parseTokenResponse(body []byte) (*oauth2.TokenResponse, error) {
	response, err := oauth2.ParseTokenResponse(body)
	if err != nil {
		return nil, &UnexpectedResponseError{Reason: err.Error()}
	}
	if response.AccessToken == "" {
		return nil, &UnexpectedResponseError{Reason: "missing access_token"}
	}
	return response, nil
}

// adoptTokens applies a token response to the session and persists
// it. The id token is only adopted when identity handling is enabled.
func (c *Client) adoptTokens(response *oauth2.TokenResponse) {
	if !c.cfg.OpenIDConnect {
		response.IDToken = ""
	}

	c.lock.Lock()
	c.session.Apply(response, c.now())
	c.persistLocked()
	c.lock.Unlock()
}

func (c *Client) clearSession() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.session.Clear()
	if err := c.store.DeleteSession(c.cfg.AccountKey()); err != nil {
		slog.Error("unable to delete persisted session", "account", c.cfg.AccountKey(), "error", err)
	}
}

// persistLocked saves the session; persistence failures are logged
// but do not fail the operation that obtained the tokens.
func (c *Client) persistLocked() {
	if err := c.store.SaveSession(c.cfg.AccountKey(), &c.session); err != nil {
		slog.Error("unable to persist session", "account", c.cfg.AccountKey(), "error", err)
	}
}
