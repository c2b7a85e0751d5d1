package connect_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telenordigital/connect-go/pkg/connect"
	"github.com/telenordigital/connect-go/pkg/oauth2"
)

type restCall struct {
	method  string
	path    string
	params  url.Values
	headers http.Header
}

type restResponse struct {
	body []byte
	err  error
}

type fakeRestClient struct {
	calls     []restCall
	responses []restResponse
}

func (f *fakeRestClient) Perform(ctx context.Context, method, path string, params url.Values, headers http.Header) ([]byte, error) {
	f.calls = append(f.calls, restCall{method: method, path: path, params: params, headers: headers})
	if len(f.responses) == 0 {
		return nil, errors.New("unexpected request")
	}
	response := f.responses[0]
	f.responses = f.responses[1:]
	return response.body, response.err
}

func (f *fakeRestClient) respond(body string) {
	f.responses = append(f.responses, restResponse{body: []byte(body)})
}

func (f *fakeRestClient) fail(err error) {
	f.responses = append(f.responses, restResponse{err: err})
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, cfg *connect.Config, store connect.SessionStore, rest *fakeRestClient) *connect.Client {
	t.Helper()
	client, err := connect.NewClient(cfg,
		connect.WithSessionStore(store),
		connect.WithRestClient(rest),
		connect.WithStateSource(&fakeStateSource{next: "abc"}),
		connect.WithClock(func() time.Time { return testNow }),
	)
	require.NoError(t, err)
	return client
}

func seedSession(t *testing.T, store connect.SessionStore, cfg *connect.Config, session *connect.Session) {
	t.Helper()
	require.NoError(t, store.SaveSession(cfg.AccountKey(), session))
}

func TestRequestAccessCachedToken(t *testing.T) {
	cfg := testConfig(t)
	store := connect.NewMemorySessionStore()
	seedSession(t, store, cfg, &connect.Session{
		AccessToken:       "cached",
		AccessTokenExpiry: testNow.Add(time.Hour),
	})
	rest := &fakeRestClient{}
	client := newTestClient(t, cfg, store, rest)

	token, err := client.RequestAccess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached", token)
	assert.Empty(t, rest.calls)
}

func TestRequestAccessRefreshesExpiredToken(t *testing.T) {
	cfg := testConfig(t)
	store := connect.NewMemorySessionStore()
	seedSession(t, store, cfg, &connect.Session{
		AccessToken:       "stale",
		AccessTokenExpiry: testNow.Add(-time.Minute),
		RefreshToken:      "R",
	})
	rest := &fakeRestClient{}
	rest.respond(`{"access_token":"fresh","expires_in":3600}`)
	client := newTestClient(t, cfg, store, rest)

	token, err := client.RequestAccess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)

	require.Len(t, rest.calls, 1)
	call := rest.calls[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, connect.DefaultTokenEndpoint, call.path)
	assert.Equal(t, oauth2.GrantTypeRefreshToken, call.params.Get("grant_type"))
	assert.Equal(t, "R", call.params.Get("refresh_token"))

	// no authorization attempt was started
	assert.Equal(t, connect.AuthorizationStateUnknown, client.Flow().State())
}

func TestRequestAccessStartsAuthorization(t *testing.T) {
	cfg := testConfig(t)
	rest := &fakeRestClient{}
	client := newTestClient(t, cfg, connect.NewMemorySessionStore(), rest)

	_, err := client.RequestAccess(context.Background())
	var authzErr *connect.AuthorizationRequiredError
	require.ErrorAs(t, err, &authzErr)
	assert.Equal(t, "abc", authzErr.State)
	assert.Contains(t, authzErr.AuthorizationURL, "client_id=test-client")
	assert.Equal(t, connect.AuthorizationStatePending, client.Flow().State())
	assert.Empty(t, rest.calls)
}

func TestExchangeCodeForToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.ClientSecret = connect.NewSecretString("hush")
	cfg.PublicClient = boolPtr(true)
	store := connect.NewMemorySessionStore()
	rest := &fakeRestClient{}
	rest.respond(`{"access_token":"A","refresh_token":"R","id_token":"I","expires_in":3600,"refresh_expires_in":86400}`)
	client := newTestClient(t, cfg, store, rest)

	token, err := client.ExchangeCodeForToken(context.Background(), "xyz")
	require.NoError(t, err)
	assert.Equal(t, "A", token)

	require.Len(t, rest.calls, 1)
	call := rest.calls[0]
	assert.Equal(t, connect.DefaultTokenEndpoint, call.path)
	assert.Equal(t, oauth2.GrantTypeAuthorizationCode, call.params.Get("grant_type"))
	assert.Equal(t, "xyz", call.params.Get("code"))
	assert.Equal(t, "test-client", call.params.Get("client_id"))
	assert.Equal(t, cfg.RedirectURI, call.params.Get("redirect_uri"))
	assert.Equal(t, "hush", call.params.Get("client_secret"))

	session := client.Session()
	assert.Equal(t, "A", session.AccessToken)
	assert.Equal(t, testNow.Add(time.Hour), session.AccessTokenExpiry)
	assert.Equal(t, "R", session.RefreshToken)
	assert.Equal(t, testNow.Add(24*time.Hour), session.RefreshTokenExpiry)
	assert.Equal(t, "I", session.IDToken)

	persisted, err := store.GetSession(cfg.AccountKey())
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, "A", persisted.AccessToken)
}

func TestExchangeDropsIDTokenWhenIdentityDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.OpenIDConnect = false
	rest := &fakeRestClient{}
	rest.respond(`{"access_token":"A","id_token":"I","expires_in":3600}`)
	client := newTestClient(t, cfg, connect.NewMemorySessionStore(), rest)

	_, err := client.ExchangeCodeForToken(context.Background(), "xyz")
	require.NoError(t, err)
	assert.Empty(t, client.Session().IDToken)
}

func TestExchangeMissingAccessToken(t *testing.T) {
	cfg := testConfig(t)
	rest := &fakeRestClient{}
	rest.respond(`{"token_type":"Bearer"}`)
	client := newTestClient(t, cfg, connect.NewMemorySessionStore(), rest)

	_, err := client.ExchangeCodeForToken(context.Background(), "xyz")
	var unexpectedErr *connect.UnexpectedResponseError
	assert.ErrorAs(t, err, &unexpectedErr)
	assert.True(t, client.Session().IsEmpty())
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	cfg := testConfig(t)
	rest := &fakeRestClient{}
	client := newTestClient(t, cfg, connect.NewMemorySessionStore(), rest)

	_, err := client.Refresh(context.Background())
	assert.ErrorIs(t, err, connect.ErrMissingRefreshToken)
	assert.Empty(t, rest.calls)
}

func TestRefreshRejectionClearsSession(t *testing.T) {
	cfg := testConfig(t)
	store := connect.NewMemorySessionStore()
	seedSession(t, store, cfg, &connect.Session{
		AccessToken:       "stale",
		AccessTokenExpiry: testNow.Add(-time.Minute),
		RefreshToken:      "R",
		IDToken:           "I",
	})
	rest := &fakeRestClient{}
	rest.fail(&oauth2.Error{Code: "invalid_grant", StatusCode: http.StatusBadRequest})
	client := newTestClient(t, cfg, store, rest)

	_, err := client.Refresh(context.Background())
	require.Error(t, err)
	var oauthErr *oauth2.Error
	assert.ErrorAs(t, err, &oauthErr)

	assert.True(t, client.Session().IsEmpty())
	persisted, err := store.GetSession(cfg.AccountKey())
	require.NoError(t, err)
	assert.Nil(t, persisted)
}

func TestRefreshNetworkFailureKeepsSession(t *testing.T) {
	cfg := testConfig(t)
	store := connect.NewMemorySessionStore()
	seedSession(t, store, cfg, &connect.Session{RefreshToken: "R"})
	rest := &fakeRestClient{}
	rest.fail(errors.New("connection reset"))
	client := newTestClient(t, cfg, store, rest)

	_, err := client.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, "R", client.Session().RefreshToken)
}

func TestRefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	cfg := testConfig(t)
	store := connect.NewMemorySessionStore()
	seedSession(t, store, cfg, &connect.Session{RefreshToken: "R"})
	rest := &fakeRestClient{}
	rest.respond(`{"access_token":"A","expires_in":3600}`)
	client := newTestClient(t, cfg, store, rest)

	token, err := client.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A", token)
	assert.Equal(t, "R", client.Session().RefreshToken)
}

func TestRefreshAdoptsRotatedRefreshToken(t *testing.T) {
	cfg := testConfig(t)
	store := connect.NewMemorySessionStore()
	seedSession(t, store, cfg, &connect.Session{RefreshToken: "R"})
	rest := &fakeRestClient{}
	rest.respond(`{"access_token":"A","refresh_token":"R2","expires_in":3600}`)
	client := newTestClient(t, cfg, store, rest)

	_, err := client.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "R2", client.Session().RefreshToken)
}

func TestRevokeWithoutAccessToken(t *testing.T) {
	cfg := testConfig(t)
	rest := &fakeRestClient{}
	client := newTestClient(t, cfg, connect.NewMemorySessionStore(), rest)

	require.NoError(t, client.Revoke(context.Background()))
	assert.Empty(t, rest.calls)
}

func TestRevokeClearsSession(t *testing.T) {
	cfg := testConfig(t)
	store := connect.NewMemorySessionStore()
	seedSession(t, store, cfg, &connect.Session{
		AccessToken:       "A",
		AccessTokenExpiry: testNow.Add(time.Hour),
		RefreshToken:      "R",
	})
	rest := &fakeRestClient{}
	rest.respond(`{}`)
	client := newTestClient(t, cfg, store, rest)

	require.NoError(t, client.Revoke(context.Background()))

	require.Len(t, rest.calls, 1)
	call := rest.calls[0]
	assert.Equal(t, connect.DefaultRevocationEndpoint, call.path)
	assert.Equal(t, "A", call.params.Get("token"))
	assert.True(t, client.Session().IsEmpty())
}

func TestIsAuthorizedAndAuthorizationHeader(t *testing.T) {
	cfg := testConfig(t)
	store := connect.NewMemorySessionStore()
	rest := &fakeRestClient{}
	client := newTestClient(t, cfg, store, rest)

	assert.False(t, client.IsAuthorized())
	assert.Nil(t, client.AuthorizationHeader())

	seedSession(t, store, cfg, &connect.Session{
		AccessToken:       "A",
		AccessTokenExpiry: testNow.Add(-time.Minute),
	})
	client = newTestClient(t, cfg, store, rest)

	// header is available while a token exists, even an expired one
	assert.False(t, client.IsAuthorized())
	assert.Equal(t, map[string]string{"Authorization": "Bearer A"}, client.AuthorizationHeader())
}

func TestUserInfo(t *testing.T) {
	cfg := testConfig(t)
	store := connect.NewMemorySessionStore()
	seedSession(t, store, cfg, &connect.Session{
		AccessToken:       "A",
		AccessTokenExpiry: testNow.Add(time.Hour),
	})
	rest := &fakeRestClient{}
	rest.respond(`{"sub":"user-1","email":"user@example.com"}`)
	client := newTestClient(t, cfg, store, rest)

	claims, err := client.UserInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims["sub"])

	require.Len(t, rest.calls, 1)
	call := rest.calls[0]
	assert.Equal(t, http.MethodGet, call.method)
	assert.Equal(t, connect.DefaultUserinfoEndpoint, call.path)
	assert.Equal(t, "Bearer A", call.headers.Get("Authorization"))
}

func TestUserInfoWithoutAccessToken(t *testing.T) {
	cfg := testConfig(t)
	rest := &fakeRestClient{}
	client := newTestClient(t, cfg, connect.NewMemorySessionStore(), rest)

	_, err := client.UserInfo(context.Background())
	assert.ErrorIs(t, err, connect.ErrMissingAccessToken)
	assert.Empty(t, rest.calls)
}

func TestFullAuthorizationRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	store := connect.NewMemorySessionStore()
	rest := &fakeRestClient{}
	rest.respond(`{"access_token":"A","refresh_token":"R","expires_in":3600}`)
	client := newTestClient(t, cfg, store, rest)

	_, err := client.RequestAccess(context.Background())
	var authzErr *connect.AuthorizationRequiredError
	require.ErrorAs(t, err, &authzErr)

	result, err := client.Flow().HandleRedirect(context.Background(), "state="+authzErr.State+"&code=xyz")
	require.NoError(t, err)
	assert.Equal(t, "A", result.AccessToken)

	token, err := client.RequestAccess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A", token)
	assert.True(t, client.IsAuthorized())
}

func boolPtr(b bool) *bool {
	return &b
}
