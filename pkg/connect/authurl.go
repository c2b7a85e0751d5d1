package connect

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/telenordigital/connect-go/pkg/oauth2"
)

// URLResolver resolves an endpoint reference against a base URL.
type URLResolver func(base, ref string) (*url.URL, error)

// ResolveURL is the default URLResolver.
func ResolveURL(base, ref string) (*url.URL, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("unable to parse base URL: %w", err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("unable to parse endpoint reference: %w", err)
	}
	return baseURL.ResolveReference(refURL), nil
}

// BuildAuthorizationURL constructs the authorization request URL for
// the given anti-CSRF state. Parameters are emitted in a fixed order
// with the state last; extra parameters follow map iteration order,
// which is not stable and does not need to be for a query string.
// A nil resolver selects ResolveURL.
func BuildAuthorizationURL(cfg *Config, state string, resolve URLResolver) (string, error) {
	if resolve == nil {
		resolve = ResolveURL
	}

	endpoint, err := resolve(cfg.Issuer, cfg.AuthorizationEndpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedURL, err)
	}
	if endpoint == nil || endpoint.Host == "" {
		return "", fmt.Errorf("%w: resolving %q against %q", ErrMalformedURL, cfg.AuthorizationEndpoint, cfg.Issuer)
	}

	var query strings.Builder
	query.WriteString("scope=")
	query.WriteString(queryEscape(strings.Join(cfg.Scopes, " ")))
	query.WriteString("&redirect_uri=")
	query.WriteString(queryEscape(cfg.RedirectURI))
	query.WriteString("&client_id=")
	query.WriteString(queryEscape(cfg.ClientID))
	query.WriteString("&response_type=")
	query.WriteString(oauth2.ResponseTypeCode)
	query.WriteString("&telenordigital_sdk_version=")
	query.WriteString(queryEscape(Version))

	for key, value := range cfg.ExtraParameters {
		query.WriteString("&")
		query.WriteString(queryEscape(key))
		query.WriteString("=")
		query.WriteString(queryEscape(value))
	}

	if len(cfg.EssentialClaims) > 0 {
		claims, err := claimsParameter(cfg.EssentialClaims)
		if err != nil {
			return "", err
		}
		query.WriteString("&claims=")
		query.WriteString(queryEscape(claims))
	}

	if state != "" {
		query.WriteString("&state=")
		query.WriteString(queryEscape(state))
	}

	return endpoint.String() + "?" + query.String(), nil
}

// claimsParameter serializes the essential-claims request as compact
// JSON: {"userinfo":{<claim>:{"essential":true}}}.
func claimsParameter(claims []string) (string, error) {
	userinfo := make(map[string]map[string]bool, len(claims))
	for _, claim := range claims {
		userinfo[claim] = map[string]bool{"essential": true}
	}

	data, err := json.Marshal(map[string]any{"userinfo": userinfo})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrClaimsSerialization, err)
	}
	return string(data), nil
}

// queryEscape percent-encodes a query component, using %20 rather
// than + for spaces.
func queryEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
