// Package oauth2 contains the wire-level types shared by the CONNECT
// client: token responses, protocol errors and the constants used in
// authorization and token requests.
package oauth2

import (
	"encoding/json"
	"fmt"
)

const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	ResponseTypeCode           = "code"
)

// TokenResponse is the body of a successful token endpoint response.
// Only access_token is guaranteed; everything else is optional.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	Scope            string `json:"scope"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	IDToken          string `json:"id_token"`
}

// ParseTokenResponse decodes a token endpoint response body. Some
// providers return expires_in as a JSON string instead of a number, so
// a second decode with string-typed lifetimes is attempted before
// giving up.
func ParseTokenResponse(body []byte) (*TokenResponse, error) {
	var response TokenResponse
	if err := json.Unmarshal(body, &response); err == nil {
		return &response, nil
	}

	fallback := struct {
		AccessToken      string `json:"access_token"`
		TokenType        string `json:"token_type"`
		ExpiresIn        int64  `json:"expires_in,string"`
		Scope            string `json:"scope"`
		RefreshToken     string `json:"refresh_token"`
		RefreshExpiresIn int64  `json:"refresh_expires_in,string"`
		IDToken          string `json:"id_token"`
	}{}
	if err := json.Unmarshal(body, &fallback); err != nil {
		return nil, fmt.Errorf("unable to decode token response: %w", err)
	}

	response.AccessToken = fallback.AccessToken
	response.TokenType = fallback.TokenType
	response.ExpiresIn = fallback.ExpiresIn
	response.Scope = fallback.Scope
	response.RefreshToken = fallback.RefreshToken
	response.RefreshExpiresIn = fallback.RefreshExpiresIn
	response.IDToken = fallback.IDToken
	return &response, nil
}

// Error is an OAuth2 protocol error as returned by the authorization
// server. StatusCode carries the HTTP status of the response it was
// parsed from; it is not part of the wire format.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
	StatusCode  int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}
