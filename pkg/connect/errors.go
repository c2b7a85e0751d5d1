package connect

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingRefreshToken is returned by Refresh when the session
	// holds no refresh token.
	ErrMissingRefreshToken = errors.New("no refresh token available")

	// ErrMissingAccessToken is returned by operations that need an
	// access token when none is stored.
	ErrMissingAccessToken = errors.New("no access token available")

	// ErrStateMismatch is returned when a redirect carries no state or
	// a state that does not match the pending authorization attempt.
	ErrStateMismatch = errors.New("authorization state mismatch")

	// ErrUserCancelled is returned when a redirect arrives without an
	// authorization code.
	ErrUserCancelled = errors.New("user cancelled authorization")

	// ErrAuthorizationInProgress is returned by Start while a previous
	// attempt is still awaiting its redirect.
	ErrAuthorizationInProgress = errors.New("authorization attempt already in progress")

	ErrMalformedURL        = errors.New("unable to resolve authorization URL")
	ErrClaimsSerialization = errors.New("unable to serialize claims parameter")

	ErrIssuerMismatch   = errors.New("id token issuer mismatch")
	ErrAudienceMismatch = errors.New("id token audience mismatch")
	ErrIDTokenExpired   = errors.New("id token expired")
	ErrIDTokenDecode    = errors.New("unable to decode id token")
)

// UnexpectedResponseError signals a structurally invalid server
// response, e.g. a token response without an access_token.
type UnexpectedResponseError struct {
	Reason string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response: %s", e.Reason)
}

// AuthorizationRequiredError is returned by RequestAccess when neither
// a valid access token nor a usable refresh token exists. It carries
// the authorization URL the user must be sent to and the anti-CSRF
// state bound to the new attempt.
type AuthorizationRequiredError struct {
	AuthorizationURL string
	State            string
}

func (e *AuthorizationRequiredError) Error() string {
	return "authorization required"
}
