package connect

import (
	"time"

	"github.com/telenordigital/connect-go/pkg/oauth2"
)

// Session holds the tokens obtained for one account. An access token
// and its expiry are always set and cleared together; the refresh
// token lives independently of the access token. A zero expiry means
// the corresponding token carries no known expiration and is treated
// as valid while present.
type Session struct {
	AccessToken        string    `json:"access_token,omitempty"`
	AccessTokenExpiry  time.Time `json:"access_token_expiry,omitempty"`
	RefreshToken       string    `json:"refresh_token,omitempty"`
	RefreshTokenExpiry time.Time `json:"refresh_token_expiry,omitempty"`
	IDToken            string    `json:"id_token,omitempty"`
}

func (s *Session) HasValidAccessToken(now time.Time) bool {
	if s.AccessToken == "" {
		return false
	}
	return s.AccessTokenExpiry.IsZero() || now.Before(s.AccessTokenExpiry)
}

func (s *Session) HasValidRefreshToken(now time.Time) bool {
	if s.RefreshToken == "" {
		return false
	}
	return s.RefreshTokenExpiry.IsZero() || now.Before(s.RefreshTokenExpiry)
}

// IsEmpty takes a value receiver so it can be called on the copies
// handed out by Client.Session.
func (s Session) IsEmpty() bool {
	return s.AccessToken == "" && s.RefreshToken == "" && s.IDToken == ""
}

// Apply updates the session from a token response. A missing refresh
// token in the response keeps the stored one; servers rotate refresh
// tokens at their discretion and an omission is not a revocation.
func (s *Session) Apply(response *oauth2.TokenResponse, now time.Time) {
	s.AccessToken = response.AccessToken
	if response.ExpiresIn > 0 {
		s.AccessTokenExpiry = now.Add(time.Duration(response.ExpiresIn) * time.Second)
	} else {
		s.AccessTokenExpiry = time.Time{}
	}

	if response.RefreshToken != "" {
		s.RefreshToken = response.RefreshToken
	}
	if response.RefreshExpiresIn > 0 {
		s.RefreshTokenExpiry = now.Add(time.Duration(response.RefreshExpiresIn) * time.Second)
	}

	if response.IDToken != "" {
		s.IDToken = response.IDToken
	}
}

// Clear drops all tokens.
func (s *Session) Clear() {
	*s = Session{}
}
