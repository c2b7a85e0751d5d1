package connect_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/telenordigital/connect-go/pkg/connect"
	"github.com/telenordigital/connect-go/pkg/oauth2"
)

func TestSessionPredicates(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var empty connect.Session
	assert.False(t, empty.HasValidAccessToken(now))
	assert.False(t, empty.HasValidRefreshToken(now))
	assert.True(t, empty.IsEmpty())
	// IsEmpty must be callable on non-addressable copies, like the
	// ones Client.Session returns
	assert.True(t, connect.Session{}.IsEmpty())

	session := connect.Session{
		AccessToken:       "A",
		AccessTokenExpiry: now.Add(time.Minute),
		RefreshToken:      "R",
	}
	assert.True(t, session.HasValidAccessToken(now))
	// a refresh token without expiry never expires
	assert.True(t, session.HasValidRefreshToken(now.Add(1000*time.Hour)))

	session.AccessTokenExpiry = now.Add(-time.Second)
	assert.False(t, session.HasValidAccessToken(now))

	session.RefreshTokenExpiry = now.Add(-time.Second)
	assert.False(t, session.HasValidRefreshToken(now))
}

func TestSessionApply(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	session := connect.Session{
		RefreshToken: "R",
		IDToken:      "I",
	}
	session.Apply(&oauth2.TokenResponse{
		AccessToken: "A",
		ExpiresIn:   3600,
	}, now)

	assert.Equal(t, "A", session.AccessToken)
	assert.Equal(t, now.Add(time.Hour), session.AccessTokenExpiry)
	assert.Equal(t, "R", session.RefreshToken)
	assert.Equal(t, "I", session.IDToken)

	// a response without expires_in clears the stored expiry along
	// with adopting the new token
	session.Apply(&oauth2.TokenResponse{AccessToken: "B"}, now)
	assert.Equal(t, "B", session.AccessToken)
	assert.True(t, session.AccessTokenExpiry.IsZero())

	session.Apply(&oauth2.TokenResponse{
		AccessToken:  "C",
		RefreshToken: "R2",
		IDToken:      "I2",
	}, now)
	assert.Equal(t, "R2", session.RefreshToken)
	assert.Equal(t, "I2", session.IDToken)
}

func TestSessionClear(t *testing.T) {
	session := connect.Session{
		AccessToken:       "A",
		AccessTokenExpiry: time.Now(),
		RefreshToken:      "R",
		IDToken:           "I",
	}
	session.Clear()
	assert.True(t, session.IsEmpty())
	assert.True(t, session.AccessTokenExpiry.IsZero())
}
