package oauth2_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telenordigital/connect-go/pkg/oauth2"
)

func TestParseTokenResponse(t *testing.T) {
	response, err := oauth2.ParseTokenResponse([]byte(`{
		"access_token": "A",
		"token_type": "Bearer",
		"expires_in": 3600,
		"refresh_token": "R",
		"refresh_expires_in": 86400,
		"id_token": "I"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "A", response.AccessToken)
	assert.Equal(t, int64(3600), response.ExpiresIn)
	assert.Equal(t, "R", response.RefreshToken)
	assert.Equal(t, int64(86400), response.RefreshExpiresIn)
	assert.Equal(t, "I", response.IDToken)
}

func TestParseTokenResponseStringLifetimes(t *testing.T) {
	// some providers return lifetimes as strings
	response, err := oauth2.ParseTokenResponse([]byte(`{"access_token":"A","expires_in":"3600"}`))
	require.NoError(t, err)
	assert.Equal(t, "A", response.AccessToken)
	assert.Equal(t, int64(3600), response.ExpiresIn)
}

func TestParseTokenResponseInvalid(t *testing.T) {
	_, err := oauth2.ParseTokenResponse([]byte(`not json`))
	assert.Error(t, err)
}

func TestErrorFormatting(t *testing.T) {
	err := &oauth2.Error{Code: "invalid_grant", Description: "refresh token revoked"}
	assert.Equal(t, "invalid_grant: refresh token revoked", err.Error())

	err = &oauth2.Error{Code: "invalid_request"}
	assert.Equal(t, "invalid_request", err.Error())
}
