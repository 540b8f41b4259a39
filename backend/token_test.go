package backend

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationToken_Token(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ct := &ConfigurationToken{
		Data: json.RawMessage(`{"access_token": "at", "refresh_token": "rt", "expires_in": 3600}`),
	}
	tok, err := ct.Token()
	require.NoError(err)
	assert.EqualValues(3600, tok.ExpiresIn)
}

func TestConfigurationToken_HasExpired(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	tests := []struct {
		name    string
		token   ConfigurationToken
		expired bool
	}{
		{
			name: "fresh",
			token: ConfigurationToken{
				Added: time.Now(),
				Data:  json.RawMessage(`{"access_token": "at", "expires_in": 3600}`),
			},
			expired: false,
		},
		{
			name: "past-expiry",
			token: ConfigurationToken{
				Added: time.Now().Add(-2 * time.Hour),
				Data:  json.RawMessage(`{"access_token": "at", "expires_in": 3600}`),
			},
			expired: true,
		},
		{
			name: "no-expiry",
			token: ConfigurationToken{
				Added: time.Now(),
				Data:  json.RawMessage(`{"access_token": "at"}`),
			},
			expired: true,
		},
		{
			name: "unparseable",
			token: ConfigurationToken{
				Added: time.Now(),
				Data:  json.RawMessage(`{not json`),
			},
			expired: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(tt.expired, tt.token.HasExpired())
		})
	}
}

func TestConfigurationToken_UsesClientIDDocument(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	assert.True((&ConfigurationToken{ClientID: "https://rp.example/client/123.jsonld"}).UsesClientIDDocument())
	assert.True((&ConfigurationToken{ClientID: "http://rp.example/client/123.jsonld"}).UsesClientIDDocument())
	assert.False((&ConfigurationToken{ClientID: "test-client-1"}).UsesClientIDDocument())
	assert.False((&ConfigurationToken{}).UsesClientIDDocument())
}
