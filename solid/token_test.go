package solid

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToken(t *testing.T) {
	t.Parallel()
	t.Run("full-response", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		data := []byte(`{
			"access_token": "at-123",
			"refresh_token": "rt-456",
			"id_token": "idt-789",
			"token_type": "DPoP",
			"expires_in": 3600,
			"scope": "openid webid offline_access",
			"extra_field": "kept"
		}`)
		tk, err := ParseToken(data)
		require.NoError(err)
		assert.Equal(AccessToken("at-123"), tk.AccessToken)
		assert.Equal(RefreshToken("rt-456"), tk.RefreshToken)
		assert.Equal(IDToken("idt-789"), tk.IDToken)
		assert.Equal("DPoP", tk.TokenType)
		assert.Equal(int64(3600), tk.ExpiresIn)

		// the raw document keeps fields this package doesn't model
		var raw map[string]interface{}
		require.NoError(json.Unmarshal(tk.Raw(), &raw))
		assert.Equal("kept", raw["extra_field"])
	})
	t.Run("missing-access-token", func(t *testing.T) {
		assert := assert.New(t)
		_, err := ParseToken([]byte(`{"id_token": "x"}`))
		assert.Error(err)
	})
	t.Run("invalid-json", func(t *testing.T) {
		assert := assert.New(t)
		_, err := ParseToken([]byte(`not json`))
		assert.Error(err)
	})
}

func TestToken_WithRefreshToken(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tk, err := ParseToken([]byte(`{"access_token": "at", "expires_in": 60}`))
	require.NoError(err)
	require.Empty(tk.RefreshToken)

	updated, err := tk.WithRefreshToken("rt-carried")
	require.NoError(err)
	assert.Equal(RefreshToken("rt-carried"), updated.RefreshToken)
	assert.Equal(tk.AccessToken, updated.AccessToken)

	// the carried token must survive a persist/parse cycle
	reparsed, err := ParseToken(updated.Raw())
	require.NoError(err)
	assert.Equal(RefreshToken("rt-carried"), reparsed.RefreshToken)
}

func TestToken_ExpiresAt(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tk, err := ParseToken([]byte(`{"access_token": "at", "expires_in": 3600}`))
	require.NoError(err)

	obtained := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(obtained.Add(time.Hour), tk.ExpiresAt(obtained))
}

func TestTokenRedaction(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tk, err := ParseToken([]byte(`{"access_token": "secret-at", "refresh_token": "secret-rt", "id_token": "secret-idt"}`))
	require.NoError(err)

	assert.Equal(RedactedAccessToken, tk.AccessToken.String())
	assert.Equal(RedactedRefreshToken, tk.RefreshToken.String())
	assert.Equal(RedactedIDToken, tk.IDToken.String())
	assert.Equal(RedactedAccessToken, fmt.Sprintf("%s", tk.AccessToken))
	assert.Equal(RedactedAccessToken, fmt.Sprintf("%v", tk.AccessToken))

	data, err := json.Marshal(tk)
	require.NoError(err)
	assert.NotContains(string(data), "secret-at")
	assert.NotContains(string(data), "secret-rt")
	assert.NotContains(string(data), "secret-idt")

	// but the raw document is intact for persistence
	assert.Contains(string(tk.Raw()), "secret-at")
}
