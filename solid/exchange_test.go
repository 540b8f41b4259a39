package solid

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	jose "gopkg.in/square/go-jose.v2"
)

// testRelyingParty returns everything an exchange test needs for a running
// provider: an HTTP client trusting the provider's CA, the provider's
// discovery document and the relying party's DPoP key.
func testRelyingParty(t *testing.T, p *TestProvider) (*http.Client, *ProviderConfig, *jose.JSONWebKey) {
	t.Helper()
	require := require.New(t)
	client, err := NewHTTPClient(p.CACert())
	require.NoError(err)
	cfg, err := FetchProviderConfig(context.Background(), client, p.Addr())
	require.NoError(err)
	keyData, err := GenerateRelyingPartyKey()
	require.NoError(err)
	key, err := LoadRelyingPartyKey(keyData)
	require.NoError(err)
	return client, cfg, key
}

func TestExchange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.SetExpectedAuthCode("test-code-1")
		client, cfg, key := testRelyingParty(t, p)
		verifier, err := NewCodeVerifier()
		require.NoError(err)

		tk, err := Exchange(ctx, client, key, cfg, ExchangeParams{
			Code:        "test-code-1",
			Verifier:    verifier,
			ClientID:    "test-client-1",
			RedirectURL: "https://example.com/redirect",
		})
		require.NoError(err)
		assert.NotEmpty(tk.AccessToken)
		assert.NotEmpty(tk.IDToken)
		assert.Equal(RefreshToken("test-refresh-token"), tk.RefreshToken)
		assert.Equal("DPoP", tk.TokenType)
		assert.EqualValues(3600, tk.ExpiresIn)
		assert.NotEmpty(p.LastDPoPProof())
	})
	t.Run("wrong-code", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.SetExpectedAuthCode("test-code-1")
		client, cfg, key := testRelyingParty(t, p)
		verifier, err := NewCodeVerifier()
		require.NoError(err)

		_, err = Exchange(ctx, client, key, cfg, ExchangeParams{
			Code:        "not-the-code",
			Verifier:    verifier,
			ClientID:    "test-client-1",
			RedirectURL: "https://example.com/redirect",
		})
		require.Error(err)
		var tokenErr *TokenError
		require.ErrorAs(err, &tokenErr)
		assert.Equal("invalid_grant", tokenErr.Code)
	})
	t.Run("bad-redirect-uri", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.SetExpectedAuthCode("test-code-1")
		client, cfg, key := testRelyingParty(t, p)
		verifier, err := NewCodeVerifier()
		require.NoError(err)

		_, err = Exchange(ctx, client, key, cfg, ExchangeParams{
			Code:        "test-code-1",
			Verifier:    verifier,
			ClientID:    "test-client-1",
			RedirectURL: "https://evil.example/redirect",
		})
		require.Error(err)
		var tokenErr *TokenError
		require.ErrorAs(err, &tokenErr)
		assert.Equal("invalid_request", tokenErr.Code)
	})
	t.Run("missing-id-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.SetExpectedAuthCode("test-code-1")
		p.OmitIDTokens()
		client, cfg, key := testRelyingParty(t, p)
		verifier, err := NewCodeVerifier()
		require.NoError(err)

		_, err = Exchange(ctx, client, key, cfg, ExchangeParams{
			Code:        "test-code-1",
			Verifier:    verifier,
			ClientID:    "test-client-1",
			RedirectURL: "https://example.com/redirect",
		})
		assert.ErrorIs(err, ErrMissingIDToken)
	})
	t.Run("validation", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		client, cfg, key := testRelyingParty(t, p)
		verifier, err := NewCodeVerifier()
		require.NoError(err)

		_, err = Exchange(ctx, client, key, nil, ExchangeParams{Code: "c", Verifier: verifier})
		assert.ErrorIs(err, ErrNilParameter)
		_, err = Exchange(ctx, client, key, cfg, ExchangeParams{Verifier: verifier})
		assert.ErrorIs(err, ErrInvalidParameter)
		_, err = Exchange(ctx, client, key, cfg, ExchangeParams{Code: "c"})
		assert.ErrorIs(err, ErrNilParameter)
		_, err = Exchange(ctx, client, nil, cfg, ExchangeParams{Code: "c", Verifier: verifier})
		assert.ErrorIs(err, ErrNilParameter)
	})
}

func TestRefreshGrant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		client, cfg, key := testRelyingParty(t, p)

		tk, err := RefreshGrant(ctx, client, key, cfg, RefreshParams{
			RefreshToken: "test-refresh-token",
			ClientID:     "test-client-1",
		})
		require.NoError(err)
		assert.NotEmpty(tk.AccessToken)
		assert.Equal(RefreshToken("test-refresh-token"), tk.RefreshToken)
		assert.NotEmpty(p.LastDPoPProof())
	})
	t.Run("wrong-refresh-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		client, cfg, key := testRelyingParty(t, p)

		_, err := RefreshGrant(ctx, client, key, cfg, RefreshParams{
			RefreshToken: "stale-refresh-token",
			ClientID:     "test-client-1",
		})
		require.Error(err)
		var tokenErr *TokenError
		require.ErrorAs(err, &tokenErr)
		assert.Equal("invalid_grant", tokenErr.Code)
	})
	t.Run("empty-refresh-token", func(t *testing.T) {
		assert := assert.New(t)
		p := StartTestProvider(t)
		client, cfg, key := testRelyingParty(t, p)

		_, err := RefreshGrant(ctx, client, key, cfg, RefreshParams{ClientID: "test-client-1"})
		assert.ErrorIs(err, ErrInvalidParameter)
	})
}
