package redisbackend

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trompamusic/solidauth/backend"
	"github.com/trompamusic/solidauth/solid"
)

// testBackend connects to the Redis named by SOLIDAUTH_TEST_REDIS_URL,
// skipping the test when it isn't set.
func testBackend(t *testing.T) *Backend {
	t.Helper()
	rawURL := os.Getenv("SOLIDAUTH_TEST_REDIS_URL")
	if rawURL == "" {
		t.Skip("SOLIDAUTH_TEST_REDIS_URL is not set")
	}
	b, err := NewFromURL(rawURL)
	require.NoError(t, err)
	ready, err := b.Ready(context.Background())
	require.NoError(t, err)
	require.True(t, ready)
	return b
}

// testIssuer returns a unique issuer so runs against a shared Redis
// don't see each other's records.
func testIssuer(t *testing.T) string {
	t.Helper()
	id, err := solid.NewID()
	require.NoError(t, err)
	return "https://" + id + ".op.example"
}

func TestBackend_ProviderDocuments(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	b := testBackend(t)
	issuer := testIssuer(t)

	cfg, err := b.GetProviderConfiguration(ctx, issuer)
	require.NoError(err)
	assert.Nil(cfg)

	var in solid.ProviderConfig
	require.NoError(json.Unmarshal([]byte(`{
		"issuer": "`+issuer+`",
		"authorization_endpoint": "`+issuer+`/auth",
		"token_endpoint": "`+issuer+`/token",
		"jwks_uri": "`+issuer+`/certs"
	}`), &in))
	require.NoError(b.SaveProviderConfiguration(ctx, issuer, &in))

	cfg, err = b.GetProviderConfiguration(ctx, issuer)
	require.NoError(err)
	require.NotNil(cfg)
	assert.Equal(issuer, cfg.Issuer)

	pub, _ := solid.TestGenerateKeys(t)
	require.NoError(b.SaveProviderJWKS(ctx, issuer, solid.TestJWKS(t, pub, "kid-1")))
	jwks, err := b.GetProviderJWKS(ctx, issuer)
	require.NoError(err)
	require.NotNil(jwks)
	require.Len(jwks.Keys, 1)
	assert.Equal("kid-1", jwks.Keys[0].KeyID)

	reg, err := solid.ParseClientRegistration([]byte(`{"client_id": "test-client-1"}`))
	require.NoError(err)
	require.NoError(b.SaveClientRegistration(ctx, issuer, reg))
	got, err := b.GetClientRegistration(ctx, issuer)
	require.NoError(err)
	require.NotNil(got)
	assert.Equal("test-client-1", got.ClientID)
}

func TestBackend_ConfigurationTokens(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	b := testBackend(t)
	issuer := testIssuer(t)
	const profile = "https://alice.example/profile/card#me"
	tokenData := json.RawMessage(`{"access_token": "at-1", "refresh_token": "rt-1", "expires_in": 3600}`)

	got, err := b.GetConfigurationToken(ctx, issuer, profile, false)
	require.NoError(err)
	assert.Nil(got)

	require.NoError(b.SaveConfigurationToken(ctx, &backend.ConfigurationToken{
		Issuer: issuer, Profile: profile, Sub: profile, ClientID: "test-client-1", Data: tokenData,
	}))
	require.NoError(b.SaveConfigurationToken(ctx, &backend.ConfigurationToken{
		Issuer: issuer, Profile: profile, Sub: profile,
		ClientID: "https://rp.example/client/123.jsonld", Data: tokenData,
	}))

	got, err = b.GetConfigurationToken(ctx, issuer, profile, false)
	require.NoError(err)
	require.NotNil(got)
	assert.Equal("test-client-1", got.ClientID)
	assert.False(got.Added.IsZero())

	doc, err := b.GetConfigurationToken(ctx, issuer, profile, true)
	require.NoError(err)
	require.NotNil(doc)
	assert.Equal("https://rp.example/client/123.jsonld", doc.ClientID)

	refreshed, err := solid.ParseToken([]byte(`{"access_token": "at-2", "refresh_token": "rt-2", "expires_in": 3600}`))
	require.NoError(err)
	require.NoError(b.UpdateConfigurationToken(ctx, issuer, profile, "test-client-1", refreshed))
	got, err = b.GetConfigurationToken(ctx, issuer, profile, false)
	require.NoError(err)
	require.NotNil(got)
	tok, err := got.Token()
	require.NoError(err)
	assert.Equal(solid.AccessToken("at-2"), tok.AccessToken)

	tokens, err := b.ListConfigurationTokens(ctx)
	require.NoError(err)
	var mine int
	for _, tk := range tokens {
		if tk.Issuer == issuer {
			mine++
		}
	}
	assert.Equal(2, mine)
}

func TestBackend_StateData(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	b := testBackend(t)

	state, err := solid.NewID(solid.WithPrefix("st"))
	require.NoError(err)

	sd, err := b.GetStateData(ctx, state)
	require.NoError(err)
	assert.Nil(sd)

	require.NoError(b.SetStateData(ctx, state, "verifier-1", "https://op.example"))
	sd, err = b.GetStateData(ctx, state)
	require.NoError(err)
	require.NotNil(sd)
	assert.Equal("verifier-1", sd.CodeVerifier)
	assert.Equal("https://op.example", sd.Issuer)

	require.NoError(b.DeleteStateData(ctx, state))
	sd, err = b.GetStateData(ctx, state)
	require.NoError(err)
	assert.Nil(sd)
}

var _ backend.Backend = (*Backend)(nil)
