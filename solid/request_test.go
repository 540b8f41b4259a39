package solid

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuthRequest(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		r, err := NewAuthRequest("https://op.example")
		require.NoError(err)
		assert.Equal("https://op.example", r.Issuer)
		assert.True(strings.HasPrefix(r.State, "st_"))
		require.NotNil(r.Verifier)
		assert.Len(r.Verifier.Verifier(), 64)
	})
	t.Run("empty-issuer", func(t *testing.T) {
		assert := assert.New(t)
		_, err := NewAuthRequest("")
		assert.ErrorIs(err, ErrInvalidParameter)
	})
	t.Run("unique-per-flow", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		a, err := NewAuthRequest("https://op.example")
		require.NoError(err)
		b, err := NewAuthRequest("https://op.example")
		require.NoError(err)
		assert.NotEqual(a.State, b.State)
		assert.NotEqual(a.Verifier.Verifier(), b.Verifier.Verifier())
	})
}

func TestAuthURL(t *testing.T) {
	t.Parallel()
	cfg := &ProviderConfig{
		Issuer:                "https://op.example",
		AuthorizationEndpoint: "https://op.example/auth",
		TokenEndpoint:         "https://op.example/token",
	}

	t.Run("success", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		r, err := NewAuthRequest(cfg.Issuer)
		require.NoError(err)
		raw, err := AuthURL(cfg, "https://rp.example/redirect", "client-1", r)
		require.NoError(err)

		u, err := url.Parse(raw)
		require.NoError(err)
		assert.Equal("https://op.example/auth", u.Scheme+"://"+u.Host+u.Path)
		q := u.Query()
		assert.Equal("code", q.Get("response_type"))
		assert.Equal("client-1", q.Get("client_id"))
		assert.Equal("https://rp.example/redirect", q.Get("redirect_uri"))
		assert.Equal(r.State, q.Get("state"))
		assert.Equal("openid webid offline_access", q.Get("scope"))
		assert.Equal(r.Verifier.Challenge(), q.Get("code_challenge"))
		assert.Equal("S256", q.Get("code_challenge_method"))
		assert.Equal("consent", q.Get("prompt"))
	})
	t.Run("validation", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		r, err := NewAuthRequest(cfg.Issuer)
		require.NoError(err)

		_, err = AuthURL(nil, "https://rp.example/redirect", "client-1", r)
		assert.ErrorIs(err, ErrNilParameter)
		_, err = AuthURL(cfg, "https://rp.example/redirect", "client-1", nil)
		assert.ErrorIs(err, ErrNilParameter)
		_, err = AuthURL(cfg, "", "client-1", r)
		assert.ErrorIs(err, ErrInvalidParameter)
		_, err = AuthURL(cfg, "https://rp.example/redirect", "", r)
		assert.ErrorIs(err, ErrInvalidParameter)
	})
}
