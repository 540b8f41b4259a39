package solid

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2/jwt"
)

func TestVerifyIDToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pub, priv := TestGenerateKeys(t)
	jwks := TestJWKS(t, pub, "test-kid-1")

	const (
		issuer   = "https://op.example"
		clientID = "test-client-1"
	)

	stdClaims := func(now time.Time) jwt.Claims {
		return jwt.Claims{
			Issuer:   issuer,
			Subject:  "https://alice.example/profile/card#me",
			Audience: jwt.Audience{clientID},
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(time.Hour)),
		}
	}

	t.Run("success", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		now := time.Now()
		raw := TestSignJWT(t, priv, "test-kid-1", stdClaims(now), map[string]interface{}{
			"webid": "https://alice.example/profile/card#me",
		})
		claims, err := VerifyIDToken(ctx, jwks, issuer, clientID, IDToken(raw))
		require.NoError(err)
		assert.Equal(issuer, claims.Issuer)
		assert.Equal("https://alice.example/profile/card#me", claims.Subject)
		assert.Equal([]string{clientID}, claims.Audience)
		assert.Equal("https://alice.example/profile/card#me", claims.WebID())
	})
	t.Run("webid-falls-back-to-sub", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		raw := TestSignJWT(t, priv, "test-kid-1", stdClaims(time.Now()), map[string]interface{}{})
		claims, err := VerifyIDToken(ctx, jwks, issuer, clientID, IDToken(raw))
		require.NoError(err)
		assert.Equal("https://alice.example/profile/card#me", claims.WebID())
	})
	t.Run("custom-claims", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		raw := TestSignJWT(t, priv, "test-kid-1", stdClaims(time.Now()), map[string]interface{}{
			"azp": "some-party",
		})
		claims, err := VerifyIDToken(ctx, jwks, issuer, clientID, IDToken(raw))
		require.NoError(err)
		var all map[string]interface{}
		require.NoError(claims.Claims(&all))
		assert.Equal("some-party", all["azp"])
	})
	t.Run("wrong-issuer", func(t *testing.T) {
		assert := assert.New(t)
		c := stdClaims(time.Now())
		c.Issuer = "https://other-op.example"
		raw := TestSignJWT(t, priv, "test-kid-1", c, map[string]interface{}{})
		_, err := VerifyIDToken(ctx, jwks, issuer, clientID, IDToken(raw))
		assert.Error(err)
	})
	t.Run("wrong-audience", func(t *testing.T) {
		assert := assert.New(t)
		c := stdClaims(time.Now())
		c.Audience = jwt.Audience{"someone-else"}
		raw := TestSignJWT(t, priv, "test-kid-1", c, map[string]interface{}{})
		_, err := VerifyIDToken(ctx, jwks, issuer, clientID, IDToken(raw))
		assert.Error(err)
	})
	t.Run("expired", func(t *testing.T) {
		assert := assert.New(t)
		c := stdClaims(time.Now().Add(-2 * time.Hour))
		raw := TestSignJWT(t, priv, "test-kid-1", c, map[string]interface{}{})
		_, err := VerifyIDToken(ctx, jwks, issuer, clientID, IDToken(raw))
		assert.Error(err)
	})
	t.Run("issued-in-the-future", func(t *testing.T) {
		assert := assert.New(t)
		now := time.Now()
		c := stdClaims(now.Add(30 * time.Minute))
		raw := TestSignJWT(t, priv, "test-kid-1", c, map[string]interface{}{})
		_, err := VerifyIDToken(ctx, jwks, issuer, clientID, IDToken(raw),
			WithNow(func() time.Time { return now }))
		assert.ErrorIs(err, ErrInvalidParameter)
	})
	t.Run("no-kid-falls-back-to-provider-keys", func(t *testing.T) {
		require := require.New(t)
		raw := TestSignJWT(t, priv, "", stdClaims(time.Now()), map[string]interface{}{})
		_, err := VerifyIDToken(ctx, jwks, issuer, clientID, IDToken(raw))
		require.NoError(err)
	})
	t.Run("unknown-kid", func(t *testing.T) {
		assert := assert.New(t)
		raw := TestSignJWT(t, priv, "rotated-away-kid", stdClaims(time.Now()), map[string]interface{}{})
		_, err := VerifyIDToken(ctx, jwks, issuer, clientID, IDToken(raw))
		assert.ErrorIs(err, ErrNotFound)
	})
	t.Run("wrong-key", func(t *testing.T) {
		assert := assert.New(t)
		_, otherPriv := TestGenerateKeys(t)
		raw := TestSignJWT(t, otherPriv, "test-kid-1", stdClaims(time.Now()), map[string]interface{}{})
		_, err := VerifyIDToken(ctx, jwks, issuer, clientID, IDToken(raw))
		assert.ErrorIs(err, ErrInvalidSignature)
	})
	t.Run("nonce", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		raw := TestSignJWT(t, priv, "test-kid-1", stdClaims(time.Now()), map[string]interface{}{
			"nonce": "n-1",
		})
		_, err := VerifyIDToken(ctx, jwks, issuer, clientID, IDToken(raw), WithNonce("n-1"))
		require.NoError(err)
		_, err = VerifyIDToken(ctx, jwks, issuer, clientID, IDToken(raw), WithNonce("n-2"))
		assert.ErrorIs(err, ErrInvalidNonce)

		noNonce := TestSignJWT(t, priv, "test-kid-1", stdClaims(time.Now()), map[string]interface{}{})
		_, err = VerifyIDToken(ctx, jwks, issuer, clientID, IDToken(noNonce), WithNonce("n-1"))
		assert.ErrorIs(err, ErrInvalidNonce)
	})
	t.Run("max-age", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		now := time.Now()
		raw := TestSignJWT(t, priv, "test-kid-1", stdClaims(now), map[string]interface{}{
			"auth_time": now.Add(-10 * time.Minute).Unix(),
		})
		_, err := VerifyIDToken(ctx, jwks, issuer, clientID, IDToken(raw), WithMaxAge(time.Hour))
		require.NoError(err)
		_, err = VerifyIDToken(ctx, jwks, issuer, clientID, IDToken(raw), WithMaxAge(time.Minute))
		assert.ErrorIs(err, ErrExpiredToken)

		noAuthTime := TestSignJWT(t, priv, "test-kid-1", stdClaims(now), map[string]interface{}{})
		_, err = VerifyIDToken(ctx, jwks, issuer, clientID, IDToken(noAuthTime), WithMaxAge(time.Hour))
		assert.ErrorIs(err, ErrMissingClaim)
	})
	t.Run("unsupported-alg", func(t *testing.T) {
		assert := assert.New(t)
		raw := TestSignJWT(t, priv, "test-kid-1", stdClaims(time.Now()), map[string]interface{}{})
		_, err := VerifyIDToken(ctx, jwks, issuer, clientID, IDToken(raw), WithSupportedAlgs("HS256"))
		assert.ErrorIs(err, ErrInvalidParameter)
	})
	t.Run("empty-token", func(t *testing.T) {
		assert := assert.New(t)
		_, err := VerifyIDToken(ctx, jwks, issuer, clientID, "")
		assert.ErrorIs(err, ErrInvalidParameter)
	})
	t.Run("empty-jwks", func(t *testing.T) {
		assert := assert.New(t)
		raw := TestSignJWT(t, priv, "test-kid-1", stdClaims(time.Now()), map[string]interface{}{})
		_, err := VerifyIDToken(ctx, nil, issuer, clientID, IDToken(raw))
		assert.ErrorIs(err, ErrNilParameter)
	})
}
