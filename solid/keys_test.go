package solid

import (
	"crypto/ecdsa"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	jose "gopkg.in/square/go-jose.v2"
)

func TestGenerateRelyingPartyKey(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	data, err := GenerateRelyingPartyKey()
	require.NoError(err)

	var raw map[string]interface{}
	require.NoError(json.Unmarshal([]byte(data), &raw))
	assert.Equal("EC", raw["kty"])
	assert.Equal("P-256", raw["crv"])
	assert.Equal("ES256", raw["alg"])
	assert.NotEmpty(raw["kid"])
	assert.NotEmpty(raw["d"], "expected a private key export")
}

func TestLoadRelyingPartyKey(t *testing.T) {
	t.Parallel()
	t.Run("roundtrip", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		data, err := GenerateRelyingPartyKey()
		require.NoError(err)

		key, err := LoadRelyingPartyKey(data)
		require.NoError(err)
		assert.False(key.IsPublic())
		_, ok := key.Key.(*ecdsa.PrivateKey)
		assert.True(ok)
	})
	t.Run("empty", func(t *testing.T) {
		assert := assert.New(t)
		_, err := LoadRelyingPartyKey("")
		assert.ErrorIs(err, ErrInvalidParameter)
	})
	t.Run("not-json", func(t *testing.T) {
		assert := assert.New(t)
		_, err := LoadRelyingPartyKey("not a key")
		assert.Error(err)
	})
	t.Run("public-key-rejected", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		data, err := GenerateRelyingPartyKey()
		require.NoError(err)
		key, err := LoadRelyingPartyKey(data)
		require.NoError(err)

		pub := key.Public()
		pubData, err := (&pub).MarshalJSON()
		require.NoError(err)

		_, err = LoadRelyingPartyKey(string(pubData))
		assert.ErrorIs(err, ErrInvalidParameter)
	})
}

func TestLoadRelyingPartyKey_usableForSigning(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	data, err := GenerateRelyingPartyKey()
	require.NoError(err)
	key, err := LoadRelyingPartyKey(data)
	require.NoError(err)

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES256, Key: key.Key}, nil)
	require.NoError(err)
	jws, err := signer.Sign([]byte("payload"))
	require.NoError(err)

	pub := key.Public()
	payload, err := jws.Verify(pub)
	require.NoError(err)
	require.Equal("payload", string(payload))
}
