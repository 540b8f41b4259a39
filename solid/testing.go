package solid

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"
	jose "gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestGenerateKeys will generate a test ECDSA P-256 pub/priv key pair,
// PEM-encoded.
func TestGenerateKeys(t *testing.T) (pub, priv string) {
	t.Helper()
	require := require.New(t)
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)

	{
		derBytes, err := x509.MarshalECPrivateKey(privateKey)
		require.NoError(err)

		pemBlock := &pem.Block{
			Type:  "EC PRIVATE KEY",
			Bytes: derBytes,
		}
		priv = string(pem.EncodeToMemory(pemBlock))
	}
	{
		derBytes, err := x509.MarshalPKIXPublicKey(privateKey.Public())
		require.NoError(err)

		pemBlock := &pem.Block{
			Type:  "PUBLIC KEY",
			Bytes: derBytes,
		}
		pub = string(pem.EncodeToMemory(pemBlock))
	}

	return pub, priv
}

// TestSignJWT will bundle the provided claims into a test signed JWT. The
// provided key must be a PEM-encoded ECDSA private key. When kid is not
// empty it is carried in the token header, matching how providers key their
// JWKS entries.
func TestSignJWT(t *testing.T, ecdsaPrivKeyPEM string, kid string, claims jwt.Claims, privateClaims interface{}) string {
	t.Helper()
	require := require.New(t)

	block, _ := pem.Decode([]byte(ecdsaPrivKeyPEM))
	require.NotNil(block)
	key, err := x509.ParseECPrivateKey(block.Bytes)
	require.NoError(err)

	signingKey := jose.SigningKey{Algorithm: jose.ES256, Key: key}
	if kid != "" {
		signingKey.Key = &jose.JSONWebKey{Key: key, KeyID: kid}
	}
	sig, err := jose.NewSigner(
		signingKey,
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(err)

	raw, err := jwt.Signed(sig).
		Claims(claims).
		Claims(privateClaims).
		CompactSerialize()
	require.NoError(err)

	return raw
}

// TestJWKS converts a PEM-encoded public key into a JWKS suitable for a
// verification endpoint response, keyed with the given kid.
func TestJWKS(t *testing.T, pubKeyPEM string, kid string) *jose.JSONWebKeySet {
	t.Helper()
	require := require.New(t)

	block, _ := pem.Decode([]byte(pubKeyPEM))
	require.NotNil(block)

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(err)

	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       pub,
				KeyID:     kid,
				Algorithm: string(ES256),
				Use:       "sig",
			},
		},
	}
}
