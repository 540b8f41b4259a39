// Package dpop creates DPoP (Demonstrating Proof of Possession) proofs as
// required by Solid-OIDC for token requests and for requests made against a
// pod with a DPoP-bound access token.
//
// A proof is a JWT of type dpop+jwt, signed with the relying party's private
// key and carrying the public key in its header, that binds one HTTP method
// and URI to the key. See https://www.rfc-editor.org/rfc/rfc9449
package dpop

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-uuid"
	jose "gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

var (
	ErrNilKey     = errors.New("signing key is nil")
	ErrPublicKey  = errors.New("signing key is not a private key")
	ErrInvalidURI = errors.New("invalid proof uri")
)

// Proof creates a DPoP proof token for one request: htu is the request URI
// and htm its method. The key must be the relying party's private JWK.
func Proof(key *jose.JSONWebKey, htu string, htm string) (string, error) {
	const op = "dpop.Proof"
	if key == nil {
		return "", fmt.Errorf("%s: %w", op, ErrNilKey)
	}
	if key.IsPublic() {
		return "", fmt.Errorf("%s: %w", op, ErrPublicKey)
	}
	if htu == "" || htm == "" {
		return "", fmt.Errorf("%s: uri and method are required: %w", op, ErrInvalidURI)
	}

	jti, err := randomJTI()
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate jti: %w", op, err)
	}

	public := key.Public()
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.ES256, Key: key.Key},
		(&jose.SignerOptions{
			ExtraHeaders: map[jose.HeaderKey]interface{}{
				jose.HeaderType: "dpop+jwt",
				"jwk":           &public,
			},
		}),
	)
	if err != nil {
		return "", fmt.Errorf("%s: unable to create signer: %w", op, err)
	}

	claims := map[string]interface{}{
		"jti": jti,
		"htm": htm,
		"htu": htu,
		"iat": time.Now().Unix(),
	}
	proof, err := jwt.Signed(signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("%s: unable to sign proof: %w", op, err)
	}
	return proof, nil
}

func randomJTI() (string, error) {
	raw, err := uuid.GenerateRandomBytes(16)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
