package solid

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"

	jose "gopkg.in/square/go-jose.v2"
)

// GenerateRelyingPartyKey generates the EC P-256 keypair used by the relying
// party to sign DPoP proofs. It returns the JSON export of the private key
// as a JWK, which is the form the backend persists.
//
// One keypair exists per deployment; it is generated on first start and
// reused for every provider.
func GenerateRelyingPartyKey() (string, error) {
	const op = "solid.GenerateRelyingPartyKey"
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate key: %w", op, err)
	}
	kid, err := NewID()
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate key id: %w", op, err)
	}
	jwk := jose.JSONWebKey{
		Key:       priv,
		KeyID:     kid,
		Algorithm: string(ES256),
		Use:       "sig",
	}
	data, err := jwk.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("%s: unable to marshal key: %w", op, err)
	}
	return string(data), nil
}

// LoadRelyingPartyKey parses a JWK JSON export previously produced by
// GenerateRelyingPartyKey.
func LoadRelyingPartyKey(data string) (*jose.JSONWebKey, error) {
	const op = "solid.LoadRelyingPartyKey"
	if data == "" {
		return nil, fmt.Errorf("%s: key data is empty: %w", op, ErrInvalidParameter)
	}
	var jwk jose.JSONWebKey
	if err := json.Unmarshal([]byte(data), &jwk); err != nil {
		return nil, fmt.Errorf("%s: unable to parse key: %w", op, err)
	}
	if !jwk.Valid() {
		return nil, fmt.Errorf("%s: key is invalid: %w", op, ErrInvalidParameter)
	}
	if jwk.IsPublic() {
		return nil, fmt.Errorf("%s: key is not a private key: %w", op, ErrInvalidParameter)
	}
	return &jwk, nil
}
