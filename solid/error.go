package solid

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter           = errors.New("invalid parameter")
	ErrNilParameter               = errors.New("nil parameter")
	ErrInvalidCACert              = errors.New("invalid CA certificate")
	ErrIDGeneratorFailed          = errors.New("id generation failed")
	ErrNotFound                   = errors.New("not found")
	ErrNoProvider                 = errors.New("no provider found")
	ErrUnsupportedChallengeMethod = errors.New("unsupported challenge method")
	ErrMissingIDToken             = errors.New("id_token is missing")
	ErrInvalidSignature           = errors.New("invalid signature")
	ErrInvalidIssuer              = errors.New("invalid issuer")
	ErrInvalidAudience            = errors.New("invalid audience")
	ErrInvalidNonce               = errors.New("invalid nonce")
	ErrExpiredToken               = errors.New("token is expired")
	ErrMissingClaim               = errors.New("required claim is missing")
	ErrRegistrationUnsupported    = errors.New("provider does not support dynamic client registration")
	ErrClientIDDocUnsupported     = errors.New("provider does not support client id document registration")
)

// TokenError is an OAuth 2.0 error response returned by a provider's token
// endpoint. See https://www.rfc-editor.org/rfc/rfc6749#section-5.2
type TokenError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
}

func (e *TokenError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}
