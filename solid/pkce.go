package solid

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// ChallengeMethod represents PKCE code challenge methods as defined by RFC
// 7636.
type ChallengeMethod string

// S256 is the only supported PKCE challenge method: SHA-256, then unpadded
// base64 URL encoding.
const S256 ChallengeMethod = "S256"

// verifierLen is the number of characters in a generated code verifier. RFC
// 7636 requires 43 to 128 characters.
const verifierLen = 64

// CodeVerifier represents an OAuth PKCE code verifier.
// See: https://tools.ietf.org/html/rfc7636#section-4.1
type CodeVerifier interface {
	// Verifier returns the code verifier's verifier
	Verifier() string

	// Challenge returns the code verifier's challenge
	Challenge() string

	// Method returns the code verifier's challenge method
	Method() ChallengeMethod

	// Copy returns a copy of the verifier
	Copy() CodeVerifier
}

// S256Verifier represents an OAuth PKCE code verifier that uses the S256
// challenge method.
type S256Verifier struct {
	verifier  string
	challenge string
	method    ChallengeMethod
}

// ensure S256Verifier implements the CodeVerifier interface
var _ CodeVerifier = (*S256Verifier)(nil)

// NewCodeVerifier creates a new S256Verifier with a random verifier and its
// S256 challenge.
func NewCodeVerifier() (*S256Verifier, error) {
	const op = "solid.NewCodeVerifier"
	data, err := randomString(verifierLen)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create verifier data: %w", op, err)
	}
	v := &S256Verifier{
		verifier: data,
		method:   S256,
	}
	if v.challenge, err = CreateCodeChallenge(S256, v); err != nil {
		return nil, fmt.Errorf("%s: unable to create code challenge: %w", op, err)
	}
	return v, nil
}

// RestoreCodeVerifier rebuilds a verifier from a persisted verifier string.
// The backend stores only the verifier between the authorization request and
// the callback; the challenge is recomputed.
func RestoreCodeVerifier(verifier string) (*S256Verifier, error) {
	const op = "solid.RestoreCodeVerifier"
	if verifier == "" {
		return nil, fmt.Errorf("%s: verifier is empty: %w", op, ErrInvalidParameter)
	}
	v := &S256Verifier{
		verifier: verifier,
		method:   S256,
	}
	var err error
	if v.challenge, err = CreateCodeChallenge(S256, v); err != nil {
		return nil, fmt.Errorf("%s: unable to create code challenge: %w", op, err)
	}
	return v, nil
}

func (v *S256Verifier) Verifier() string        { return v.verifier }  // Verifier implements CodeVerifier.Verifier()
func (v *S256Verifier) Challenge() string       { return v.challenge } // Challenge implements CodeVerifier.Challenge()
func (v *S256Verifier) Method() ChallengeMethod { return v.method }    // Method implements CodeVerifier.Method()

// Copy a verifier (satisfies the CodeVerifier interface)
func (v *S256Verifier) Copy() CodeVerifier {
	return &S256Verifier{
		verifier:  v.verifier,
		challenge: v.challenge,
		method:    v.method,
	}
}

// CreateCodeChallenge creates a code challenge from a verifier. Supported
// ChallengeMethods: S256
func CreateCodeChallenge(m ChallengeMethod, v CodeVerifier) (string, error) {
	const op = "solid.CreateCodeChallenge"
	if m != S256 {
		return "", fmt.Errorf("%s: %s is invalid: %w", op, m, ErrUnsupportedChallengeMethod)
	}
	h := sha256.New()
	_, _ = h.Write([]byte(v.Verifier())) // hash documents that Write will never return an error
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum), nil
}
