package solid

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jose "gopkg.in/square/go-jose.v2"
)

// iatSkew is the tolerance allowed when checking that an id_token was not
// issued in the future.
const iatSkew = 5 * time.Minute

// IDTokenClaims are the verified claims of an id_token that this relying
// party cares about, plus the complete claim set for callers that need more.
type IDTokenClaims struct {
	Issuer   string
	Subject  string
	Audience []string
	Expiry   time.Time
	IssuedAt time.Time
	AuthTime time.Time
	Nonce    string

	// webid claim, when the provider supplies one
	webID string

	allClaims map[string]interface{}
}

// WebID returns the authenticated user's WebID. The claim should be in
// 'webid', but that doesn't always exist (it used to be 'sub'). Node Solid
// Server still uses sub, and other services put a different value in the
// webid field, so fall back to the subject.
func (c *IDTokenClaims) WebID() string {
	if c.webID != "" {
		return c.webID
	}
	return c.Subject
}

// Claims decodes the full verified claim set into the given value.
func (c *IDTokenClaims) Claims(v interface{}) error {
	const op = "solid.IDTokenClaims.Claims"
	data, err := json.Marshal(c.allClaims)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// VerifyIDToken verifies an id_token against a provider's stored JWKS and
// validates its claims per OpenID Connect Core 1.0: the token must be signed
// by one of the provider's keys (selected by the token's kid, falling back
// to the provider's first key when the token has no kid), iss must equal the
// issuer, aud must contain the client id, exp must be in the future and iat
// must not be further in the future than a small clock skew.
//
// Supported options: WithSupportedAlgs, WithNonce, WithMaxAge
func VerifyIDToken(ctx context.Context, jwks *jose.JSONWebKeySet, issuer string, clientID string, t IDToken, opt ...Option) (*IDTokenClaims, error) {
	const op = "solid.VerifyIDToken"
	if t == "" {
		return nil, fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if jwks == nil || len(jwks.Keys) == 0 {
		return nil, fmt.Errorf("%s: provider JWKS is empty: %w", op, ErrNilParameter)
	}
	opts := getVerifyOpts(opt...)

	algs := make([]string, 0, len(opts.withSupportedAlgs))
	for _, a := range opts.withSupportedAlgs {
		if !supportedAlgorithms[a] {
			return nil, fmt.Errorf("%s: unsupported algorithm %s: %w", op, a, ErrInvalidParameter)
		}
		algs = append(algs, string(a))
	}

	oidcConfig := &oidc.Config{
		ClientID:             clientID,
		SupportedSigningAlgs: algs,
	}
	verifier := oidc.NewVerifier(issuer, &staticKeySet{keys: jwks}, oidcConfig)

	idToken, err := verifier.Verify(ctx, string(t))
	if err != nil {
		return nil, fmt.Errorf("%s: id_token failed verification: %w", op, err)
	}

	var all map[string]interface{}
	if err := idToken.Claims(&all); err != nil {
		return nil, fmt.Errorf("%s: unable to decode id_token claims: %w", op, err)
	}

	claims := &IDTokenClaims{
		Issuer:    idToken.Issuer,
		Subject:   idToken.Subject,
		Audience:  idToken.Audience,
		Expiry:    idToken.Expiry,
		IssuedAt:  idToken.IssuedAt,
		allClaims: all,
	}
	if webid, ok := all["webid"].(string); ok {
		claims.webID = webid
	}
	if nonce, ok := all["nonce"].(string); ok {
		claims.Nonce = nonce
	}
	if authTime, ok := all["auth_time"].(float64); ok {
		claims.AuthTime = time.Unix(int64(authTime), 0)
	}

	now := opts.withNowFunc()
	if claims.IssuedAt.After(now.Add(iatSkew)) {
		return nil, fmt.Errorf("%s: id_token issued in the future (iat %s): %w", op, claims.IssuedAt, ErrInvalidParameter)
	}
	if opts.withNonce != "" {
		switch {
		case claims.Nonce == "":
			return nil, fmt.Errorf("%s: nonce expected but missing from id_token: %w", op, ErrInvalidNonce)
		case claims.Nonce != opts.withNonce:
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidNonce)
		}
	}
	if opts.withMaxAge > 0 {
		if claims.AuthTime.IsZero() {
			return nil, fmt.Errorf("%s: max_age specified but auth_time claim missing: %w", op, ErrMissingClaim)
		}
		if claims.AuthTime.Add(opts.withMaxAge).Before(now) {
			return nil, fmt.Errorf("%s: id_token is too old (auth_time %s): %w", op, claims.AuthTime, ErrExpiredToken)
		}
	}
	return claims, nil
}

// staticKeySet implements the go-oidc KeySet interface over a JWKS that has
// already been fetched and persisted, so verification makes no network
// requests.
type staticKeySet struct {
	keys *jose.JSONWebKeySet
}

// VerifySignature parses the JWS, selects the provider key matching the
// token's kid (falling back to the first key when the token carries none)
// and verifies the signature, returning the payload.
func (s *staticKeySet) VerifySignature(_ context.Context, token string) ([]byte, error) {
	jws, err := jose.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("unable to parse signed token: %w", err)
	}
	if len(jws.Signatures) == 0 {
		return nil, fmt.Errorf("token has no signatures: %w", ErrInvalidSignature)
	}

	kid := jws.Signatures[0].Header.KeyID
	candidates := s.keys.Keys
	if kid != "" {
		candidates = s.keys.Key(kid)
		if len(candidates) == 0 {
			return nil, fmt.Errorf("no key found with kid %q: %w", kid, ErrNotFound)
		}
	}
	var lastErr error
	for _, key := range candidates {
		payload, err := jws.Verify(key)
		if err == nil {
			return payload, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, lastErr)
}

// verifyOptions is the set of available options for VerifyIDToken
type verifyOptions struct {
	withSupportedAlgs []Alg
	withNonce         string
	withMaxAge        time.Duration
	withNowFunc       func() time.Time
}

func verifyDefaults() verifyOptions {
	return verifyOptions{
		withSupportedAlgs: DefaultSupportedAlgs(),
		withNowFunc:       time.Now,
	}
}

func getVerifyOpts(opt ...Option) verifyOptions {
	opts := verifyDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithSupportedAlgs provides the signing algorithms accepted during
// verification.
func WithSupportedAlgs(algs ...Alg) Option {
	return func(o interface{}) {
		if o, ok := o.(*verifyOptions); ok {
			o.withSupportedAlgs = algs
		}
	}
}

// WithNonce requires the id_token to carry the given nonce.
func WithNonce(nonce string) Option {
	return func(o interface{}) {
		if o, ok := o.(*verifyOptions); ok {
			o.withNonce = nonce
		}
	}
}

// WithMaxAge requires the id_token's auth_time to be within the given
// duration of now.
func WithMaxAge(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*verifyOptions); ok {
			o.withMaxAge = d
		}
	}
}

// WithNow provides the time source used during verification (for tests).
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*verifyOptions); ok {
			o.withNowFunc = now
		}
	}
}
