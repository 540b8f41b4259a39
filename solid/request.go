package solid

import (
	"fmt"

	"golang.org/x/oauth2"
)

// DefaultScopes are the scopes requested for every Solid authorization:
// openid is required by OIDC, webid identifies the user's WebID, and
// offline_access asks for a refresh token.
var DefaultScopes = []string{"openid", "webid", "offline_access"}

// AuthRequest holds the one-time values for a single authorization flow:
// the opaque state passed through the provider redirect and the PKCE
// verifier that must be presented at the token endpoint. The verifier and
// the issuer are persisted keyed by state until the callback arrives.
type AuthRequest struct {
	// State is a unique identifier and an opaque value used to maintain
	// state between the authorization request and the callback.
	State string

	// Verifier is the flow's PKCE code verifier.
	Verifier CodeVerifier

	// Issuer is the provider this flow was started against. Some providers
	// omit the iss parameter from their callback, so it rides along with
	// the state.
	Issuer string
}

// NewAuthRequest creates the state and PKCE verifier for one authorization
// flow against the given issuer.
func NewAuthRequest(issuer string) (*AuthRequest, error) {
	const op = "solid.NewAuthRequest"
	if issuer == "" {
		return nil, fmt.Errorf("%s: issuer is empty: %w", op, ErrInvalidParameter)
	}
	state, err := NewID(WithPrefix("st"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's state: %w", op, err)
	}
	v, err := NewCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a request's verifier: %w", op, err)
	}
	return &AuthRequest{
		State:    state,
		Verifier: v,
		Issuer:   issuer,
	}, nil
}

// AuthURL generates the URL the user's agent is redirected to so the
// provider can authenticate them. prompt=consent is always requested so the
// provider issues a refresh token even when the user has authorized this
// client before.
func AuthURL(cfg *ProviderConfig, redirectURL string, clientID string, r *AuthRequest) (string, error) {
	const op = "solid.AuthURL"
	if cfg == nil {
		return "", fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if r == nil {
		return "", fmt.Errorf("%s: auth request is nil: %w", op, ErrNilParameter)
	}
	if redirectURL == "" {
		return "", fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter)
	}
	if clientID == "" {
		return "", fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter)
	}

	oauth2Config := oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL: cfg.AuthorizationEndpoint,
		},
		Scopes: DefaultScopes,
	}
	authCodeOpts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", r.Verifier.Challenge()),
		oauth2.SetAuthURLParam("code_challenge_method", string(r.Verifier.Method())),
		oauth2.SetAuthURLParam("prompt", "consent"),
	}
	return oauth2Config.AuthCodeURL(r.State, authCodeOpts...), nil
}
