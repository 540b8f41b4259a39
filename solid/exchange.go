package solid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/trompamusic/solidauth/solid/dpop"
	jose "gopkg.in/square/go-jose.v2"
)

// ExchangeParams are the inputs for exchanging an authorization code.
type ExchangeParams struct {
	// Code is the authorization code from the provider's callback.
	Code string

	// Verifier is the PKCE verifier created when the flow started.
	Verifier CodeVerifier

	// ClientID identifies this relying party: either the client_id from a
	// dynamic registration or a client id document URL.
	ClientID string

	// ClientSecret enables HTTP basic client authentication when set. A
	// client identified by a client id document has no secret.
	ClientSecret ClientSecret

	// RedirectURL must match the redirect_uri sent on the authorization
	// request.
	RedirectURL string
}

// Exchange swaps an authorization code for tokens at the provider's token
// endpoint. The request is DPoP-bound with the relying party's key, so the
// access token that comes back can only be used together with proofs from
// the same key. Redirect responses are not followed. When the provider
// rejects the exchange, the returned error wraps a *TokenError with the
// provider's OAuth error body.
func Exchange(ctx context.Context, client *http.Client, key *jose.JSONWebKey, cfg *ProviderConfig, p ExchangeParams) (*Token, error) {
	const op = "solid.Exchange"
	if cfg == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if p.Code == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}
	if p.Verifier == nil {
		return nil, fmt.Errorf("%s: code verifier is nil: %w", op, ErrNilParameter)
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {p.ClientID},
		"redirect_uri":  {p.RedirectURL},
		"code":          {p.Code},
		"code_verifier": {p.Verifier.Verifier()},
	}
	tk, err := tokenRequest(ctx, client, key, cfg.TokenEndpoint, form, p.ClientID, p.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %w", op, err)
	}
	if tk.IDToken == "" {
		return nil, fmt.Errorf("%s: id_token is missing from auth code exchange: %w", op, ErrMissingIDToken)
	}
	return tk, nil
}

// RefreshParams are the inputs for a refresh_token grant.
type RefreshParams struct {
	RefreshToken RefreshToken
	ClientID     string
	ClientSecret ClientSecret
}

// RefreshGrant requests new tokens using a refresh token. The request is
// DPoP-bound like the original exchange. Providers are allowed to omit the
// refresh_token from their response; callers should carry the previous one
// forward (see Token.WithRefreshToken).
func RefreshGrant(ctx context.Context, client *http.Client, key *jose.JSONWebKey, cfg *ProviderConfig, p RefreshParams) (*Token, error) {
	const op = "solid.RefreshGrant"
	if cfg == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if p.RefreshToken == "" {
		return nil, fmt.Errorf("%s: refresh token is empty: %w", op, ErrInvalidParameter)
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {string(p.RefreshToken)},
		"client_id":     {p.ClientID},
	}
	tk, err := tokenRequest(ctx, client, key, cfg.TokenEndpoint, form, p.ClientID, p.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to refresh token with provider: %w", op, err)
	}
	return tk, nil
}

// tokenRequest performs a DPoP-bound form POST against a token endpoint.
func tokenRequest(ctx context.Context, client *http.Client, key *jose.JSONWebKey, endpoint string, form url.Values, clientID string, secret ClientSecret) (*Token, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is nil: %w", ErrNilParameter)
	}
	if key == nil {
		return nil, fmt.Errorf("relying party key is nil: %w", ErrNilParameter)
	}

	proof, err := dpop.Proof(key, endpoint, http.MethodPost)
	if err != nil {
		return nil, fmt.Errorf("unable to create DPoP proof: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("DPoP", proof)
	if secret != "" {
		// client_secret_basic, one of the methods providers report in
		// token_endpoint_auth_methods_supported
		req.SetBasicAuth(clientID, string(secret))
	}

	// the token endpoint must answer directly; never follow a redirect away
	// from it
	noRedirects := *client
	noRedirects.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := noRedirects.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("unable to read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var oauthErr TokenError
		if jsonErr := json.Unmarshal(body, &oauthErr); jsonErr == nil && oauthErr.Code != "" {
			return nil, fmt.Errorf("token endpoint returned %d: %w", resp.StatusCode, &oauthErr)
		}
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, body)
	}
	return ParseToken(body)
}
