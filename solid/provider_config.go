package solid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	strutil "github.com/trompamusic/solidauth/solid/internal/strutils"
	jose "gopkg.in/square/go-jose.v2"
)

// ProviderConfig is an OpenID Provider's discovery document. The full
// document, including any fields not modelled here, round-trips through
// JSON marshaling so it can be persisted by a backend without loss.
//
// See https://openid.net/specs/openid-connect-discovery-1_0.html
type ProviderConfig struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	IDTokenSigningAlgsSupported       []string `json:"id_token_signing_alg_values_supported,omitempty"`

	raw json.RawMessage
}

// UnmarshalJSON keeps the raw document alongside the decoded fields.
func (c *ProviderConfig) UnmarshalJSON(data []byte) error {
	type alias ProviderConfig
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = ProviderConfig(a)
	c.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON writes back the raw document when one was decoded, so fields
// this package doesn't model survive a persist/load cycle.
func (c ProviderConfig) MarshalJSON() ([]byte, error) {
	if len(c.raw) > 0 {
		return c.raw, nil
	}
	type alias ProviderConfig
	return json.Marshal(alias(c))
}

// CanDynamicRegister reports whether the provider advertises an OIDC dynamic
// client registration endpoint.
func (c *ProviderConfig) CanDynamicRegister() bool {
	return c.RegistrationEndpoint != ""
}

// SupportsClientIDDocument reports whether the provider can accept a
// dereferenceable client id document URL as the client_id.
//
// Solid-OIDC requires conforming providers to advertise the "webid" scope in
// scopes_supported. Testing against deployed servers (ESS, trinpod, NSS)
// shows this is the reliable signal: servers that accept client id documents
// advertise the scope, and token_endpoint_auth_methods_supported is not
// trustworthy either way.
func (c *ProviderConfig) SupportsClientIDDocument() bool {
	return strutil.StrListContains(c.ScopesSupported, "webid")
}

// WellKnownURL returns the provider configuration request URL for an issuer.
// An issuer may contain a path component; the discovery location is appended
// to it.
func WellKnownURL(issuer string) string {
	const path = ".well-known/openid-configuration"
	if strings.HasSuffix(issuer, "/") {
		return issuer + path
	}
	return issuer + "/" + path
}

// FetchProviderConfig retrieves an issuer's discovery document.
func FetchProviderConfig(ctx context.Context, client *http.Client, issuer string) (*ProviderConfig, error) {
	const op = "solid.FetchProviderConfig"
	if issuer == "" {
		return nil, fmt.Errorf("%s: issuer is empty: %w", op, ErrInvalidParameter)
	}
	if client == nil {
		return nil, fmt.Errorf("%s: http client is nil: %w", op, ErrNilParameter)
	}
	body, err := getJSON(ctx, client, WellKnownURL(issuer))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to get provider configuration for %s: %w", op, issuer, err)
	}
	var cfg ProviderConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("%s: unable to parse provider configuration for %s: %w", op, issuer, err)
	}
	if cfg.Issuer == "" || cfg.AuthorizationEndpoint == "" || cfg.TokenEndpoint == "" {
		return nil, fmt.Errorf("%s: provider configuration for %s is incomplete: %w", op, issuer, ErrInvalidParameter)
	}
	return &cfg, nil
}

// FetchProviderJWKS downloads the provider's JSON Web Key Set from the
// jwks_uri in its discovery document.
func FetchProviderJWKS(ctx context.Context, client *http.Client, cfg *ProviderConfig) (*jose.JSONWebKeySet, error) {
	const op = "solid.FetchProviderJWKS"
	if cfg == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if cfg.JWKSURI == "" {
		return nil, fmt.Errorf("%s: cannot find jwks_uri: %w", op, ErrInvalidParameter)
	}
	body, err := getJSON(ctx, client, cfg.JWKSURI)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to get provider JWKS: %w", op, err)
	}
	var jwks jose.JSONWebKeySet
	if err := json.Unmarshal(body, &jwks); err != nil {
		return nil, fmt.Errorf("%s: unable to parse provider JWKS: %w", op, err)
	}
	return &jwks, nil
}

// getJSON performs a GET and returns the body for 2xx responses.
func getJSON(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	return body, nil
}
