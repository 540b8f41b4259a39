package solid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ClientSecret is an oauth client secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client
// secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret.
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// RegistrationRequest is the client metadata sent to a provider's dynamic
// registration endpoint.
// See https://openid.net/specs/openid-connect-registration-1_0.html
type RegistrationRequest struct {
	RedirectURIs  []string `json:"redirect_uris"`
	ClientName    string   `json:"client_name,omitempty"`
	GrantTypes    []string `json:"grant_types,omitempty"`
	ResponseTypes []string `json:"response_types,omitempty"`
	Scope         string   `json:"scope,omitempty"`
}

// DefaultRegistrationRequest builds the registration metadata this relying
// party uses everywhere: code flow with refresh tokens and the Solid scopes.
func DefaultRegistrationRequest(clientName string, redirectURIs ...string) RegistrationRequest {
	return RegistrationRequest{
		RedirectURIs:  redirectURIs,
		ClientName:    clientName,
		GrantTypes:    []string{"authorization_code", "refresh_token"},
		ResponseTypes: []string{"code"},
		Scope:         "openid webid offline_access",
	}
}

// ClientRegistration is a provider's response to dynamic client
// registration. The raw response is retained so a backend can persist the
// registration without losing provider-specific fields; use Raw() when
// storing and ParseClientRegistration when loading.
type ClientRegistration struct {
	ClientID     string       `json:"client_id"`
	ClientSecret ClientSecret `json:"client_secret,omitempty"`
	RedirectURIs []string     `json:"redirect_uris,omitempty"`

	raw json.RawMessage
}

// Raw returns the provider's registration response exactly as received.
func (r *ClientRegistration) Raw() []byte {
	return append([]byte(nil), r.raw...)
}

// ParseClientRegistration decodes a stored registration response.
func ParseClientRegistration(data []byte) (*ClientRegistration, error) {
	const op = "solid.ParseClientRegistration"
	var reg ClientRegistration
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("%s: unable to parse client registration: %w", op, err)
	}
	if reg.ClientID == "" {
		return nil, fmt.Errorf("%s: client registration is missing client_id: %w", op, ErrInvalidParameter)
	}
	reg.raw = append(json.RawMessage(nil), data...)
	return &reg, nil
}

// UnmarshalJSON keeps the raw registration document alongside the decoded
// fields. ClientSecret is decoded from the wire even though it redacts
// itself when marshaled.
func (r *ClientRegistration) UnmarshalJSON(data []byte) error {
	var fields struct {
		ClientID     string   `json:"client_id"`
		ClientSecret string   `json:"client_secret"`
		RedirectURIs []string `json:"redirect_uris"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	r.ClientID = fields.ClientID
	r.ClientSecret = ClientSecret(fields.ClientSecret)
	r.RedirectURIs = fields.RedirectURIs
	r.raw = append(json.RawMessage(nil), data...)
	return nil
}

// Register performs OIDC dynamic client registration against the provider.
func Register(ctx context.Context, client *http.Client, cfg *ProviderConfig, request RegistrationRequest) (*ClientRegistration, error) {
	const op = "solid.Register"
	if cfg == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if !cfg.CanDynamicRegister() {
		return nil, fmt.Errorf("%s: cannot find registration_endpoint for %s: %w", op, cfg.Issuer, ErrRegistrationUnsupported)
	}
	if len(request.RedirectURIs) == 0 {
		return nil, fmt.Errorf("%s: registration request has no redirect URIs: %w", op, ErrInvalidParameter)
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to encode registration request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.RegistrationEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: registration request failed: %w", op, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read registration response: %w", op, err)
	}
	// 201 per RFC 7591, but some servers return 200
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: registration failed with status %d: %s", op, resp.StatusCode, respBody)
	}
	reg, err := ParseClientRegistration(respBody)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return reg, nil
}
