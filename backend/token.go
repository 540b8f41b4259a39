package backend

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/trompamusic/solidauth/solid"
)

// ConfigurationToken is a stored token set for one user (profile) at
// one provider (issuer), obtained with one client id. Data holds the
// raw token endpoint response so nothing the provider sent is lost.
type ConfigurationToken struct {
	Issuer   string          `json:"issuer" db:"issuer"`
	Profile  string          `json:"profile" db:"profile"`
	Sub      string          `json:"sub" db:"sub"`
	ClientID string          `json:"client_id" db:"client_id"`
	Added    time.Time       `json:"added" db:"added"`
	Data     json.RawMessage `json:"data" db:"data"`
}

// Token parses the stored token endpoint response.
func (t *ConfigurationToken) Token() (*solid.Token, error) {
	return solid.ParseToken(t.Data)
}

// HasExpired reports whether the access token's expires_in window,
// counted from when the token was stored, has passed. A token that
// cannot be parsed or carries no expiry is treated as expired.
func (t *ConfigurationToken) HasExpired() bool {
	tok, err := t.Token()
	if err != nil || tok.ExpiresIn <= 0 {
		return true
	}
	return tok.ExpiresAt(t.Added).Before(time.Now())
}

// UsesClientIDDocument reports whether the token was obtained with a
// client id document rather than a dynamically registered client.
// Client id documents are URLs; registered client ids are opaque.
func (t *ConfigurationToken) UsesClientIDDocument() bool {
	return strings.HasPrefix(t.ClientID, "http://") || strings.HasPrefix(t.ClientID, "https://")
}
