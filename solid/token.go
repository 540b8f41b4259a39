package solid

import (
	"encoding/json"
	"fmt"
	"time"
)

// AccessToken is an oauth access_token.
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token.
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token.
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token.
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// RefreshToken is an oauth refresh_token.
type RefreshToken string

// RedactedRefreshToken is the redacted string or json for an oauth refresh_token.
const RedactedRefreshToken = "[REDACTED: refresh_token]"

// String will redact the token.
func (t RefreshToken) String() string {
	return RedactedRefreshToken
}

// MarshalJSON will redact the token.
func (t RefreshToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedRefreshToken)
}

// IDToken is an oidc id_token.
type IDToken string

// RedactedIDToken is the redacted string or json for an oidc id_token.
const RedactedIDToken = "[REDACTED: id_token]"

// String will redact the token.
func (t IDToken) String() string {
	return RedactedIDToken
}

// MarshalJSON will redact the token.
func (t IDToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIDToken)
}

// Token is a provider's response from its token endpoint: an oidc id_token
// and an oauth access_token, plus a refresh_token when offline_access was
// granted. The raw response is retained so backends can persist tokens
// without losing provider-specific fields; the redacted types keep the
// secrets out of logs and JSON output.
type Token struct {
	AccessToken  AccessToken
	RefreshToken RefreshToken
	IDToken      IDToken
	TokenType    string
	ExpiresIn    int64
	Scope        string

	raw json.RawMessage
}

// ParseToken decodes a token endpoint response (or a stored copy of one).
func ParseToken(data []byte) (*Token, error) {
	const op = "solid.ParseToken"
	var fields struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		IDToken      string `json:"id_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int64  `json:"expires_in"`
		Scope        string `json:"scope"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%s: unable to parse token response: %w", op, err)
	}
	if fields.AccessToken == "" {
		return nil, fmt.Errorf("%s: token response is missing access_token: %w", op, ErrInvalidParameter)
	}
	return &Token{
		AccessToken:  AccessToken(fields.AccessToken),
		RefreshToken: RefreshToken(fields.RefreshToken),
		IDToken:      IDToken(fields.IDToken),
		TokenType:    fields.TokenType,
		ExpiresIn:    fields.ExpiresIn,
		Scope:        fields.Scope,
		raw:          append(json.RawMessage(nil), data...),
	}, nil
}

// Raw returns the provider's token response exactly as received.
func (t *Token) Raw() []byte {
	return append([]byte(nil), t.raw...)
}

// WithRefreshToken returns a copy of the token with the given refresh_token
// spliced into both the fields and the raw document. Providers may omit the
// refresh_token from a refresh grant's response; the previous one stays valid
// and must be carried forward when the new response is persisted.
func (t *Token) WithRefreshToken(refresh RefreshToken) (*Token, error) {
	const op = "solid.Token.WithRefreshToken"
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(t.raw, &doc); err != nil {
		return nil, fmt.Errorf("%s: unable to parse raw token: %w", op, err)
	}
	encoded, err := json.Marshal(string(refresh))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	doc["refresh_token"] = encoded
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ParseToken(raw)
}

// ExpiresAt returns the token's expiry given the time it was obtained.
func (t *Token) ExpiresAt(obtained time.Time) time.Time {
	return obtained.Add(time.Duration(t.ExpiresIn) * time.Second)
}
