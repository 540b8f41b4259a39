// Package backend defines the persistence contract shared by the
// relying party service and CLI. A Backend stores the relying party's
// signing key, per-provider discovery documents, JWKS and client
// registrations, the tokens obtained for each user, and the short
// lived state created during an authorization flow.
//
// Three implementations are provided: an in-process store (NewMemory),
// a Redis store (redisbackend) and a Postgres store (dbbackend).
package backend

import (
	"context"

	"github.com/trompamusic/solidauth/solid"
	jose "gopkg.in/square/go-jose.v2"
)

// StateData is the per-flow record created when an authorization
// request is generated and consumed when the callback arrives. The
// issuer is kept so the callback can find the right provider again
// without re-running discovery against the user's profile.
type StateData struct {
	CodeVerifier string `json:"code_verifier" db:"code_verifier"`
	Issuer       string `json:"issuer" db:"issuer"`
}

// Backend is the storage interface used by the auth service. Get
// methods return a nil value (and a nil error) when no record exists;
// an error is reserved for the store itself failing.
type Backend interface {
	// Ready reports whether the store can serve requests, for the
	// database backend this includes the schema having been created.
	Ready(ctx context.Context) (bool, error)

	// GetRelyingPartyKeys returns the serialized private JWK for this
	// relying party, or "" if no key has been generated yet.
	GetRelyingPartyKeys(ctx context.Context) (string, error)
	SaveRelyingPartyKeys(ctx context.Context, keys string) error

	GetProviderConfiguration(ctx context.Context, provider string) (*solid.ProviderConfig, error)
	SaveProviderConfiguration(ctx context.Context, provider string, cfg *solid.ProviderConfig) error

	GetProviderJWKS(ctx context.Context, provider string) (*jose.JSONWebKeySet, error)
	SaveProviderJWKS(ctx context.Context, provider string, jwks *jose.JSONWebKeySet) error

	GetClientRegistration(ctx context.Context, provider string) (*solid.ClientRegistration, error)
	SaveClientRegistration(ctx context.Context, provider string, reg *solid.ClientRegistration) error

	// SaveConfigurationToken stores the token obtained for a user at a
	// provider, replacing any existing token for the same issuer,
	// profile and client id.
	SaveConfigurationToken(ctx context.Context, token *ConfigurationToken) error
	// UpdateConfigurationToken replaces the token data for an existing
	// record and resets its Added timestamp. It is a no-op if no record
	// matches.
	UpdateConfigurationToken(ctx context.Context, issuer, profile, clientID string, token *solid.Token) error
	// GetConfigurationToken returns the token for a user at a provider.
	// A user can hold up to two tokens per issuer, one obtained with a
	// dynamically registered client and one with a client id document;
	// useClientIDDocument selects between them.
	GetConfigurationToken(ctx context.Context, issuer, profile string, useClientIDDocument bool) (*ConfigurationToken, error)
	ListConfigurationTokens(ctx context.Context) ([]*ConfigurationToken, error)

	SetStateData(ctx context.Context, state, codeVerifier, issuer string) error
	GetStateData(ctx context.Context, state string) (*StateData, error)
	DeleteStateData(ctx context.Context, state string) error
}
