// Package redisbackend stores relying party state in Redis. Every key
// is namespaced under a "solidauth-" prefix; provider documents are
// stored as their raw JSON and tokens are tracked in a set so they can
// be listed without scanning the keyspace.
package redisbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trompamusic/solidauth/backend"
	"github.com/trompamusic/solidauth/solid"
	jose "gopkg.in/square/go-jose.v2"
)

const keyPrefix = "solidauth-"

const (
	// Private key for this relying party.
	keyRelyingParty = "local-key"
	// Discovery document for a provider, suffixed with the issuer.
	keyProviderConfiguration = "rs-configuration-%s"
	// Public keys for a provider, suffixed with the issuer.
	keyProviderJWKS = "rs-jwks-%s"
	// Our client registration at a provider, suffixed with the issuer.
	keyClientRegistration = "rs-registration-%s"
	// A user's token at a provider, suffixed issuer-profile-clientid.
	keyConfigurationToken = "rs-token-%s-%s-%s"
	// Set of all configuration token keys.
	keyTokenList = "rs-tokens-list"
	// In-flight authorization state, suffixed with the state value.
	keyState = "state-%s"
)

// Backend implements backend.Backend on top of a Redis client.
type Backend struct {
	client *redis.Client
}

// New creates a Backend around an existing Redis client.
func New(client *redis.Client) *Backend {
	return &Backend{client: client}
}

// NewFromURL creates a Backend by parsing a redis:// URL.
func NewFromURL(rawURL string) (*Backend, error) {
	const op = "redisbackend.NewFromURL"
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid redis url: %w", op, err)
	}
	return New(redis.NewClient(opts)), nil
}

// Ready pings the server.
func (b *Backend) Ready(ctx context.Context) (bool, error) {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (b *Backend) getString(ctx context.Context, key string) (string, error) {
	value, err := b.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (b *Backend) setString(ctx context.Context, key, value string) error {
	return b.client.Set(ctx, keyPrefix+key, value, 0).Err()
}

func (b *Backend) GetRelyingPartyKeys(ctx context.Context) (string, error) {
	const op = "redisbackend.(Backend).GetRelyingPartyKeys"
	keys, err := b.getString(ctx, keyRelyingParty)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return keys, nil
}

func (b *Backend) SaveRelyingPartyKeys(ctx context.Context, keys string) error {
	const op = "redisbackend.(Backend).SaveRelyingPartyKeys"
	if err := b.setString(ctx, keyRelyingParty, keys); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *Backend) GetProviderConfiguration(ctx context.Context, provider string) (*solid.ProviderConfig, error) {
	const op = "redisbackend.(Backend).GetProviderConfiguration"
	data, err := b.getString(ctx, fmt.Sprintf(keyProviderConfiguration, provider))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if data == "" {
		return nil, nil
	}
	var cfg solid.ProviderConfig
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, fmt.Errorf("%s: unable to decode stored configuration: %w", op, err)
	}
	return &cfg, nil
}

func (b *Backend) SaveProviderConfiguration(ctx context.Context, provider string, cfg *solid.ProviderConfig) error {
	const op = "redisbackend.(Backend).SaveProviderConfiguration"
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("%s: unable to encode configuration: %w", op, err)
	}
	if err := b.setString(ctx, fmt.Sprintf(keyProviderConfiguration, provider), string(data)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *Backend) GetProviderJWKS(ctx context.Context, provider string) (*jose.JSONWebKeySet, error) {
	const op = "redisbackend.(Backend).GetProviderJWKS"
	data, err := b.getString(ctx, fmt.Sprintf(keyProviderJWKS, provider))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if data == "" {
		return nil, nil
	}
	var keys jose.JSONWebKeySet
	if err := json.Unmarshal([]byte(data), &keys); err != nil {
		return nil, fmt.Errorf("%s: unable to decode stored jwks: %w", op, err)
	}
	return &keys, nil
}

func (b *Backend) SaveProviderJWKS(ctx context.Context, provider string, jwks *jose.JSONWebKeySet) error {
	const op = "redisbackend.(Backend).SaveProviderJWKS"
	data, err := json.Marshal(jwks)
	if err != nil {
		return fmt.Errorf("%s: unable to encode jwks: %w", op, err)
	}
	if err := b.setString(ctx, fmt.Sprintf(keyProviderJWKS, provider), string(data)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *Backend) GetClientRegistration(ctx context.Context, provider string) (*solid.ClientRegistration, error) {
	const op = "redisbackend.(Backend).GetClientRegistration"
	data, err := b.getString(ctx, fmt.Sprintf(keyClientRegistration, provider))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if data == "" {
		return nil, nil
	}
	reg, err := solid.ParseClientRegistration([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to decode stored registration: %w", op, err)
	}
	return reg, nil
}

func (b *Backend) SaveClientRegistration(ctx context.Context, provider string, reg *solid.ClientRegistration) error {
	const op = "redisbackend.(Backend).SaveClientRegistration"
	if err := b.setString(ctx, fmt.Sprintf(keyClientRegistration, provider), string(reg.Raw())); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *Backend) SaveConfigurationToken(ctx context.Context, token *backend.ConfigurationToken) error {
	const op = "redisbackend.(Backend).SaveConfigurationToken"
	if token == nil {
		return fmt.Errorf("%s: missing token: %w", op, solid.ErrNilParameter)
	}
	t := *token
	if t.Added.IsZero() {
		t.Added = time.Now().UTC()
	}
	data, err := json.Marshal(&t)
	if err != nil {
		return fmt.Errorf("%s: unable to encode token: %w", op, err)
	}
	key := fmt.Sprintf(keyConfigurationToken, t.Issuer, t.Profile, t.ClientID)
	if err := b.setString(ctx, key, string(data)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := b.client.SAdd(ctx, keyPrefix+keyTokenList, key).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *Backend) getConfigurationToken(ctx context.Context, key string) (*backend.ConfigurationToken, error) {
	data, err := b.getString(ctx, key)
	if err != nil {
		return nil, err
	}
	if data == "" {
		return nil, nil
	}
	var token backend.ConfigurationToken
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		return nil, fmt.Errorf("unable to decode stored token: %w", err)
	}
	return &token, nil
}

func (b *Backend) UpdateConfigurationToken(ctx context.Context, issuer, profile, clientID string, token *solid.Token) error {
	const op = "redisbackend.(Backend).UpdateConfigurationToken"
	key := fmt.Sprintf(keyConfigurationToken, issuer, profile, clientID)
	existing, err := b.getConfigurationToken(ctx, key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if existing == nil {
		return nil
	}
	existing.Data = token.Raw()
	existing.Added = time.Now().UTC()
	data, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("%s: unable to encode token: %w", op, err)
	}
	if err := b.setString(ctx, key, string(data)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *Backend) GetConfigurationToken(ctx context.Context, issuer, profile string, useClientIDDocument bool) (*backend.ConfigurationToken, error) {
	const op = "redisbackend.(Backend).GetConfigurationToken"
	// Keys embed the client id, which the caller doesn't know. Walk the
	// token list and match on the stored fields instead.
	keys, err := b.client.SMembers(ctx, keyPrefix+keyTokenList).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, key := range keys {
		token, err := b.getConfigurationToken(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if token == nil {
			continue
		}
		if token.Issuer == issuer && token.Profile == profile && token.UsesClientIDDocument() == useClientIDDocument {
			return token, nil
		}
	}
	return nil, nil
}

func (b *Backend) ListConfigurationTokens(ctx context.Context) ([]*backend.ConfigurationToken, error) {
	const op = "redisbackend.(Backend).ListConfigurationTokens"
	keys, err := b.client.SMembers(ctx, keyPrefix+keyTokenList).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var tokens []*backend.ConfigurationToken
	for _, key := range keys {
		token, err := b.getConfigurationToken(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if token != nil {
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

func (b *Backend) SetStateData(ctx context.Context, state, codeVerifier, issuer string) error {
	const op = "redisbackend.(Backend).SetStateData"
	data, err := json.Marshal(backend.StateData{CodeVerifier: codeVerifier, Issuer: issuer})
	if err != nil {
		return fmt.Errorf("%s: unable to encode state: %w", op, err)
	}
	if err := b.setString(ctx, fmt.Sprintf(keyState, state), string(data)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *Backend) GetStateData(ctx context.Context, state string) (*backend.StateData, error) {
	const op = "redisbackend.(Backend).GetStateData"
	data, err := b.getString(ctx, fmt.Sprintf(keyState, state))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if data == "" {
		return nil, nil
	}
	var sd backend.StateData
	if err := json.Unmarshal([]byte(data), &sd); err != nil {
		return nil, fmt.Errorf("%s: unable to decode stored state: %w", op, err)
	}
	return &sd, nil
}

func (b *Backend) DeleteStateData(ctx context.Context, state string) error {
	const op = "redisbackend.(Backend).DeleteStateData"
	key := keyPrefix + fmt.Sprintf(keyState, state)
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
