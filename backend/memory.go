package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/trompamusic/solidauth/solid"
	jose "gopkg.in/square/go-jose.v2"
)

// Memory is an in-process Backend. Values are stored as serialized
// JSON so reads never alias a caller's data. It is safe for
// concurrent use and is the default store for tests and ad-hoc CLI
// runs.
type Memory struct {
	mu sync.RWMutex

	relyingPartyKeys string
	configurations   map[string][]byte
	jwks             map[string][]byte
	registrations    map[string][]byte
	tokens           map[string]*ConfigurationToken
	state            map[string]StateData
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		configurations: map[string][]byte{},
		jwks:           map[string][]byte{},
		registrations:  map[string][]byte{},
		tokens:         map[string]*ConfigurationToken{},
		state:          map[string]StateData{},
	}
}

// Ready always reports true.
func (m *Memory) Ready(ctx context.Context) (bool, error) {
	return true, nil
}

func (m *Memory) GetRelyingPartyKeys(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.relyingPartyKeys, nil
}

func (m *Memory) SaveRelyingPartyKeys(ctx context.Context, keys string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relyingPartyKeys = keys
	return nil
}

func (m *Memory) GetProviderConfiguration(ctx context.Context, provider string) (*solid.ProviderConfig, error) {
	const op = "backend.(Memory).GetProviderConfiguration"
	m.mu.RLock()
	data, ok := m.configurations[provider]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var cfg solid.ProviderConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s: unable to decode stored configuration: %w", op, err)
	}
	return &cfg, nil
}

func (m *Memory) SaveProviderConfiguration(ctx context.Context, provider string, cfg *solid.ProviderConfig) error {
	const op = "backend.(Memory).SaveProviderConfiguration"
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("%s: unable to encode configuration: %w", op, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configurations[provider] = data
	return nil
}

func (m *Memory) GetProviderJWKS(ctx context.Context, provider string) (*jose.JSONWebKeySet, error) {
	const op = "backend.(Memory).GetProviderJWKS"
	m.mu.RLock()
	data, ok := m.jwks[provider]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var keys jose.JSONWebKeySet
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("%s: unable to decode stored jwks: %w", op, err)
	}
	return &keys, nil
}

func (m *Memory) SaveProviderJWKS(ctx context.Context, provider string, jwks *jose.JSONWebKeySet) error {
	const op = "backend.(Memory).SaveProviderJWKS"
	data, err := json.Marshal(jwks)
	if err != nil {
		return fmt.Errorf("%s: unable to encode jwks: %w", op, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jwks[provider] = data
	return nil
}

func (m *Memory) GetClientRegistration(ctx context.Context, provider string) (*solid.ClientRegistration, error) {
	const op = "backend.(Memory).GetClientRegistration"
	m.mu.RLock()
	data, ok := m.registrations[provider]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	reg, err := solid.ParseClientRegistration(data)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to decode stored registration: %w", op, err)
	}
	return reg, nil
}

func (m *Memory) SaveClientRegistration(ctx context.Context, provider string, reg *solid.ClientRegistration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registrations[provider] = append([]byte(nil), reg.Raw()...)
	return nil
}

func tokenKey(issuer, profile, clientID string) string {
	return issuer + "\x00" + profile + "\x00" + clientID
}

func (m *Memory) SaveConfigurationToken(ctx context.Context, token *ConfigurationToken) error {
	const op = "backend.(Memory).SaveConfigurationToken"
	if token == nil {
		return fmt.Errorf("%s: missing token: %w", op, solid.ErrNilParameter)
	}
	t := *token
	if t.Added.IsZero() {
		t.Added = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tokenKey(t.Issuer, t.Profile, t.ClientID)] = &t
	return nil
}

func (m *Memory) UpdateConfigurationToken(ctx context.Context, issuer, profile, clientID string, token *solid.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.tokens[tokenKey(issuer, profile, clientID)]
	if !ok {
		return nil
	}
	existing.Data = append([]byte(nil), token.Raw()...)
	existing.Added = time.Now().UTC()
	return nil
}

func (m *Memory) GetConfigurationToken(ctx context.Context, issuer, profile string, useClientIDDocument bool) (*ConfigurationToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tokens {
		if t.Issuer == issuer && t.Profile == profile && t.UsesClientIDDocument() == useClientIDDocument {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListConfigurationTokens(ctx context.Context) ([]*ConfigurationToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tokens := make([]*ConfigurationToken, 0, len(m.tokens))
	for _, t := range m.tokens {
		cp := *t
		tokens = append(tokens, &cp)
	}
	return tokens, nil
}

func (m *Memory) SetStateData(ctx context.Context, state, codeVerifier, issuer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[state] = StateData{CodeVerifier: codeVerifier, Issuer: issuer}
	return nil
}

func (m *Memory) GetStateData(ctx context.Context, state string) (*StateData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.state[state]
	if !ok {
		return nil, nil
	}
	return &data, nil
}

func (m *Memory) DeleteStateData(ctx context.Context, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, state)
	return nil
}
