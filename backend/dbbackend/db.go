// Package dbbackend stores relying party state in Postgres using
// sqlx. Provider documents and tokens are kept as raw JSONB so the
// stored record is exactly what the provider sent.
package dbbackend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/trompamusic/solidauth/backend"
	"github.com/trompamusic/solidauth/solid"
	jose "gopkg.in/square/go-jose.v2"
)

// pgUndefinedTable is raised when querying a table that doesn't exist,
// which is how Ready detects a database that hasn't been initialized.
const pgUndefinedTable = "42P01"

// Backend implements backend.Backend on top of a Postgres database.
type Backend struct {
	db *sqlx.DB
}

// New creates a Backend around an existing database handle.
func New(db *sqlx.DB) *Backend {
	return &Backend{db: db}
}

// Open connects to the database at the given postgresql:// URL.
func Open(ctx context.Context, databaseURL string) (*Backend, error) {
	const op = "dbbackend.Open"
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to connect: %w", op, err)
	}
	return New(db), nil
}

// InitSchema creates the tables and indexes if they don't exist.
func (b *Backend) InitSchema(ctx context.Context) error {
	const op = "dbbackend.(Backend).InitSchema"
	if _, err := b.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Ready reports whether the schema has been created, by probing the
// relying_party table.
func (b *Backend) Ready(ctx context.Context) (bool, error) {
	var id int
	err := b.db.GetContext(ctx, &id, `SELECT id FROM relying_party LIMIT 1`)
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUndefinedTable {
		return false, nil
	}
	return false, err
}

func (b *Backend) GetRelyingPartyKeys(ctx context.Context) (string, error) {
	const op = "dbbackend.(Backend).GetRelyingPartyKeys"
	var data []byte
	err := b.db.GetContext(ctx, &data, `SELECT data FROM relying_party ORDER BY id LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(data), nil
}

func (b *Backend) SaveRelyingPartyKeys(ctx context.Context, keys string) error {
	const op = "dbbackend.(Backend).SaveRelyingPartyKeys"
	if _, err := b.db.ExecContext(ctx, `INSERT INTO relying_party (data) VALUES ($1)`, keys); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *Backend) getProviderDocument(ctx context.Context, table, provider string) ([]byte, error) {
	var data []byte
	err := b.db.GetContext(ctx, &data,
		fmt.Sprintf(`SELECT data FROM %s WHERE provider = $1 ORDER BY id LIMIT 1`, table), provider)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (b *Backend) GetProviderConfiguration(ctx context.Context, provider string) (*solid.ProviderConfig, error) {
	const op = "dbbackend.(Backend).GetProviderConfiguration"
	data, err := b.getProviderDocument(ctx, "resource_server_configuration", provider)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if data == nil {
		return nil, nil
	}
	var cfg solid.ProviderConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s: unable to decode stored configuration: %w", op, err)
	}
	return &cfg, nil
}

func (b *Backend) SaveProviderConfiguration(ctx context.Context, provider string, cfg *solid.ProviderConfig) error {
	const op = "dbbackend.(Backend).SaveProviderConfiguration"
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("%s: unable to encode configuration: %w", op, err)
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO resource_server_configuration (provider, data) VALUES ($1, $2)`, provider, data)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *Backend) GetProviderJWKS(ctx context.Context, provider string) (*jose.JSONWebKeySet, error) {
	const op = "dbbackend.(Backend).GetProviderJWKS"
	data, err := b.getProviderDocument(ctx, "resource_server_keys", provider)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if data == nil {
		return nil, nil
	}
	var keys jose.JSONWebKeySet
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("%s: unable to decode stored jwks: %w", op, err)
	}
	return &keys, nil
}

func (b *Backend) SaveProviderJWKS(ctx context.Context, provider string, jwks *jose.JSONWebKeySet) error {
	const op = "dbbackend.(Backend).SaveProviderJWKS"
	data, err := json.Marshal(jwks)
	if err != nil {
		return fmt.Errorf("%s: unable to encode jwks: %w", op, err)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO resource_server_keys (provider, data) VALUES ($1, $2)
		ON CONFLICT (provider) DO UPDATE SET data = EXCLUDED.data`, provider, data)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *Backend) GetClientRegistration(ctx context.Context, provider string) (*solid.ClientRegistration, error) {
	const op = "dbbackend.(Backend).GetClientRegistration"
	data, err := b.getProviderDocument(ctx, "client_registration", provider)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if data == nil {
		return nil, nil
	}
	reg, err := solid.ParseClientRegistration(data)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to decode stored registration: %w", op, err)
	}
	return reg, nil
}

func (b *Backend) SaveClientRegistration(ctx context.Context, provider string, reg *solid.ClientRegistration) error {
	const op = "dbbackend.(Backend).SaveClientRegistration"
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO client_registration (provider, client_id, data) VALUES ($1, $2, $3)
		ON CONFLICT (provider) DO UPDATE SET client_id = EXCLUDED.client_id, data = EXCLUDED.data`,
		provider, reg.ClientID, reg.Raw())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *Backend) SaveConfigurationToken(ctx context.Context, token *backend.ConfigurationToken) error {
	const op = "dbbackend.(Backend).SaveConfigurationToken"
	if token == nil {
		return fmt.Errorf("%s: missing token: %w", op, solid.ErrNilParameter)
	}
	added := token.Added
	if added.IsZero() {
		added = time.Now().UTC()
	}

	// Tokens obtained with a client id document have no registration
	// row, so the foreign key stays null for them.
	var registrationID sql.NullInt64
	err := b.db.GetContext(ctx, &registrationID,
		`SELECT id FROM client_registration WHERE client_id = $1 LIMIT 1`, token.ClientID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO configuration_token (issuer, profile, sub, client_id, added, data, client_registration_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (issuer, profile, client_id)
		DO UPDATE SET sub = EXCLUDED.sub, added = EXCLUDED.added, data = EXCLUDED.data`,
		token.Issuer, token.Profile, token.Sub, token.ClientID, added, []byte(token.Data), registrationID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *Backend) UpdateConfigurationToken(ctx context.Context, issuer, profile, clientID string, token *solid.Token) error {
	const op = "dbbackend.(Backend).UpdateConfigurationToken"
	_, err := b.db.ExecContext(ctx, `
		UPDATE configuration_token SET data = $1, added = $2
		WHERE issuer = $3 AND profile = $4 AND client_id = $5`,
		token.Raw(), time.Now().UTC(), issuer, profile, clientID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *Backend) GetConfigurationToken(ctx context.Context, issuer, profile string, useClientIDDocument bool) (*backend.ConfigurationToken, error) {
	const op = "dbbackend.(Backend).GetConfigurationToken"
	query := `
		SELECT issuer, profile, sub, client_id, added, data FROM configuration_token
		WHERE issuer = $1 AND profile = $2 AND client_registration_id IS NOT NULL
		ORDER BY id LIMIT 1`
	if useClientIDDocument {
		query = `
		SELECT issuer, profile, sub, client_id, added, data FROM configuration_token
		WHERE issuer = $1 AND profile = $2 AND client_registration_id IS NULL
		ORDER BY id LIMIT 1`
	}
	var token backend.ConfigurationToken
	err := b.db.GetContext(ctx, &token, query, issuer, profile)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &token, nil
}

func (b *Backend) ListConfigurationTokens(ctx context.Context) ([]*backend.ConfigurationToken, error) {
	const op = "dbbackend.(Backend).ListConfigurationTokens"
	var tokens []*backend.ConfigurationToken
	err := b.db.SelectContext(ctx, &tokens,
		`SELECT issuer, profile, sub, client_id, added, data FROM configuration_token ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tokens, nil
}

func (b *Backend) SetStateData(ctx context.Context, state, codeVerifier, issuer string) error {
	const op = "dbbackend.(Backend).SetStateData"
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO pkce_state (state, code_verifier, issuer) VALUES ($1, $2, $3)`,
		state, codeVerifier, issuer)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *Backend) GetStateData(ctx context.Context, state string) (*backend.StateData, error) {
	const op = "dbbackend.(Backend).GetStateData"
	var sd backend.StateData
	err := b.db.GetContext(ctx, &sd, `
		SELECT code_verifier AS "code_verifier", COALESCE(issuer, '') AS "issuer"
		FROM pkce_state WHERE state = $1 ORDER BY id LIMIT 1`, state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &sd, nil
}

func (b *Backend) DeleteStateData(ctx context.Context, state string) error {
	const op = "dbbackend.(Backend).DeleteStateData"
	if _, err := b.db.ExecContext(ctx, `DELETE FROM pkce_state WHERE state = $1`, state); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
