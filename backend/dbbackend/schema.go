package dbbackend

// Schema for the Postgres store. Raw provider documents are kept in
// JSONB columns; a configuration token is unique per issuer, user and
// client id, and links back to the registration that produced it when
// one exists (tokens obtained with a client id document have no
// registration row).
const schema = `
CREATE TABLE IF NOT EXISTS relying_party (
    id SERIAL PRIMARY KEY,
    data JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS resource_server_configuration (
    id SERIAL PRIMARY KEY,
    provider TEXT NOT NULL,
    data JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS resource_server_configuration_provider_idx
    ON resource_server_configuration (provider);

CREATE TABLE IF NOT EXISTS resource_server_keys (
    id SERIAL PRIMARY KEY,
    provider TEXT NOT NULL UNIQUE,
    data JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS client_registration (
    id SERIAL PRIMARY KEY,
    provider TEXT NOT NULL UNIQUE,
    client_id TEXT NOT NULL,
    data JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS client_registration_client_id_idx
    ON client_registration (client_id);

CREATE TABLE IF NOT EXISTS configuration_token (
    id SERIAL PRIMARY KEY,
    client_id TEXT NOT NULL,
    issuer TEXT NOT NULL,
    sub TEXT NOT NULL,
    profile TEXT NOT NULL,
    added TIMESTAMPTZ NOT NULL DEFAULT now(),
    data JSONB NOT NULL,
    client_registration_id INTEGER REFERENCES client_registration (id)
);
CREATE UNIQUE INDEX IF NOT EXISTS configuration_token_idx_issuer_sub
    ON configuration_token (issuer, sub, client_id);
CREATE UNIQUE INDEX IF NOT EXISTS configuration_token_idx_issuer_profile
    ON configuration_token (issuer, profile, client_id);

CREATE TABLE IF NOT EXISTS pkce_state (
    id SERIAL PRIMARY KEY,
    state TEXT NOT NULL,
    code_verifier TEXT NOT NULL,
    issuer TEXT
);
CREATE INDEX IF NOT EXISTS pkce_state_state_idx ON pkce_state (state);
`
