// Package solid provides the protocol-level pieces needed to act as a
// Solid-OIDC relying party: WebID to OpenID Provider lookup, provider
// discovery and JWKS retrieval, dynamic client registration, PKCE,
// authorization request URLs, DPoP-bound token exchange and refresh, and
// ID token verification against a provider's published keys.
//
// Unlike a typical 3-legged OIDC client, a Solid relying party talks to
// many providers that it has never seen before: every user can bring their
// own. Nothing in this package caches provider material itself; discovery
// documents, JWKS and client registrations are returned to the caller so
// they can be persisted (see the backend package) and reused across flows.
//
// The package also ships an in-process TestProvider which implements the
// subset of a Solid OpenID Provider needed to exercise complete flows in
// tests: discovery, dynamic registration, authorization, PKCE and
// DPoP-checked token issuance, and a JWKS endpoint.
package solid
