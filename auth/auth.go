// Package auth orchestrates Solid-OIDC flows on top of a storage
// backend: resolving a user's provider, registering this relying
// party, generating authorization requests, handling callbacks, and
// producing the DPoP-bound headers needed to act as a user, refreshing
// tokens as they expire.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-hclog"
	"github.com/trompamusic/solidauth/backend"
	"github.com/trompamusic/solidauth/solid"
	"github.com/trompamusic/solidauth/solid/dpop"
	jose "gopkg.in/square/go-jose.v2"
)

var (
	// ErrNoClientRegistration means an operation needed a client
	// registration for a provider but none was stored.
	ErrNoClientRegistration = errors.New("no client registration for provider")

	// ErrNoConfigurationToken means no token has been obtained for the
	// given provider and user.
	ErrNoConfigurationToken = errors.New("no token for this provider and user")

	// ErrStateNotFound means a callback arrived with a state value that
	// was never issued or was already consumed.
	ErrStateNotFound = errors.New("state not found or already used")

	// ErrProviderNotConfigured means a callback or refresh referenced a
	// provider whose discovery documents were never stored.
	ErrProviderNotConfigured = errors.New("provider is not configured")
)

// Service runs authorization flows against any number of Solid
// identity providers, persisting everything it learns in a Backend.
type Service struct {
	backend    backend.Backend
	client     *http.Client
	logger     hclog.Logger
	clientName string
}

// NewService creates a Service. Supported options: WithLogger,
// WithHTTPClient, WithClientName.
func NewService(b backend.Backend, opt ...Option) (*Service, error) {
	const op = "auth.NewService"
	if b == nil {
		return nil, fmt.Errorf("%s: missing backend: %w", op, solid.ErrNilParameter)
	}
	opts := getServiceOpts(opt...)
	client := opts.withHTTPClient
	if client == nil {
		var err error
		client, err = solid.NewHTTPClient("")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	logger := opts.withLogger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Service{
		backend:    b,
		client:     client,
		logger:     logger,
		clientName: opts.withClientName,
	}, nil
}

// EnsureRelyingPartyKeys returns this relying party's signing key,
// generating and storing one on first use.
func (s *Service) EnsureRelyingPartyKeys(ctx context.Context) (*jose.JSONWebKey, error) {
	const op = "auth.(Service).EnsureRelyingPartyKeys"
	keys, err := s.backend.GetRelyingPartyKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if keys == "" {
		s.logger.Info("no relying party key found, generating one")
		keys, err = solid.GenerateRelyingPartyKey()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := s.backend.SaveRelyingPartyKeys(ctx, keys); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	key, err := solid.LoadRelyingPartyKey(keys)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return key, nil
}

// ResolveProvider turns a webid or issuer URL into an issuer URL. A
// webid is resolved through its profile document; anything else is
// assumed to already be an issuer.
func (s *Service) ResolveProvider(ctx context.Context, webidOrProvider string) (string, error) {
	const op = "auth.(Service).ResolveProvider"
	if solid.IsWebID(ctx, s.client, webidOrProvider) {
		provider, err := solid.LookupProviderFromProfile(ctx, s.client, webidOrProvider)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		s.logger.Debug("resolved provider from webid", "webid", webidOrProvider, "provider", provider)
		return provider, nil
	}
	return webidOrProvider, nil
}

// EnsureProviderConfiguration returns the stored discovery document
// and JWKS for a provider, fetching and storing them on first use.
// The returned issuer is the canonical one from the discovery
// document, which may differ from the requested URL by a trailing
// slash.
func (s *Service) EnsureProviderConfiguration(ctx context.Context, provider string) (string, *solid.ProviderConfig, *jose.JSONWebKeySet, error) {
	const op = "auth.(Service).EnsureProviderConfiguration"
	cfg, err := s.backend.GetProviderConfiguration(ctx, provider)
	if err != nil {
		return "", nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	jwks, err := s.backend.GetProviderJWKS(ctx, provider)
	if err != nil {
		return "", nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg != nil && jwks != nil {
		s.logger.Debug("provider already configured", "provider", provider)
		return provider, cfg, jwks, nil
	}

	cfg, err = solid.FetchProviderConfig(ctx, s.client, provider)
	if err != nil {
		return "", nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Issuer != "" {
		provider = cfg.Issuer
	}
	if err := s.backend.SaveProviderConfiguration(ctx, provider, cfg); err != nil {
		return "", nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	jwks, err = solid.FetchProviderJWKS(ctx, s.client, cfg)
	if err != nil {
		return "", nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.backend.SaveProviderJWKS(ctx, provider, jwks); err != nil {
		return "", nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Info("fetched provider configuration", "provider", provider)
	return provider, cfg, jwks, nil
}

// EnsureRegistration returns the stored client registration for a
// provider, performing dynamic registration on first use.
func (s *Service) EnsureRegistration(ctx context.Context, provider string, cfg *solid.ProviderConfig, redirectURL string) (*solid.ClientRegistration, error) {
	reg, err := s.backend.GetClientRegistration(ctx, provider)
	if err != nil {
		return nil, err
	}
	if reg != nil {
		s.logger.Debug("client already registered", "provider", provider, "client_id", reg.ClientID)
		return reg, nil
	}
	if !cfg.CanDynamicRegister() {
		return nil, fmt.Errorf("provider %s: %w", provider, solid.ErrRegistrationUnsupported)
	}
	reg, err = solid.Register(ctx, s.client, cfg, solid.DefaultRegistrationRequest(s.clientName, redirectURL))
	if err != nil {
		return nil, err
	}
	if err := s.backend.SaveClientRegistration(ctx, provider, reg); err != nil {
		return nil, err
	}
	s.logger.Info("registered client with provider", "provider", provider, "client_id", reg.ClientID)
	return reg, nil
}

// FlowStart describes a generated authorization request.
type FlowStart struct {
	// Provider is the canonical issuer the user will authenticate at.
	Provider string
	// ClientID used for the request, either a registered client id or
	// a client id document URL.
	ClientID string
	// AuthURL is where the user's browser should be sent.
	AuthURL string
}

// StartAuthFlow resolves the user's provider, makes sure this relying
// party is known to it, and generates an authorization URL. The
// request's state and PKCE verifier are persisted so the callback can
// be validated later. If clientIDDocumentURL is set it is used as the
// client id instead of registering, which requires the provider to
// support the webid scope.
func (s *Service) StartAuthFlow(ctx context.Context, webidOrProvider, redirectURL, clientIDDocumentURL string) (*FlowStart, error) {
	const op = "auth.(Service).StartAuthFlow"
	switch {
	case webidOrProvider == "":
		return nil, fmt.Errorf("%s: missing webid or provider: %w", op, solid.ErrInvalidParameter)
	case redirectURL == "":
		return nil, fmt.Errorf("%s: missing redirect URL: %w", op, solid.ErrInvalidParameter)
	}

	provider, err := s.ResolveProvider(ctx, webidOrProvider)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if provider == "" {
		return nil, fmt.Errorf("%s: no provider for %s: %w", op, webidOrProvider, solid.ErrNoProvider)
	}
	var cfg *solid.ProviderConfig
	provider, cfg, _, err = s.EnsureProviderConfiguration(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var clientID string
	if clientIDDocumentURL != "" {
		if !cfg.SupportsClientIDDocument() {
			return nil, fmt.Errorf("%s: provider %s: %w", op, provider, solid.ErrClientIDDocUnsupported)
		}
		clientID = clientIDDocumentURL
		s.logger.Debug("using client id document", "client_id", clientID)
	} else {
		reg, err := s.EnsureRegistration(ctx, provider, cfg, redirectURL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		clientID = reg.ClientID
	}

	r, err := solid.NewAuthRequest(provider)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.backend.SetStateData(ctx, r.State, r.Verifier.Verifier(), provider); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	authURL, err := solid.AuthURL(cfg, redirectURL, clientID, r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Info("generated auth request", "provider", provider, "state", r.State)
	return &FlowStart{Provider: provider, ClientID: clientID, AuthURL: authURL}, nil
}

// CallbackResult is the outcome of a successful callback exchange.
type CallbackResult struct {
	Token    *solid.Token
	Claims   *solid.IDTokenClaims
	Issuer   string
	WebID    string
	ClientID string
}

// HandleCallback consumes the state created by StartAuthFlow,
// exchanges the authorization code, verifies the returned ID token
// against the provider's stored JWKS, and persists the token for the
// authenticated user. provider may be empty, in which case the issuer
// stored with the state is used.
func (s *Service) HandleCallback(ctx context.Context, code, state, provider, redirectURL, clientIDDocumentURL string) (*CallbackResult, error) {
	const op = "auth.(Service).HandleCallback"
	switch {
	case code == "":
		return nil, fmt.Errorf("%s: missing code: %w", op, solid.ErrInvalidParameter)
	case state == "":
		return nil, fmt.Errorf("%s: missing state: %w", op, solid.ErrInvalidParameter)
	}

	sd, err := s.backend.GetStateData(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sd == nil {
		return nil, fmt.Errorf("%s: state %s: %w", op, state, ErrStateNotFound)
	}
	if provider == "" {
		provider = sd.Issuer
	}
	// One-shot: the state can't be replayed even if the exchange fails.
	if err := s.backend.DeleteStateData(ctx, state); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg, err := s.backend.GetProviderConfiguration(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%s: %s: %w", op, provider, ErrProviderNotConfigured)
	}

	var clientID string
	var clientSecret solid.ClientSecret
	if clientIDDocumentURL != "" {
		clientID = clientIDDocumentURL
	} else {
		reg, err := s.backend.GetClientRegistration(ctx, provider)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if reg == nil {
			return nil, fmt.Errorf("%s: %s: %w", op, provider, ErrNoClientRegistration)
		}
		clientID = reg.ClientID
		clientSecret = reg.ClientSecret
	}

	key, err := s.EnsureRelyingPartyKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	verifier, err := solid.RestoreCodeVerifier(sd.CodeVerifier)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	token, err := solid.Exchange(ctx, s.client, key, cfg, solid.ExchangeParams{
		Code:         code,
		Verifier:     verifier,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	jwks, err := s.backend.GetProviderJWKS(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if jwks == nil {
		return nil, fmt.Errorf("%s: no keys for %s: %w", op, provider, ErrProviderNotConfigured)
	}
	claims, err := solid.VerifyIDToken(ctx, jwks, provider, clientID, token.IDToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	webid := claims.WebID()
	err = s.backend.SaveConfigurationToken(ctx, &backend.ConfigurationToken{
		Issuer:   claims.Issuer,
		Profile:  webid,
		Sub:      claims.Subject,
		ClientID: clientID,
		Data:     token.Raw(),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Info("obtained token", "issuer", claims.Issuer, "webid", webid)
	return &CallbackResult{
		Token:    token,
		Claims:   claims,
		Issuer:   claims.Issuer,
		WebID:    webid,
		ClientID: clientID,
	}, nil
}

// lookupToken finds the stored token for a provider and user. When a
// client id document URL is given the token obtained with it is
// preferred, falling back to the dynamically registered client. The
// returned secret is empty for client id document tokens.
func (s *Service) lookupToken(ctx context.Context, provider, profile, clientIDDocumentURL string) (*backend.ConfigurationToken, string, solid.ClientSecret, error) {
	if clientIDDocumentURL != "" {
		token, err := s.backend.GetConfigurationToken(ctx, provider, profile, true)
		if err != nil {
			return nil, "", "", err
		}
		if token != nil {
			return token, clientIDDocumentURL, "", nil
		}
	}
	reg, err := s.backend.GetClientRegistration(ctx, provider)
	if err != nil {
		return nil, "", "", err
	}
	if reg == nil {
		return nil, "", "", fmt.Errorf("%s: %w", provider, ErrNoClientRegistration)
	}
	token, err := s.backend.GetConfigurationToken(ctx, provider, profile, false)
	if err != nil {
		return nil, "", "", err
	}
	if token == nil {
		return nil, "", "", fmt.Errorf("%s: %w", provider, ErrNoConfigurationToken)
	}
	return token, reg.ClientID, reg.ClientSecret, nil
}

// refresh exchanges the stored refresh token for a new token and
// persists it. Providers may omit a new refresh token, in which case
// the old one is carried forward.
func (s *Service) refresh(ctx context.Context, provider, profile, clientID string, clientSecret solid.ClientSecret, old *solid.Token) (*solid.Token, error) {
	cfg, err := s.backend.GetProviderConfiguration(ctx, provider)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%s: %w", provider, ErrProviderNotConfigured)
	}
	key, err := s.EnsureRelyingPartyKeys(ctx)
	if err != nil {
		return nil, err
	}
	token, err := solid.RefreshGrant(ctx, s.client, key, cfg, solid.RefreshParams{
		RefreshToken: old.RefreshToken,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
	if err != nil {
		return nil, err
	}
	if token.RefreshToken == "" {
		token, err = token.WithRefreshToken(old.RefreshToken)
		if err != nil {
			return nil, err
		}
	}
	if err := s.backend.UpdateConfigurationToken(ctx, provider, profile, clientID, token); err != nil {
		return nil, err
	}
	s.logger.Info("refreshed token", "provider", provider, "profile", profile)
	return token, nil
}

// Refresh forces a refresh of the stored token for a provider and
// user, returning the new token.
func (s *Service) Refresh(ctx context.Context, provider, profile, clientIDDocumentURL string) (*solid.Token, error) {
	const op = "auth.(Service).Refresh"
	stored, clientID, clientSecret, err := s.lookupToken(ctx, provider, profile, clientIDDocumentURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	old, err := stored.Token()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	token, err := s.refresh(ctx, provider, profile, clientID, clientSecret, old)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return token, nil
}

// BearerHeaders returns the Authorization and DPoP headers needed to
// make a request to url with the given method as the given user. If
// the stored access token has expired it is refreshed first; if the
// refresh fails the expired token is returned anyway and the failure
// logged, letting the resource server make the final call.
func (s *Service) BearerHeaders(ctx context.Context, provider, profile, clientIDDocumentURL, method, url string) (http.Header, error) {
	const op = "auth.(Service).BearerHeaders"
	stored, clientID, clientSecret, err := s.lookupToken(ctx, provider, profile, clientIDDocumentURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	token, err := stored.Token()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if stored.HasExpired() {
		s.logger.Info("token has expired, refreshing", "provider", provider, "profile", profile)
		refreshed, err := s.refresh(ctx, provider, profile, clientID, clientSecret, token)
		if err != nil {
			s.logger.Warn("token refresh failed", "provider", provider, "profile", profile, "err", err)
		} else {
			token = refreshed
		}
	}

	key, err := s.EnsureRelyingPartyKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	proof, err := dpop.Proof(key, url, method)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	headers := http.Header{}
	headers.Set("Authorization", "DPoP "+string(token.AccessToken))
	headers.Set("DPoP", proof)
	return headers, nil
}

// ListTokens returns every stored token.
func (s *Service) ListTokens(ctx context.Context) ([]*backend.ConfigurationToken, error) {
	const op = "auth.(Service).ListTokens"
	tokens, err := s.backend.ListConfigurationTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tokens, nil
}
