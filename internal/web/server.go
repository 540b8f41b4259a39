// Package web is the browser-facing process: a small UI to start an
// authentication flow, the OAuth callback, the client id documents,
// and a health endpoint. It expects to run behind a reverse proxy
// that terminates TLS for the configured base URL.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/hashicorp/go-hclog"
	"github.com/trompamusic/solidauth/auth"
	"github.com/trompamusic/solidauth/backend"
	"github.com/trompamusic/solidauth/internal/config"
)

const shutdownTimeout = 10 * time.Second

// registerRequestLimit caps how many flows a single IP can start,
// since each POST /register can trigger discovery requests against an
// arbitrary URL.
const registerRequestLimit = 10

// Server wires the auth service into HTTP handlers.
type Server struct {
	cfg     *config.Config
	backend backend.Backend
	svc     *auth.Service
	logger  hclog.Logger
}

// NewServer creates a Server.
func NewServer(cfg *config.Config, b backend.Backend, svc *auth.Service, logger hclog.Logger) (*Server, error) {
	const op = "web.NewServer"
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("%s: missing config", op)
	case b == nil:
		return nil, fmt.Errorf("%s: missing backend", op)
	case svc == nil:
		return nil, fmt.Errorf("%s: missing auth service", op)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Server{cfg: cfg, backend: b, svc: svc, logger: logger}, nil
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.With(httprate.LimitByIP(registerRequestLimit, time.Minute)).Post("/register", s.handleRegister)
	r.Get("/redirect", s.handleRedirect)
	r.Get("/client/{cid}.jsonld", s.handleClientIDDocument)
	r.Get("/health", s.handleHealth)
	return r
}

// Run serves until the context is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	const op = "web.(Server).Run"
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Listen, "base_url", s.cfg.BaseURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	profileURL := r.URL.Query().Get("profile")
	redirectAfter := r.URL.Query().Get("redirect")
	if redirectAfter != "" && s.isSafeURL(redirectAfter) {
		if err := setSession(w, s.cfg.SecretKey, sessionData{RedirectAfter: redirectAfter}); err != nil {
			s.logger.Error("unable to set session cookie", "err", err)
		}
	}
	s.render(w, indexTemplate, map[string]interface{}{"ProfileURL": profileURL})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	webidOrProvider := r.FormValue("webid_or_provider")
	if webidOrProvider == "" {
		s.renderError(w, http.StatusBadRequest, "A WebID or provider URL is required.")
		return
	}

	var logMessages []string
	provider, err := s.svc.ResolveProvider(ctx, webidOrProvider)
	if err != nil || provider == "" {
		s.logger.Warn("cannot find provider", "input", webidOrProvider, "err", err)
		s.renderError(w, http.StatusBadRequest, fmt.Sprintf("Cannot find a provider for %s.", webidOrProvider))
		return
	}
	logMessages = append(logMessages, fmt.Sprintf("Provider for this user is: %s", provider))

	provider, providerCfg, _, err := s.svc.EnsureProviderConfiguration(ctx, provider)
	if err != nil {
		s.logger.Error("provider setup failed", "provider", provider, "err", err)
		s.renderError(w, http.StatusBadGateway, "Unable to fetch the provider's configuration.")
		return
	}

	// Prefer dynamic registration; fall back to a client id document
	// when the provider can't register clients, or when forced by
	// configuration.
	clientIDDocumentURL := ""
	if s.cfg.AlwaysUseClientURL || !providerCfg.CanDynamicRegister() {
		clientIDDocumentURL = ClientURLForIssuer(s.cfg.BaseURL, provider)
		logMessages = append(logMessages, fmt.Sprintf("Using a client id document: %s", clientIDDocumentURL))
	} else {
		logMessages = append(logMessages, "Using dynamic client registration")
	}

	flow, err := s.svc.StartAuthFlow(ctx, provider, s.cfg.RedirectURL, clientIDDocumentURL)
	if err != nil {
		s.logger.Error("unable to start auth flow", "provider", provider, "err", err)
		s.renderError(w, http.StatusBadGateway, "Unable to create an authentication request for this provider.")
		return
	}
	logMessages = append(logMessages, fmt.Sprintf("client_id %s", flow.ClientID))

	sess := getSession(r, s.cfg.SecretKey)
	sess.Provider = flow.Provider
	if err := setSession(w, s.cfg.SecretKey, sess); err != nil {
		s.logger.Error("unable to set session cookie", "err", err)
	}
	s.render(w, registerTemplate, map[string]interface{}{
		"LogMessages": logMessages,
		"AuthURL":     flow.AuthURL,
	})
}

func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	if errCode := query.Get("error"); errCode != "" {
		s.logger.Warn("provider returned an error", "error", errCode, "description", query.Get("error_description"))
		s.renderError(w, http.StatusBadRequest,
			fmt.Sprintf("The provider returned an error: %s.", errCode))
		return
	}
	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		s.renderError(w, http.StatusBadRequest, "Missing code or state in the callback.")
		return
	}

	sess := getSession(r, s.cfg.SecretKey)

	// The same client id decision made during /register has to be
	// repeated here so the exchange identifies itself consistently.
	clientIDDocumentURL := ""
	if sess.Provider != "" {
		_, providerCfg, _, err := s.svc.EnsureProviderConfiguration(ctx, sess.Provider)
		if err == nil && (s.cfg.AlwaysUseClientURL || !providerCfg.CanDynamicRegister()) {
			clientIDDocumentURL = ClientURLForIssuer(s.cfg.BaseURL, sess.Provider)
		}
	}

	result, err := s.svc.HandleCallback(ctx, code, state, sess.Provider, s.cfg.RedirectURL, clientIDDocumentURL)
	if err != nil {
		s.logger.Error("callback failed", "err", err)
		status := http.StatusBadGateway
		if errors.Is(err, auth.ErrStateNotFound) {
			status = http.StatusBadRequest
		}
		s.renderError(w, status, "Authentication failed. Please start a new flow.")
		return
	}
	s.logger.Info("authenticated", "webid", result.WebID, "issuer", result.Issuer)

	redirectAfter := ""
	if s.isSafeURL(sess.RedirectAfter) {
		redirectAfter = sess.RedirectAfter
	}
	s.render(w, successTemplate, map[string]interface{}{"RedirectAfter": redirectAfter})
}

func (s *Server) handleClientIDDocument(w http.ResponseWriter, r *http.Request) {
	cid := chi.URLParam(r, "cid")
	doc := newClientIDDocument(s.cfg.BaseURL, s.cfg.ClientName, s.cfg.RedirectURL, cid)
	w.Header().Set("Content-Type", "application/ld+json")
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ready, err := s.backend.Ready(r.Context())
	if err != nil || !ready {
		if err != nil {
			s.logger.Error("backend not ready", "err", err)
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// isSafeURL reports whether a redirect target is relative or points at
// the configured base URL's host, so the callback never becomes an
// open redirector.
func (s *Server) isSafeURL(raw string) bool {
	if raw == "" {
		return false
	}
	target, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if target.Scheme == "" && target.Host == "" {
		return true
	}
	base, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return false
	}
	return (target.Scheme == "http" || target.Scheme == "https") && target.Host == base.Host
}
