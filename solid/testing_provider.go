package solid

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	strutil "github.com/trompamusic/solidauth/solid/internal/strutils"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestProvider is a local server that implements enough of a Solid OpenID
// Provider to exercise complete relying party flows in tests: discovery,
// dynamic client registration, the authorization endpoint, a token endpoint
// that checks PKCE and DPoP, a JWKS endpoint, and a WebID profile document.
// Most of the general OIDC shape comes from Consul's oauthtest package by
// way of hashicorp/cap's test provider.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	replySubject string

	mu                  sync.Mutex
	clientID            string
	clientSecret        string
	allowedRedirectURIs []string
	expectedAuthCode    string
	expectedAuthNonce   string
	customClaims        map[string]interface{}
	customAudience      string
	omitIDToken         bool
	omitRefreshToken    bool
	disableRegistration bool
	disableWebIDScope   bool
	profileLinkHeader   bool
	requireDPoP         bool
	lastCodeChallenge   string
	lastDPoPProof       string
	registrationCount   int
	replyExpiresIn      int64
	replyRefreshToken   string

	kid             string
	ecdsaPublicKey  string
	ecdsaPrivateKey string

	t *testing.T
}

// StartTestProvider creates a disposable TestProvider on a random port. The
// server uses TLS; use CACert() with WithProviderCA-style configuration, or
// NewHTTPClient(p.CACert()), when talking to it.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		t:            t,
		replySubject: "https://alice.example-pod.net/profile/card#me",
		allowedRedirectURIs: []string{
			"https://example.com/redirect",
		},
		profileLinkHeader: true,
		requireDPoP:       true,
		replyExpiresIn:    3600,
		replyRefreshToken: "test-refresh-token",
		kid:               "test-kid-1",
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()
	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the current base URL for the test provider's running
// webserver, which also serves as its issuer.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// SigningKeys returns the test provider's pem-encoded keys used to sign JWTs.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

// KeyID returns the kid the provider publishes in its JWKS and token headers.
func (p *TestProvider) KeyID() string { return p.kid }

// WebID returns the profile URL the provider issues tokens for. The profile
// document is served by the provider itself at this path.
func (p *TestProvider) WebID() string { return p.Addr() + "/profile/card" }

// SetClientCreds configures the client information required for the OIDC
// workflows when a test skips dynamic registration.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// ClientCreds returns the provider's current registered client.
func (p *TestProvider) ClientCreds() (clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientID, p.clientSecret
}

// SetExpectedAuthCode configures the auth code to return from /auth and the
// allowed auth code for /token.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetExpectedAuthNonce configures the nonce value required for /auth.
func (p *TestProvider) SetExpectedAuthNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthNonce = nonce
}

// SetAllowedRedirectURIs configures the allowed redirect URIs for the OIDC
// workflow.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetCustomClaims lets you set claims to return in the JWT issued by the
// OIDC workflow, e.g. a webid claim.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetCustomAudience configures what audience value to embed in the JWT
// issued by the OIDC workflow.
func (p *TestProvider) SetCustomAudience(customAudience string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customAudience = customAudience
}

// SetReplyExpiresIn configures the expires_in value in token responses.
func (p *TestProvider) SetReplyExpiresIn(seconds int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyExpiresIn = seconds
}

// SetReplySubject configures the sub claim in issued tokens.
func (p *TestProvider) SetReplySubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySubject = sub
}

// OmitIDTokens forces an error state where the /token endpoint does not
// return id_token.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// OmitRefreshTokens makes token responses omit refresh_token, as providers
// are allowed to do on refresh grants.
func (p *TestProvider) OmitRefreshTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitRefreshToken = true
}

// DisableRegistration removes the registration_endpoint from the discovery
// document and makes /register return 404.
func (p *TestProvider) DisableRegistration() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableRegistration = true
}

// DisableWebIDScope removes webid from scopes_supported, which signals that
// the provider can't accept client id documents.
func (p *TestProvider) DisableWebIDScope() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableWebIDScope = true
}

// DisableProfileLinkHeader makes the WebID profile rely on its Turtle body
// instead of a Link header to advertise the issuer.
func (p *TestProvider) DisableProfileLinkHeader() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profileLinkHeader = false
}

// AllowMissingDPoP lets the token endpoint accept requests without a DPoP
// proof header.
func (p *TestProvider) AllowMissingDPoP() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requireDPoP = false
}

// RegistrationCount reports how many dynamic registrations the provider has
// accepted.
func (p *TestProvider) RegistrationCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registrationCount
}

// LastDPoPProof returns the DPoP header from the most recent token request.
func (p *TestProvider) LastDPoPProof() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastDPoPProof
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()

	redirectURI := qv.Get("redirect_uri") +
		"?state=" + url.QueryEscape(qv.Get("state")) +
		"&error=" + url.QueryEscape(errorCode)

	if errorMessage != "" {
		redirectURI += "&error_description=" + url.QueryEscape(errorMessage)
	}

	http.Redirect(w, req, redirectURI, http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	w.WriteHeader(statusCode)
	return p.writeJSON(w, &body)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.t.Helper()

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")

		scopes := []string{"openid", "webid", "offline_access"}
		if p.disableWebIDScope {
			scopes = []string{"openid", "offline_access"}
		}
		reply := struct {
			Issuer               string   `json:"issuer"`
			AuthEndpoint         string   `json:"authorization_endpoint"`
			TokenEndpoint        string   `json:"token_endpoint"`
			JWKSURI              string   `json:"jwks_uri"`
			RegistrationEndpoint string   `json:"registration_endpoint,omitempty"`
			ScopesSupported      []string `json:"scopes_supported"`
			ResponseTypes        []string `json:"response_types_supported"`
			GrantTypes           []string `json:"grant_types_supported"`
			AuthMethods          []string `json:"token_endpoint_auth_methods_supported"`
			IDTokenAlgs          []string `json:"id_token_signing_alg_values_supported"`
		}{
			Issuer:               p.Addr(),
			AuthEndpoint:         p.Addr() + "/auth",
			TokenEndpoint:        p.Addr() + "/token",
			JWKSURI:              p.Addr() + "/certs",
			RegistrationEndpoint: p.Addr() + "/register",
			ScopesSupported:      scopes,
			ResponseTypes:        []string{"code"},
			GrantTypes:           []string{"authorization_code", "refresh_token"},
			AuthMethods:          []string{"client_secret_basic", "none"},
			IDTokenAlgs:          []string{"ES256"},
		}
		if p.disableRegistration {
			reply.RegistrationEndpoint = ""
		}
		_ = p.writeJSON(w, &reply)

	case "/register":
		if p.disableRegistration {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")

		var request struct {
			RedirectURIs []string `json:"redirect_uris"`
			ClientName   string   `json:"client_name"`
		}
		if err := json.NewDecoder(req.Body).Decode(&request); err != nil || len(request.RedirectURIs) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			_ = p.writeJSON(w, map[string]string{"error": "invalid_client_metadata"})
			return
		}
		p.registrationCount++
		p.clientID = fmt.Sprintf("test-client-%d", p.registrationCount)
		p.clientSecret = "test-client-secret"
		p.allowedRedirectURIs = request.RedirectURIs

		w.WriteHeader(http.StatusCreated)
		_ = p.writeJSON(w, map[string]interface{}{
			"client_id":     p.clientID,
			"client_secret": p.clientSecret,
			"client_name":   request.ClientName,
			"redirect_uris": request.RedirectURIs,
		})

	case "/auth":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		qv := req.URL.Query()

		if qv.Get("response_type") != "code" {
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		}
		if !strings.Contains(qv.Get("scope"), "openid") {
			p.writeAuthErrorResponse(w, req, "invalid_scope", "")
			return
		}
		if p.expectedAuthCode == "" {
			p.writeAuthErrorResponse(w, req, "access_denied", "")
			return
		}
		nonce := qv.Get("nonce")
		if p.expectedAuthNonce != "" && p.expectedAuthNonce != nonce {
			p.writeAuthErrorResponse(w, req, "access_denied", "")
			return
		}
		state := qv.Get("state")
		if state == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
			return
		}
		redirectURI := qv.Get("redirect_uri")
		if redirectURI == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing redirect_uri parameter")
			return
		}
		// remember the challenge so /token can check the verifier
		p.lastCodeChallenge = qv.Get("code_challenge")

		redirectURI += "?state=" + url.QueryEscape(state) +
			"&code=" + url.QueryEscape(p.expectedAuthCode) +
			"&iss=" + url.QueryEscape(p.Addr())
		http.Redirect(w, req, redirectURI, http.StatusFound)

	case "/certs":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = p.writeJSON(w, TestJWKS(p.t, p.ecdsaPublicKey, p.kid))

	case "/token":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")

		p.lastDPoPProof = req.Header.Get("DPoP")
		if p.requireDPoP && p.lastDPoPProof == "" {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_dpop_proof", "missing DPoP header")
			return
		}

		switch req.FormValue("grant_type") {
		case "authorization_code":
			if !strutil.StrListContains(p.allowedRedirectURIs, req.FormValue("redirect_uri")) {
				_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not allowed")
				return
			}
			if req.FormValue("code") != p.expectedAuthCode {
				_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "unexpected auth code")
				return
			}
			if p.lastCodeChallenge != "" {
				verifier := req.FormValue("code_verifier")
				sum := sha256.Sum256([]byte(verifier))
				if base64.RawURLEncoding.EncodeToString(sum[:]) != p.lastCodeChallenge {
					_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "code_verifier does not match challenge")
					return
				}
			}
		case "refresh_token":
			if req.FormValue("refresh_token") != p.replyRefreshToken {
				_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_grant", "unexpected refresh token")
				return
			}
		default:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "bad grant_type")
			return
		}

		now := time.Now()
		stdClaims := jwt.Claims{
			Subject:   p.replySubject,
			Issuer:    p.Addr(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
			Expiry:    jwt.NewNumericDate(now.Add(time.Duration(p.replyExpiresIn) * time.Second)),
			Audience:  jwt.Audience{p.clientID},
		}
		if p.customAudience != "" {
			stdClaims.Audience = jwt.Audience{p.customAudience}
		}
		privateClaims := map[string]interface{}{
			"webid": p.WebID(),
		}
		for k, v := range p.customClaims {
			privateClaims[k] = v
		}
		jwtData := TestSignJWT(p.t, p.ecdsaPrivateKey, p.kid, stdClaims, privateClaims)

		reply := struct {
			AccessToken  string `json:"access_token"`
			IDToken      string `json:"id_token,omitempty"`
			RefreshToken string `json:"refresh_token,omitempty"`
			TokenType    string `json:"token_type"`
			ExpiresIn    int64  `json:"expires_in"`
		}{
			AccessToken:  jwtData,
			IDToken:      jwtData,
			RefreshToken: p.replyRefreshToken,
			TokenType:    "DPoP",
			ExpiresIn:    p.replyExpiresIn,
		}
		if p.omitIDToken {
			reply.IDToken = ""
		}
		if p.omitRefreshToken {
			reply.RefreshToken = ""
		}
		_ = p.writeJSON(w, &reply)

	case "/profile/card":
		if p.profileLinkHeader {
			w.Header().Set("Link", fmt.Sprintf(`<%s>; rel=%q`, p.Addr(), oidcIssuerRel))
		}
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "text/turtle")
		fmt.Fprintf(w, "@prefix solid: <http://www.w3.org/ns/solid/terms#>.\n\n<#me> solid:oidcIssuer <%s> .\n", p.Addr())

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
