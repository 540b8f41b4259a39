package web

import (
	"hash/adler32"
	"strconv"
	"strings"
)

// clientIDDocument is the JSON-LD document served for URL-based client
// ids, per the Solid-OIDC client identifier spec.
type clientIDDocument struct {
	Context                []string `json:"@context"`
	ClientID               string   `json:"client_id"`
	ClientName             string   `json:"client_name"`
	RedirectURIs           []string `json:"redirect_uris"`
	PostLogoutRedirectURIs []string `json:"post_logout_redirect_uris"`
	ClientURI              string   `json:"client_uri"`
	LogoURI                string   `json:"logo_uri"`
	TOSURI                 string   `json:"tos_uri"`
	Scope                  string   `json:"scope"`
	GrantTypes             []string `json:"grant_types"`
	ResponseTypes          []string `json:"response_types"`
	DefaultMaxAge          int      `json:"default_max_age"`
	RequireAuthTime        bool     `json:"require_auth_time"`
}

const solidOIDCContext = "https://www.w3.org/ns/solid/oidc-context.jsonld"

func ensureTrailingSlash(url string) string {
	if strings.HasSuffix(url, "/") {
		return url
	}
	return url + "/"
}

// ClientURLForIssuer derives a stable client id document URL for an
// issuer. The path component only needs to be deterministic per
// issuer, a short checksum keeps the URL readable.
func ClientURLForIssuer(baseURL, issuer string) string {
	sum := adler32.Checksum([]byte(issuer))
	return ensureTrailingSlash(baseURL) + "client/" + strconv.FormatUint(uint64(sum), 10) + ".jsonld"
}

// newClientIDDocument builds the document served at a client id URL.
// Every field that the document advertises has to match what the auth
// request sends, providers reject the request otherwise.
func newClientIDDocument(baseURL, clientName, redirectURL, cid string) clientIDDocument {
	base := ensureTrailingSlash(baseURL)
	return clientIDDocument{
		Context:                []string{solidOIDCContext},
		ClientID:               base + "client/" + cid + ".jsonld",
		ClientName:             clientName,
		RedirectURIs:           []string{redirectURL},
		PostLogoutRedirectURIs: []string{base + "logout"},
		ClientURI:              base,
		LogoURI:                base + "logo.png",
		TOSURI:                 base + "tos.html",
		Scope:                  "openid webid offline_access",
		GrantTypes:             []string{"refresh_token", "authorization_code"},
		ResponseTypes:          []string{"code"},
		DefaultMaxAge:          3600,
		RequireAuthTime:        true,
	}
}
