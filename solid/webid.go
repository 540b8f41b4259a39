package solid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

// oidcIssuerRel is the link relation a Solid pod uses to advertise a WebID's
// OpenID Provider.
const oidcIssuerRel = "http://openid.net/specs/connect/1.0/issuer"

// solidOIDCIssuerIRI is the predicate used for the same statement inside a
// WebID profile document.
const solidOIDCIssuerIRI = "http://www.w3.org/ns/solid/terms#oidcIssuer"

// LookupProviderFromProfile finds the OpenID Provider for a WebID, e.g.
// https://alice.coolpod.example/profile/card#me.
//
// It first issues an OPTIONS request and looks for a Link header with the
// issuer rel. When the header is absent it fetches the profile document and
// scans it for a solid:oidcIssuer statement (Turtle or JSON-LD). A profile
// that can't be found returns ErrNoProvider.
func LookupProviderFromProfile(ctx context.Context, client *http.Client, profileURL string) (string, error) {
	const op = "solid.LookupProviderFromProfile"
	if profileURL == "" {
		return "", fmt.Errorf("%s: profile URL is empty: %w", op, ErrInvalidParameter)
	}
	if client == nil {
		return "", fmt.Errorf("%s: http client is nil: %w", op, ErrNilParameter)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, profileURL, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: options request failed: %w", op, err)
	}
	resp.Body.Close()
	if issuer := linkHeaderValue(resp.Header.Values("Link"), oidcIssuerRel); issuer != "" {
		return issuer, nil
	}

	// No rel in the options response. Fetch the profile document itself and
	// find its issuer.
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "text/turtle, application/ld+json;q=0.9")
	resp, err = client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: profile request failed: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%s: no profile at %s: %w", op, profileURL, ErrNoProvider)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%s: unexpected status %d fetching profile: %w", op, resp.StatusCode, ErrNoProvider)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%s: unable to read profile: %w", op, err)
	}
	if issuer := issuerFromProfile(resp.Header.Get("Content-Type"), body); issuer != "" {
		return issuer, nil
	}
	return "", fmt.Errorf("%s: profile has no oidcIssuer: %w", op, ErrNoProvider)
}

// IsWebID reports whether a URL is a WebID (a profile that names an issuer)
// as opposed to being a provider URL itself.
func IsWebID(ctx context.Context, client *http.Client, rawURL string) bool {
	provider, err := LookupProviderFromProfile(ctx, client, rawURL)
	if err != nil {
		return false
	}
	return provider != ""
}

// linkHeaderValue parses Link headers (RFC 8288 subset: <uri>; rel="...")
// and returns the target of the first link with the wanted rel.
func linkHeaderValue(headers []string, rel string) string {
	for _, header := range headers {
		for _, link := range strings.Split(header, ",") {
			parts := strings.Split(link, ";")
			if len(parts) < 2 {
				continue
			}
			target := strings.TrimSpace(parts[0])
			if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
				continue
			}
			for _, param := range parts[1:] {
				k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
				if !ok || !strings.EqualFold(strings.TrimSpace(k), "rel") {
					continue
				}
				if strings.Trim(strings.TrimSpace(v), `"`) == rel {
					return strings.Trim(target, "<>")
				}
			}
		}
	}
	return ""
}

// turtleIssuerRe matches a solid:oidcIssuer statement in a Turtle document,
// whether written with the full IRI or the common solid: prefix, and captures
// the object IRI. This is not an RDF parser; it's the minimal extraction the
// discovery step needs, and profile documents in the wild keep this statement
// on a single line.
var turtleIssuerRe = regexp.MustCompile(`(?:<` + regexp.QuoteMeta(solidOIDCIssuerIRI) + `>|solid:oidcIssuer)\s+<([^>]+)>`)

// issuerFromProfile extracts the oidcIssuer object from a profile document.
func issuerFromProfile(contentType string, body []byte) string {
	if strings.Contains(contentType, "json") {
		return issuerFromJSONLD(body)
	}
	if m := turtleIssuerRe.FindSubmatch(body); m != nil {
		return string(m[1])
	}
	return ""
}

// issuerFromJSONLD walks a JSON-LD profile looking for the oidcIssuer
// property in either expanded or compacted form.
func issuerFromJSONLD(body []byte) string {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	return findIssuerNode(doc)
}

func findIssuerNode(node interface{}) string {
	switch v := node.(type) {
	case map[string]interface{}:
		for k, val := range v {
			if k == solidOIDCIssuerIRI || k == "solid:oidcIssuer" || k == "oidcIssuer" {
				return issuerObjectValue(val)
			}
		}
		for _, val := range v {
			if found := findIssuerNode(val); found != "" {
				return found
			}
		}
	case []interface{}:
		for _, item := range v {
			if found := findIssuerNode(item); found != "" {
				return found
			}
		}
	}
	return ""
}

func issuerObjectValue(val interface{}) string {
	switch v := val.(type) {
	case string:
		return v
	case map[string]interface{}:
		if id, ok := v["@id"].(string); ok {
			return id
		}
	case []interface{}:
		if len(v) > 0 {
			return issuerObjectValue(v[0])
		}
	}
	return ""
}
