package web

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientURLForIssuer(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	u := ClientURLForIssuer("https://auth.example.com", "https://op.example")
	assert.Regexp(`^https://auth\.example\.com/client/\d+\.jsonld$`, u)

	// deterministic per issuer, regardless of base URL spelling
	assert.Equal(u, ClientURLForIssuer("https://auth.example.com/", "https://op.example"))
	assert.NotEqual(u, ClientURLForIssuer("https://auth.example.com", "https://other-op.example"))
}

func Test_newClientIDDocument(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	doc := newClientIDDocument("https://auth.example.com", "solidauth", "https://auth.example.com/redirect", "12345")
	assert.Equal([]string{solidOIDCContext}, doc.Context)
	assert.Equal("https://auth.example.com/client/12345.jsonld", doc.ClientID)
	assert.Equal("solidauth", doc.ClientName)
	assert.Equal([]string{"https://auth.example.com/redirect"}, doc.RedirectURIs)
	assert.Equal("openid webid offline_access", doc.Scope)
	assert.ElementsMatch([]string{"authorization_code", "refresh_token"}, doc.GrantTypes)
	assert.Equal([]string{"code"}, doc.ResponseTypes)
	assert.Equal(3600, doc.DefaultMaxAge)
	assert.True(doc.RequireAuthTime)
}

func Test_ensureTrailingSlash(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	assert.Equal("https://a.example/", ensureTrailingSlash("https://a.example"))
	assert.Equal("https://a.example/", ensureTrailingSlash("https://a.example/"))
}
