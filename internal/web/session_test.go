package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requestWithSession signs the data and attaches the resulting cookie
// to a fresh request.
func requestWithSession(t *testing.T, secret string, data sessionData) *http.Request {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, setSession(rec, secret, data))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodGet, "/redirect", nil)
	req.AddCookie(cookies[0])
	return req
}

func TestSession(t *testing.T) {
	t.Parallel()
	const secret = "test-secret"

	t.Run("roundtrip", func(t *testing.T) {
		assert := assert.New(t)
		req := requestWithSession(t, secret, sessionData{
			Provider:      "https://op.example",
			RedirectAfter: "/done",
		})
		sess := getSession(req, secret)
		assert.Equal("https://op.example", sess.Provider)
		assert.Equal("/done", sess.RedirectAfter)
	})
	t.Run("missing-cookie", func(t *testing.T) {
		assert := assert.New(t)
		req := httptest.NewRequest(http.MethodGet, "/redirect", nil)
		assert.Equal(sessionData{}, getSession(req, secret))
	})
	t.Run("wrong-secret", func(t *testing.T) {
		assert := assert.New(t)
		req := requestWithSession(t, secret, sessionData{Provider: "https://op.example"})
		assert.Equal(sessionData{}, getSession(req, "a-different-secret"))
	})
	t.Run("garbage-cookie", func(t *testing.T) {
		assert := assert.New(t)
		req := httptest.NewRequest(http.MethodGet, "/redirect", nil)
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "not-a-jwt"})
		assert.Equal(sessionData{}, getSession(req, secret))
	})
}
