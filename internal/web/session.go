package web

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionCookie = "solidauth_session"

const sessionTTL = time.Hour

// sessionData is carried between the register and redirect handlers
// in a signed cookie, since the callback request has nothing but the
// state value to go on.
type sessionData struct {
	Provider      string
	RedirectAfter string
}

type sessionClaims struct {
	Provider      string `json:"provider,omitempty"`
	RedirectAfter string `json:"redirect_after,omitempty"`
	jwt.RegisteredClaims
}

// setSession signs the session data with the configured secret and
// stores it in a cookie.
func setSession(w http.ResponseWriter, secret string, data sessionData) error {
	const op = "web.setSession"
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Provider:      data.Provider,
		RedirectAfter: data.RedirectAfter,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return nil
}

// getSession reads and verifies the session cookie. A missing or
// invalid cookie returns empty data, not an error; the handlers treat
// both the same way.
func getSession(r *http.Request, secret string) sessionData {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return sessionData{}
	}
	var claims sessionClaims
	_, err = jwt.ParseWithClaims(cookie.Value, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return sessionData{}
	}
	return sessionData{Provider: claims.Provider, RedirectAfter: claims.RedirectAfter}
}
