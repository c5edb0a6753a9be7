package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const cookieName = "access_token"

var ErrTokenExpired = errors.New("access token expired")

// Token is the session access token issued by the auth service. The
// client never verifies the signature; it only reads the expiry so it
// can stop reconnecting with credentials the server will reject.
type Token string

// ExpiresAt returns the exp claim. ok is false for empty, opaque or
// claim-less tokens.
func (t Token) ExpiresAt() (time.Time, bool) {
	if t == "" {
		return time.Time{}, false
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(string(t), claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Check returns ErrTokenExpired when the token carries an exp claim in the past.
func (t Token) Check(now time.Time) error {
	exp, ok := t.ExpiresAt()
	if ok && !now.Before(exp) {
		return ErrTokenExpired
	}
	return nil
}

// Apply attaches the token both as the access_token cookie and as a
// bearer header, mirroring the two places ExtractAccessToken looks.
func (t Token) Apply(h http.Header) {
	if t == "" {
		return
	}
	h.Add("Cookie", (&http.Cookie{Name: cookieName, Value: string(t)}).String())
	h.Set("Authorization", "Bearer "+string(t))
}

func ExtractAccessToken(r *http.Request) string {
	// 1️⃣ Cookie (preferred)
	if cookie, err := r.Cookie(cookieName); err == nil {
		if cookie.Value != "" {
			return cookie.Value
		}
	}

	// 2️⃣ Authorization header (fallback)
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}
