package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAccessToken(t *testing.T) {
	t.Run("Cookie Preferred", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: "cookie_token"})
		// Add header as well to ensure cookie takes precedence
		req.Header.Set("Authorization", "Bearer header_token")

		token := ExtractAccessToken(req)
		assert.Equal(t, "cookie_token", token)
	})

	t.Run("Header Fallback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer header_token")

		token := ExtractAccessToken(req)
		assert.Equal(t, "header_token", token)
	})

	t.Run("Empty Cookie Falls Back to Header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: ""})
		req.Header.Set("Authorization", "Bearer header_token")

		token := ExtractAccessToken(req)
		assert.Equal(t, "header_token", token)
	})

	t.Run("No Token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		token := ExtractAccessToken(req)
		assert.Empty(t, token)
	})

	t.Run("Malformed Header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic user:pass")

		token := ExtractAccessToken(req)
		assert.Empty(t, token)
	})
}

func signed(t *testing.T, claims jwt.Claims) Token {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return Token(s)
}

func TestToken_ExpiresAt(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("WithExp", func(t *testing.T) {
		tok := signed(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)})

		got, ok := tok.ExpiresAt()
		assert.True(t, ok)
		assert.True(t, exp.Equal(got))
	})

	t.Run("WithoutExp", func(t *testing.T) {
		tok := signed(t, jwt.RegisteredClaims{Subject: "user-1"})

		_, ok := tok.ExpiresAt()
		assert.False(t, ok)
	})

	t.Run("Opaque", func(t *testing.T) {
		_, ok := Token("not-a-jwt").ExpiresAt()
		assert.False(t, ok)

		_, ok = Token("").ExpiresAt()
		assert.False(t, ok)
	})
}

func TestToken_Check(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	expired := signed(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))})
	assert.ErrorIs(t, expired.Check(now), ErrTokenExpired)

	valid := signed(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))})
	assert.NoError(t, valid.Check(now))

	assert.NoError(t, Token("opaque").Check(now))
}

func TestToken_Apply(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		Token("abc").Apply(req.Header)

		assert.Equal(t, "abc", ExtractAccessToken(req))
		assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
	})

	t.Run("Empty", func(t *testing.T) {
		h := make(http.Header)
		Token("").Apply(h)
		assert.Empty(t, h)
	})
}
