package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-please-ignore"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims(expires time.Time) Claims {
	return Claims{
		ID:       "u1",
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
}

func TestTokenFromRequestSources(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?token=query", nil)
	token, err := TokenFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "query", token)

	req.Header.Set("Authorization", "Bearer header")
	token, err = TokenFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "header", token)

	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "cookie"})
	token, err = TokenFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "cookie", token)

	_, err = TokenFromRequest(httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestJWTResolverResolve(t *testing.T) {
	resolver, err := NewJWTResolver(testSecret)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.AddCookie(&http.Cookie{
		Name:  AccessTokenCookie,
		Value: sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(time.Now().Add(time.Hour))),
	})

	id, err := resolver.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u1", Username: "alice"}, id)
}

func TestJWTResolverRejects(t *testing.T) {
	resolver, err := NewJWTResolver(testSecret)
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
	}{
		{"expired", sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(time.Now().Add(-time.Hour)))},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other"), validClaims(time.Now().Add(time.Hour)))},
		{"wrong algorithm", sign(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims(time.Now().Add(time.Hour)))},
		{"no user", sign(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{})},
		{"garbage", "not-a-token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolver.Verify(tc.token)
			assert.Error(t, err)
		})
	}

	_, err = NewJWTResolver("")
	assert.Error(t, err)
}
