// Package identity resolves the authenticated user behind an incoming
// connection or request. Token issuance lives in the auth service.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// AccessTokenCookie is the cookie the auth service sets on login.
const AccessTokenCookie = "accessToken"

var ErrMissingToken = errors.New("missing access token")

// Identity is a verified user.
type Identity struct {
	UserID   string
	Username string
}

// Resolver authenticates an HTTP request (including websocket upgrades).
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) (Identity, error)
}

// TokenFromRequest extracts the access token from the cookie, a bearer
// Authorization header or the token query parameter, in that order.
func TokenFromRequest(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") && parts[1] != "" {
			return parts[1], nil
		}
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", ErrMissingToken
}
