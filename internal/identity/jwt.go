package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the access token payload issued by the auth service.
type Claims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTResolver verifies HS256 access tokens locally with the shared secret.
type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(secret string) (*JWTResolver, error) {
	if secret == "" {
		return nil, errors.New("identity: JWT secret is empty")
	}
	return &JWTResolver{secret: []byte(secret)}, nil
}

func (j *JWTResolver) Resolve(_ context.Context, r *http.Request) (Identity, error) {
	token, err := TokenFromRequest(r)
	if err != nil {
		return Identity{}, err
	}
	return j.Verify(token)
}

// Verify parses a raw token and returns the identity it carries.
func (j *JWTResolver) Verify(tokenStr string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, errors.New("identity: token expired")
		}
		return Identity{}, fmt.Errorf("identity: invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, errors.New("identity: invalid token claims")
	}
	if claims.ID == "" || claims.Username == "" {
		return Identity{}, errors.New("identity: token has no user")
	}
	return Identity{UserID: claims.ID, Username: claims.Username}, nil
}
