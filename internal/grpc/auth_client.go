package grpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"realtime-chat/internal/identity"
)

// ValidateTokenMethod is the auth-service RPC used to verify access tokens.
const ValidateTokenMethod = "/auth.AuthService/ValidateToken"

var ErrInvalidToken = errors.New("invalid token")

// AuthClient resolves identities through the auth-service over gRPC.
type AuthClient struct {
	conn grpc.ClientConnInterface
}

// NewAuthClient constructs the wrapper.
func NewAuthClient(conn grpc.ClientConnInterface) *AuthClient {
	return &AuthClient{conn: conn}
}

// ValidateToken verifies the token and returns the user it belongs to.
func (a *AuthClient) ValidateToken(ctx context.Context, token string) (identity.Identity, error) {
	resp := &structpb.Struct{}
	if err := a.conn.Invoke(ctx, ValidateTokenMethod, wrapperspb.String(token), resp); err != nil {
		return identity.Identity{}, fmt.Errorf("validate token: %w", err)
	}

	fields := resp.GetFields()
	if !fields["valid"].GetBoolValue() {
		return identity.Identity{}, ErrInvalidToken
	}
	userID := stringField(fields["user_id"])
	username := fields["username"].GetStringValue()
	if userID == "" || username == "" {
		return identity.Identity{}, ErrInvalidToken
	}
	return identity.Identity{UserID: userID, Username: username}, nil
}

// Resolve implements identity.Resolver.
func (a *AuthClient) Resolve(ctx context.Context, r *http.Request) (identity.Identity, error) {
	token, err := identity.TokenFromRequest(r)
	if err != nil {
		return identity.Identity{}, err
	}
	return a.ValidateToken(ctx, token)
}

// stringField accepts ids sent either as strings or as JSON numbers.
func stringField(v *structpb.Value) string {
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return kind.StringValue
	case *structpb.Value_NumberValue:
		if kind.NumberValue == 0 {
			return ""
		}
		return strconv.FormatInt(int64(kind.NumberValue), 10)
	default:
		return ""
	}
}
