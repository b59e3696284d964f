package grpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type fakeConn struct {
	method string
	token  string
	resp   map[string]any
	err    error
}

func (f *fakeConn) Invoke(_ context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	f.method = method
	f.token = args.(*wrapperspb.StringValue).GetValue()
	if f.err != nil {
		return f.err
	}
	resp, err := structpb.NewStruct(f.resp)
	if err != nil {
		return err
	}
	proto.Merge(reply.(proto.Message), resp)
	return nil
}

func (f *fakeConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, assert.AnError
}

func TestValidateTokenSuccess(t *testing.T) {
	conn := &fakeConn{resp: map[string]any{"valid": true, "user_id": "u1", "username": "alice"}}
	client := NewAuthClient(conn)

	id, err := client.ValidateToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, "alice", id.Username)
	assert.Equal(t, ValidateTokenMethod, conn.method)
	assert.Equal(t, "tok", conn.token)
}

func TestValidateTokenNumericID(t *testing.T) {
	client := NewAuthClient(&fakeConn{resp: map[string]any{"valid": true, "user_id": 42, "username": "bob"}})

	id, err := client.ValidateToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "42", id.UserID)
}

func TestValidateTokenRejected(t *testing.T) {
	client := NewAuthClient(&fakeConn{resp: map[string]any{"valid": false}})
	_, err := client.ValidateToken(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrInvalidToken)

	client = NewAuthClient(&fakeConn{err: assert.AnError})
	_, err = client.ValidateToken(context.Background(), "tok")
	assert.ErrorIs(t, err, assert.AnError)
}

func TestResolveReadsBearerHeader(t *testing.T) {
	conn := &fakeConn{resp: map[string]any{"valid": true, "user_id": "u1", "username": "alice"}}
	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer abc")

	_, err := NewAuthClient(conn).Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "abc", conn.token)
}
