package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"realtime-chat/internal/models"
	"realtime-chat/internal/repositories"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) RecentPublic(ctx context.Context, limit int) ([]models.Message, error) {
	args := m.Called(ctx, limit)
	return messages(args.Get(0)), args.Error(1)
}

func (m *MessageRepositoryMock) RecentPrivate(ctx context.Context, userA, userB string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, userA, userB, limit)
	return messages(args.Get(0)), args.Error(1)
}

func (m *MessageRepositoryMock) UnreadFor(ctx context.Context, userID string) ([]models.Message, error) {
	args := m.Called(ctx, userID)
	return messages(args.Get(0)), args.Error(1)
}

func (m *MessageRepositoryMock) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	args := m.Called(ctx, userID)
	var counts map[string]int
	if val := args.Get(0); val != nil {
		counts = val.(map[string]int)
	}
	return counts, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, messageID, readerID string, at time.Time) (models.Message, bool, error) {
	args := m.Called(ctx, messageID, readerID, at)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Bool(1), args.Error(2)
}

func (m *MessageRepositoryMock) MarkAllReadFrom(ctx context.Context, readerID, senderID string, at time.Time) ([]models.Message, error) {
	args := m.Called(ctx, readerID, senderID, at)
	return messages(args.Get(0)), args.Error(1)
}

func messages(val any) []models.Message {
	if val == nil {
		return nil
	}
	return val.([]models.Message)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) Get(ctx context.Context, userID string) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) Bind(ctx context.Context, userID, username, connID string) (string, error) {
	args := m.Called(ctx, userID, username, connID)
	return args.String(0), args.Error(1)
}

func (m *UserRepositoryMock) Unbind(ctx context.Context, connID string, at time.Time) (models.User, bool, error) {
	args := m.Called(ctx, connID, at)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Bool(1), args.Error(2)
}

func (m *UserRepositoryMock) SetConnected(ctx context.Context, userID string, connected bool) error {
	args := m.Called(ctx, userID, connected)
	return args.Error(0)
}

func (m *UserRepositoryMock) List(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

var (
	_ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
	_ repositories.UserRepository    = (*UserRepositoryMock)(nil)
)
