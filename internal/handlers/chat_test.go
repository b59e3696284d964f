package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"realtime-chat/internal/mocks"
	"realtime-chat/internal/models"
	"realtime-chat/internal/telemetry"
)

func setupChatRouter(handler *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "u1")
		c.Next()
	})
	r.GET("/users", handler.ListUsers)
	r.GET("/messages/public", handler.GetPublicMessages)
	r.GET("/messages/private/:user_id", handler.GetPrivateMessages)
	r.GET("/messages/unread", handler.GetUnreadMessages)
	return r
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListUsersIncludesViewerUnreadCounts(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	router := setupChatRouter(NewChatHandler(messageRepo, userRepo, 0))

	userRepo.On("List", mock.Anything).Return([]models.User{
		{ID: "u1", Username: "alice", Connected: true},
		{ID: "u2", Username: "bob"},
	}, nil).Once()
	messageRepo.On("UnreadCounts", mock.Anything, "u1").Return(map[string]int{"u2": 3}, nil).Once()

	rec := get(router, "/users")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.PresenceListPayload
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Users, 2)
	assert.Equal(t, 0, resp.Users[0].UnreadCount)
	assert.Equal(t, 3, resp.Users[1].UnreadCount)
	assert.False(t, resp.Users[1].Connected)

	messageRepo.AssertExpectations(t)
	userRepo.AssertExpectations(t)
}

func TestListUsersRepoError(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	router := setupChatRouter(NewChatHandler(new(mocks.MessageRepositoryMock), userRepo, 0))

	userRepo.On("List", mock.Anything).Return(([]models.User)(nil), assert.AnError).Once()

	rec := get(router, "/users")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	userRepo.AssertExpectations(t)
}

func TestGetPublicMessagesUsesLimit(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupChatRouter(NewChatHandler(messageRepo, new(mocks.UserRepositoryMock), 100))

	messageRepo.On("RecentPublic", mock.Anything, 100).Return(([]models.Message)(nil), nil).Once()
	messageRepo.On("RecentPublic", mock.Anything, 5).Return([]models.Message{{ID: "m1", Content: "hi"}}, nil).Once()

	rec := get(router, "/messages/public")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"messages":[]}`, rec.Body.String())

	rec = get(router, "/messages/public?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.PublicHistoryPayload
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 1)

	rec = get(router, "/messages/public?limit=abc")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	messageRepo.AssertExpectations(t)
}

func TestGetPrivateMessages(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupChatRouter(NewChatHandler(messageRepo, new(mocks.UserRepositoryMock), 0))

	messageRepo.On("RecentPrivate", mock.Anything, "u1", "u2", 0).Return([]models.Message{{ID: "m1"}}, nil).Once()

	rec := get(router, "/messages/private/u2")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.PrivateHistoryPayload
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "u2", resp.CounterpartID)
	assert.Len(t, resp.Messages, 1)

	rec = get(router, "/messages/private/u1")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	messageRepo.AssertExpectations(t)
}

func TestGetUnreadMessages(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupChatRouter(NewChatHandler(messageRepo, new(mocks.UserRepositoryMock), 0))

	messageRepo.On("UnreadFor", mock.Anything, "u1").Return(([]models.Message)(nil), assert.AnError).Once()
	messageRepo.On("UnreadFor", mock.Anything, "u1").Return(([]models.Message)(nil), nil).Once()

	rec := get(router, "/messages/unread")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = get(router, "/messages/unread")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"messages":[]}`, rec.Body.String())

	messageRepo.AssertExpectations(t)
}

func TestDebugAuditRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.chat", "realtime-chat", "test", nil)
	r := gin.New()
	RegisterDebugRoutes(r, emitter, true)

	publisher.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.RequestID == "req-9" && env.UserID != nil && *env.UserID == "u7"
	})).Return(nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil)
	req.Header.Set("X-Request-ID", "req-9")
	req.Header.Set("X-User-ID", "u7")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	publisher.AssertExpectations(t)
}

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, false)

	rec := get(r, "/debug/audit-test")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
