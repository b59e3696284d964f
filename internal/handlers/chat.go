package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"realtime-chat/internal/chat"
	"realtime-chat/internal/models"
	"realtime-chat/internal/repositories"
)

// ChatHandler serves read-only REST views of presence and message history.
type ChatHandler struct {
	messageRepo  repositories.MessageRepository
	userRepo     repositories.UserRepository
	reconciler   *chat.Reconciler
	historyLimit int
}

// NewChatHandler builds a ChatHandler. historyLimit is the default page
// size; <= 0 returns the full history.
func NewChatHandler(messageRepo repositories.MessageRepository, userRepo repositories.UserRepository, historyLimit int) *ChatHandler {
	return &ChatHandler{
		messageRepo:  messageRepo,
		userRepo:     userRepo,
		reconciler:   chat.NewReconciler(messageRepo),
		historyLimit: historyLimit,
	}
}

// ListUsers returns the presence list as the caller sees it.
func (h *ChatHandler) ListUsers(c *gin.Context) {
	userID := c.GetString("userID")

	users, err := h.userRepo.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}

	entries, err := h.reconciler.PresenceFor(c.Request.Context(), userID, users)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load unread counts"})
		return
	}

	c.JSON(http.StatusOK, models.PresenceListPayload{Users: entries})
}

// GetPublicMessages returns recent public messages oldest first.
func (h *ChatHandler) GetPublicMessages(c *gin.Context) {
	limit, ok := h.limit(c)
	if !ok {
		return
	}

	msgs, err := h.messageRepo.RecentPublic(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, models.PublicHistoryPayload{Messages: nonNil(msgs)})
}

// GetPrivateMessages returns the conversation between the caller and :user_id.
func (h *ChatHandler) GetPrivateMessages(c *gin.Context) {
	userID := c.GetString("userID")
	counterpartID := strings.TrimSpace(c.Param("user_id"))
	if counterpartID == "" || counterpartID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	limit, ok := h.limit(c)
	if !ok {
		return
	}

	msgs, err := h.messageRepo.RecentPrivate(c.Request.Context(), userID, counterpartID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, models.PrivateHistoryPayload{CounterpartID: counterpartID, Messages: nonNil(msgs)})
}

// GetUnreadMessages returns the caller's unread backlog.
func (h *ChatHandler) GetUnreadMessages(c *gin.Context) {
	userID := c.GetString("userID")

	msgs, err := h.reconciler.UnreadBacklog(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load unread messages"})
		return
	}

	c.JSON(http.StatusOK, models.UnreadBacklogPayload{Messages: msgs})
}

func (h *ChatHandler) limit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return h.historyLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return 0, false
	}
	return limit, true
}

func nonNil(msgs []models.Message) []models.Message {
	if msgs == nil {
		return []models.Message{}
	}
	return msgs
}
