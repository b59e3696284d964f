package chat

import (
	"context"
	"time"

	"realtime-chat/internal/models"
	"realtime-chat/internal/repositories"
)

// Reconciler derives unread backlogs, per-viewer presence lists and read
// receipts from the current store state. Nothing is cached between calls.
type Reconciler struct {
	messages repositories.MessageRepository
	now      func() time.Time
}

func NewReconciler(messages repositories.MessageRepository) *Reconciler {
	return &Reconciler{messages: messages, now: time.Now}
}

// UnreadBacklog returns every private message addressed to userID that it
// has not read, oldest first.
func (r *Reconciler) UnreadBacklog(ctx context.Context, userID string) ([]models.Message, error) {
	msgs, err := r.messages.UnreadFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return orEmpty(msgs), nil
}

// PresenceFor builds the presence list as viewerID sees it: every known
// user plus how many unread messages viewerID has from each of them.
func (r *Reconciler) PresenceFor(ctx context.Context, viewerID string, users []models.User) ([]models.PresenceEntry, error) {
	counts, err := r.messages.UnreadCounts(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	entries := make([]models.PresenceEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, models.PresenceEntry{
			UserID:      u.ID,
			Username:    u.Username,
			Connected:   u.Connected,
			LastSeenAt:  u.LastSeenAt,
			UnreadCount: counts[u.ID],
		})
	}
	return entries, nil
}

// MarkConversationRead marks everything senderID sent to readerID as read
// and returns the receipts owed to senderID, one per message this call
// changed.
func (r *Reconciler) MarkConversationRead(ctx context.Context, readerID, senderID string) ([]models.ReadReceiptPayload, error) {
	changed, err := r.messages.MarkAllReadFrom(ctx, readerID, senderID, r.now().UTC())
	if err != nil {
		return nil, err
	}
	receipts := make([]models.ReadReceiptPayload, 0, len(changed))
	for _, msg := range changed {
		receipts = append(receipts, Receipt(msg))
	}
	return receipts, nil
}

// Receipt is the read-receipt payload describing msg's current read state.
func Receipt(msg models.Message) models.ReadReceiptPayload {
	return models.ReadReceiptPayload{
		MessageID: msg.ID,
		ReadBy:    msg.Normalize().ReadBy,
		ReadAt:    msg.ReadAt,
	}
}

func orEmpty(msgs []models.Message) []models.Message {
	if msgs == nil {
		return []models.Message{}
	}
	return msgs
}
