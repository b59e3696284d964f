// Package memory keeps both store contracts in process memory. It backs the
// engine tests and STORE_DRIVER=memory; nothing survives a restart.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"realtime-chat/internal/models"
	"realtime-chat/internal/repositories"
)

// MessageStore is an in-memory repositories.MessageRepository.
type MessageStore struct {
	mu       sync.RWMutex
	seq      int64
	messages []*models.Message
	byID     map[string]*models.Message
}

// NewMessageStore returns an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{byID: make(map[string]*models.Message)}
}

func clone(msg *models.Message) models.Message {
	out := *msg
	out.ReadBy = slices.Clone(msg.ReadBy)
	if msg.RecipientID != nil {
		recipient := *msg.RecipientID
		out.RecipientID = &recipient
	}
	if msg.ReadAt != nil {
		readAt := *msg.ReadAt
		out.ReadAt = &readAt
	}
	return out.Normalize()
}

func (s *MessageStore) Append(_ context.Context, msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	stored := clone(&msg)
	stored.Seq = s.seq
	s.messages = append(s.messages, &stored)
	s.byID[stored.ID] = &stored
	return clone(&stored), nil
}

func (s *MessageStore) Get(_ context.Context, messageID string) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.byID[messageID]
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return clone(msg), nil
}

// newest collects up to limit matches walking backwards, then restores
// chronological order.
func (s *MessageStore) newest(limit int, match func(*models.Message) bool) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Message{}
	for i := len(s.messages) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if match(s.messages[i]) {
			out = append(out, clone(s.messages[i]))
		}
	}
	slices.Reverse(out)
	return out
}

func (s *MessageStore) RecentPublic(_ context.Context, limit int) ([]models.Message, error) {
	return s.newest(limit, func(m *models.Message) bool { return !m.IsPrivate }), nil
}

func (s *MessageStore) RecentPrivate(_ context.Context, userA, userB string, limit int) ([]models.Message, error) {
	return s.newest(limit, func(m *models.Message) bool {
		if !m.IsPrivate {
			return false
		}
		to := m.Recipient()
		return (m.SenderID == userA && to == userB) || (m.SenderID == userB && to == userA)
	}), nil
}

func unread(m *models.Message, readerID string) bool {
	return m.IsPrivate && m.Recipient() == readerID && !m.IsReadBy(readerID)
}

func (s *MessageStore) UnreadFor(_ context.Context, userID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Message{}
	for _, m := range s.messages {
		if unread(m, userID) {
			out = append(out, clone(m))
		}
	}
	return out, nil
}

func (s *MessageStore) UnreadCounts(_ context.Context, userID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[string]int{}
	for _, m := range s.messages {
		if unread(m, userID) {
			counts[m.SenderID]++
		}
	}
	return counts, nil
}

func (s *MessageStore) MarkRead(_ context.Context, messageID, readerID string, at time.Time) (models.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.byID[messageID]
	if !ok {
		return models.Message{}, false, repositories.ErrMessageNotFound
	}
	changed := markLocked(msg, readerID, at)
	return clone(msg), changed, nil
}

func (s *MessageStore) MarkAllReadFrom(_ context.Context, readerID, senderID string, at time.Time) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := []models.Message{}
	for _, m := range s.messages {
		if m.SenderID == senderID && unread(m, readerID) && markLocked(m, readerID, at) {
			changed = append(changed, clone(m))
		}
	}
	return changed, nil
}

func markLocked(msg *models.Message, readerID string, at time.Time) bool {
	if msg.IsReadBy(readerID) {
		return false
	}
	msg.ReadBy = append(msg.ReadBy, readerID)
	readAt := at
	msg.ReadAt = &readAt
	return true
}

var _ repositories.MessageRepository = (*MessageStore)(nil)
