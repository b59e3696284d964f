package models

import (
	"slices"
	"time"
)

// Message is a public or private chat message. Only ReadBy and ReadAt
// change after creation.
type Message struct {
	ID          string     `bson:"_id" json:"id"`
	Seq         int64      `bson:"seq" json:"seq"`
	Content     string     `bson:"content" json:"content"`
	SenderID    string     `bson:"sender_id" json:"sender_id"`
	SenderName  string     `bson:"sender_name" json:"sender_name"`
	RecipientID *string    `bson:"recipient_id" json:"recipient_id"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	IsPrivate   bool       `bson:"is_private" json:"is_private"`
	ReadBy      []string   `bson:"read_by" json:"read_by"`
	ReadAt      *time.Time `bson:"read_at" json:"read_at"`
}

// NewPublicMessage builds an unsaved broadcast message.
func NewPublicMessage(id, senderID, senderName, content string, at time.Time) Message {
	return Message{
		ID:         id,
		Content:    content,
		SenderID:   senderID,
		SenderName: senderName,
		CreatedAt:  at,
		ReadBy:     []string{},
	}
}

// NewPrivateMessage builds an unsaved message addressed to recipientID.
func NewPrivateMessage(id, senderID, senderName, recipientID, content string, at time.Time) Message {
	msg := NewPublicMessage(id, senderID, senderName, content, at)
	msg.RecipientID = &recipientID
	msg.IsPrivate = true
	return msg
}

// Recipient returns the recipient user id, or "" for public messages.
func (m Message) Recipient() string {
	if m.RecipientID == nil {
		return ""
	}
	return *m.RecipientID
}

// IsReadBy reports whether userID has seen the message.
func (m Message) IsReadBy(userID string) bool {
	return slices.Contains(m.ReadBy, userID)
}

// Normalize fills nil slices so the JSON form always carries read_by: [].
func (m Message) Normalize() Message {
	if m.ReadBy == nil {
		m.ReadBy = []string{}
	}
	return m
}
