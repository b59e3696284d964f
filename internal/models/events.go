package models

import (
	"encoding/json"
	"time"
)

// Inbound event types (connection -> server).
const (
	EventAnnounceIdentity       = "announce-identity"
	EventSendPublicMessage      = "send-public-message"
	EventSendPrivateMessage     = "send-private-message"
	EventSelectCounterpart      = "select-counterpart"
	EventClearUnread            = "clear-unread"
	EventMarkMessageRead        = "mark-message-read"
	EventTyping                 = "typing"
	EventStopTyping             = "stop-typing"
	EventFetchPublicHistory     = "fetch-public-history"
	EventFetchPrivateHistory    = "fetch-private-history"
	EventUpdateConnectionStatus = "update-connection-status"
)

// Outbound event types (server -> connections).
const (
	EventPresenceList         = "presence-list"
	EventPublicMessage        = "public-message"
	EventPrivateMessage       = "private-message"
	EventUnreadBacklog        = "unread-backlog"
	EventTypingIndicator      = "typing-indicator"
	EventTypingStopped        = "typing-stopped"
	EventMessageReadReceipt   = "message-read-receipt"
	EventIdentityRejected     = "identity-rejected"
	EventProtocolError        = "protocol-error"
	EventPublicHistoryLoaded  = "public-history-loaded"
	EventPrivateHistoryLoaded = "private-history-loaded"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is an outbound event before encoding.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type AnnounceIdentityRequest struct {
	DisplayName string `json:"display_name"`
}

type SendPublicMessageRequest struct {
	Text string `json:"text"`
}

type SendPrivateMessageRequest struct {
	Text         string `json:"text"`
	TargetUserID string `json:"target_user_id"`
}

// SelectCounterpartRequest selects a private conversation; a null target
// returns the connection to the public chat.
type SelectCounterpartRequest struct {
	TargetUserID *string `json:"target_user_id"`
}

type ClearUnreadRequest struct {
	TargetUserID string `json:"target_user_id"`
}

type MarkMessageReadRequest struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
}

type TypingRequest struct {
	DisplayName  string  `json:"display_name"`
	TargetUserID *string `json:"target_user_id,omitempty"`
}

type FetchPrivateHistoryRequest struct {
	SelfID       string `json:"self_id"`
	TargetUserID string `json:"target_user_id"`
}

type UpdateConnectionStatusRequest struct {
	Connected *bool `json:"connected"`
}

type PresenceListPayload struct {
	Users []PresenceEntry `json:"users"`
}

type UnreadBacklogPayload struct {
	Messages []Message `json:"messages"`
}

type TypingPayload struct {
	DisplayName  string  `json:"display_name,omitempty"`
	FromUserID   string  `json:"from_user_id"`
	TargetUserID *string `json:"target_user_id"`
}

type ReadReceiptPayload struct {
	MessageID string     `json:"message_id"`
	ReadBy    []string   `json:"read_by"`
	ReadAt    *time.Time `json:"read_at"`
}

type IdentityRejectedPayload struct {
	Reason string `json:"reason"`
}

type ProtocolErrorPayload struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type PublicHistoryPayload struct {
	Messages []Message `json:"messages"`
}

type PrivateHistoryPayload struct {
	CounterpartID string    `json:"counterpart_id"`
	Messages      []Message `json:"messages"`
}
