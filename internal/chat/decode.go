package chat

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"realtime-chat/internal/apperror"
)

// decode unmarshals an event payload. An absent or null payload decodes to
// the zero request.
func decode[T any](raw json.RawMessage) (T, error) {
	var req T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return req, nil
	}
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return req, apperror.ValidationFailed("payload", "malformed payload")
	}
	return req, nil
}

func requireText(field, value string) (string, error) {
	text := strings.TrimSpace(value)
	if text == "" {
		return "", apperror.ValidationFailed(field, field+" must not be empty")
	}
	return text, nil
}

func requireUserID(field, value string) (string, error) {
	id := strings.TrimSpace(value)
	if id == "" {
		return "", apperror.ValidationFailed(field, field+" is required")
	}
	if strings.ContainsAny(id, " \t\r\n$") {
		return "", apperror.ValidationFailed(field, field+" is malformed")
	}
	return id, nil
}

func requireMessageID(value string) (string, error) {
	id := strings.TrimSpace(value)
	if _, err := uuid.Parse(id); err != nil {
		return "", apperror.ValidationFailed("message_id", "message_id is malformed")
	}
	return id, nil
}
