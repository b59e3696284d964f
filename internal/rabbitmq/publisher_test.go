package rabbitmq

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"realtime-chat/internal/telemetry"
)

func TestNewPublisherWithoutURLIsNoop(t *testing.T) {
	p := NewPublisher("", "chat.events", slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Equal(t, "noop", PublisherMode(p))
	assert.Equal(t, "empty amqp url", PublisherNoopReason(p))
	assert.NoError(t, p.Publish(context.Background(), "audit.chat", telemetry.AuditEnvelope{EventType: "audit_log"}))
	assert.NoError(t, p.PublishJSON(context.Background(), "ws_events.chats", map[string]string{"a": "b"}, map[string]string{"x-request-id": "r"}))
	assert.NoError(t, p.Close())
}
