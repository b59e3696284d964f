package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	keys   []string
	events []any
}

func (r *recordingPublisher) Publish(_ context.Context, routingKey string, event any) error {
	r.keys = append(r.keys, routingKey)
	r.events = append(r.events, event)
	return nil
}

func TestAuditEmitterPublishesEnvelope(t *testing.T) {
	pub := &recordingPublisher{}
	emitter := NewAuditEmitter(pub, "audit.chat", "realtime-chat", "test", nil)
	userID := "u1"

	emitter.Emit(context.Background(), "info", "hello", "req-1", &userID)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "audit.chat", pub.keys[0])
	envelope, ok := pub.events[0].(AuditEnvelope)
	require.True(t, ok)
	assert.Equal(t, "audit_log", envelope.EventType)
	assert.Equal(t, "realtime-chat", envelope.Service)
	assert.Equal(t, "req-1", envelope.RequestID)
	assert.Equal(t, "u1", *envelope.UserID)
	assert.Equal(t, AuditPayload{Level: "info", Text: "hello"}, envelope.Payload)
}

func TestNilAuditEmitterIsSafe(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "info", "x", "", nil)
	})
}
