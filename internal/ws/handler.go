package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"realtime-chat/internal/apperror"
	"realtime-chat/internal/identity"
	"realtime-chat/internal/models"
	"realtime-chat/internal/observability"
)

// Engine is the protocol state machine the transport feeds.
type Engine interface {
	Open(connID string, id identity.Identity, resolveErr error)
	Dispatch(ctx context.Context, connID string, env models.Envelope)
	Rebind(ctx context.Context, connID string)
	Close(ctx context.Context, connID string)
}

// Handler upgrades /ws requests and runs one read loop per connection.
type Handler struct {
	hub      *Hub
	engine   Engine
	resolver identity.Resolver
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler constructs a Handler. allowedOrigin "" or "*" accepts any origin.
func NewHandler(hub *Hub, engine Engine, resolver identity.Resolver, allowedOrigin string, logger *slog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		engine:   engine,
		resolver: resolver,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
	}
}

// Handle upgrades the connection and registers it with the engine. A request
// whose identity cannot be resolved is still upgraded; the engine rejects
// its announce.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("realtime-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	id, resolveErr := h.resolver.Resolve(ctx, c.Request)
	if resolveErr != nil {
		h.logger.Debug("websocket identity unresolved", "error", resolveErr)
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      id.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.Register(conn, info)
	h.engine.Open(info.ConnID, id, resolveErr)

	observability.IncWSActive(observability.WSKind)
	publishWSEvent(ctx, "ws_connect", info, "")

	// The request context ends when Handle returns; the connection outlives it.
	connCtx := context.WithoutCancel(ctx)
	if c.Query("resume") == "1" {
		h.engine.Rebind(connCtx, info.ConnID)
	}

	go h.readLoop(connCtx, conn, info)
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.engine.Close(ctx, info.ConnID)
		h.hub.Unregister(info.ConnID)
		observability.DecWSActive(observability.WSKind)
		publishWSEvent(ctx, "ws_disconnect", info, closeReason)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				publishWSEvent(ctx, "ws_error", info, closeReason)
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			observability.IncProtocolError(apperror.CodeValidation)
			_ = h.hub.Send(info.ConnID, models.Event{Type: models.EventProtocolError, Payload: models.ProtocolErrorPayload{
				Code:   apperror.CodeValidation,
				Reason: "malformed frame",
			}})
			continue
		}
		h.engine.Dispatch(ctx, info.ConnID, env)
	}
}
