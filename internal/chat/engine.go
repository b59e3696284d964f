// Package chat implements the realtime protocol: per-connection session
// state, the inbound event handlers and the outbound fan-out they trigger.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"realtime-chat/internal/apperror"
	"realtime-chat/internal/identity"
	"realtime-chat/internal/models"
	"realtime-chat/internal/observability"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/selection"
	"realtime-chat/internal/telemetry"
)

// eventRebind names the transport-initiated rebind in logs, spans and errors.
const eventRebind = "rebind"

// Transport delivers an outbound event to one live connection. Delivery is
// best effort; a failed send is never retried.
type Transport interface {
	Send(connID string, ev models.Event) error
}

// Config bounds the message windows replayed to connections. A limit <= 0
// means unbounded.
type Config struct {
	RecentPublicLimit  int
	RecentPrivateLimit int
	HistoryLimit       int
}

// DefaultConfig matches the windows the web client expects.
func DefaultConfig() Config {
	return Config{RecentPublicLimit: 50, RecentPrivateLimit: 50}
}

type Deps struct {
	Messages  repositories.MessageRepository
	Users     repositories.UserRepository
	Transport Transport
	Audit     *telemetry.AuditEmitter
	Logger    *slog.Logger
}

// Engine is the only mutator of chat state in response to connection
// events and the only emitter of outbound events.
type Engine struct {
	messages   repositories.MessageRepository
	users      repositories.UserRepository
	transport  Transport
	selections *selection.Map
	reconciler *Reconciler
	audit      *telemetry.AuditEmitter
	logger     *slog.Logger
	tracer     trace.Tracer
	cfg        Config

	now   func() time.Time
	newID func() string

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewEngine(deps Deps, cfg Config) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		messages:   deps.Messages,
		users:      deps.Users,
		transport:  deps.Transport,
		selections: selection.New(),
		reconciler: NewReconciler(deps.Messages),
		audit:      deps.Audit,
		logger:     logger.With("component", "chat"),
		tracer:     otel.Tracer("realtime-chat/chat"),
		cfg:        cfg,
		now:        time.Now,
		newID:      uuid.NewString,
		sessions:   make(map[string]*Session),
	}
}

// Selections exposes the selection map for inspection.
func (e *Engine) Selections() *selection.Map {
	return e.selections
}

// Open registers a new Unbound connection viewing the public chat. id is
// the identity resolved at upgrade time; resolveErr is kept so announce can
// report why binding is impossible.
func (e *Engine) Open(connID string, id identity.Identity, resolveErr error) {
	e.mu.Lock()
	e.sessions[connID] = &Session{
		ConnID:     connID,
		State:      Unbound,
		Identity:   id,
		ResolveErr: resolveErr,
	}
	e.mu.Unlock()
	e.selections.Set(connID, selection.Public)
}

// Session returns a copy of the session for connID.
func (e *Engine) Session(connID string) (Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sess, ok := e.sessions[connID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Dispatch runs one inbound event for connID. Errors never escape: they are
// turned into a targeted identity-rejected or protocol-error event.
func (e *Engine) Dispatch(ctx context.Context, connID string, env models.Envelope) {
	sess, ok := e.Session(connID)
	if !ok {
		e.logger.Debug("event for unknown connection dropped", "conn_id", connID, "event", env.Type)
		return
	}
	observability.IncWSEvent(observability.WSKind, env.Type)

	e.run(ctx, sess, env.Type, func(ctx context.Context) error {
		if env.Type != models.EventAnnounceIdentity && sess.State != Bound {
			return apperror.SessionInvalid("connection has not announced an identity")
		}
		return e.route(ctx, sess, env)
	})
}

// Rebind binds a resumed connection with its resolved identity without
// waiting for a new announce.
func (e *Engine) Rebind(ctx context.Context, connID string) {
	sess, ok := e.Session(connID)
	if !ok {
		return
	}
	e.run(ctx, sess, eventRebind, func(ctx context.Context) error {
		if sess.State == Bound {
			return nil
		}
		if !sess.resolved() {
			return apperror.SessionInvalid("identity could not be verified")
		}
		return e.bind(ctx, sess, sess.Identity.Username)
	})
}

func (e *Engine) run(ctx context.Context, sess Session, event string, fn func(context.Context) error) {
	ctx, span := e.tracer.Start(ctx, "chat."+event, trace.WithAttributes(
		attribute.String("chat.conn_id", sess.ConnID),
		attribute.String("chat.user_id", sess.UserID),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("handler panic: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			e.reportError(sess.ConnID, event, err)
		}
	}()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperror.Code(err))
		e.reportError(sess.ConnID, event, err)
	}
}

func (e *Engine) route(ctx context.Context, sess Session, env models.Envelope) error {
	switch env.Type {
	case models.EventAnnounceIdentity:
		req, err := decode[models.AnnounceIdentityRequest](env.Payload)
		if err != nil {
			return err
		}
		return e.announce(ctx, sess, req)
	case models.EventSendPublicMessage:
		req, err := decode[models.SendPublicMessageRequest](env.Payload)
		if err != nil {
			return err
		}
		return e.sendPublic(ctx, sess, req)
	case models.EventSendPrivateMessage:
		req, err := decode[models.SendPrivateMessageRequest](env.Payload)
		if err != nil {
			return err
		}
		return e.sendPrivate(ctx, sess, req)
	case models.EventSelectCounterpart:
		req, err := decode[models.SelectCounterpartRequest](env.Payload)
		if err != nil {
			return err
		}
		return e.selectCounterpart(ctx, sess, req)
	case models.EventClearUnread:
		req, err := decode[models.ClearUnreadRequest](env.Payload)
		if err != nil {
			return err
		}
		return e.clearUnread(ctx, sess, req)
	case models.EventMarkMessageRead:
		req, err := decode[models.MarkMessageReadRequest](env.Payload)
		if err != nil {
			return err
		}
		return e.markMessageRead(ctx, sess, req)
	case models.EventTyping, models.EventStopTyping:
		req, err := decode[models.TypingRequest](env.Payload)
		if err != nil {
			return err
		}
		return e.typing(ctx, sess, req, env.Type == models.EventStopTyping)
	case models.EventFetchPublicHistory:
		return e.fetchPublicHistory(ctx, sess)
	case models.EventFetchPrivateHistory:
		req, err := decode[models.FetchPrivateHistoryRequest](env.Payload)
		if err != nil {
			return err
		}
		return e.fetchPrivateHistory(ctx, sess, req)
	case models.EventUpdateConnectionStatus:
		req, err := decode[models.UpdateConnectionStatusRequest](env.Payload)
		if err != nil {
			return err
		}
		return e.updateConnectionStatus(ctx, sess, req)
	default:
		return apperror.ProtocolViolation(fmt.Sprintf("unknown event type %q", env.Type))
	}
}

// Close moves connID to Closed, releases its selection and binding and
// tells everyone else. It is safe to call at any time and more than once.
func (e *Engine) Close(ctx context.Context, connID string) {
	e.mu.Lock()
	sess, ok := e.sessions[connID]
	if !ok {
		e.mu.Unlock()
		return
	}
	sess.State = Closed
	userID := sess.UserID
	delete(e.sessions, connID)
	e.mu.Unlock()

	e.selections.Delete(connID)

	user, unbound, err := e.users.Unbind(ctx, connID, e.now().UTC())
	if err != nil {
		e.logger.Error("unbind failed", "conn_id", connID, "user_id", userID, "error", err)
		return
	}
	if !unbound {
		return
	}
	e.auditEvent(ctx, "info", "user disconnected", user.ID)
	e.broadcastPresence(ctx)
}

// Shutdown closes every open session.
func (e *Engine) Shutdown(ctx context.Context) {
	e.mu.RLock()
	connIDs := make([]string, 0, len(e.sessions))
	for connID := range e.sessions {
		connIDs = append(connIDs, connID)
	}
	e.mu.RUnlock()

	for _, connID := range connIDs {
		e.Close(ctx, connID)
	}
}

// bind attaches the session to its resolved identity in the directory,
// demoting any connection the user was bound to before.
func (e *Engine) bind(ctx context.Context, sess Session, displayName string) error {
	userID := sess.Identity.UserID
	previous, err := e.users.Bind(ctx, userID, sess.Identity.Username, sess.ConnID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	current, ok := e.sessions[sess.ConnID]
	if !ok || current.State == Closed {
		e.mu.Unlock()
		// Closed while binding: undo so the directory does not point at a dead connection.
		_, _, err := e.users.Unbind(ctx, sess.ConnID, e.now().UTC())
		return err
	}
	current.State = Bound
	current.UserID = userID
	current.DisplayName = displayName

	demoted := false
	if prev, ok := e.sessions[previous]; ok && previous != sess.ConnID && prev.State == Bound && prev.UserID == userID {
		prev.State = Unbound
		prev.UserID = ""
		prev.DisplayName = ""
		demoted = true
	}
	e.mu.Unlock()

	if demoted {
		e.selections.Set(previous, selection.Public)
		e.send(previous, protocolError(apperror.SessionInvalid("session superseded by a newer connection")))
	}

	backlog, err := e.reconciler.UnreadBacklog(ctx, userID)
	if err != nil {
		return err
	}
	recent, err := e.messages.RecentPublic(ctx, e.cfg.RecentPublicLimit)
	if err != nil {
		return err
	}
	e.send(sess.ConnID, models.Event{Type: models.EventUnreadBacklog, Payload: models.UnreadBacklogPayload{Messages: backlog}})
	e.send(sess.ConnID, models.Event{Type: models.EventPublicHistoryLoaded, Payload: models.PublicHistoryPayload{Messages: orEmpty(recent)}})

	e.auditEvent(ctx, "info", "user connected", userID)
	e.broadcastPresence(ctx)
	return nil
}

// boundSessions snapshots every Bound session.
func (e *Engine) boundSessions() []Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Session, 0, len(e.sessions))
	for _, sess := range e.sessions {
		if sess.State == Bound {
			out = append(out, *sess)
		}
	}
	return out
}

// liveConnection finds the connection userID is bound to, if that
// connection is open and bound on this engine.
func (e *Engine) liveConnection(ctx context.Context, userID string) (string, bool, error) {
	user, err := e.users.Get(ctx, userID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	connID, ok := user.ActiveConnection()
	if !ok {
		return "", false, nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	sess, ok := e.sessions[connID]
	if !ok || sess.State != Bound || sess.UserID != userID {
		return "", false, nil
	}
	return connID, true, nil
}

// broadcastPresence sends every bound connection its own view of the
// presence list.
func (e *Engine) broadcastPresence(ctx context.Context) {
	users, err := e.users.List(ctx)
	if err != nil {
		e.logger.Error("presence list failed", "error", err)
		return
	}
	for _, sess := range e.boundSessions() {
		entries, err := e.reconciler.PresenceFor(ctx, sess.UserID, users)
		if err != nil {
			e.logger.Error("presence derivation failed", "user_id", sess.UserID, "error", err)
			continue
		}
		e.send(sess.ConnID, models.Event{Type: models.EventPresenceList, Payload: models.PresenceListPayload{Users: entries}})
	}
}

// sendReceipts notifies senderID's live connection, if any.
func (e *Engine) sendReceipts(ctx context.Context, senderID string, receipts []models.ReadReceiptPayload) error {
	if len(receipts) == 0 {
		return nil
	}
	connID, ok, err := e.liveConnection(ctx, senderID)
	if err != nil || !ok {
		return err
	}
	for _, receipt := range receipts {
		e.send(connID, models.Event{Type: models.EventMessageReadReceipt, Payload: receipt})
	}
	return nil
}

func (e *Engine) sendUnreadBacklog(ctx context.Context, connID, userID string) error {
	backlog, err := e.reconciler.UnreadBacklog(ctx, userID)
	if err != nil {
		return err
	}
	e.send(connID, models.Event{Type: models.EventUnreadBacklog, Payload: models.UnreadBacklogPayload{Messages: backlog}})
	return nil
}

func (e *Engine) send(connID string, ev models.Event) {
	if err := e.transport.Send(connID, ev); err != nil {
		e.logger.Debug("send dropped", "conn_id", connID, "event", ev.Type, "error", err)
	}
}

// reportError tells the originating connection what went wrong. Identity
// failures while binding are fatal to the client; everything else is not.
func (e *Engine) reportError(connID, event string, err error) {
	code := apperror.Code(err)
	observability.IncProtocolError(code)

	if code == apperror.CodeInternal {
		e.logger.Error("event failed", "conn_id", connID, "event", event, "error", err)
	} else {
		e.logger.Debug("event rejected", "conn_id", connID, "event", event, "code", code, "reason", err.Error())
	}

	if code == apperror.CodeSessionInvalid && (event == models.EventAnnounceIdentity || event == eventRebind) {
		e.send(connID, models.Event{Type: models.EventIdentityRejected, Payload: models.IdentityRejectedPayload{Reason: apperror.Message(err)}})
		return
	}
	e.send(connID, protocolError(err))
}

func protocolError(err error) models.Event {
	return models.Event{Type: models.EventProtocolError, Payload: models.ProtocolErrorPayload{
		Code:   apperror.Code(err),
		Reason: apperror.Message(err),
	}}
}

func (e *Engine) auditEvent(ctx context.Context, level, text, userID string) {
	if e.audit == nil {
		return
	}
	e.audit.Emit(ctx, level, text, "", &userID)
}
