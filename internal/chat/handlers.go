package chat

import (
	"context"
	"errors"
	"strings"

	"realtime-chat/internal/apperror"
	"realtime-chat/internal/models"
	"realtime-chat/internal/observability"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/selection"
)

func (e *Engine) announce(ctx context.Context, sess Session, req models.AnnounceIdentityRequest) error {
	if sess.State == Bound {
		return apperror.ProtocolViolation("connection already announced an identity")
	}
	if !sess.resolved() {
		return apperror.SessionInvalid("identity could not be verified")
	}
	displayName, err := requireText("display_name", req.DisplayName)
	if err != nil {
		return err
	}
	if displayName != sess.Identity.Username {
		return apperror.SessionInvalid("display name does not match the authenticated user")
	}
	return e.bind(ctx, sess, displayName)
}

func (e *Engine) sendPublic(ctx context.Context, sess Session, req models.SendPublicMessageRequest) error {
	text, err := requireText("text", req.Text)
	if err != nil {
		return err
	}

	msg, err := e.messages.Append(ctx, models.NewPublicMessage(e.newID(), sess.UserID, sess.DisplayName, text, e.now().UTC()))
	if err != nil {
		return err
	}
	observability.IncMessage("public")

	ev := models.Event{Type: models.EventPublicMessage, Payload: msg}
	for _, bound := range e.boundSessions() {
		e.send(bound.ConnID, ev)
	}
	return nil
}

func (e *Engine) sendPrivate(ctx context.Context, sess Session, req models.SendPrivateMessageRequest) error {
	text, err := requireText("text", req.Text)
	if err != nil {
		return err
	}
	targetID, err := requireUserID("target_user_id", req.TargetUserID)
	if err != nil {
		return err
	}
	if targetID == sess.UserID {
		return apperror.ValidationFailed("target_user_id", "cannot send a private message to yourself")
	}

	targetConn, online, err := e.liveConnection(ctx, targetID)
	if err != nil {
		return err
	}
	if !online {
		return apperror.NotFound("connected user", targetID)
	}

	now := e.now().UTC()
	msg := models.NewPrivateMessage(e.newID(), sess.UserID, sess.DisplayName, targetID, text, now)
	viewing := e.selections.IsViewing(targetConn, sess.UserID)
	if viewing {
		msg.ReadBy = []string{targetID}
		msg.ReadAt = &now
	}

	msg, err = e.messages.Append(ctx, msg)
	if err != nil {
		return err
	}
	observability.IncMessage("private")

	ev := models.Event{Type: models.EventPrivateMessage, Payload: msg}
	e.send(targetConn, ev)
	e.send(sess.ConnID, ev)

	if viewing {
		e.send(sess.ConnID, models.Event{Type: models.EventMessageReadReceipt, Payload: Receipt(msg)})
	} else if err := e.sendUnreadBacklog(ctx, targetConn, targetID); err != nil {
		return err
	}

	e.broadcastPresence(ctx)
	return nil
}

func (e *Engine) selectCounterpart(ctx context.Context, sess Session, req models.SelectCounterpartRequest) error {
	if req.TargetUserID == nil || strings.TrimSpace(*req.TargetUserID) == "" {
		e.selections.Set(sess.ConnID, selection.Public)
		return nil
	}
	targetID, err := requireUserID("target_user_id", *req.TargetUserID)
	if err != nil {
		return err
	}
	if targetID == sess.UserID {
		return apperror.ValidationFailed("target_user_id", "cannot select yourself")
	}

	e.selections.Set(sess.ConnID, targetID)

	history, err := e.messages.RecentPrivate(ctx, sess.UserID, targetID, e.cfg.RecentPrivateLimit)
	if err != nil {
		return err
	}
	e.send(sess.ConnID, models.Event{Type: models.EventPrivateHistoryLoaded, Payload: models.PrivateHistoryPayload{
		CounterpartID: targetID,
		Messages:      orEmpty(history),
	}})

	return e.readConversation(ctx, sess, targetID)
}

func (e *Engine) clearUnread(ctx context.Context, sess Session, req models.ClearUnreadRequest) error {
	targetID, err := requireUserID("target_user_id", req.TargetUserID)
	if err != nil {
		return err
	}
	return e.readConversation(ctx, sess, targetID)
}

// readConversation marks everything counterpartID sent to the session user
// as read, then refreshes the receipts, the backlog and presence it affects.
func (e *Engine) readConversation(ctx context.Context, sess Session, counterpartID string) error {
	receipts, err := e.reconciler.MarkConversationRead(ctx, sess.UserID, counterpartID)
	if err != nil {
		return err
	}
	if err := e.sendReceipts(ctx, counterpartID, receipts); err != nil {
		return err
	}
	if err := e.sendUnreadBacklog(ctx, sess.ConnID, sess.UserID); err != nil {
		return err
	}
	e.broadcastPresence(ctx)
	return nil
}

func (e *Engine) markMessageRead(ctx context.Context, sess Session, req models.MarkMessageReadRequest) error {
	messageID, err := requireMessageID(req.MessageID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(req.UserID) != sess.UserID {
		return apperror.Unauthorized("user_id does not match the connection's identity")
	}

	msg, err := e.messages.Get(ctx, messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return apperror.NotFound("message", messageID)
	}
	if err != nil {
		return err
	}
	if !msg.IsPrivate || msg.Recipient() != sess.UserID {
		return apperror.NotFound("message", messageID)
	}
	if msg.IsReadBy(sess.UserID) {
		return nil
	}

	updated, changed, err := e.messages.MarkRead(ctx, messageID, sess.UserID, e.now().UTC())
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return e.sendReceipts(ctx, updated.SenderID, []models.ReadReceiptPayload{Receipt(updated)})
}

func (e *Engine) typing(ctx context.Context, sess Session, req models.TypingRequest, stopped bool) error {
	eventType := models.EventTypingIndicator
	if stopped {
		eventType = models.EventTypingStopped
	}
	payload := models.TypingPayload{DisplayName: sess.DisplayName, FromUserID: sess.UserID}

	if req.TargetUserID != nil && strings.TrimSpace(*req.TargetUserID) != "" {
		targetID, err := requireUserID("target_user_id", *req.TargetUserID)
		if err != nil {
			return err
		}
		payload.TargetUserID = &targetID
		targetConn, online, err := e.liveConnection(ctx, targetID)
		if err != nil || !online {
			return err
		}
		e.send(targetConn, models.Event{Type: eventType, Payload: payload})
		return nil
	}

	ev := models.Event{Type: eventType, Payload: payload}
	for _, bound := range e.boundSessions() {
		if bound.ConnID != sess.ConnID {
			e.send(bound.ConnID, ev)
		}
	}
	return nil
}

func (e *Engine) fetchPublicHistory(ctx context.Context, sess Session) error {
	msgs, err := e.messages.RecentPublic(ctx, e.cfg.HistoryLimit)
	if err != nil {
		return err
	}
	e.send(sess.ConnID, models.Event{Type: models.EventPublicHistoryLoaded, Payload: models.PublicHistoryPayload{Messages: orEmpty(msgs)}})
	return nil
}

func (e *Engine) fetchPrivateHistory(ctx context.Context, sess Session, req models.FetchPrivateHistoryRequest) error {
	if selfID := strings.TrimSpace(req.SelfID); selfID != "" && selfID != sess.UserID {
		return apperror.Unauthorized("self_id does not match the connection's identity")
	}
	targetID, err := requireUserID("target_user_id", req.TargetUserID)
	if err != nil {
		return err
	}

	msgs, err := e.messages.RecentPrivate(ctx, sess.UserID, targetID, e.cfg.HistoryLimit)
	if err != nil {
		return err
	}
	e.send(sess.ConnID, models.Event{Type: models.EventPrivateHistoryLoaded, Payload: models.PrivateHistoryPayload{
		CounterpartID: targetID,
		Messages:      orEmpty(msgs),
	}})
	return nil
}

func (e *Engine) updateConnectionStatus(ctx context.Context, sess Session, req models.UpdateConnectionStatusRequest) error {
	if req.Connected == nil {
		return apperror.ValidationFailed("connected", "connected is required")
	}
	if err := e.users.SetConnected(ctx, sess.UserID, *req.Connected); err != nil {
		return err
	}
	e.broadcastPresence(ctx)
	return nil
}
