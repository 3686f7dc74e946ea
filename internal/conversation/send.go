package conversation

import (
	"context"

	"go.uber.org/zap"

	"messaging-client/internal/messaging"
	"messaging-client/internal/model"
	"messaging-client/internal/timer"
)

type SendOptions struct {
	InReplyToMessageID string
	Language           string
}

// SendMessage posts text to the open conversation and returns the id it was
// sent under. A failed send is kept as the failed message so it can be
// retried.
func (e *Engine) SendMessage(ctx context.Context, text string, opts SendOptions) (string, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if !e.isOpen() {
		return "", ErrNotOpen
	}

	pm := PendingMessage{
		ConversationID:     e.store.ConversationID(),
		MessageID:          e.newID(),
		Text:               text,
		InReplyToMessageID: opts.InReplyToMessageID,
		Language:           opts.Language,
	}
	return pm.MessageID, e.send(ctx, pm)
}

func (e *Engine) send(ctx context.Context, pm PendingMessage) error {
	e.addPending(pm)
	e.stopUserTyping()

	err := e.api.SendMessage(ctx, pm.ConversationID, messaging.OutgoingMessage{
		ID:                    pm.MessageID,
		Text:                  pm.Text,
		InReplyToMessageID:    pm.InReplyToMessageID,
		IsNewMessagingSession: pm.IsNewMessagingSession,
		RoutingAttributes:     pm.RoutingAttributes,
		Language:              pm.Language,
	})
	if err != nil {
		e.logger.Error("failed to send message", zap.String("messageId", pm.MessageID), zap.Error(err))
		e.mu.Lock()
		e.removePendingLocked(pm.MessageID)
		failed := pm
		e.failed = &failed
		e.mu.Unlock()
		e.publish()
		return e.handleError(err)
	}

	e.confirmPending(pm.MessageID)
	e.logger.Debug("sent message", zap.String("messageId", pm.MessageID))
	e.publish()
	return nil
}

// RetryFailed re-sends the failed message under its original id and returns
// that id. A failure keeps it as the failed message.
func (e *Engine) RetryFailed(ctx context.Context) (string, error) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if !e.isOpen() {
		return "", ErrNotOpen
	}
	e.mu.Lock()
	awaiting := e.awaitingPrechat
	var failed PendingMessage
	hasFailed := e.failed != nil
	if hasFailed {
		failed = *e.failed
	}
	e.mu.Unlock()
	switch {
	case !hasFailed:
		return "", newError(ErrorCodeConflict, "no failed message to retry", nil)
	case awaiting:
		return "", newError(ErrorCodeConflict, "pre-chat form must be submitted first", nil)
	}

	failed.ConversationID = e.store.ConversationID()
	e.logger.Info("retrying failed message", zap.String("messageId", failed.MessageID))
	return failed.MessageID, e.send(ctx, failed)
}

// SubmitPrechat completes a start that is waiting on the pre-chat form. The
// values become routing attributes. A message that failed because the
// messaging session had ended is re-sent as the first message of a new
// session instead of creating a conversation.
func (e *Engine) SubmitPrechat(ctx context.Context, values map[string]string) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	awaiting := e.awaitingPrechat
	var failed *PendingMessage
	if e.failed != nil {
		f := *e.failed
		failed = &f
	}
	e.mu.Unlock()
	if !awaiting {
		return newError(ErrorCodeConflict, "pre-chat form is not expected", nil)
	}

	if err := e.prechatConfig().Validate(values); err != nil {
		return newError(ErrorCodeValidation, "invalid pre-chat values", err)
	}
	attrs := make(map[string]string, len(values))
	for k, v := range values {
		attrs[k] = v
	}

	switch {
	case failed != nil && e.isOpen():
		failed.IsNewMessagingSession = true
		failed.RoutingAttributes = attrs
		if err := e.send(ctx, *failed); err != nil {
			return err
		}
	case !e.isOpen():
		if err := e.createConversation(ctx, attrs); err != nil {
			return err
		}
		e.mu.Lock()
		subscribed := e.sub != nil
		e.mu.Unlock()
		if !subscribed {
			if err := e.subscribe(ctx); err != nil {
				return err
			}
		}
	}

	e.mu.Lock()
	e.awaitingPrechat = false
	e.mu.Unlock()
	e.publish()
	return nil
}

// UserTyping records a keystroke from the end user. The first keystroke of a
// burst sends a typing started indicator; a stopped indicator follows once
// the user has been idle for the typing timeout.
func (e *Engine) UserTyping(ctx context.Context) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if !e.isOpen() {
		return ErrNotOpen
	}

	e.mu.Lock()
	if e.userTyping != nil {
		e.userTyping.Reset(e.now())
		e.mu.Unlock()
		return nil
	}
	var opts []timer.Option
	if e.afterFunc != nil {
		opts = append(opts, timer.WithAfterFunc(e.afterFunc))
	}
	var countdown *timer.Countdown
	countdown = timer.NewCountdown(e.typingTimeout, func() {
		e.enqueue(context.Background(), func() { e.userTypingExpired(countdown) })
	}, e.now(), opts...)
	e.userTyping = countdown
	countdown.Start()
	e.mu.Unlock()

	return e.sendTyping(ctx, model.EntryTypeTypingStartedIndicator)
}

func (e *Engine) userTypingExpired(countdown *timer.Countdown) {
	e.mu.Lock()
	if e.userTyping != countdown || !countdown.Finished() {
		e.mu.Unlock()
		return
	}
	e.userTyping = nil
	e.mu.Unlock()

	if !e.isOpen() {
		return
	}
	conversationID := e.store.ConversationID()
	e.goBackground(func(life context.Context) {
		ctx, cancel := context.WithTimeout(life, e.requestTimeout)
		defer cancel()
		err := e.api.SendTypingIndicator(ctx, conversationID, model.EntryTypeTypingStoppedIndicator)
		if err == nil || life.Err() != nil {
			return
		}
		e.logger.Warn("failed to send typing indicator",
			zap.String("entryType", string(model.EntryTypeTypingStoppedIndicator)), zap.Error(err))
		e.enqueue(life, func() {
			if e.isShutdown() || !e.isOpen() || e.store.ConversationID() != conversationID {
				return
			}
			_ = e.handleError(err)
		})
	})
}

// stopUserTyping ends a typing burst early, as sending a message does.
func (e *Engine) stopUserTyping() {
	e.mu.Lock()
	countdown := e.userTyping
	e.userTyping = nil
	e.mu.Unlock()
	if countdown == nil {
		return
	}
	countdown.Cancel()
}

// SendTypingIndicator sends a started or stopped indicator directly.
func (e *Engine) SendTypingIndicator(ctx context.Context, started bool) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if !e.isOpen() {
		return ErrNotOpen
	}
	if !started {
		e.stopUserTyping()
		return e.sendTyping(ctx, model.EntryTypeTypingStoppedIndicator)
	}
	return e.sendTyping(ctx, model.EntryTypeTypingStartedIndicator)
}

func (e *Engine) sendTyping(ctx context.Context, entryType model.EntryType) error {
	if err := e.api.SendTypingIndicator(ctx, e.store.ConversationID(), entryType); err != nil {
		e.logger.Warn("failed to send typing indicator", zap.String("entryType", string(entryType)), zap.Error(err))
		return e.handleError(err)
	}
	return nil
}

// End closes the open conversation. Local state is cleared even when the
// close request fails.
func (e *Engine) End(ctx context.Context) error {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	if !e.isOpen() {
		return ErrNotOpen
	}
	id := e.store.ConversationID()
	if err := e.api.CloseConversation(ctx, id); err != nil {
		e.logger.Error("failed to close conversation", zap.String("conversationId", id), zap.Error(err))
	} else {
		e.logger.Info("closed conversation", zap.String("conversationId", id))
	}
	e.cleanup()
	return nil
}

func (e *Engine) addPending(pm PendingMessage) {
	e.mu.Lock()
	if _, ok := e.pending[pm.MessageID]; !ok {
		e.pendingOrder = append(e.pendingOrder, pm.MessageID)
	}
	e.pending[pm.MessageID] = pm
	e.mu.Unlock()
	e.publish()
}

// confirmPending drops a message from the in-flight set once the send
// succeeded or the server echoed it.
func (e *Engine) confirmPending(messageID string) {
	e.mu.Lock()
	e.removePendingLocked(messageID)
	if e.failed != nil && e.failed.MessageID == messageID {
		e.failed = nil
	}
	e.mu.Unlock()
}

func (e *Engine) removePendingLocked(messageID string) {
	if _, ok := e.pending[messageID]; !ok {
		return
	}
	delete(e.pending, messageID)
	for i, id := range e.pendingOrder {
		if id == messageID {
			e.pendingOrder = append(e.pendingOrder[:i:i], e.pendingOrder[i+1:]...)
			break
		}
	}
}
