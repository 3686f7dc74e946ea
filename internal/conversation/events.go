package conversation

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"messaging-client/internal/entry"
	"messaging-client/internal/eventsource"
	"messaging-client/internal/messaging"
	"messaging-client/internal/model"
)

var streamEvents = []string{
	model.EventConversationMessage,
	model.EventConversationRoutingResult,
	model.EventConversationParticipantChanged,
	model.EventConversationTypingStartedIndicator,
	model.EventConversationTypingStoppedIndicator,
	model.EventConversationDeliveryAcknowledgement,
	model.EventConversationReadAcknowledgement,
	model.EventConversationCloseConversation,
}

// subscribe opens the event stream for the current session, replacing any
// previous subscription. Stream callbacks are queued on the event loop.
func (e *Engine) subscribe(ctx context.Context) error {
	e.closeSubscription()

	subCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.subCancel = cancel
	e.mu.Unlock()

	handlers := make(map[string]eventsource.Handler, len(streamEvents))
	for _, name := range streamEvents {
		handlers[name] = func(ev eventsource.Event) {
			e.enqueue(subCtx, func() { e.handleEvent(subCtx, ev) })
		}
	}

	sub, err := e.opener.Open(ctx, SubscribeParams{
		URL:      messaging.EventRouterURL(e.store.MessagingBaseURL()),
		Header:   e.streamHeader,
		Handlers: handlers,
		OnFailure: func(err error) {
			e.enqueue(subCtx, func() { e.handleStreamFailure(subCtx, err) })
		},
	})
	if err != nil {
		cancel()
		e.logger.Error("failed to open event stream", zap.Error(err))
		return e.handleError(err)
	}

	e.mu.Lock()
	if subCtx.Err() != nil {
		e.mu.Unlock()
		_ = sub.Close()
		return newError(ErrorCodeSessionEnded, "session ended while opening the event stream", nil)
	}
	e.sub = sub
	e.ready = true
	e.mu.Unlock()

	e.logger.Info("subscribed to event stream", zap.String("conversationId", e.store.ConversationID()))
	e.publish()
	if e.onReady != nil {
		e.onReady()
	}
	return nil
}

func (e *Engine) streamHeader() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+e.store.AccessToken())
	h.Set("X-Org-Id", e.store.OrganizationID())
	if id := e.store.LastEventID(); id != "" {
		h.Set("Last-Event-Id", id)
	}
	return h
}

func (e *Engine) enqueue(ctx context.Context, fn func()) {
	if err := e.dispatcher.Enqueue(ctx, fn); err != nil {
		e.logger.Debug("dropping stream callback", zap.Error(err))
	}
}

// handleEvent runs on the event loop. Events from a replaced or closed
// subscription are dropped.
func (e *Engine) handleEvent(subCtx context.Context, ev eventsource.Event) {
	if subCtx.Err() != nil {
		return
	}
	logger := e.logger.With(zap.String("event", ev.Name), zap.String("id", ev.ID))

	data, err := entry.ParseEventData(ev.Data)
	if err != nil {
		logger.Warn("dropping malformed event", zap.Error(err))
		return
	}
	switch {
	case ev.ID != "":
		e.store.SetLastEventID(ev.ID)
	case data.LastEventID != "":
		e.store.SetLastEventID(string(data.LastEventID))
	}

	if ev.Name == model.EventConversationCloseConversation {
		if data.ConversationID != "" && data.ConversationID != e.store.ConversationID() {
			logger.Debug("ignoring close for another conversation", zap.String("conversationId", data.ConversationID))
			return
		}
		logger.Info("conversation closed by the server")
		e.cleanup()
		return
	}

	ent, err := entry.Normalize(data)
	if err != nil {
		logger.Warn("dropping invalid entry", zap.Error(err))
		return
	}
	if ent == nil {
		return
	}
	if !e.transcript.Apply(ent) {
		return
	}
	if ent.EntryType == model.EntryTypeMessage && ent.IsEndUserMessage {
		e.confirmPending(ent.MessageID)
	}
	e.publish()
}

func (e *Engine) handleStreamFailure(subCtx context.Context, err error) {
	if subCtx.Err() != nil {
		return
	}
	e.logger.Error("event stream failed", zap.Error(err))
	e.mu.Lock()
	e.ready = false
	e.mu.Unlock()

	e.handleError(err)
	if e.isOpen() {
		e.teardown()
	}
}
