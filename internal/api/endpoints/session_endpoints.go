package endpoints

import (
	"net/http"

	"messaging-client/internal/api"
	"messaging-client/internal/conversation"
	"messaging-client/internal/dto"
)

type SessionEndpoints interface {
	Session(http.ResponseWriter, *http.Request) error
	ResetSession(http.ResponseWriter, *http.Request) error
	Prechat(http.ResponseWriter, *http.Request) error
	Messages(http.ResponseWriter, *http.Request) error
	RetryMessage(http.ResponseWriter, *http.Request) error
	Typing(http.ResponseWriter, *http.Request) error
	Conversation(http.ResponseWriter, *http.Request) error
}

type sessionEndpoints struct {
	engine     api.Engine
	deployment conversation.Deployment
}

// NewSessionEndpoints serves engine over HTTP. deployment fills in fields a
// start request leaves empty.
func NewSessionEndpoints(engine api.Engine, deployment conversation.Deployment) SessionEndpoints {
	return &sessionEndpoints{
		engine:     engine,
		deployment: deployment,
	}
}

func (h *sessionEndpoints) Session(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:  h.handleGetSession,
		http.MethodPost: h.handleStartSession,
	})
}

func (h *sessionEndpoints) ResetSession(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleReset,
	})
}

func (h *sessionEndpoints) Prechat(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handlePrechat,
	})
}

func (h *sessionEndpoints) Messages(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handlePostMessage,
	})
}

func (h *sessionEndpoints) RetryMessage(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleRetryMessage,
	})
}

func (h *sessionEndpoints) Typing(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleTyping,
	})
}

func (h *sessionEndpoints) Conversation(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodDelete: h.handleEnd,
	})
}

func (h *sessionEndpoints) handleGetSession(w http.ResponseWriter, r *http.Request) error {
	return WriteJSON(w, http.StatusOK, h.engine.Snapshot())
}

// handleStartSession initializes the deployment, picks up any persisted
// session and starts it.
func (h *sessionEndpoints) handleStartSession(w http.ResponseWriter, r *http.Request) error {
	var req dto.StartSessionRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	d := conversation.Deployment{
		OrgID:          req.OrgID,
		DeploymentName: req.DeploymentName,
		MessagingURL:   req.MessagingURL,
	}
	if d.OrgID == "" {
		d.OrgID = h.deployment.OrgID
	}
	if d.DeploymentName == "" {
		d.DeploymentName = h.deployment.DeploymentName
	}
	if d.MessagingURL == "" {
		d.MessagingURL = h.deployment.MessagingURL
	}

	ctx := r.Context()
	if err := h.engine.Initialize(ctx, d); err != nil {
		return api.EngineError(err)
	}
	if _, err := h.engine.Restore(ctx); err != nil {
		return api.EngineError(err)
	}
	if err := h.engine.Start(ctx); err != nil {
		return api.EngineError(err)
	}
	return WriteJSON(w, http.StatusCreated, h.engine.Snapshot())
}

func (h *sessionEndpoints) handleReset(w http.ResponseWriter, r *http.Request) error {
	if err := h.engine.Reset(); err != nil {
		return api.EngineError(err)
	}
	return WriteJSON(w, http.StatusOK, h.engine.Snapshot())
}

func (h *sessionEndpoints) handlePrechat(w http.ResponseWriter, r *http.Request) error {
	var req dto.PrechatSubmitRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	if err := h.engine.SubmitPrechat(r.Context(), req.RoutingAttributes); err != nil {
		return api.EngineError(err)
	}
	return WriteJSON(w, http.StatusOK, h.engine.Snapshot())
}

func (h *sessionEndpoints) handlePostMessage(w http.ResponseWriter, r *http.Request) error {
	var req dto.PostMessageRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	id, err := h.engine.SendMessage(r.Context(), req.Text, conversation.SendOptions{
		InReplyToMessageID: req.InReplyToMessageID,
		Language:           req.Language,
	})
	if err != nil {
		return api.EngineError(err)
	}
	return WriteJSON(w, http.StatusAccepted, dto.PostMessageResponse{MessageID: id})
}

func (h *sessionEndpoints) handleRetryMessage(w http.ResponseWriter, r *http.Request) error {
	id, err := h.engine.RetryFailed(r.Context())
	if err != nil {
		return api.EngineError(err)
	}
	return WriteJSON(w, http.StatusAccepted, dto.PostMessageResponse{MessageID: id})
}

func (h *sessionEndpoints) handleTyping(w http.ResponseWriter, r *http.Request) error {
	var req dto.TypingRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	var err error
	if req.Started == nil {
		err = h.engine.UserTyping(r.Context())
	} else {
		err = h.engine.SendTypingIndicator(r.Context(), *req.Started)
	}
	if err != nil {
		return api.EngineError(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *sessionEndpoints) handleEnd(w http.ResponseWriter, r *http.Request) error {
	if err := h.engine.End(r.Context()); err != nil {
		return api.EngineError(err)
	}
	return WriteJSON(w, http.StatusOK, dto.StatusResponse{Status: string(h.engine.Snapshot().Status)})
}
