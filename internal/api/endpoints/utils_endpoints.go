package endpoints

import (
	"net/http"

	"messaging-client/internal/api"
	"messaging-client/internal/dto"
)

type UtilsEndpoints interface {
	Health(http.ResponseWriter, *http.Request) error
}

type utilsEndpoints struct {
	engine api.Engine
}

func NewUtilsEndpoints(engine api.Engine) UtilsEndpoints {
	return &utilsEndpoints{engine: engine}
}

// Health answers 200 while the bridge is serving and describes where the
// conversation stands.
func (h *utilsEndpoints) Health(w http.ResponseWriter, r *http.Request) error {
	snap := h.engine.Snapshot()
	resp := dto.HealthResponse{
		Status:          "ok",
		Conversation:    string(snap.Status),
		ConversationID:  snap.ConversationID,
		Ready:           snap.Ready,
		AwaitingPrechat: snap.AwaitingPrechat,
		PendingMessages: len(snap.Pending),
	}
	if snap.FailedMessage != nil {
		resp.FailedMessageID = snap.FailedMessage.MessageID
	}
	return WriteJSON(w, http.StatusOK, resp)
}
