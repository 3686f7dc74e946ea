package dto

type StartSessionRequest struct {
	OrgID          string `json:"orgId"`
	DeploymentName string `json:"deploymentName"`
	MessagingURL   string `json:"messagingUrl"`
}

type PrechatSubmitRequest struct {
	RoutingAttributes map[string]string `json:"routingAttributes"`
}

type PostMessageRequest struct {
	Text               string `json:"text"`
	InReplyToMessageID string `json:"inReplyToMessageId,omitempty"`
	Language           string `json:"language,omitempty"`
}

type PostMessageResponse struct {
	MessageID string `json:"messageId"`
}

type TypingRequest struct {
	Started *bool `json:"started,omitempty"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

// HealthResponse reports the bridge and the conversation it drives.
type HealthResponse struct {
	Status          string `json:"status"`
	Conversation    string `json:"conversation"`
	ConversationID  string `json:"conversationId,omitempty"`
	Ready           bool   `json:"ready"`
	AwaitingPrechat bool   `json:"awaitingPrechat"`
	PendingMessages int    `json:"pendingMessages"`
	FailedMessageID string `json:"failedMessageId,omitempty"`
}
