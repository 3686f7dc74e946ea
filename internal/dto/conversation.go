package dto

import (
	"bytes"
	"encoding/json"
)

type CreateConversationRequest struct {
	ConversationID    string            `json:"conversationId"`
	ESDeveloperName   string            `json:"esDeveloperName"`
	RoutingAttributes map[string]string `json:"routingAttributes,omitempty"`
}

type ListConversationsResponse struct {
	OpenConversationsFound int                   `json:"openConversationsFound"`
	Conversations          []ConversationSummary `json:"conversations"`
}

type ConversationSummary struct {
	ConversationID string `json:"conversationId"`
	StartTimestamp int64  `json:"startTimestamp"`
	Status         string `json:"status,omitempty"`
}

type ListConversationEntriesResponse struct {
	ConversationEntries []json.RawMessage `json:"conversationEntries"`
}

type SendMessageRequest struct {
	Message               MessagePayload    `json:"message"`
	RoutingAttributes     map[string]string `json:"routingAttributes,omitempty"`
	IsNewMessagingSession bool              `json:"isNewMessagingSession,omitempty"`
	ESDeveloperName       string            `json:"esDeveloperName"`
	Language              string            `json:"language,omitempty"`
}

type MessagePayload struct {
	ID                 string        `json:"id"`
	MessageType        string        `json:"messageType"`
	StaticContent      StaticContent `json:"staticContent"`
	InReplyToMessageID string        `json:"inReplyToMessageId,omitempty"`
}

type StaticContent struct {
	FormatType string `json:"formatType"`
	Text       string `json:"text"`
}

type TypingIndicatorRequest struct {
	EntryType string `json:"entryType"`
	ID        string `json:"id"`
}

// ServerSentEventData is the JSON document carried in the data field of every
// conversation event.
type ServerSentEventData struct {
	ConversationID    string             `json:"conversationId"`
	ConversationEntry *ConversationEntry `json:"conversationEntry"`
	LastEventID       EventID            `json:"lastEventId,omitempty"`
}

type ConversationEntry struct {
	Identifier            string          `json:"identifier"`
	EntryType             string          `json:"entryType,omitempty"`
	EntryPayload          json.RawMessage `json:"entryPayload"`
	Sender                Sender          `json:"sender"`
	SenderDisplayName     string          `json:"senderDisplayName,omitempty"`
	TranscriptedTimestamp int64           `json:"transcriptedTimestamp"`
	RelatedRecords        []string        `json:"relatedRecords,omitempty"`
	ConversationID        string          `json:"conversationId,omitempty"`
}

type Sender struct {
	Role    string `json:"role"`
	AppType string `json:"appType,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// EventID is an event router cursor. The server sends it as a string or as a
// bare number.
type EventID string

func (id *EventID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = EventID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = EventID(n.String())
	return nil
}
