package entry

import "messaging-client/internal/model"

// Entry is one normalized unit of a conversation transcript.
type Entry struct {
	ConversationID        string            `json:"conversationId"`
	MessageID             string            `json:"messageId"`
	EntryType             model.EntryType   `json:"entryType"`
	MessageType           model.MessageType `json:"messageType,omitempty"`
	FormatType            model.FormatType  `json:"formatType,omitempty"`
	Content               Content           `json:"content,omitempty"`
	Sender                Sender            `json:"sender"`
	TranscriptedTimestamp int64             `json:"transcriptedTimestamp"`
	MessageReason         string            `json:"messageReason,omitempty"`
	InReplyToMessageID    string            `json:"inReplyToMessageId,omitempty"`

	IsEndUserMessage                 bool  `json:"isEndUserMessage"`
	IsSent                           bool  `json:"isSent"`
	IsDelivered                      bool  `json:"isDelivered"`
	IsRead                           bool  `json:"isRead"`
	DeliveryAcknowledgementTimestamp int64 `json:"deliveryAcknowledgementTimestamp,omitempty"`
	ReadAcknowledgementTimestamp     int64 `json:"readAcknowledgementTimestamp,omitempty"`
}

type Sender struct {
	Role        model.ParticipantRole `json:"role"`
	DisplayName string                `json:"displayName"`
	Subject     string                `json:"subject,omitempty"`
	AppType     string                `json:"appType,omitempty"`
}

// TypingKey identifies a typing participant: the display name, or the role
// when no name is known.
func (s Sender) TypingKey() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return string(s.Role)
}

// Content is the entry-type specific body. The set of implementations is
// closed to this package.
type Content interface {
	content()
}

type TextContent struct {
	Text string `json:"text"`
}

type Attachment struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	URL      string `json:"url,omitempty"`
}

type AttachmentContent struct {
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments"`
}

type RichLinkContent struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

type Option struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type ChoicesContent struct {
	Text    string   `json:"text,omitempty"`
	Options []Option `json:"options"`
}

type ParticipantChange struct {
	Operation   model.ParticipantOperation `json:"operation"`
	Role        model.ParticipantRole      `json:"role"`
	DisplayName string                     `json:"displayName,omitempty"`
	Subject     string                     `json:"subject,omitempty"`
}

type ParticipantChangeContent struct {
	Changes []ParticipantChange `json:"changes"`
}

type RoutingContent struct {
	RoutingType   model.RoutingType        `json:"routingType"`
	FailureType   model.RoutingFailureType `json:"failureType"`
	FailureReason string                   `json:"failureReason,omitempty"`
}

type AcknowledgementContent struct {
	AcknowledgedMessageID string `json:"acknowledgedMessageId"`
	Timestamp             int64  `json:"timestamp"`
}

type TypingContent struct {
	Timestamp int64 `json:"timestamp,omitempty"`
}

func (TextContent) content()              {}
func (AttachmentContent) content()        {}
func (RichLinkContent) content()          {}
func (ChoicesContent) content()           {}
func (ParticipantChangeContent) content() {}
func (RoutingContent) content()           {}
func (AcknowledgementContent) content()   {}
func (TypingContent) content()            {}
