package entry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"messaging-client/internal/dto"
	"messaging-client/internal/model"
)

// ValidationError reports a payload that cannot be turned into an entry. The
// offending event is dropped; later events are unaffected.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid conversation entry: %s: %v", e.Reason, e.Err)
	}
	return "invalid conversation entry: " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(reason string, err error) *ValidationError {
	return &ValidationError{Reason: reason, Err: err}
}

// ParseEventData decodes the data field of a server-sent event.
func ParseEventData(data string) (*dto.ServerSentEventData, error) {
	if data == "" {
		return nil, invalid("empty event data", nil)
	}
	var parsed *dto.ServerSentEventData
	if err := json.Unmarshal([]byte(data), &parsed); err != nil {
		return nil, invalid("malformed event data", err)
	}
	if parsed == nil {
		return nil, invalid("event data is not an object", nil)
	}
	return parsed, nil
}

type payload struct {
	EntryType       model.EntryType  `json:"entryType"`
	AbstractMessage *abstractMessage `json:"abstractMessage"`
	MessageReason   string           `json:"messageReason"`

	Entries []participantEntry `json:"entries"`

	RoutingType   model.RoutingType        `json:"routingType"`
	FailureType   model.RoutingFailureType `json:"failureType"`
	FailureReason string                   `json:"failureReason"`

	AcknowledgementTimestamp                int64  `json:"acknowledgementTimestamp"`
	AcknowledgedConversationEntryIdentifier string `json:"acknowledgedConversationEntryIdentifier"`

	Timestamp int64 `json:"timestamp"`
}

type abstractMessage struct {
	ID                 string            `json:"id"`
	MessageType        model.MessageType `json:"messageType"`
	InReplyToMessageID string            `json:"inReplyToMessageId"`
	StaticContent      *staticContent    `json:"staticContent"`
	Choices            *choices          `json:"choices"`
}

type staticContent struct {
	FormatType  model.FormatType `json:"formatType"`
	Text        string           `json:"text"`
	Attachments []Attachment     `json:"attachments"`
	LinkItem    *struct {
		URL       string    `json:"url"`
		TitleItem titleItem `json:"titleItem"`
	} `json:"linkItem"`
}

type choices struct {
	FormatType  model.FormatType `json:"formatType"`
	Text        string           `json:"text"`
	OptionItems []struct {
		OptionIdentifier string    `json:"optionIdentifier"`
		TitleItem        titleItem `json:"titleItem"`
	} `json:"optionItems"`
}

type titleItem struct {
	Title string `json:"title"`
}

type participantEntry struct {
	Operation   model.ParticipantOperation `json:"operation"`
	DisplayName string                     `json:"displayName"`
	Participant struct {
		Role    model.ParticipantRole `json:"role"`
		Subject string                `json:"subject"`
	} `json:"participant"`
}

// Normalize converts event data into an Entry. Entry types the client does not
// support yield (nil, nil).
func Normalize(data *dto.ServerSentEventData) (*Entry, error) {
	if data == nil {
		return nil, invalid("missing event data", nil)
	}
	ce := data.ConversationEntry
	if ce == nil {
		return nil, invalid("missing conversationEntry", nil)
	}

	raw, err := payloadBytes(ce.EntryPayload)
	if err != nil {
		return nil, err
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalid("malformed entryPayload", err)
	}
	if p.EntryType == "" {
		p.EntryType = model.EntryType(ce.EntryType)
	}
	if !model.SupportedEntryTypes[p.EntryType] {
		return nil, nil
	}

	conversationID := data.ConversationID
	if conversationID == "" {
		conversationID = ce.ConversationID
	}

	e := &Entry{
		ConversationID:        conversationID,
		MessageID:             ce.Identifier,
		EntryType:             p.EntryType,
		TranscriptedTimestamp: ce.TranscriptedTimestamp,
		MessageReason:         p.MessageReason,
		Sender: Sender{
			Role:        model.ParticipantRole(ce.Sender.Role),
			DisplayName: displayName(ce, p.Entries),
			Subject:     ce.Sender.Subject,
			AppType:     ce.Sender.AppType,
		},
	}

	switch p.EntryType {
	case model.EntryTypeMessage:
		if err := fillMessage(e, p.AbstractMessage); err != nil {
			return nil, err
		}
		e.IsEndUserMessage = e.Sender.Role == model.ParticipantRoleEndUser
	case model.EntryTypeParticipantChanged:
		changes := make([]ParticipantChange, 0, len(p.Entries))
		for _, pe := range p.Entries {
			changes = append(changes, ParticipantChange{
				Operation:   pe.Operation,
				Role:        pe.Participant.Role,
				DisplayName: pe.DisplayName,
				Subject:     pe.Participant.Subject,
			})
		}
		e.Content = ParticipantChangeContent{Changes: changes}
	case model.EntryTypeRoutingResult:
		e.Content = RoutingContent{
			RoutingType:   p.RoutingType,
			FailureType:   p.FailureType,
			FailureReason: p.FailureReason,
		}
	case model.EntryTypeDeliveryAcknowledgement, model.EntryTypeReadAcknowledgement:
		target := p.AcknowledgedConversationEntryIdentifier
		if len(ce.RelatedRecords) > 0 && ce.RelatedRecords[0] != "" {
			target = ce.RelatedRecords[0]
		}
		if target == "" {
			return nil, invalid("acknowledgement without a related record", nil)
		}
		e.Content = AcknowledgementContent{
			AcknowledgedMessageID: target,
			Timestamp:             p.AcknowledgementTimestamp,
		}
	case model.EntryTypeTypingStartedIndicator, model.EntryTypeTypingStoppedIndicator:
		e.Content = TypingContent{Timestamp: p.Timestamp}
	}
	return e, nil
}

// NormalizeHistory converts one item of a list-entries response. The item's
// entryPayload may be an embedded object or a JSON string.
func NormalizeHistory(conversationID string, raw json.RawMessage) (*Entry, error) {
	var ce dto.ConversationEntry
	if err := json.Unmarshal(raw, &ce); err != nil {
		return nil, invalid("malformed history entry", err)
	}
	if ce.ConversationID != "" {
		conversationID = ce.ConversationID
	}
	return Normalize(&dto.ServerSentEventData{
		ConversationID:    conversationID,
		ConversationEntry: &ce,
	})
}

// payloadBytes unwraps an entryPayload that was sent as a JSON string.
func payloadBytes(raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, invalid("missing entryPayload", nil)
	}
	if trimmed[0] != '"' {
		return trimmed, nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, invalid("malformed entryPayload", err)
	}
	if s == "" {
		return nil, invalid("missing entryPayload", nil)
	}
	return []byte(s), nil
}

func fillMessage(e *Entry, m *abstractMessage) error {
	if m == nil {
		return invalid("message without abstractMessage", nil)
	}
	e.MessageType = m.MessageType
	e.InReplyToMessageID = m.InReplyToMessageID

	switch m.MessageType {
	case model.MessageTypeStaticContent:
		sc := m.StaticContent
		if sc == nil {
			return invalid("static content message without staticContent", nil)
		}
		e.FormatType = sc.FormatType
		switch sc.FormatType {
		case model.FormatTypeText:
			e.Content = TextContent{Text: sc.Text}
		case model.FormatTypeAttachments:
			e.Content = AttachmentContent{Text: sc.Text, Attachments: sc.Attachments}
		case model.FormatTypeRichLink:
			link := RichLinkContent{}
			if sc.LinkItem != nil {
				link.URL = sc.LinkItem.URL
				link.Title = sc.LinkItem.TitleItem.Title
			}
			e.Content = link
		default:
			return invalid(fmt.Sprintf("unrecognized static content format %q", sc.FormatType), nil)
		}
	case model.MessageTypeChoices:
		ch := m.Choices
		if ch == nil {
			return invalid("choices message without choices", nil)
		}
		e.FormatType = ch.FormatType
		switch ch.FormatType {
		case model.FormatTypeButtons, model.FormatTypeQuickReplies:
			options := make([]Option, 0, len(ch.OptionItems))
			for _, item := range ch.OptionItems {
				options = append(options, Option{ID: item.OptionIdentifier, Title: item.TitleItem.Title})
			}
			e.Content = ChoicesContent{Text: ch.Text, Options: options}
		default:
			return invalid(fmt.Sprintf("unrecognized choices format %q", ch.FormatType), nil)
		}
	default:
		return invalid(fmt.Sprintf("unrecognized message type %q", m.MessageType), nil)
	}
	return nil
}

// displayName resolves senderDisplayName, then the sender role, then the first
// participant's display name and role for participant-changed entries.
func displayName(ce *dto.ConversationEntry, entries []participantEntry) string {
	if ce.SenderDisplayName != "" {
		return ce.SenderDisplayName
	}
	if ce.Sender.Role != "" {
		return ce.Sender.Role
	}
	if len(entries) > 0 {
		if entries[0].DisplayName != "" {
			return entries[0].DisplayName
		}
		return string(entries[0].Participant.Role)
	}
	return ""
}
