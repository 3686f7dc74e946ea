package entry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"messaging-client/internal/model"
)

func sseData(t *testing.T, conversationID string, entry map[string]any, payload any) string {
	t.Helper()
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	entry["entryPayload"] = string(rawPayload)
	doc, err := json.Marshal(map[string]any{
		"conversationId":    conversationID,
		"conversationEntry": entry,
	})
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	return string(doc)
}

func normalizeString(t *testing.T, data string) (*Entry, error) {
	t.Helper()
	parsed, err := ParseEventData(data)
	if err != nil {
		return nil, err
	}
	return Normalize(parsed)
}

func TestNormalizeTextMessage(t *testing.T) {
	data := sseData(t, "conv-1", map[string]any{
		"identifier":            "msg-1",
		"sender":                map[string]any{"role": "EndUser", "appType": "iamessage", "subject": "v2/iamessage/UNAUTH/NA/uid:1"},
		"senderDisplayName":     "Guest",
		"transcriptedTimestamp": 1700000000000,
	}, map[string]any{
		"entryType": "Message",
		"abstractMessage": map[string]any{
			"messageType":        "StaticContentMessage",
			"id":                 "msg-1",
			"inReplyToMessageId": "msg-0",
			"staticContent":      map[string]any{"formatType": "Text", "text": "hello"},
		},
		"messageReason": "",
	})

	got, err := normalizeString(t, data)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := &Entry{
		ConversationID:        "conv-1",
		MessageID:             "msg-1",
		EntryType:             model.EntryTypeMessage,
		MessageType:           model.MessageTypeStaticContent,
		FormatType:            model.FormatTypeText,
		Content:               TextContent{Text: "hello"},
		Sender:                Sender{Role: model.ParticipantRoleEndUser, DisplayName: "Guest", Subject: "v2/iamessage/UNAUTH/NA/uid:1", AppType: "iamessage"},
		TranscriptedTimestamp: 1700000000000,
		InReplyToMessageID:    "msg-0",
		IsEndUserMessage:      true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entry mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeChoicesAndAttachments(t *testing.T) {
	choices := sseData(t, "c", map[string]any{
		"identifier": "m2",
		"sender":     map[string]any{"role": "Chatbot"},
	}, map[string]any{
		"entryType": "Message",
		"abstractMessage": map[string]any{
			"messageType": "ChoicesMessage",
			"choices": map[string]any{
				"formatType": "Buttons",
				"text":       "Pick one",
				"optionItems": []any{
					map[string]any{"optionIdentifier": "o1", "titleItem": map[string]any{"title": "Billing"}},
					map[string]any{"optionIdentifier": "o2", "titleItem": map[string]any{"title": "Support"}},
				},
			},
		},
	})
	got, err := normalizeString(t, choices)
	if err != nil {
		t.Fatalf("normalize choices: %v", err)
	}
	wantChoices := ChoicesContent{Text: "Pick one", Options: []Option{{ID: "o1", Title: "Billing"}, {ID: "o2", Title: "Support"}}}
	if diff := cmp.Diff(Content(wantChoices), got.Content); diff != "" {
		t.Fatalf("choices mismatch (-want +got):\n%s", diff)
	}
	if got.IsEndUserMessage {
		t.Fatal("chatbot message flagged as end user")
	}
	if got.Sender.DisplayName != "Chatbot" {
		t.Fatalf("display name should fall back to role, got %q", got.Sender.DisplayName)
	}

	attachments := sseData(t, "c", map[string]any{
		"identifier": "m3",
		"sender":     map[string]any{"role": "Agent"},
	}, map[string]any{
		"entryType": "Message",
		"abstractMessage": map[string]any{
			"messageType": "StaticContentMessage",
			"staticContent": map[string]any{
				"formatType":  "Attachments",
				"attachments": []any{map[string]any{"id": "f1", "name": "invoice.pdf", "mimeType": "application/pdf", "url": "https://x.test/f1"}},
			},
		},
	})
	got, err = normalizeString(t, attachments)
	if err != nil {
		t.Fatalf("normalize attachments: %v", err)
	}
	content, ok := got.Content.(AttachmentContent)
	if !ok || len(content.Attachments) != 1 || content.Attachments[0].Name != "invoice.pdf" {
		t.Fatalf("unexpected attachment content: %#v", got.Content)
	}
}

func TestNormalizeParticipantChangedDisplayNameFallback(t *testing.T) {
	data := sseData(t, "c", map[string]any{
		"identifier": "p1",
		"sender":     map[string]any{},
	}, map[string]any{
		"entryType": "ParticipantChanged",
		"entries": []any{
			map[string]any{"operation": "add", "displayName": "", "participant": map[string]any{"role": "Agent", "subject": "005xx"}},
		},
	})
	got, err := normalizeString(t, data)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Sender.DisplayName != "Agent" {
		t.Fatalf("expected participant role fallback, got %q", got.Sender.DisplayName)
	}
	content := got.Content.(ParticipantChangeContent)
	if len(content.Changes) != 1 || content.Changes[0].Operation != model.ParticipantOperationAdd {
		t.Fatalf("unexpected changes: %#v", content.Changes)
	}
}

func TestNormalizeRoutingAndAcknowledgements(t *testing.T) {
	routing := sseData(t, "c", map[string]any{"identifier": "r1", "sender": map[string]any{"role": "System"}},
		map[string]any{"entryType": "RoutingResult", "routingType": "Initial", "failureType": "SubmissionError", "failureReason": "queue full"})
	got, err := normalizeString(t, routing)
	if err != nil {
		t.Fatalf("normalize routing: %v", err)
	}
	want := RoutingContent{RoutingType: model.RoutingTypeInitial, FailureType: model.RoutingFailureSubmissionError, FailureReason: "queue full"}
	if got.Content != Content(want) {
		t.Fatalf("routing content = %#v", got.Content)
	}

	ack := sseData(t, "c", map[string]any{
		"identifier":     "a1",
		"sender":         map[string]any{"role": "Agent"},
		"relatedRecords": []string{"abc"},
	}, map[string]any{"entryType": "DeliveryAcknowledgement", "acknowledgementTimestamp": 1234})
	got, err = normalizeString(t, ack)
	if err != nil {
		t.Fatalf("normalize ack: %v", err)
	}
	if got.Content != Content(AcknowledgementContent{AcknowledgedMessageID: "abc", Timestamp: 1234}) {
		t.Fatalf("ack content = %#v", got.Content)
	}

	orphan := sseData(t, "c", map[string]any{"identifier": "a2", "sender": map[string]any{"role": "Agent"}},
		map[string]any{"entryType": "ReadAcknowledgement", "acknowledgementTimestamp": 1})
	if _, err := normalizeString(t, orphan); err == nil {
		t.Fatal("acknowledgement without target should be rejected")
	}
}

func TestNormalizeDropsUnsupportedEntryTypes(t *testing.T) {
	data := sseData(t, "c", map[string]any{"identifier": "x", "sender": map[string]any{"role": "System"}},
		map[string]any{"entryType": "SessionStatusChanged"})
	got, err := normalizeString(t, data)
	if err != nil || got != nil {
		t.Fatalf("expected silent drop, got %v, %v", got, err)
	}
}

func TestNormalizeValidationErrors(t *testing.T) {
	tests := map[string]string{
		"empty":              "",
		"malformed":          "{not json",
		"null":               "null",
		"missing entry":      `{"conversationId":"c"}`,
		"missing payload":    `{"conversationId":"c","conversationEntry":{"identifier":"x"}}`,
		"malformed payload":  `{"conversationId":"c","conversationEntry":{"identifier":"x","entryPayload":"{oops"}}`,
		"unknown format":     sseData(t, "c", map[string]any{"identifier": "x", "sender": map[string]any{}}, map[string]any{"entryType": "Message", "abstractMessage": map[string]any{"messageType": "StaticContentMessage", "staticContent": map[string]any{"formatType": "Hologram"}}}),
		"unknown message":    sseData(t, "c", map[string]any{"identifier": "x", "sender": map[string]any{}}, map[string]any{"entryType": "Message", "abstractMessage": map[string]any{"messageType": "FormMessage"}}),
		"no abstractMessage": sseData(t, "c", map[string]any{"identifier": "x", "sender": map[string]any{}}, map[string]any{"entryType": "Message"}),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := normalizeString(t, data)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestNormalizeHistoryAcceptsEmbeddedPayload(t *testing.T) {
	raw := json.RawMessage(`{
		"identifier": "h1",
		"entryType": "Message",
		"sender": {"role": "Agent"},
		"senderDisplayName": "Ada",
		"transcriptedTimestamp": 10,
		"entryPayload": {"entryType":"Message","abstractMessage":{"messageType":"StaticContentMessage","staticContent":{"formatType":"Text","text":"earlier"}}}
	}`)
	got, err := NormalizeHistory("conv-9", raw)
	if err != nil {
		t.Fatalf("normalize history: %v", err)
	}
	if got.ConversationID != "conv-9" || got.Content != Content(TextContent{Text: "earlier"}) || got.Sender.DisplayName != "Ada" {
		t.Fatalf("unexpected history entry: %#v", got)
	}
}

func TestParseEventDataLastEventID(t *testing.T) {
	for _, data := range []string{`{"conversationId":"c","lastEventId":"77"}`, `{"conversationId":"c","lastEventId":77}`} {
		parsed, err := ParseEventData(data)
		if err != nil {
			t.Fatalf("parse %s: %v", data, err)
		}
		if parsed.LastEventID != "77" {
			t.Fatalf("lastEventId = %q", parsed.LastEventID)
		}
	}
}
