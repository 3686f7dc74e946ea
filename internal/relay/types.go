package relay

import "encoding/json"

const (
	MessageTypeSnapshot = "snapshot"
	MessageTypeHidden   = "hidden"
)

// Message is the frame written to every connected presentation client.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}
