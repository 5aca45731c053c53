package ws

import "encoding/json"

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	MsgRecordChange     MessageType = "record_change"
	MsgDataSourceChange MessageType = "datasource_change"
	MsgError            MessageType = "error"
	MsgSync             MessageType = "sync"
	MsgFullState        MessageType = "full_state"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RecordChangePayload describes one record mutation.
type RecordChangePayload struct {
	DataSourceID string `json:"datasourceid"`
	Action       string `json:"action"`
	Record       any    `json:"record,omitempty"`
}

// DataSourceChangePayload describes one data-source lifecycle event.
type DataSourceChangePayload struct {
	DataSourceID string `json:"datasourceid"`
	Action       string `json:"action"`
}

// NewMessage creates a new Message with the given type and payload.
func NewMessage(typ MessageType, payload any) ([]byte, error) {
	var p json.RawMessage
	if payload != nil {
		var err error
		p, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Message{Type: typ, Payload: p})
}
