// Package hub fans session events out to websocket clients using the
// channel-based register/unregister/broadcast loop.
package hub

import "encoding/json"

// MessageType indicates the websocket frame type.
type MessageType int

const (
	// TextMessage is a JSON-encoded frame.
	TextMessage MessageType = iota
	// BinaryMessage is raw bytes.
	BinaryMessage
)

// Message is one frame to broadcast.
type Message struct {
	Type MessageType
	Data []byte
}

// NewTextMessage wraps pre-encoded JSON.
func NewTextMessage(data []byte) Message {
	return Message{Type: TextMessage, Data: data}
}

// NewBinaryMessage wraps raw bytes.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// JSON encodes v as a text message.
func JSON(v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return NewTextMessage(data), nil
}
