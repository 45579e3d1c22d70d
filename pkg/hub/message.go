// Package hub fans session events out to websocket clients. Each live
// session owns one Hub: JSON events (transcripts, responses, state) and
// binary speech frames go to every client in the order they were queued.
package hub

import "github.com/gofiber/websocket/v2"

// MessageType is the websocket frame type a message is written as.
type MessageType int

const (
	JSONMessage MessageType = iota
	// BinaryMessage carries raw PCM16 speech.
	BinaryMessage
)

// Message is one queued frame.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps already encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps a binary frame.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// frameType maps the message to its websocket opcode.
func (m Message) frameType() int {
	if m.Type == BinaryMessage {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
