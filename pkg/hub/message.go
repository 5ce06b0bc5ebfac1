// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

// Message represents a pre-encoded JSON message to be broadcast to clients.
type Message struct {
	Data []byte

	// Retain keeps the message and replays it to clients that connect later.
	// Messages retained under the same key replace each other.
	Retain string
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}

// NewRetainedMessage creates a JSON message that late clients also receive.
func NewRetainedMessage(key string, data []byte) Message {
	return Message{Data: data, Retain: key}
}
