// Package protocol defines the WebSocket message types exchanged with remote
// trackers, host bridges and dashboards.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Tracker → go-mocap messages
	TypeNames MessageType = "names" // Blendshape names, sent once
	TypeFrame MessageType = "frame" // Tracked frame
	TypeLost  MessageType = "lost"  // Frame without a face

	// go-mocap → Tracker messages
	TypeControl MessageType = "control" // stop / restart

	// go-mocap → Host messages (listener callbacks)
	TypeActivate         MessageType = "activate"
	TypeBlendshapeNames  MessageType = "blendshape_names"
	TypeBlendshapeValues MessageType = "blendshape_values"
	TypeHeadRotation     MessageType = "head_rotation"
	TypeTrackerState     MessageType = "tracker_state"

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Control actions sent to a remote tracker.
const (
	ActionStop    = "stop"
	ActionRestart = "restart"
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Tracker → go-mocap Message Types
// =============================================================================

// NamesData lists the tracker's blendshape names in value order.
type NamesData struct {
	Names []string `json:"names"`
}

// FrameData is one tracked frame. Values are positional against NamesData.
type FrameData struct {
	Seq      uint64     `json:"seq,omitempty"`
	Width    int        `json:"width,omitempty"`
	Height   int        `json:"height,omitempty"`
	Values   []float64  `json:"values"`
	Rotation [4]float64 `json:"rotation"` // x, y, z, w
}

// LostData marks a frame without a face.
type LostData struct {
	Seq uint64 `json:"seq,omitempty"`
}

// =============================================================================
// go-mocap → Tracker Message Types
// =============================================================================

// ControlData asks a remote tracker to stop or restart capture.
type ControlData struct {
	Action string `json:"action"`
}

// =============================================================================
// go-mocap → Host Message Types
// =============================================================================

// ActivateData mirrors OnActivate.
type ActivateData struct {
	Activated bool `json:"activated"`
}

// ValuesData mirrors OnBlendShapeValues. An empty slice means no face.
type ValuesData struct {
	Values []float64 `json:"values"`
}

// RotationData mirrors OnHeadRotation.
type RotationData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// TrackerStateData reports the lifecycle state.
type TrackerStateData struct {
	State string `json:"state"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
