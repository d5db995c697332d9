package websocket

import (
	"encoding/json"
	"fmt"
)

// Client -> server events
const (
	EventJoinSession         = "join_session"
	EventSendMessage         = "send_message"
	EventTypingStart         = "typing_start"
	EventTypingStop          = "typing_stop"
	EventSessionStatusUpdate = "session_status_update"
	EventPing                = "ping"
)

// Server -> client events
const (
	EventNewMessage           = "new_message"
	EventMessageNotification  = "message_notification"
	EventUserTyping           = "user_typing"
	EventUserStopTyping       = "user_stop_typing"
	EventSessionStatusChanged = "session_status_changed"
	EventSessionJoined        = "session_joined"
	EventError                = "error"
	EventPong                 = "pong"
)

// WebSocketMessage is the standard envelope for all inbound frames
type WebSocketMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// OutboundMessage is the envelope for server-sent frames
type OutboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ParseEnvelope decodes the outer frame; the payload stays raw until the
// handler for Type decodes it into its own type.
func ParseEnvelope(data []byte) (*WebSocketMessage, error) {
	var msg WebSocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidEnvelope)
	}
	return &msg, nil
}

// EncodeFrame marshals an outbound event once so fan-out can share the bytes.
func EncodeFrame(eventType string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	return json.Marshal(OutboundMessage{Type: eventType, Payload: payload})
}

// ErrorPayload is the body of an "error" event
type ErrorPayload struct {
	Message string `json:"message"`
}
