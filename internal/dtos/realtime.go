package dtos

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/MentorLink/internal/apperrors"
	ws "github.com/preetsinghmakkar/MentorLink/internal/websocket"
)

// ClientEvent is one decoded, validated client->server event. Every
// implementation below corresponds to exactly one event name.
type ClientEvent interface {
	EventName() string
}

type JoinSessionEvent struct {
	SessionID string `json:"session_id" binding:"required,uuid"`
}

type SendMessageEvent struct {
	SendMessageRequest
}

type TypingEvent struct {
	SessionID string `json:"session_id" binding:"required,uuid"`
	Stop      bool   `json:"-"`
}

type SessionStatusUpdateEvent struct {
	SessionID string  `json:"session_id" binding:"required,uuid"`
	Status    string  `json:"status" binding:"required,oneof=accepted rejected completed cancelled"`
	Reason    *string `json:"reason" binding:"omitempty,max=500"`
}

type PingEvent struct{}

func (JoinSessionEvent) EventName() string         { return ws.EventJoinSession }
func (SendMessageEvent) EventName() string         { return ws.EventSendMessage }
func (SessionStatusUpdateEvent) EventName() string { return ws.EventSessionStatusUpdate }
func (PingEvent) EventName() string                { return ws.EventPing }

func (e TypingEvent) EventName() string {
	if e.Stop {
		return ws.EventTypingStop
	}
	return ws.EventTypingStart
}

// DecodeClientEvent turns a raw envelope into its typed event. Unknown event
// names and malformed or invalid payloads return a validation error.
func DecodeClientEvent(msg *ws.WebSocketMessage) (ClientEvent, error) {
	var event ClientEvent
	switch msg.Type {
	case ws.EventJoinSession:
		var e JoinSessionEvent
		if err := decodePayload(msg.Payload, &e); err != nil {
			return nil, err
		}
		event = e
	case ws.EventSendMessage:
		var e SendMessageEvent
		if err := decodePayload(msg.Payload, &e.SendMessageRequest); err != nil {
			return nil, err
		}
		event = e
	case ws.EventTypingStart, ws.EventTypingStop:
		var e TypingEvent
		if err := decodePayload(msg.Payload, &e); err != nil {
			return nil, err
		}
		e.Stop = msg.Type == ws.EventTypingStop
		event = e
	case ws.EventSessionStatusUpdate:
		var e SessionStatusUpdateEvent
		if err := decodePayload(msg.Payload, &e); err != nil {
			return nil, err
		}
		event = e
	case ws.EventPing:
		event = PingEvent{}
	default:
		return nil, apperrors.Validation(fmt.Sprintf("unknown event %q", msg.Type))
	}
	return event, nil
}

func decodePayload(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return apperrors.Validation("payload is required")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperrors.Validation("malformed payload")
	}
	return Validate(dst)
}

// Server -> client payloads

type SessionJoinedPayload struct {
	SessionID uuid.UUID `json:"session_id"`
}

type MessageNotificationPayload struct {
	SessionID uuid.UUID `json:"session_id"`
	MessageID uuid.UUID `json:"message_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Sender    string    `json:"sender"`
	Preview   string    `json:"preview"`
}

type UserTypingPayload struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	UserName  string    `json:"user_name"`
}

type UserStopTypingPayload struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
}

type SessionStatusChangedPayload struct {
	SessionID uuid.UUID `json:"session_id"`
	Status    string    `json:"status"`
	UpdatedBy uuid.UUID `json:"updated_by"`
}
