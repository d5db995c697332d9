package models

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeFile  MessageType = "file"
	MessageTypeImage MessageType = "image"
)

func (t MessageType) Valid() bool {
	return t == MessageTypeText || t == MessageTypeFile || t == MessageTypeImage
}

const MaxMessageLength = 1000

// Message is one chat line. ReceiverID is nil for group sessions, where the
// message is addressed to every other party.
type Message struct {
	ID          uuid.UUID   `db:"id"`
	SessionID   uuid.UUID   `db:"session_id"`
	SenderID    uuid.UUID   `db:"sender_id"`
	ReceiverID  *uuid.UUID  `db:"receiver_id"`
	Content     string      `db:"content"`
	MessageType MessageType `db:"message_type"`
	FileURL     *string     `db:"file_url"`
	IsRead      bool        `db:"is_read"`
	ReadAt      *time.Time  `db:"read_at"`
	CreatedAt   time.Time   `db:"created_at"`
}
