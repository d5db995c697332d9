package dtos

import (
	"time"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/MentorLink/internal/utils"
)

// SendMessageRequest is both the REST body for POST /messages and the
// payload of the send_message realtime event
type SendMessageRequest struct {
	SessionID   string  `json:"session_id" binding:"required,uuid"`
	Content     string  `json:"content" binding:"required,min=1,max=1000"`
	MessageType string  `json:"message_type" binding:"omitempty,oneof=text file image"`
	FileURL     *string `json:"file_url" binding:"omitempty,url,max=2048"`
}

// UserSummary is the populated view of a sender/receiver reference
type UserSummary struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	ProfilePic *string   `json:"profile_pic,omitempty"`
}

type MessageResponse struct {
	ID          uuid.UUID    `json:"id"`
	SessionID   uuid.UUID    `json:"session_id"`
	Sender      UserSummary  `json:"sender"`
	Receiver    *UserSummary `json:"receiver"`
	Content     string       `json:"content"`
	MessageType string       `json:"message_type"`
	FileURL     *string      `json:"file_url,omitempty"`
	IsRead      bool         `json:"is_read"`
	ReadAt      *time.Time   `json:"read_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

type MessageListResponse struct {
	Messages   []MessageResponse `json:"messages"`
	Pagination utils.Pagination  `json:"pagination"`
}

type UnreadCountResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	Count     int       `json:"count"`
}

type MarkReadResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	Updated   int64     `json:"updated"`
}
