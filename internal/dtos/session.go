package dtos

import (
	"time"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/MentorLink/internal/models"
	"github.com/preetsinghmakkar/MentorLink/internal/utils"
)

// Create one-on-one session request (caller is the mentee)
type CreateSessionRequest struct {
	MentorID      string    `json:"mentor_id" binding:"required,uuid"`
	Title         string    `json:"title" binding:"required,min=3,max=200"`
	Description   *string   `json:"description" binding:"omitempty,max=2000"`
	ScheduledDate time.Time `json:"scheduled_date" binding:"required"`
	Duration      int       `json:"duration" binding:"required"`
	SessionType   string    `json:"session_type" binding:"required,oneof=video audio chat"`
}

// Create group session request (caller is the mentor)
type CreateGroupSessionRequest struct {
	Title           string    `json:"title" binding:"required,min=3,max=200"`
	Description     *string   `json:"description" binding:"omitempty,max=2000"`
	ScheduledDate   time.Time `json:"scheduled_date" binding:"required"`
	Duration        int       `json:"duration" binding:"required"`
	SessionType     string    `json:"session_type" binding:"required,oneof=video audio chat"`
	MaxParticipants int       `json:"max_participants" binding:"required"`
	Amount          *float64  `json:"amount" binding:"omitempty,min=0"`
}

// Reject/cancel body; reason is optional
type SessionReasonRequest struct {
	Reason *string `json:"reason" binding:"omitempty,max=500"`
}

type FeedbackRequest struct {
	Rating   int     `json:"rating" binding:"required,min=1,max=5"`
	Feedback *string `json:"feedback" binding:"omitempty,max=1000"`
}

type ParticipantResponse struct {
	MenteeID uuid.UUID `json:"mentee_id"`
	Status   string    `json:"status"`
	JoinedAt time.Time `json:"joined_at"`
}

type SessionResponse struct {
	ID                 uuid.UUID             `json:"id"`
	MentorID           uuid.UUID             `json:"mentor_id"`
	MenteeID           *uuid.UUID            `json:"mentee_id"`
	Title              string                `json:"title"`
	Description        string                `json:"description"`
	SessionType        string                `json:"session_type"`
	SessionMode        string                `json:"session_mode"`
	MaxParticipants    int                   `json:"max_participants"`
	Participants       []ParticipantResponse `json:"participants"`
	Status             string                `json:"status"`
	ScheduledDate      time.Time             `json:"scheduled_date"`
	Duration           int                   `json:"duration"`
	Amount             float64               `json:"amount"`
	AcceptedAt         *time.Time            `json:"accepted_at,omitempty"`
	CompletedAt        *time.Time            `json:"completed_at,omitempty"`
	CancelledAt        *time.Time            `json:"cancelled_at,omitempty"`
	CancelledBy        *uuid.UUID            `json:"cancelled_by,omitempty"`
	CancellationReason *string               `json:"cancellation_reason,omitempty"`
	Rating             *int                  `json:"rating,omitempty"`
	Feedback           *string               `json:"feedback,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
}

type SessionListResponse struct {
	Sessions   []SessionResponse `json:"sessions"`
	Pagination utils.Pagination  `json:"pagination"`
}

func NewSessionResponse(s *models.Session) SessionResponse {
	participants := make([]ParticipantResponse, 0, len(s.Participants))
	for _, p := range s.Participants {
		participants = append(participants, ParticipantResponse{
			MenteeID: p.MenteeID,
			Status:   p.Status,
			JoinedAt: p.JoinedAt,
		})
	}

	return SessionResponse{
		ID:                 s.ID,
		MentorID:           s.MentorID,
		MenteeID:           s.MenteeID,
		Title:              s.Title,
		Description:        s.Description,
		SessionType:        s.SessionType,
		SessionMode:        string(s.Mode),
		MaxParticipants:    s.MaxParticipants,
		Participants:       participants,
		Status:             string(s.Status),
		ScheduledDate:      s.ScheduledDate,
		Duration:           s.DurationMinutes,
		Amount:             s.Amount,
		AcceptedAt:         s.AcceptedAt,
		CompletedAt:        s.CompletedAt,
		CancelledAt:        s.CancelledAt,
		CancelledBy:        s.CancelledBy,
		CancellationReason: s.CancellationReason,
		Rating:             s.Rating,
		Feedback:           s.Feedback,
		CreatedAt:          s.CreatedAt,
	}
}
