package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusOpen      SessionStatus = "open"
	SessionStatusFull      SessionStatus = "full"
	SessionStatusAccepted  SessionStatus = "accepted"
	SessionStatusRejected  SessionStatus = "rejected"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusPending, SessionStatusOpen, SessionStatusFull, SessionStatusAccepted,
		SessionStatusRejected, SessionStatusCompleted, SessionStatusCancelled:
		return true
	}
	return false
}

func (s SessionStatus) Terminal() bool {
	return s == SessionStatusRejected || s == SessionStatusCompleted || s == SessionStatusCancelled
}

type SessionMode string

const (
	SessionModeOneOnOne SessionMode = "one-on-one"
	SessionModeGroup    SessionMode = "group"
)

const (
	MinDurationMinutes = 15
	MaxDurationMinutes = 480
	MinGroupCapacity   = 2
	MaxGroupCapacity   = 50
)

const ParticipantJoined = "joined"

type Participant struct {
	MenteeID uuid.UUID `db:"mentee_id"`
	Status   string    `db:"status"`
	JoinedAt time.Time `db:"joined_at"`
}

type Session struct {
	ID       uuid.UUID  `db:"id"`
	MentorID uuid.UUID  `db:"mentor_id"`
	MenteeID *uuid.UUID `db:"mentee_id"`

	Title       string      `db:"title"`
	Description string      `db:"description"`
	SessionType string      `db:"session_type"`
	Mode        SessionMode `db:"session_mode"`

	MaxParticipants int           `db:"max_participants"`
	Participants    []Participant `db:"-"`

	Status          SessionStatus `db:"status"`
	ScheduledDate   time.Time     `db:"scheduled_date"`
	DurationMinutes int           `db:"duration"`
	Amount          float64       `db:"amount"`

	AcceptedAt  *time.Time `db:"accepted_at"`
	CompletedAt *time.Time `db:"completed_at"`
	CancelledAt *time.Time `db:"cancelled_at"`

	CancelledBy        *uuid.UUID `db:"cancelled_by"`
	CancellationReason *string    `db:"cancellation_reason"`

	Rating   *int    `db:"rating"`
	Feedback *string `db:"feedback"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (s *Session) IsMentor(userID uuid.UUID) bool {
	return s.MentorID == userID
}

// IsMentee reports whether userID is the one-on-one mentee.
func (s *Session) IsMentee(userID uuid.UUID) bool {
	return s.Mode == SessionModeOneOnOne && s.MenteeID != nil && *s.MenteeID == userID
}

func (s *Session) HasParticipant(userID uuid.UUID) bool {
	for _, p := range s.Participants {
		if p.MenteeID == userID {
			return true
		}
	}
	return false
}

// IsParty reports whether userID may act within the session.
func (s *Session) IsParty(userID uuid.UUID) bool {
	if s.IsMentor(userID) || s.IsMentee(userID) {
		return true
	}
	return s.Mode == SessionModeGroup && s.HasParticipant(userID)
}

// MessagingEligible reports whether messages may reference the session.
func (s *Session) MessagingEligible() bool {
	return s.Status == SessionStatusAccepted || s.Status == SessionStatusCompleted
}

// Receivers returns every party other than senderID. One-on-one sessions
// yield exactly one receiver; group sessions yield the mentor and all other
// participants.
func (s *Session) Receivers(senderID uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	if s.MentorID != senderID {
		out = append(out, s.MentorID)
	}
	if s.Mode == SessionModeOneOnOne {
		if s.MenteeID != nil && *s.MenteeID != senderID {
			out = append(out, *s.MenteeID)
		}
		return out
	}
	for _, p := range s.Participants {
		if p.MenteeID != senderID {
			out = append(out, p.MenteeID)
		}
	}
	return out
}

// Transition describes a conditional status change. The store applies it
// only while the session's current status is one of From.
type Transition struct {
	SessionID uuid.UUID
	From      []SessionStatus
	To        SessionStatus
	At        time.Time
	By        *uuid.UUID
	Reason    *string
}

type SessionFilter struct {
	Status *SessionStatus
	Mode   *SessionMode
	Offset int
	Limit  int
}
