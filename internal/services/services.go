package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/MentorLink/internal/models"
	"github.com/preetsinghmakkar/MentorLink/internal/websocket"
)

// SessionStore is implemented by repositories.SessionRepository and
// memory.SessionRepository.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ApplyTransition(ctx context.Context, t models.Transition) (*models.Session, error)
	AddParticipant(ctx context.Context, sessionID, menteeID uuid.UUID, at time.Time) (*models.Session, error)
	SetFeedback(ctx context.Context, sessionID, menteeID uuid.UUID, rating int, feedback *string) (*models.Session, error)
	MentorRatings(ctx context.Context, mentorID uuid.UUID) ([]int, error)
	ListForUser(ctx context.Context, userID uuid.UUID, filter models.SessionFilter) ([]*models.Session, int, error)
}

type MessageStore interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID, offset, limit int) ([]*models.Message, int, error)
	MarkRead(ctx context.Context, sessionID, receiverID uuid.UUID, at time.Time) (int64, error)
	CountUnread(ctx context.Context, sessionID, receiverID uuid.UUID) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserDirectory is the part of the profile service the core depends on
type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	IncrementSessionCount(ctx context.Context, mentorID uuid.UUID) error
	SetRating(ctx context.Context, mentorID uuid.UUID, rating float64) error
}

// Broadcaster delivers events to realtime rooms. *websocket.Hub implements it.
type Broadcaster interface {
	Emit(room string, eventType string, payload interface{}, except *websocket.Client) (int, error)
}

// Identity is an authenticated caller
type Identity struct {
	UserID uuid.UUID
	Name   string
	Role   models.UserRole
}

// storeContext bounds a store call. The caller's cancellation is dropped so a
// client that disconnects mid-request does not abort a write in flight.
func storeContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
