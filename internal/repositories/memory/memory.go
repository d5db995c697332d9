// Package memory holds process-local stores with the same contracts as the
// Postgres repositories. They back STORE_DRIVER=memory and the test suites.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/MentorLink/internal/apperrors"
	"github.com/preetsinghmakkar/MentorLink/internal/models"
)

// Store keeps users, sessions and messages behind one mutex, which is what
// makes conditional transitions and capacity checks atomic.
type Store struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]*models.User
	sessions map[uuid.UUID]*models.Session
	messages []*models.Message
}

func NewStore() *Store {
	return &Store{
		users:    make(map[uuid.UUID]*models.User),
		sessions: make(map[uuid.UUID]*models.Session),
	}
}

func (s *Store) Sessions() *SessionRepository { return &SessionRepository{store: s} }
func (s *Store) Messages() *MessageRepository { return &MessageRepository{store: s} }
func (s *Store) Users() *UserRepository       { return &UserRepository{store: s} }

func cloneSession(in *models.Session) *models.Session {
	out := *in
	out.Participants = append([]models.Participant(nil), in.Participants...)
	return &out
}

func cloneMessage(in *models.Message) *models.Message {
	out := *in
	return &out
}

type SessionRepository struct {
	store *Store
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.sessions[session.ID]; exists {
		return fmt.Errorf("session %s: %w", session.ID, apperrors.ErrDuplicate)
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	r.store.sessions[session.ID] = cloneSession(session)
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	session, ok := r.store.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, apperrors.ErrNotFound)
	}
	return cloneSession(session), nil
}

func (r *SessionRepository) ApplyTransition(ctx context.Context, t models.Transition) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	session, ok := r.store.sessions[t.SessionID]
	if !ok {
		return nil, fmt.Errorf("session %s to %s: %w", t.SessionID, t.To, apperrors.ErrStale)
	}

	allowed := false
	for _, from := range t.From {
		if session.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("session %s to %s: %w", t.SessionID, t.To, apperrors.ErrStale)
	}

	at := t.At
	session.Status = t.To
	switch t.To {
	case models.SessionStatusAccepted:
		session.AcceptedAt = &at
	case models.SessionStatusCompleted:
		session.CompletedAt = &at
	case models.SessionStatusRejected, models.SessionStatusCancelled:
		session.CancelledAt = &at
	}
	if t.By != nil {
		by := *t.By
		session.CancelledBy = &by
	}
	if t.Reason != nil {
		reason := *t.Reason
		session.CancellationReason = &reason
	}
	session.UpdatedAt = time.Now().UTC()
	return cloneSession(session), nil
}

func (r *SessionRepository) AddParticipant(ctx context.Context, sessionID, menteeID uuid.UUID, at time.Time) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	session, ok := r.store.sessions[sessionID]
	if !ok || session.Mode != models.SessionModeGroup {
		return nil, fmt.Errorf("session %s: %w", sessionID, apperrors.ErrNotFound)
	}
	if session.Status == models.SessionStatusFull {
		return nil, fmt.Errorf("session %s: %w", sessionID, apperrors.ErrCapacity)
	}
	if session.Status != models.SessionStatusOpen {
		return nil, fmt.Errorf("session %s is %s: %w", sessionID, session.Status, apperrors.ErrNotFound)
	}
	if session.HasParticipant(menteeID) {
		return nil, fmt.Errorf("mentee %s: %w", menteeID, apperrors.ErrDuplicate)
	}
	if len(session.Participants) >= session.MaxParticipants {
		return nil, fmt.Errorf("session %s: %w", sessionID, apperrors.ErrCapacity)
	}

	session.Participants = append(session.Participants, models.Participant{
		MenteeID: menteeID,
		Status:   models.ParticipantJoined,
		JoinedAt: at,
	})
	if len(session.Participants) == session.MaxParticipants {
		session.Status = models.SessionStatusFull
	}
	session.UpdatedAt = time.Now().UTC()
	return cloneSession(session), nil
}

func (r *SessionRepository) SetFeedback(ctx context.Context, sessionID, menteeID uuid.UUID, rating int, feedback *string) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	session, ok := r.store.sessions[sessionID]
	if !ok || !session.IsMentee(menteeID) || session.Status != models.SessionStatusCompleted || session.Rating != nil {
		return nil, fmt.Errorf("feedback for session %s: %w", sessionID, apperrors.ErrStale)
	}

	session.Rating = &rating
	if feedback != nil {
		text := *feedback
		session.Feedback = &text
	}
	session.UpdatedAt = time.Now().UTC()
	return cloneSession(session), nil
}

func (r *SessionRepository) MentorRatings(ctx context.Context, mentorID uuid.UUID) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var ratings []int
	for _, session := range r.store.sessions {
		if session.MentorID == mentorID && session.Rating != nil {
			ratings = append(ratings, *session.Rating)
		}
	}
	return ratings, nil
}

func (r *SessionRepository) ListForUser(ctx context.Context, userID uuid.UUID, filter models.SessionFilter) ([]*models.Session, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var matched []*models.Session
	for _, session := range r.store.sessions {
		if !session.IsMentor(userID) && !session.HasParticipant(userID) &&
			(session.MenteeID == nil || *session.MenteeID != userID) {
			continue
		}
		if filter.Status != nil && session.Status != *filter.Status {
			continue
		}
		if filter.Mode != nil && session.Mode != *filter.Mode {
			continue
		}
		matched = append(matched, session)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].ScheduledDate.Equal(matched[j].ScheduledDate) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].ScheduledDate.After(matched[j].ScheduledDate)
	})

	total := len(matched)
	page := paginate(len(matched), filter.Offset, filter.Limit)
	out := make([]*models.Session, 0, page.end-page.start)
	for _, session := range matched[page.start:page.end] {
		out = append(out, cloneSession(session))
	}
	return out, total, nil
}

type window struct{ start, end int }

func paginate(n, offset, limit int) window {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return window{start: offset, end: end}
}

type MessageRepository struct {
	store *Store
}

func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	// same lock as transitions: the status check and the append are one step
	session, ok := r.store.sessions[message.SessionID]
	if !ok || !session.MessagingEligible() {
		return fmt.Errorf("session %s no longer accepts messages: %w", message.SessionID, apperrors.ErrStale)
	}

	message.IsRead = false
	message.ReadAt = nil
	message.CreatedAt = time.Now().UTC()
	r.store.messages = append(r.store.messages, cloneMessage(message))
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, m := range r.store.messages {
		if m.ID == id {
			return cloneMessage(m), nil
		}
	}
	return nil, fmt.Errorf("message %s: %w", id, apperrors.ErrNotFound)
}

func (r *MessageRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, offset, limit int) ([]*models.Message, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	// newest first, matching ORDER BY seq DESC
	var matched []*models.Message
	for i := len(r.store.messages) - 1; i >= 0; i-- {
		if r.store.messages[i].SessionID == sessionID {
			matched = append(matched, r.store.messages[i])
		}
	}

	page := paginate(len(matched), offset, limit)
	out := make([]*models.Message, 0, page.end-page.start)
	for _, m := range matched[page.start:page.end] {
		out = append(out, cloneMessage(m))
	}
	return out, len(matched), nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, sessionID, receiverID uuid.UUID, at time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var n int64
	for _, m := range r.store.messages {
		if m.SessionID == sessionID && m.ReceiverID != nil && *m.ReceiverID == receiverID && !m.IsRead {
			readAt := at
			m.IsRead = true
			m.ReadAt = &readAt
			n++
		}
	}
	return n, nil
}

func (r *MessageRepository) CountUnread(ctx context.Context, sessionID, receiverID uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	count := 0
	for _, m := range r.store.messages {
		if m.SessionID == sessionID && m.ReceiverID != nil && *m.ReceiverID == receiverID && !m.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *MessageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for i, m := range r.store.messages {
		if m.ID == id {
			r.store.messages = append(r.store.messages[:i], r.store.messages[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("message %s: %w", id, apperrors.ErrNotFound)
}

type UserRepository struct {
	store *Store
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.users[user.ID]; exists {
		return fmt.Errorf("user %s: %w", user.ID, apperrors.ErrDuplicate)
	}
	u := *user
	r.store.users[user.ID] = &u
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	user, ok := r.store.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, apperrors.ErrNotFound)
	}
	u := *user
	return &u, nil
}

func (r *UserRepository) IncrementSessionCount(ctx context.Context, mentorID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if user, ok := r.store.users[mentorID]; ok {
		user.SessionCount++
	}
	return nil
}

func (r *UserRepository) SetRating(ctx context.Context, mentorID uuid.UUID, rating float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if user, ok := r.store.users[mentorID]; ok {
		user.Rating = rating
	}
	return nil
}
