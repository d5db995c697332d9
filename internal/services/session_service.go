package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/MentorLink/internal/apperrors"
	"github.com/preetsinghmakkar/MentorLink/internal/dtos"
	"github.com/preetsinghmakkar/MentorLink/internal/metrics"
	"github.com/preetsinghmakkar/MentorLink/internal/models"
	"github.com/preetsinghmakkar/MentorLink/internal/websocket"
	"github.com/rs/zerolog"
)

const notifyTimeout = 10 * time.Second

type SessionService struct {
	sessions    SessionStore
	users       UserDirectory
	notifier    Notifier
	broadcaster Broadcaster
	timeout     time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

func NewSessionService(
	sessions SessionStore,
	users UserDirectory,
	notifier Notifier,
	broadcaster Broadcaster,
	timeout time.Duration,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		sessions:    sessions,
		users:       users,
		notifier:    notifier,
		broadcaster: broadcaster,
		timeout:     timeout,
		now:         func() time.Time { return time.Now().UTC() },
		log:         log.With().Str("component", "session_service").Logger(),
	}
}

func (s *SessionService) validateSchedule(scheduled time.Time, duration int) []apperrors.FieldError {
	var fields []apperrors.FieldError
	if !scheduled.After(s.now()) {
		fields = append(fields, apperrors.FieldError{Field: "scheduled_date", Error: "must be in the future"})
	}
	if duration < models.MinDurationMinutes || duration > models.MaxDurationMinutes {
		fields = append(fields, apperrors.FieldError{
			Field: "duration",
			Error: fmt.Sprintf("must be between %d and %d minutes", models.MinDurationMinutes, models.MaxDurationMinutes),
		})
	}
	return fields
}

func (s *SessionService) loadUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("user not found")
	}
	if err != nil {
		return nil, apperrors.FromStore("failed to load user", err)
	}
	return user, nil
}

func (s *SessionService) load(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("session not found")
	}
	if err != nil {
		return nil, apperrors.FromStore("failed to load session", err)
	}
	return session, nil
}

// CreateOneOnOne books a pending session with a mentor on behalf of a mentee
func (s *SessionService) CreateOneOnOne(ctx context.Context, menteeID uuid.UUID, req dtos.CreateSessionRequest) (*models.Session, error) {
	mentorID, err := uuid.Parse(req.MentorID)
	if err != nil {
		return nil, apperrors.Validation("validation failed", apperrors.FieldError{Field: "mentor_id", Error: "must be a valid id"})
	}
	fields := s.validateSchedule(req.ScheduledDate, req.Duration)
	if mentorID == menteeID {
		fields = append(fields, apperrors.FieldError{Field: "mentor_id", Error: "cannot book a session with yourself"})
	}
	if len(fields) > 0 {
		return nil, apperrors.Validation("validation failed", fields...)
	}

	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()

	mentee, err := s.loadUser(ctx, menteeID)
	if err != nil {
		return nil, err
	}
	if !mentee.IsMentee() {
		return nil, apperrors.Forbidden("only mentees can request sessions")
	}

	mentor, err := s.users.GetByID(ctx, mentorID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Validation("validation failed", apperrors.FieldError{Field: "mentor_id", Error: "mentor not found"})
	}
	if err != nil {
		return nil, apperrors.FromStore("failed to load mentor", err)
	}
	if !mentor.IsMentor() {
		return nil, apperrors.Validation("validation failed", apperrors.FieldError{Field: "mentor_id", Error: "user is not a mentor"})
	}

	amount := 0.0
	if mentor.HourlyRate != nil {
		amount = math.Round(*mentor.HourlyRate*float64(req.Duration)/60*100) / 100
	}

	now := s.now()
	session := &models.Session{
		ID:              uuid.New(),
		MentorID:        mentorID,
		MenteeID:        &menteeID,
		Title:           req.Title,
		Description:     deref(req.Description),
		SessionType:     req.SessionType,
		Mode:            models.SessionModeOneOnOne,
		MaxParticipants: 1,
		Participants: []models.Participant{
			{MenteeID: menteeID, Status: models.ParticipantJoined, JoinedAt: now},
		},
		Status:          models.SessionStatusPending,
		ScheduledDate:   req.ScheduledDate.UTC(),
		DurationMinutes: req.Duration,
		Amount:          amount,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, apperrors.FromStore("failed to create session", err)
	}

	metrics.RecordTransition(string(session.Status))
	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("mentor_id", mentorID.String()).
		Str("mentee_id", menteeID.String()).
		Msg("session requested")

	s.notify(SessionEventRequest, session, []uuid.UUID{mentorID}, nil)
	return session, nil
}

// CreateGroup opens a group session owned by the calling mentor
func (s *SessionService) CreateGroup(ctx context.Context, mentorID uuid.UUID, req dtos.CreateGroupSessionRequest) (*models.Session, error) {
	fields := s.validateSchedule(req.ScheduledDate, req.Duration)
	if req.MaxParticipants < models.MinGroupCapacity || req.MaxParticipants > models.MaxGroupCapacity {
		fields = append(fields, apperrors.FieldError{
			Field: "max_participants",
			Error: fmt.Sprintf("must be between %d and %d", models.MinGroupCapacity, models.MaxGroupCapacity),
		})
	}
	if req.Amount != nil && *req.Amount < 0 {
		fields = append(fields, apperrors.FieldError{Field: "amount", Error: "must not be negative"})
	}
	if len(fields) > 0 {
		return nil, apperrors.Validation("validation failed", fields...)
	}

	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()

	mentor, err := s.loadUser(ctx, mentorID)
	if err != nil {
		return nil, err
	}
	if !mentor.IsMentor() {
		return nil, apperrors.Forbidden("only mentors can create group sessions")
	}

	now := s.now()
	session := &models.Session{
		ID:              uuid.New(),
		MentorID:        mentorID,
		Title:           req.Title,
		Description:     deref(req.Description),
		SessionType:     req.SessionType,
		Mode:            models.SessionModeGroup,
		MaxParticipants: req.MaxParticipants,
		Participants:    []models.Participant{},
		Status:          models.SessionStatusOpen,
		ScheduledDate:   req.ScheduledDate.UTC(),
		DurationMinutes: req.Duration,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.Amount != nil {
		session.Amount = *req.Amount
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, apperrors.FromStore("failed to create group session", err)
	}

	metrics.RecordTransition(string(session.Status))
	s.log.Info().Str("session_id", session.ID.String()).Str("mentor_id", mentorID.String()).Msg("group session opened")
	return session, nil
}

// JoinGroup adds the mentee to an open group session. The join that takes
// the last slot flips the session to full.
func (s *SessionService) JoinGroup(ctx context.Context, sessionID, menteeID uuid.UUID) (*models.Session, error) {
	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()

	mentee, err := s.loadUser(ctx, menteeID)
	if err != nil {
		return nil, err
	}
	if !mentee.IsMentee() {
		return nil, apperrors.Forbidden("only mentees can join group sessions")
	}

	session, err := s.sessions.AddParticipant(ctx, sessionID, menteeID, s.now())
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return nil, apperrors.NotFound("group session not found or not open")
	case errors.Is(err, apperrors.ErrCapacity):
		return nil, apperrors.Capacity("group session is full")
	case errors.Is(err, apperrors.ErrDuplicate):
		return nil, apperrors.Duplicate("already joined this session")
	case err != nil:
		return nil, apperrors.FromStore("failed to join session", err)
	}

	s.log.Info().
		Str("session_id", sessionID.String()).
		Str("mentee_id", menteeID.String()).
		Int("participants", len(session.Participants)).
		Msg("mentee joined group session")

	if session.Status == models.SessionStatusFull {
		s.statusChanged(session, menteeID)
	}
	return session, nil
}

// transitionPolicy returns the statuses a transition may start from, and
// whether actorID may perform it at all.
type transitionPolicy func(session *models.Session, actorID uuid.UUID) ([]models.SessionStatus, bool)

func (s *SessionService) transition(
	ctx context.Context,
	sessionID, actorID uuid.UUID,
	to models.SessionStatus,
	verb string,
	policy transitionPolicy,
	stampActor bool,
	reason *string,
) (*models.Session, error) {
	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Non-parties and parties without the right role both see "not found"
	from, allowed := policy(session, actorID)
	if !session.IsParty(actorID) || !allowed {
		return nil, apperrors.HiddenForbidden("not authorized for this session")
	}
	if !statusIn(session.Status, from) {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot %s a session that is %s", verb, session.Status))
	}

	t := models.Transition{
		SessionID: sessionID,
		From:      from,
		To:        to,
		At:        s.now(),
		Reason:    reason,
	}
	if stampActor {
		t.By = &actorID
	}

	updated, err := s.sessions.ApplyTransition(ctx, t)
	if errors.Is(err, apperrors.ErrStale) {
		return nil, apperrors.Conflict("session was modified by another request")
	}
	if err != nil {
		return nil, apperrors.FromStore("failed to update session", err)
	}

	s.log.Info().
		Str("session_id", sessionID.String()).
		Str("actor_id", actorID.String()).
		Str("from", string(session.Status)).
		Str("to", string(to)).
		Msg("session transition")

	s.statusChanged(updated, actorID)
	return updated, nil
}

func mentorOnly(from ...models.SessionStatus) transitionPolicy {
	return func(session *models.Session, actorID uuid.UUID) ([]models.SessionStatus, bool) {
		return from, session.IsMentor(actorID)
	}
}

// Accept confirms a pending one-on-one request
func (s *SessionService) Accept(ctx context.Context, sessionID, mentorID uuid.UUID) (*models.Session, error) {
	session, err := s.transition(ctx, sessionID, mentorID, models.SessionStatusAccepted, "accept",
		mentorOnly(models.SessionStatusPending), false, nil)
	if err != nil {
		return nil, err
	}
	s.notify(SessionEventAccepted, session, session.Receivers(mentorID), nil)
	return session, nil
}

// Reject declines a pending one-on-one request
func (s *SessionService) Reject(ctx context.Context, sessionID, mentorID uuid.UUID, reason *string) (*models.Session, error) {
	session, err := s.transition(ctx, sessionID, mentorID, models.SessionStatusRejected, "reject",
		mentorOnly(models.SessionStatusPending), true, reason)
	if err != nil {
		return nil, err
	}
	s.notify(SessionEventRejected, session, session.Receivers(mentorID), reason)
	return session, nil
}

// Start moves a group session into the accepted state so its parties can talk
func (s *SessionService) Start(ctx context.Context, sessionID, mentorID uuid.UUID) (*models.Session, error) {
	return s.transition(ctx, sessionID, mentorID, models.SessionStatusAccepted, "start",
		func(session *models.Session, actorID uuid.UUID) ([]models.SessionStatus, bool) {
			from := []models.SessionStatus{models.SessionStatusOpen, models.SessionStatusFull}
			return from, session.Mode == models.SessionModeGroup && session.IsMentor(actorID)
		}, false, nil)
}

// Cancel ends a session before it completes. Either one-on-one party may
// cancel; group sessions can only be cancelled by their mentor.
func (s *SessionService) Cancel(ctx context.Context, sessionID, userID uuid.UUID, reason *string) (*models.Session, error) {
	session, err := s.transition(ctx, sessionID, userID, models.SessionStatusCancelled, "cancel",
		func(session *models.Session, actorID uuid.UUID) ([]models.SessionStatus, bool) {
			if session.Mode == models.SessionModeGroup {
				from := []models.SessionStatus{models.SessionStatusOpen, models.SessionStatusFull, models.SessionStatusAccepted}
				return from, session.IsMentor(actorID)
			}
			return []models.SessionStatus{models.SessionStatusPending, models.SessionStatusAccepted}, true
		}, true, reason)
	if err != nil {
		return nil, err
	}
	s.notify(SessionEventCancelled, session, session.Receivers(userID), reason)
	return session, nil
}

// Complete closes an accepted session. A mentor completing it is credited
// with one more session.
func (s *SessionService) Complete(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, error) {
	session, err := s.transition(ctx, sessionID, userID, models.SessionStatusCompleted, "complete",
		func(session *models.Session, actorID uuid.UUID) ([]models.SessionStatus, bool) {
			from := []models.SessionStatus{models.SessionStatusAccepted}
			if session.Mode == models.SessionModeGroup {
				return from, session.IsMentor(actorID)
			}
			return from, true
		}, false, nil)
	if err != nil {
		return nil, err
	}

	if session.IsMentor(userID) {
		ctx, cancel := storeContext(ctx, s.timeout)
		defer cancel()
		if err := s.users.IncrementSessionCount(ctx, session.MentorID); err != nil {
			s.log.Error().Err(err).Str("mentor_id", session.MentorID.String()).Msg("failed to increment session count")
		}
	}
	return session, nil
}

// AddFeedback records the mentee's rating once and refreshes the mentor's
// average
func (s *SessionService) AddFeedback(ctx context.Context, sessionID, menteeID uuid.UUID, req dtos.FeedbackRequest) (*models.Session, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, apperrors.Validation("validation failed", apperrors.FieldError{Field: "rating", Error: "must be between 1 and 5"})
	}

	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsParty(menteeID) {
		return nil, apperrors.HiddenForbidden("not authorized for this session")
	}
	if session.Mode != models.SessionModeOneOnOne {
		return nil, apperrors.NotFound("feedback is only available for one-on-one sessions")
	}
	if !session.IsMentee(menteeID) {
		return nil, apperrors.Forbidden("only the mentee can leave feedback")
	}
	if session.Status != models.SessionStatusCompleted {
		return nil, apperrors.Conflict("feedback requires a completed session")
	}
	if session.Rating != nil {
		return nil, apperrors.Duplicate("feedback already submitted")
	}

	updated, err := s.sessions.SetFeedback(ctx, sessionID, menteeID, req.Rating, req.Feedback)
	if errors.Is(err, apperrors.ErrStale) {
		return nil, apperrors.Duplicate("feedback already submitted")
	}
	if err != nil {
		return nil, apperrors.FromStore("failed to save feedback", err)
	}

	s.refreshMentorRating(ctx, updated.MentorID)
	return updated, nil
}

func (s *SessionService) refreshMentorRating(ctx context.Context, mentorID uuid.UUID) {
	ratings, err := s.sessions.MentorRatings(ctx, mentorID)
	if err != nil {
		s.log.Error().Err(err).Str("mentor_id", mentorID.String()).Msg("failed to load mentor ratings")
		return
	}
	avg := AverageRating(ratings)
	if err := s.users.SetRating(ctx, mentorID, avg); err != nil {
		s.log.Error().Err(err).Str("mentor_id", mentorID.String()).Msg("failed to update mentor rating")
	}
}

// AverageRating is the mean rounded to one decimal place
func AverageRating(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return math.Round(float64(sum)/float64(len(ratings))*10) / 10
}

// Get returns the session if userID is one of its parties
func (s *SessionService) Get(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, error) {
	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()
	return s.AuthorizeParty(ctx, sessionID, userID)
}

func (s *SessionService) List(ctx context.Context, userID uuid.UUID, filter models.SessionFilter) ([]*models.Session, int, error) {
	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()

	sessions, total, err := s.sessions.ListForUser(ctx, userID, filter)
	if err != nil {
		return nil, 0, apperrors.FromStore("failed to list sessions", err)
	}
	return sessions, total, nil
}

// IsAuthorizedParty reports whether userID is the mentor, the mentee or a
// joined participant of the session. A missing session is not an error.
func (s *SessionService) IsAuthorizedParty(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()

	_, err := s.AuthorizeParty(ctx, sessionID, userID)
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound, apperrors.KindAuthorization:
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SessionService) IsMessagingEligible(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()

	session, err := s.load(ctx, sessionID)
	if apperrors.KindOf(err) == apperrors.KindNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return session.MessagingEligible(), nil
}

// AuthorizeParty loads the session for one of its parties. Everyone else
// gets the same answer as for a session that does not exist.
func (s *SessionService) AuthorizeParty(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsParty(userID) {
		return nil, apperrors.HiddenForbidden("not a party to this session")
	}
	return session, nil
}

// AuthorizeMessaging is the gate every message operation passes: the caller
// is a party and the session is accepted or completed.
func (s *SessionService) AuthorizeMessaging(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, error) {
	session, err := s.AuthorizeParty(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if !session.MessagingEligible() {
		return nil, apperrors.Forbidden(messagingClosed)
	}
	return session, nil
}

const messagingClosed = "messaging is only available for accepted or completed sessions"

// statusChanged publishes a committed transition to the session room
func (s *SessionService) statusChanged(session *models.Session, actorID uuid.UUID) {
	metrics.RecordTransition(string(session.Status))
	if s.broadcaster == nil {
		return
	}

	payload := dtos.SessionStatusChangedPayload{
		SessionID: session.ID,
		Status:    string(session.Status),
		UpdatedBy: actorID,
	}
	if _, err := s.broadcaster.Emit(websocket.SessionRoom(session.ID), websocket.EventSessionStatusChanged, payload, nil); err != nil {
		s.log.Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to broadcast status change")
	}
}

// notify runs in the background; failures are logged and never reach the
// caller.
func (s *SessionService) notify(kind SessionEventKind, session *models.Session, recipients []uuid.UUID, reason *string) {
	if s.notifier == nil || len(recipients) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		for _, id := range recipients {
			user, err := s.users.GetByID(ctx, id)
			if err != nil {
				s.log.Warn().Err(err).Str("user_id", id.String()).Msg("notification recipient lookup failed")
				continue
			}

			event := SessionEvent{
				Kind:           kind,
				SessionID:      session.ID,
				Title:          session.Title,
				ScheduledDate:  session.ScheduledDate,
				DurationMins:   session.DurationMinutes,
				RecipientID:    user.ID,
				RecipientName:  user.Name,
				RecipientEmail: user.Email,
				Reason:         reason,
			}
			if err := s.notifier.NotifySessionEvent(ctx, event); err != nil {
				err = apperrors.Upstream("session notification failed", err)
				s.log.Warn().Err(err).Str("session_id", session.ID.String()).Str("kind", string(kind)).Msg("notification not delivered")
			}
		}
	}()
}

func statusIn(status models.SessionStatus, set []models.SessionStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
