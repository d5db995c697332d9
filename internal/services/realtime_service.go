package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/MentorLink/internal/apperrors"
	"github.com/preetsinghmakkar/MentorLink/internal/dtos"
	"github.com/preetsinghmakkar/MentorLink/internal/metrics"
	"github.com/preetsinghmakkar/MentorLink/internal/models"
	"github.com/preetsinghmakkar/MentorLink/internal/ratelimit"
	"github.com/preetsinghmakkar/MentorLink/internal/utils"
	"github.com/preetsinghmakkar/MentorLink/internal/websocket"
	"github.com/rs/zerolog"
)

const (
	TransportWebSocket = "websocket"
	TransportREST      = "rest"

	previewLength = 50
)

// RealtimeService routes live events: room joins, message sends, typing
// indicators and status updates. REST sends go through SendMessage too.
type RealtimeService struct {
	hub      *websocket.Hub
	sessions *SessionService
	messages *MessageService
	limiter  ratelimit.Limiter
	locks    *sessionLocks
	log      zerolog.Logger
}

func NewRealtimeService(
	hub *websocket.Hub,
	sessions *SessionService,
	messages *MessageService,
	limiter ratelimit.Limiter,
	log zerolog.Logger,
) *RealtimeService {
	return &RealtimeService{
		hub:      hub,
		sessions: sessions,
		messages: messages,
		limiter:  limiter,
		locks:    newSessionLocks(),
		log:      log.With().Str("component", "realtime").Logger(),
	}
}

// HandleEvent runs one decoded client event. The returned error is meant for
// the caller's connection only.
func (s *RealtimeService) HandleEvent(ctx context.Context, client *websocket.Client, event dtos.ClientEvent) error {
	identity := Identity{UserID: client.UserID, Name: client.Username}

	switch e := event.(type) {
	case dtos.JoinSessionEvent:
		s.JoinSession(ctx, client, uuid.MustParse(e.SessionID))
		return nil
	case dtos.SendMessageEvent:
		_, err := s.SendMessage(ctx, identity, e.SendMessageRequest, TransportWebSocket)
		return err
	case dtos.TypingEvent:
		return s.Typing(client, uuid.MustParse(e.SessionID), !e.Stop)
	case dtos.SessionStatusUpdateEvent:
		_, err := s.UpdateStatus(ctx, identity.UserID, uuid.MustParse(e.SessionID), models.SessionStatus(e.Status), e.Reason)
		return err
	case dtos.PingEvent:
		return s.hub.SendTo(client, websocket.EventPong, nil)
	default:
		return apperrors.Validation("unsupported event")
	}
}

// JoinSession moves the connection into the session's room when its user is
// a party. Anything else is dropped without a reply so the caller learns
// nothing about the session.
func (s *RealtimeService) JoinSession(ctx context.Context, client *websocket.Client, sessionID uuid.UUID) bool {
	ok, err := s.sessions.IsAuthorizedParty(ctx, sessionID, client.UserID)
	if err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("join authorization failed")
		return false
	}
	if !ok {
		s.log.Debug().Str("session_id", sessionID.String()).Str("user_id", client.UserID.String()).Msg("join refused")
		return false
	}

	if err := s.hub.JoinSession(client, sessionID); err != nil {
		s.log.Debug().Err(err).Str("user_id", client.UserID.String()).Msg("join on closed client")
		return false
	}

	s.log.Debug().Str("session_id", sessionID.String()).Str("user_id", client.UserID.String()).Msg("joined session room")
	if err := s.hub.SendTo(client, websocket.EventSessionJoined, dtos.SessionJoinedPayload{SessionID: sessionID}); err != nil {
		s.log.Debug().Err(err).Msg("join ack not delivered")
	}
	return true
}

// SendMessage persists a message and fans it out. Append and fan-out run
// under the session's lock, so every member sees messages in stored order.
func (s *RealtimeService) SendMessage(ctx context.Context, sender Identity, req dtos.SendMessageRequest, transport string) (*dtos.MessageResponse, error) {
	if err := s.allow(ctx, sender.UserID); err != nil {
		return nil, err
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return nil, apperrors.Validation("validation failed", apperrors.FieldError{Field: "session_id", Error: "must be a valid id"})
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	message, session, err := s.messages.Append(ctx, sender.UserID, req)
	if err != nil {
		return nil, err
	}

	views, err := s.messages.View(ctx, message)
	if err != nil {
		return nil, err
	}
	view := views[0]

	if _, err := s.hub.Emit(websocket.SessionRoom(sessionID), websocket.EventNewMessage, view, nil); err != nil {
		s.log.Error().Err(err).Str("message_id", message.ID.String()).Msg("failed to fan out message")
	}

	notification := dtos.MessageNotificationPayload{
		SessionID: sessionID,
		MessageID: message.ID,
		SenderID:  sender.UserID,
		Sender:    view.Sender.Name,
		Preview:   utils.Preview(message.Content, previewLength),
	}
	for _, receiver := range session.Receivers(sender.UserID) {
		if _, err := s.hub.Emit(websocket.UserRoom(receiver), websocket.EventMessageNotification, notification, nil); err != nil {
			s.log.Error().Err(err).Str("receiver_id", receiver.String()).Msg("failed to send notification")
		}
	}

	metrics.RecordMessageSent(transport)
	return &view, nil
}

func (s *RealtimeService) allow(ctx context.Context, userID uuid.UUID) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, userID.String())
	if err != nil {
		// fail open
		s.log.Warn().Err(err).Msg("rate limiter unavailable")
		return nil
	}
	if !ok {
		return apperrors.RateLimited("too many messages, slow down")
	}
	return nil
}

// Typing relays typing indicators to the rest of the session room. The
// connection must currently be in that room.
func (s *RealtimeService) Typing(client *websocket.Client, sessionID uuid.UUID, started bool) error {
	active, ok := s.hub.ActiveSession(client)
	if !ok || active != sessionID {
		return apperrors.Forbidden("join the session before sending typing events")
	}

	room := websocket.SessionRoom(sessionID)
	var err error
	if started {
		_, err = s.hub.Emit(room, websocket.EventUserTyping, dtos.UserTypingPayload{
			SessionID: sessionID,
			UserID:    client.UserID,
			UserName:  client.Username,
		}, client)
	} else {
		_, err = s.hub.Emit(room, websocket.EventUserStopTyping, dtos.UserStopTypingPayload{
			SessionID: sessionID,
			UserID:    client.UserID,
		}, client)
	}
	return err
}

// UpdateStatus applies a status change requested over the live channel.
// SessionService broadcasts the result to the room.
func (s *RealtimeService) UpdateStatus(ctx context.Context, userID, sessionID uuid.UUID, status models.SessionStatus, reason *string) (*models.Session, error) {
	switch status {
	case models.SessionStatusAccepted:
		session, err := s.sessions.Get(ctx, sessionID, userID)
		if err != nil {
			return nil, err
		}
		if session.Mode == models.SessionModeGroup {
			return s.sessions.Start(ctx, sessionID, userID)
		}
		return s.sessions.Accept(ctx, sessionID, userID)
	case models.SessionStatusRejected:
		return s.sessions.Reject(ctx, sessionID, userID, reason)
	case models.SessionStatusCompleted:
		return s.sessions.Complete(ctx, sessionID, userID)
	case models.SessionStatusCancelled:
		return s.sessions.Cancel(ctx, sessionID, userID, reason)
	default:
		return nil, apperrors.Validation("validation failed", apperrors.FieldError{Field: "status", Error: "is not a status clients can set"})
	}
}

// sessionLocks hands out one mutex per session and forgets it once nobody
// holds or waits on it.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[uuid.UUID]*sessionLock)}
}

func (l *sessionLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &sessionLock{}
		l.locks[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.Lock()
	return func() {
		lock.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
