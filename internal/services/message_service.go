package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/MentorLink/internal/apperrors"
	"github.com/preetsinghmakkar/MentorLink/internal/dtos"
	"github.com/preetsinghmakkar/MentorLink/internal/models"
	"github.com/preetsinghmakkar/MentorLink/internal/utils"
	"github.com/rs/zerolog"
)

type MessageService struct {
	sessions *SessionService
	messages MessageStore
	users    UserDirectory
	timeout  time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

func NewMessageService(sessions *SessionService, messages MessageStore, users UserDirectory, timeout time.Duration, log zerolog.Logger) *MessageService {
	return &MessageService{
		sessions: sessions,
		messages: messages,
		users:    users,
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log.With().Str("component", "message_service").Logger(),
	}
}

func validateMessage(req dtos.SendMessageRequest) (uuid.UUID, models.MessageType, error) {
	var fields []apperrors.FieldError

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		fields = append(fields, apperrors.FieldError{Field: "session_id", Error: "must be a valid id"})
	}

	n := utf8.RuneCountInString(req.Content)
	if strings.TrimSpace(req.Content) == "" {
		fields = append(fields, apperrors.FieldError{Field: "content", Error: "is required"})
	} else if n > models.MaxMessageLength {
		fields = append(fields, apperrors.FieldError{Field: "content", Error: "must be at most 1000 characters"})
	}

	messageType := models.MessageType(req.MessageType)
	if messageType == "" {
		messageType = models.MessageTypeText
	}
	if !messageType.Valid() {
		fields = append(fields, apperrors.FieldError{Field: "message_type", Error: "must be one of: text file image"})
	} else if messageType != models.MessageTypeText && (req.FileURL == nil || *req.FileURL == "") {
		fields = append(fields, apperrors.FieldError{Field: "file_url", Error: "is required for file and image messages"})
	}

	if len(fields) > 0 {
		return uuid.Nil, "", apperrors.Validation("validation failed", fields...)
	}
	return sessionID, messageType, nil
}

// Append persists a message after the messaging gate passes. The session is
// returned so the caller can resolve who to notify.
func (s *MessageService) Append(ctx context.Context, senderID uuid.UUID, req dtos.SendMessageRequest) (*models.Message, *models.Session, error) {
	sessionID, messageType, err := validateMessage(req)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()

	session, err := s.sessions.AuthorizeMessaging(ctx, sessionID, senderID)
	if err != nil {
		return nil, nil, err
	}

	message := &models.Message{
		ID:          uuid.New(),
		SessionID:   sessionID,
		SenderID:    senderID,
		Content:     req.Content,
		MessageType: messageType,
		FileURL:     req.FileURL,
		CreatedAt:   s.now(),
	}
	// Group messages are addressed to the whole session
	if session.Mode == models.SessionModeOneOnOne {
		if receivers := session.Receivers(senderID); len(receivers) == 1 {
			receiver := receivers[0]
			message.ReceiverID = &receiver
		}
	}

	// The store re-checks the status: a transition may have committed since
	// AuthorizeMessaging read the session
	if err := s.messages.Create(ctx, message); err != nil {
		if errors.Is(err, apperrors.ErrStale) {
			return nil, nil, apperrors.Forbidden(messagingClosed)
		}
		return nil, nil, apperrors.FromStore("failed to save message", err)
	}
	return message, session, nil
}

// ListBySession returns one page of history in chronological order. Pages
// are counted from the newest message.
func (s *MessageService) ListBySession(ctx context.Context, sessionID, callerID uuid.UUID, page, limit int) ([]dtos.MessageResponse, utils.Pagination, error) {
	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()

	if _, err := s.sessions.AuthorizeParty(ctx, sessionID, callerID); err != nil {
		return nil, utils.Pagination{}, err
	}

	messages, total, err := s.messages.ListBySession(ctx, sessionID, utils.Offset(page, limit), limit)
	if err != nil {
		return nil, utils.Pagination{}, apperrors.FromStore("failed to load messages", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	views, err := s.View(ctx, messages...)
	if err != nil {
		return nil, utils.Pagination{}, err
	}
	return views, utils.NewPagination(page, limit, total), nil
}

// MarkRead marks every message addressed to the caller in the session as
// read. Calling it again changes nothing.
func (s *MessageService) MarkRead(ctx context.Context, sessionID, callerID uuid.UUID) (int64, error) {
	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()

	if _, err := s.sessions.AuthorizeParty(ctx, sessionID, callerID); err != nil {
		return 0, err
	}

	n, err := s.messages.MarkRead(ctx, sessionID, callerID, s.now())
	if err != nil {
		return 0, apperrors.FromStore("failed to mark messages read", err)
	}
	return n, nil
}

func (s *MessageService) UnreadCount(ctx context.Context, sessionID, callerID uuid.UUID) (int, error) {
	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()

	if _, err := s.sessions.AuthorizeParty(ctx, sessionID, callerID); err != nil {
		return 0, err
	}

	count, err := s.messages.CountUnread(ctx, sessionID, callerID)
	if err != nil {
		return 0, apperrors.FromStore("failed to count unread messages", err)
	}
	return count, nil
}

// Remove deletes a message. Only its sender may do so.
func (s *MessageService) Remove(ctx context.Context, messageID, callerID uuid.UUID) error {
	ctx, cancel := storeContext(ctx, s.timeout)
	defer cancel()

	message, err := s.messages.GetByID(ctx, messageID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.NotFound("message not found")
	}
	if err != nil {
		return apperrors.FromStore("failed to load message", err)
	}
	if message.SenderID != callerID {
		return apperrors.Forbidden("only the sender can delete a message")
	}

	err = s.messages.Delete(ctx, messageID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.NotFound("message not found")
	}
	if err != nil {
		return apperrors.FromStore("failed to delete message", err)
	}

	s.log.Debug().Str("message_id", messageID.String()).Str("sender_id", callerID.String()).Msg("message deleted")
	return nil
}

// View resolves sender and receiver ids into user summaries
func (s *MessageService) View(ctx context.Context, messages ...*models.Message) ([]dtos.MessageResponse, error) {
	users := make(map[uuid.UUID]dtos.UserSummary)
	summary := func(id uuid.UUID) (dtos.UserSummary, error) {
		if u, ok := users[id]; ok {
			return u, nil
		}
		user, err := s.users.GetByID(ctx, id)
		if errors.Is(err, apperrors.ErrNotFound) {
			// Deleted accounts still show up in history
			u := dtos.UserSummary{ID: id}
			users[id] = u
			return u, nil
		}
		if err != nil {
			return dtos.UserSummary{}, apperrors.FromStore("failed to load user", err)
		}
		u := dtos.UserSummary{ID: user.ID, Name: user.Name, ProfilePic: user.ProfilePic}
		users[id] = u
		return u, nil
	}

	out := make([]dtos.MessageResponse, 0, len(messages))
	for _, m := range messages {
		sender, err := summary(m.SenderID)
		if err != nil {
			return nil, err
		}

		view := dtos.MessageResponse{
			ID:          m.ID,
			SessionID:   m.SessionID,
			Sender:      sender,
			Content:     m.Content,
			MessageType: string(m.MessageType),
			FileURL:     m.FileURL,
			IsRead:      m.IsRead,
			ReadAt:      m.ReadAt,
			CreatedAt:   m.CreatedAt,
		}
		if m.ReceiverID != nil {
			receiver, err := summary(*m.ReceiverID)
			if err != nil {
				return nil, err
			}
			view.Receiver = &receiver
		}
		out = append(out, view)
	}
	return out, nil
}
