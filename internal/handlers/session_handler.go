package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/preetsinghmakkar/MentorLink/internal/apperrors"
	"github.com/preetsinghmakkar/MentorLink/internal/dtos"
	"github.com/preetsinghmakkar/MentorLink/internal/models"
	"github.com/preetsinghmakkar/MentorLink/internal/services"
	"github.com/preetsinghmakkar/MentorLink/internal/utils"
)

type SessionHandler struct {
	sessionService *services.SessionService
}

func NewSessionHandler(sessionService *services.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// CreateSession requests a one-on-one session with a mentor
func (h *SessionHandler) CreateSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req dtos.CreateSessionRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := h.sessionService.CreateOneOnOne(c.Request.Context(), user.UserID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dtos.NewSessionResponse(session))
}

// CreateGroupSession opens a group session
func (h *SessionHandler) CreateGroupSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req dtos.CreateGroupSessionRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := h.sessionService.CreateGroup(c.Request.Context(), user.UserID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dtos.NewSessionResponse(session))
}

func (h *SessionHandler) JoinGroupSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := idParam(c, "id")
	if !ok {
		return
	}

	session, err := h.sessionService.JoinGroup(c.Request.Context(), sessionID, user.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dtos.NewSessionResponse(session))
}

// ListSessions returns the caller's sessions, filtered by status and mode
func (h *SessionHandler) ListSessions(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	page, limit := utils.ParsePage(c.Query("page"), c.Query("limit"))
	filter := models.SessionFilter{Offset: utils.Offset(page, limit), Limit: limit}

	if raw := c.Query("status"); raw != "" {
		status := models.SessionStatus(raw)
		if !status.Valid() {
			respondError(c, apperrors.Validation("validation failed", apperrors.FieldError{Field: "status", Error: "is not a known status"}))
			return
		}
		filter.Status = &status
	}
	if raw := c.Query("session_mode"); raw != "" {
		mode := models.SessionMode(raw)
		if mode != models.SessionModeOneOnOne && mode != models.SessionModeGroup {
			respondError(c, apperrors.Validation("validation failed", apperrors.FieldError{Field: "session_mode", Error: "must be one of: one-on-one group"}))
			return
		}
		filter.Mode = &mode
	}

	sessions, total, err := h.sessionService.List(c.Request.Context(), user.UserID, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := dtos.SessionListResponse{
		Sessions:   make([]dtos.SessionResponse, 0, len(sessions)),
		Pagination: utils.NewPagination(page, limit, total),
	}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, dtos.NewSessionResponse(s))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := idParam(c, "id")
	if !ok {
		return
	}

	session, err := h.sessionService.Get(c.Request.Context(), sessionID, user.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dtos.NewSessionResponse(session))
}

type transitionFunc func(ctx context.Context, sessionID, userID uuid.UUID, reason *string) (*models.Session, error)

// transition runs a state change for the caller; the body (with an optional
// reason) may be omitted
func (h *SessionHandler) transition(c *gin.Context, apply transitionFunc) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req dtos.SessionReasonRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	session, err := apply(c.Request.Context(), sessionID, user.UserID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dtos.NewSessionResponse(session))
}

func (h *SessionHandler) AcceptSession(c *gin.Context) {
	h.transition(c, func(ctx context.Context, sessionID, userID uuid.UUID, _ *string) (*models.Session, error) {
		return h.sessionService.Accept(ctx, sessionID, userID)
	})
}

func (h *SessionHandler) RejectSession(c *gin.Context) {
	h.transition(c, h.sessionService.Reject)
}

func (h *SessionHandler) CancelSession(c *gin.Context) {
	h.transition(c, h.sessionService.Cancel)
}

func (h *SessionHandler) CompleteSession(c *gin.Context) {
	h.transition(c, func(ctx context.Context, sessionID, userID uuid.UUID, _ *string) (*models.Session, error) {
		return h.sessionService.Complete(ctx, sessionID, userID)
	})
}

// StartSession moves a group session into the accepted state
func (h *SessionHandler) StartSession(c *gin.Context) {
	h.transition(c, func(ctx context.Context, sessionID, userID uuid.UUID, _ *string) (*models.Session, error) {
		return h.sessionService.Start(ctx, sessionID, userID)
	})
}

func (h *SessionHandler) AddFeedback(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req dtos.FeedbackRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := h.sessionService.AddFeedback(c.Request.Context(), sessionID, user.UserID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dtos.NewSessionResponse(session))
}
