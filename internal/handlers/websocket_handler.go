package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/preetsinghmakkar/MentorLink/internal/apperrors"
	"github.com/preetsinghmakkar/MentorLink/internal/dtos"
	"github.com/preetsinghmakkar/MentorLink/internal/metrics"
	"github.com/preetsinghmakkar/MentorLink/internal/middlewares"
	"github.com/preetsinghmakkar/MentorLink/internal/services"
	ws "github.com/preetsinghmakkar/MentorLink/internal/websocket"
	"github.com/rs/zerolog"
)

const eventTimeout = 15 * time.Second

type WebSocketHandler struct {
	realtimeService *services.RealtimeService
	hub             *ws.Hub
	upgrader        websocket.Upgrader
	sendBuffer      int
	log             zerolog.Logger
}

func NewWebSocketHandler(
	realtimeService *services.RealtimeService,
	hub *ws.Hub,
	allowedOrigins []string,
	sendBuffer int,
	log zerolog.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		realtimeService: realtimeService,
		hub:             hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		sendBuffer: sendBuffer,
		log:        log.With().Str("component", "websocket").Logger(),
	}
}

// originChecker accepts requests without an Origin header (non-browser
// clients) and browser requests from the configured origins
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleWebSocket is the WebSocket endpoint handler
// MUST be protected by WebSocketAuthMiddleware
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	auth, err := middlewares.GetWebSocketAuth(c)
	if err != nil {
		h.log.Error().Err(err).Msg("missing authentication context")
		respondError(c, apperrors.Internal("missing websocket authentication", err))
		return
	}

	// Upgrade writes its own error response
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", auth.UserID.String()).Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(conn, auth.UserID, auth.Username, h.sendBuffer)
	if err := h.hub.Register(client); err != nil {
		h.log.Error().Err(err).Msg("failed to register client")
		client.Close()
		return
	}
	metrics.ConnectionOpened()

	h.log.Info().
		Str("user_id", auth.UserID.String()).
		Str("client_id", client.ID.String()).
		Msg("client connected")

	go client.WritePump(h.log)
	go h.readPump(client)
}

// readPump processes the client's events in order and tears the client down
// when the connection ends
func (h *WebSocketHandler) readPump(client *ws.Client) {
	defer func() {
		h.hub.Unregister(client)
		client.Close()
		metrics.ConnectionClosed()
		h.log.Info().
			Str("user_id", client.UserID.String()).
			Str("client_id", client.ID.String()).
			Msg("client disconnected")
	}()

	client.ReadPump(h.log, func(data []byte) {
		h.handleFrame(client, data)
	})
}

func (h *WebSocketHandler) handleFrame(client *ws.Client, data []byte) {
	msg, err := ws.ParseEnvelope(data)
	if err != nil {
		metrics.RecordEvent("invalid", false)
		h.sendError(client, apperrors.Validation("malformed event"))
		return
	}

	event, err := dtos.DecodeClientEvent(msg)
	if err != nil {
		metrics.RecordEvent("invalid", false)
		h.sendError(client, err)
		return
	}

	// Not tied to the connection: a disconnect must not abort a write in flight
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	err = h.realtimeService.HandleEvent(ctx, client, event)
	metrics.RecordEvent(event.EventName(), err == nil)
	if err != nil {
		h.sendError(client, err)
	}
}

// sendError reports a failed event to its sender only; the connection stays open
func (h *WebSocketHandler) sendError(client *ws.Client, err error) {
	if apperrors.KindOf(err) == apperrors.KindInternal {
		h.log.Error().Err(err).Str("user_id", client.UserID.String()).Msg("event failed")
	} else {
		h.log.Debug().Err(err).Str("user_id", client.UserID.String()).Msg("event rejected")
	}

	if err := h.hub.SendTo(client, ws.EventError, ws.ErrorPayload{Message: apperrors.PublicMessage(err)}); err != nil {
		h.log.Debug().Err(err).Msg("error event not delivered")
	}
}
