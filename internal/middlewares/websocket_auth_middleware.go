package middlewares

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/preetsinghmakkar/MentorLink/internal/models"
	"github.com/rs/zerolog"
)

type wsAuthKey struct{}

// WebSocketAuthContext holds authenticated WebSocket connection data
type WebSocketAuthContext struct {
	UserID   uuid.UUID
	Username string
	Role     models.UserRole
}

// WebSocketAuthMiddleware authenticates WebSocket connections.
// Browsers cannot set headers on the upgrade request, so the access token
// travels in the ?token= query parameter. Must run BEFORE the upgrade: a
// rejected connection never reaches the hub.
func WebSocketAuthMiddleware(auth Authenticator, log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "ws_auth").Logger()

	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			log.Debug().Str("remote", c.ClientIP()).Msg("token missing from query parameters")
			abortUnauthorized(c, "authentication required")
			return
		}

		identity, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			log.Debug().Err(err).Str("remote", c.ClientIP()).Msg("websocket authentication failed")
			abortWithError(c, err)
			return
		}

		// Identity comes from the token and the user record, never the client
		authCtx := &WebSocketAuthContext{
			UserID:   identity.UserID,
			Username: identity.Name,
			Role:     identity.Role,
		}

		ctx := context.WithValue(c.Request.Context(), wsAuthKey{}, authCtx)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetWebSocketAuth retrieves authentication context from request
func GetWebSocketAuth(c *gin.Context) (*WebSocketAuthContext, error) {
	val := c.Request.Context().Value(wsAuthKey{})
	if val == nil {
		return nil, errors.New("websocket authentication context not found")
	}

	auth, ok := val.(*WebSocketAuthContext)
	if !ok {
		return nil, errors.New("invalid websocket authentication context type")
	}

	return auth, nil
}
