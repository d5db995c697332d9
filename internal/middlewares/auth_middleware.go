package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/preetsinghmakkar/MentorLink/internal/apperrors"
	"github.com/preetsinghmakkar/MentorLink/internal/services"
)

const (
	ContextUserID   = "user_id"
	ContextUserName = "user_name"
	contextIdentity = "identity"
)

// Authenticator resolves a raw access token to a caller
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*services.Identity, error)
}

// AuthMiddleware requires a valid bearer token on every request
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		identity, err := auth.Authenticate(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(contextIdentity, identity)
		c.Set(ContextUserID, identity.UserID)
		c.Set(ContextUserName, identity.Name)

		c.Next()
	}
}

// CurrentIdentity returns the caller set by AuthMiddleware
func CurrentIdentity(c *gin.Context) (*services.Identity, bool) {
	val, exists := c.Get(contextIdentity)
	if !exists {
		return nil, false
	}
	identity, ok := val.(*services.Identity)
	return identity, ok
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   message,
		"message": message,
	})
}

func abortWithError(c *gin.Context, err error) {
	message := apperrors.PublicMessage(err)
	c.AbortWithStatusJSON(apperrors.HTTPStatus(err), gin.H{
		"error":   message,
		"message": message,
	})
}
