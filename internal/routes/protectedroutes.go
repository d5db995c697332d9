package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/preetsinghmakkar/MentorLink/internal/handlers"
	"github.com/preetsinghmakkar/MentorLink/internal/middlewares"
)

func RegisterProtectedEndpoints(
	router *gin.Engine,
	sessionHandler *handlers.SessionHandler,
	messageHandler *handlers.MessageHandler,
	auth middlewares.Authenticator,
) {
	protected := router.Group("/api")
	protected.Use(middlewares.AuthMiddleware(auth))

	protected.POST("/sessions", sessionHandler.CreateSession)
	protected.POST("/sessions/group", sessionHandler.CreateGroupSession)
	protected.GET("/sessions", sessionHandler.ListSessions)
	protected.GET("/sessions/:id", sessionHandler.GetSession)
	protected.POST("/sessions/:id/join", sessionHandler.JoinGroupSession)
	protected.PUT("/sessions/:id/accept", sessionHandler.AcceptSession)
	protected.PUT("/sessions/:id/reject", sessionHandler.RejectSession)
	protected.PUT("/sessions/:id/start", sessionHandler.StartSession)
	protected.PUT("/sessions/:id/complete", sessionHandler.CompleteSession)
	protected.PUT("/sessions/:id/cancel", sessionHandler.CancelSession)
	protected.POST("/sessions/:id/feedback", sessionHandler.AddFeedback)

	protected.POST("/messages", messageHandler.SendMessage)
	protected.GET("/messages/session/:id", messageHandler.GetSessionMessages)
	protected.PUT("/messages/session/:id/read", messageHandler.MarkAsRead)
	protected.GET("/messages/session/:id/unread", messageHandler.GetUnreadCount)
	protected.DELETE("/messages/:id", messageHandler.DeleteMessage)
}
