package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/preetsinghmakkar/MentorLink/internal/handlers"
	"github.com/preetsinghmakkar/MentorLink/internal/middlewares"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func RegisterPublicEndpoints(
	router *gin.Engine,
	healthHandler *handlers.HealthHandler,
	webSocketHandler *handlers.WebSocketHandler,
	auth middlewares.Authenticator,
	log zerolog.Logger,
) {
	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := router.Group("/api")

	// Browsers cannot set headers on the upgrade request, so the token
	// travels in the query string and is checked before the upgrade
	wsAuth := middlewares.WebSocketAuthMiddleware(auth, log)
	public.GET("/ws", wsAuth, webSocketHandler.HandleWebSocket)
}
