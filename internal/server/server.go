package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/preetsinghmakkar/MentorLink/internal/config"
	"github.com/preetsinghmakkar/MentorLink/internal/handlers"
	"github.com/preetsinghmakkar/MentorLink/internal/ratelimit"
	"github.com/preetsinghmakkar/MentorLink/internal/routes"
	"github.com/preetsinghmakkar/MentorLink/internal/services"
	ws "github.com/preetsinghmakkar/MentorLink/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Stores groups the persistence the server runs on. Both the postgres
// repositories and the in-memory store satisfy it.
type Stores struct {
	Sessions services.SessionStore
	Messages services.MessageStore
	Users    services.UserDirectory
}

type Server struct {
	cfg      *config.Config
	hub      *ws.Hub
	sessions *services.SessionService
	messages *services.MessageService
	realtime *services.RealtimeService
	auth     *services.AuthService
	checks   map[string]handlers.Pinger
	log      zerolog.Logger
}

type Option func(*Server)

// WithHealthCheck adds a dependency probed by GET /health
func WithHealthCheck(name string, p handlers.Pinger) Option {
	return func(s *Server) { s.checks[name] = p }
}

func New(
	cfg *config.Config,
	stores Stores,
	notifier services.Notifier,
	limiter ratelimit.Limiter,
	log zerolog.Logger,
	opts ...Option,
) *Server {
	hub := ws.NewHub(log)
	sessions := services.NewSessionService(stores.Sessions, stores.Users, notifier, hub, cfg.StoreTimeout, log)
	messages := services.NewMessageService(sessions, stores.Messages, stores.Users, cfg.StoreTimeout, log)

	s := &Server{
		cfg:      cfg,
		hub:      hub,
		sessions: sessions,
		messages: messages,
		realtime: services.NewRealtimeService(hub, sessions, messages, limiter, log),
		auth:     services.NewAuthService(stores.Users, cfg.JWTSecret, cfg.StoreTimeout),
		checks:   make(map[string]handlers.Pinger),
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	router := routes.NewRouter(s.log, s.cfg.CORSOrigins)

	healthHandler := handlers.NewHealthHandler(s.hub, s.checks)
	webSocketHandler := handlers.NewWebSocketHandler(s.realtime, s.hub, s.cfg.CORSOrigins, s.cfg.WSSendBuffer, s.log)
	sessionHandler := handlers.NewSessionHandler(s.sessions)
	messageHandler := handlers.NewMessageHandler(s.messages, s.realtime)

	routes.RegisterPublicEndpoints(router, healthHandler, webSocketHandler, s.auth, s.log)
	routes.RegisterProtectedEndpoints(router, sessionHandler, messageHandler, s.auth)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "message": "not found"})
	})
	return router
}

// Shutdown disconnects every realtime client
func (s *Server) Shutdown() {
	s.hub.Shutdown()
}

// RedisPinger adapts a redis client to the health check
type RedisPinger struct {
	Client *redis.Client
}

func (p RedisPinger) PingContext(ctx context.Context) error {
	return p.Client.Ping(ctx).Err()
}
