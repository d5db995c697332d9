package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	ws "github.com/preetsinghmakkar/MentorLink/internal/websocket"
)

// Pinger is anything the health check can probe: *sql.DB, a redis client
// adapter, ...
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	hub      *ws.Hub
	checks   map[string]Pinger
	interval time.Duration
}

func NewHealthHandler(hub *ws.Hub, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{hub: hub, checks: checks, interval: 2 * time.Second}
}

// Health reports dependency status and realtime hub statistics
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.interval)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.PingContext(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"dependencies": deps,
		"realtime":     h.hub.Stats(),
	})
}
