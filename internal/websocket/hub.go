package websocket

import (
	"sync"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/MentorLink/internal/metrics"
	"github.com/rs/zerolog"
)

// UserRoom is the personal room every connection of a user joins on connect
func UserRoom(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// SessionRoom is the broadcast room for one session
func SessionRoom(sessionID uuid.UUID) string {
	return "session:" + sessionID.String()
}

type presence struct {
	userRoom    string
	sessionID   uuid.UUID
	sessionRoom string
}

// Hub is the room/presence manager. It is created once per process and
// handed to everything that emits.
//
// Membership changes take the write lock and fan-out holds the read lock
// while enqueueing, so a frame emitted after JoinSession returns always
// reaches the joined client.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]*presence
	log     zerolog.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]*presence),
		log:     log.With().Str("component", "hub").Logger(),
	}
}

func (h *Hub) join(room string, c *Client) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) leave(room string, c *Client) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Register binds a freshly authenticated client and joins its personal room
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[c]; exists {
		return ErrClientRegistered
	}

	p := &presence{userRoom: UserRoom(c.UserID)}
	h.clients[c] = p
	h.join(p.userRoom, c)

	h.log.Debug().Str("user_id", c.UserID.String()).Str("client_id", c.ID.String()).Msg("client registered")
	return nil
}

// JoinSession makes sessionID the client's only session room, leaving any
// previous one. Authorization is the caller's job.
func (h *Hub) JoinSession(c *Client, sessionID uuid.UUID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.clients[c]
	if !ok {
		return ErrClientNotFound
	}

	room := SessionRoom(sessionID)
	if p.sessionRoom == room {
		return nil
	}
	if p.sessionRoom != "" {
		h.leave(p.sessionRoom, c)
	}
	h.join(room, c)
	p.sessionID = sessionID
	p.sessionRoom = room
	return nil
}

// ActiveSession returns the session room the client currently belongs to
func (h *Hub) ActiveSession(c *Client) (uuid.UUID, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	p, ok := h.clients[c]
	if !ok || p.sessionRoom == "" {
		return uuid.Nil, false
	}
	return p.sessionID, true
}

// Unregister removes the client from every room. Idempotent.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.clients[c]
	if !ok {
		return
	}
	h.leave(p.userRoom, c)
	if p.sessionRoom != "" {
		h.leave(p.sessionRoom, c)
	}
	delete(h.clients, c)

	h.log.Debug().Str("user_id", c.UserID.String()).Str("client_id", c.ID.String()).Msg("client unregistered")
}

// Emit fans an event out to every member of room except the given client.
// It returns how many clients the frame was queued for.
func (h *Hub) Emit(room string, eventType string, payload interface{}, except *Client) (int, error) {
	frame, err := EncodeFrame(eventType, payload)
	if err != nil {
		return 0, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.rooms[room] {
		if c == except {
			continue
		}
		if err := c.enqueue(frame); err != nil {
			if err == ErrSendBufferFull {
				metrics.RecordDroppedFrame()
				h.log.Warn().Str("user_id", c.UserID.String()).Str("room", room).Msg("send buffer full, closing client")
			}
			continue
		}
		delivered++
	}
	return delivered, nil
}

// SendTo queues an event for a single client
func (h *Hub) SendTo(c *Client, eventType string, payload interface{}) error {
	frame, err := EncodeFrame(eventType, payload)
	if err != nil {
		return err
	}
	if err := c.enqueue(frame); err != nil {
		if err == ErrSendBufferFull {
			metrics.RecordDroppedFrame()
		}
		return err
	}
	return nil
}

// RoomSize returns the number of clients in room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Stats returns hub statistics for monitoring and debugging
func (h *Hub) Stats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sessions := 0
	for _, p := range h.clients {
		if p.sessionRoom != "" {
			sessions++
		}
	}
	return map[string]int{
		"connections":      len(h.clients),
		"rooms":            len(h.rooms),
		"in_session_rooms": sessions,
	}
}

// Shutdown closes every connection; their read pumps unregister them.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
}
