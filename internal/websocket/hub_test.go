package websocket

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, hub *Hub, buffer int) *Client {
	t.Helper()
	c := NewClient(nil, uuid.New(), "tester", buffer)
	if err := hub.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return c
}

func readFrame(t *testing.T, c *Client) OutboundMessage {
	t.Helper()
	select {
	case frame := <-c.Send:
		var msg OutboundMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			t.Fatalf("bad frame %q: %v", frame, err)
		}
		return msg
	default:
		t.Fatalf("expected a queued frame")
		return OutboundMessage{}
	}
}

func TestRegisterJoinsPersonalRoom(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newTestClient(t, hub, 4)

	if hub.RoomSize(UserRoom(c.UserID)) != 1 {
		t.Fatalf("expected client in its personal room")
	}
	if err := hub.Register(c); err != ErrClientRegistered {
		t.Fatalf("expected ErrClientRegistered, got %v", err)
	}
}

func TestJoinSessionReplacesPreviousRoom(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newTestClient(t, hub, 4)
	first, second := uuid.New(), uuid.New()

	if err := hub.JoinSession(c, first); err != nil {
		t.Fatalf("JoinSession: %v", err)
	}
	if err := hub.JoinSession(c, second); err != nil {
		t.Fatalf("JoinSession: %v", err)
	}

	if hub.RoomSize(SessionRoom(first)) != 0 {
		t.Fatalf("expected previous session room to be left")
	}
	if hub.RoomSize(SessionRoom(second)) != 1 {
		t.Fatalf("expected client in new session room")
	}
	active, ok := hub.ActiveSession(c)
	if !ok || active != second {
		t.Fatalf("expected active session %s, got %s", second, active)
	}
}

func TestJoinSessionUnregistered(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := NewClient(nil, uuid.New(), "ghost", 1)
	if err := hub.JoinSession(c, uuid.New()); err != ErrClientNotFound {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
}

func TestEmitExcludesSender(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sessionID := uuid.New()
	sender := newTestClient(t, hub, 4)
	peer := newTestClient(t, hub, 4)
	hub.JoinSession(sender, sessionID)
	hub.JoinSession(peer, sessionID)

	n, err := hub.Emit(SessionRoom(sessionID), EventUserTyping, map[string]string{"user_id": sender.UserID.String()}, sender)
	if err != nil || n != 1 {
		t.Fatalf("expected one delivery, got %d (%v)", n, err)
	}
	if msg := readFrame(t, peer); msg.Type != EventUserTyping {
		t.Fatalf("unexpected event %q", msg.Type)
	}
	if len(sender.Send) != 0 {
		t.Fatalf("sender should not receive its own typing event")
	}
}

func TestUnregisterRemovesFromAllRooms(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newTestClient(t, hub, 4)
	sessionID := uuid.New()
	hub.JoinSession(c, sessionID)

	hub.Unregister(c)
	hub.Unregister(c)

	if hub.RoomSize(UserRoom(c.UserID)) != 0 || hub.RoomSize(SessionRoom(sessionID)) != 0 {
		t.Fatalf("expected client removed from every room")
	}
	if n, _ := hub.Emit(SessionRoom(sessionID), EventNewMessage, nil, nil); n != 0 {
		t.Fatalf("expected no deliveries after unregister")
	}
	if stats := hub.Stats(); stats["connections"] != 0 || stats["rooms"] != 0 {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestFullBufferClosesClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newTestClient(t, hub, 1)
	room := UserRoom(c.UserID)

	if n, _ := hub.Emit(room, EventNewMessage, nil, nil); n != 1 {
		t.Fatalf("expected first frame queued")
	}
	if n, _ := hub.Emit(room, EventNewMessage, nil, nil); n != 0 {
		t.Fatalf("expected second frame dropped")
	}
	if c.IsConnected() {
		t.Fatalf("expected slow client to be closed")
	}
	if err := hub.SendTo(c, EventPong, nil); err != ErrClientClosed {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
}

func TestJoinThenEmitIsVisible(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sessionID := uuid.New()
	room := SessionRoom(sessionID)

	var wg sync.WaitGroup
	clients := make([]*Client, 20)
	for i := range clients {
		clients[i] = newTestClient(t, hub, 4)
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			hub.JoinSession(c, sessionID)
		}(clients[i])
	}
	wg.Wait()

	n, _ := hub.Emit(room, EventNewMessage, map[string]string{"content": "hi"}, nil)
	if n != len(clients) {
		t.Fatalf("expected %d deliveries after joins completed, got %d", len(clients), n)
	}
}

func TestParseEnvelope(t *testing.T) {
	msg, err := ParseEnvelope([]byte(`{"type":"typing_start","payload":{"session_id":"x"}}`))
	if err != nil || msg.Type != EventTypingStart {
		t.Fatalf("unexpected parse result %+v %v", msg, err)
	}
	if _, err := ParseEnvelope([]byte(`{"payload":{}}`)); err == nil {
		t.Fatalf("expected missing type to fail")
	}
	if _, err := ParseEnvelope([]byte(`not json`)); err == nil {
		t.Fatalf("expected invalid json to fail")
	}
}
