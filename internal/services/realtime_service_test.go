package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/MentorLink/internal/apperrors"
	"github.com/preetsinghmakkar/MentorLink/internal/dtos"
	"github.com/preetsinghmakkar/MentorLink/internal/models"
	"github.com/preetsinghmakkar/MentorLink/internal/ratelimit"
	"github.com/preetsinghmakkar/MentorLink/internal/websocket"
)

func identityOf(u *models.User) Identity {
	return Identity{UserID: u.ID, Name: u.Name, Role: u.Role}
}

func TestSendMessageFansOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.acceptedSession(t)

	mentorConn := env.connect(t, env.mentor)
	menteeConn := env.connect(t, env.mentee)
	for _, c := range []*websocket.Client{mentorConn, menteeConn} {
		if !env.realtime.JoinSession(ctx, c, session.ID) {
			t.Fatalf("party should be able to join")
		}
		joined := framesOf(drain(c), websocket.EventSessionJoined)
		if len(joined) != 1 {
			t.Fatalf("expected a session_joined ack")
		}
	}

	content := strings.Repeat("x", 80)
	view, err := env.realtime.SendMessage(ctx, identityOf(env.mentee), textMessage(session.ID, content), TransportWebSocket)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	senderFrames := drain(menteeConn)
	if len(framesOf(senderFrames, websocket.EventNewMessage)) != 1 {
		t.Fatalf("sender should see its own message in the room")
	}
	if len(framesOf(senderFrames, websocket.EventMessageNotification)) != 0 {
		t.Fatalf("sender should not be notified of its own message")
	}

	mentorFrames := drain(mentorConn)
	if len(mentorFrames) != 2 || mentorFrames[0].Type != websocket.EventNewMessage || mentorFrames[1].Type != websocket.EventMessageNotification {
		t.Fatalf("expected new_message then message_notification, got %+v", mentorFrames)
	}

	var delivered dtos.MessageResponse
	if err := json.Unmarshal(mentorFrames[0].Payload, &delivered); err != nil {
		t.Fatalf("decode new_message: %v", err)
	}
	if delivered.ID != view.ID || delivered.Sender.ID != env.mentee.ID || delivered.Receiver.ID != env.mentor.ID {
		t.Fatalf("unexpected delivered message %+v", delivered)
	}

	var note dtos.MessageNotificationPayload
	if err := json.Unmarshal(mentorFrames[1].Payload, &note); err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	if note.SessionID != session.ID || note.Sender != env.mentee.Name || note.Preview != strings.Repeat("x", 50)+"..." {
		t.Fatalf("unexpected notification %+v", note)
	}
}

func TestNotificationReachesReceiverOutsideRoom(t *testing.T) {
	env := newTestEnv(t)
	session := env.acceptedSession(t)
	mentorConn := env.connect(t, env.mentor)

	if _, err := env.realtime.SendMessage(context.Background(), identityOf(env.mentee), textMessage(session.ID, "ping"), TransportREST); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	frames := drain(mentorConn)
	if len(frames) != 1 || frames[0].Type != websocket.EventMessageNotification {
		t.Fatalf("expected only a notification outside the room, got %+v", frames)
	}
}

func TestJoinSessionIsSilentForNonParty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.acceptedSession(t)
	stranger := env.createUser(t, "Stranger", models.RoleMentee, nil)
	conn := env.connect(t, stranger)

	if env.realtime.JoinSession(ctx, conn, session.ID) {
		t.Fatalf("stranger must not join")
	}
	if env.realtime.JoinSession(ctx, conn, uuid.New()) {
		t.Fatalf("missing session must not be joinable")
	}
	if _, ok := env.hub.ActiveSession(conn); ok {
		t.Fatalf("failed join must not change membership")
	}

	if _, err := env.realtime.SendMessage(ctx, identityOf(env.mentee), textMessage(session.ID, "private"), TransportWebSocket); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if frames := drain(conn); len(frames) != 0 {
		t.Fatalf("stranger received %+v", frames)
	}
}

func TestRejoinReplacesSessionRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.acceptedSession(t)
	second := env.acceptedSession(t)
	conn := env.connect(t, env.mentor)

	env.realtime.JoinSession(ctx, conn, first.ID)
	env.realtime.JoinSession(ctx, conn, second.ID)
	drain(conn)

	if _, err := env.realtime.SendMessage(ctx, identityOf(env.mentee), textMessage(first.ID, "old room"), TransportWebSocket); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if got := framesOf(drain(conn), websocket.EventNewMessage); len(got) != 0 {
		t.Fatalf("connection should have left the first session room")
	}
}

func TestTypingRequiresActiveSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.acceptedSession(t)
	mentorConn := env.connect(t, env.mentor)
	menteeConn := env.connect(t, env.mentee)

	err := env.realtime.HandleEvent(ctx, menteeConn, dtos.TypingEvent{SessionID: session.ID.String()})
	assertKind(t, err, apperrors.KindAuthorization)

	env.realtime.JoinSession(ctx, mentorConn, session.ID)
	env.realtime.JoinSession(ctx, menteeConn, session.ID)
	drain(mentorConn)
	drain(menteeConn)

	if err := env.realtime.HandleEvent(ctx, menteeConn, dtos.TypingEvent{SessionID: session.ID.String()}); err != nil {
		t.Fatalf("typing_start: %v", err)
	}
	if err := env.realtime.HandleEvent(ctx, menteeConn, dtos.TypingEvent{SessionID: session.ID.String(), Stop: true}); err != nil {
		t.Fatalf("typing_stop: %v", err)
	}

	frames := drain(mentorConn)
	if len(frames) != 2 || frames[0].Type != websocket.EventUserTyping || frames[1].Type != websocket.EventUserStopTyping {
		t.Fatalf("unexpected typing frames %+v", frames)
	}
	var typing dtos.UserTypingPayload
	json.Unmarshal(frames[0].Payload, &typing)
	if typing.UserID != env.mentee.ID || typing.UserName != env.mentee.Name {
		t.Fatalf("unexpected typing payload %+v", typing)
	}
	if frames := drain(menteeConn); len(frames) != 0 {
		t.Fatalf("typing events must not echo to the sender")
	}
}

func TestStatusUpdateEventTransitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.requestSession(t)
	mentorConn := env.connect(t, env.mentor)
	menteeConn := env.connect(t, env.mentee)
	env.realtime.JoinSession(ctx, menteeConn, session.ID)
	drain(menteeConn)

	// a mentee cannot announce an acceptance
	err := env.realtime.HandleEvent(ctx, menteeConn, dtos.SessionStatusUpdateEvent{SessionID: session.ID.String(), Status: "accepted"})
	assertKind(t, err, apperrors.KindAuthorization)
	if frames := drain(menteeConn); len(frames) != 0 {
		t.Fatalf("refused update must not broadcast, got %+v", frames)
	}

	if err := env.realtime.HandleEvent(ctx, mentorConn, dtos.SessionStatusUpdateEvent{SessionID: session.ID.String(), Status: "accepted"}); err != nil {
		t.Fatalf("status update: %v", err)
	}
	stored, _ := env.sessions.Get(ctx, session.ID, env.mentor.ID)
	if stored.Status != models.SessionStatusAccepted {
		t.Fatalf("expected the session to be accepted, got %s", stored.Status)
	}

	changes := framesOf(drain(menteeConn), websocket.EventSessionStatusChanged)
	if len(changes) != 1 {
		t.Fatalf("expected a status broadcast, got %d", len(changes))
	}
}

func TestStatusUpdateStartsGroupSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.groupSession(t, 2)

	updated, err := env.realtime.UpdateStatus(ctx, env.mentor.ID, session.ID, models.SessionStatusAccepted, nil)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.Status != models.SessionStatusAccepted {
		t.Fatalf("expected started group, got %s", updated.Status)
	}

	_, err = env.realtime.UpdateStatus(ctx, env.mentor.ID, session.ID, models.SessionStatusFull, nil)
	assertKind(t, err, apperrors.KindValidation)
}

func TestSendMessageRateLimited(t *testing.T) {
	env := newTestEnvWithLimiter(t, ratelimit.NewMemoryLimiter(2, time.Minute))
	ctx := context.Background()
	session := env.acceptedSession(t)

	for i := 0; i < 2; i++ {
		if _, err := env.realtime.SendMessage(ctx, identityOf(env.mentee), textMessage(session.ID, fmt.Sprint(i)), TransportREST); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	_, err := env.realtime.SendMessage(ctx, identityOf(env.mentee), textMessage(session.ID, "too many"), TransportREST)
	assertKind(t, err, apperrors.KindRateLimited)

	// the mentor has its own budget
	if _, err := env.realtime.SendMessage(ctx, identityOf(env.mentor), textMessage(session.ID, "reply"), TransportREST); err != nil {
		t.Fatalf("mentor send: %v", err)
	}
}

func TestRealtimeSendIsVisibleThroughHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.acceptedSession(t)
	conn := env.connect(t, env.mentee)

	event, err := dtos.DecodeClientEvent(&websocket.WebSocketMessage{
		Type:    websocket.EventSendMessage,
		Payload: json.RawMessage(fmt.Sprintf(`{"session_id":%q,"content":"round trip"}`, session.ID)),
	})
	if err != nil {
		t.Fatalf("DecodeClientEvent: %v", err)
	}
	if err := env.realtime.HandleEvent(ctx, conn, event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	history, _, err := env.messages.ListBySession(ctx, session.ID, env.mentor.ID, 1, 20)
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one stored message, got %d", len(history))
	}
	got := history[0]
	if got.Content != "round trip" || got.Sender.ID != env.mentee.ID || got.Receiver == nil || got.Receiver.ID != env.mentor.ID {
		t.Fatalf("history does not match the sent message: %+v", got)
	}
}

func TestConcurrentSendersKeepStoredOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.acceptedSession(t)
	observer := env.connect(t, env.mentor)
	env.realtime.JoinSession(ctx, observer, session.ID)
	drain(observer)

	var wg sync.WaitGroup
	for _, sender := range []*models.User{env.mentor, env.mentee} {
		wg.Add(1)
		go func(u *models.User) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				env.realtime.SendMessage(ctx, identityOf(u), textMessage(session.ID, fmt.Sprintf("%s-%d", u.Name, i)), TransportWebSocket)
			}
		}(sender)
	}
	wg.Wait()

	var delivered []string
	for _, f := range framesOf(drain(observer), websocket.EventNewMessage) {
		var m dtos.MessageResponse
		json.Unmarshal(f.Payload, &m)
		delivered = append(delivered, m.Content)
	}

	history, _, _ := env.messages.ListBySession(ctx, session.ID, env.mentor.ID, 1, 100)
	if len(history) != len(delivered) {
		t.Fatalf("delivered %d messages, stored %d", len(delivered), len(history))
	}
	for i := range history {
		if history[i].Content != delivered[i] {
			t.Fatalf("delivery order diverged from stored order at %d: %q vs %q", i, delivered[i], history[i].Content)
		}
	}
	if env.realtime.locks.size() != 0 {
		t.Fatalf("session locks leaked: %d", env.realtime.locks.size())
	}
}

func TestPingIsAnswered(t *testing.T) {
	env := newTestEnv(t)
	conn := env.connect(t, env.mentee)

	if err := env.realtime.HandleEvent(context.Background(), conn, dtos.PingEvent{}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	frames := drain(conn)
	if len(frames) != 1 || frames[0].Type != websocket.EventPong {
		t.Fatalf("expected pong, got %+v", frames)
	}
}
