package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/MentorLink/internal/apperrors"
	"github.com/preetsinghmakkar/MentorLink/internal/dtos"
	"github.com/preetsinghmakkar/MentorLink/internal/models"
	"github.com/preetsinghmakkar/MentorLink/internal/websocket"
)

func TestCreateOneOnOneComputesAmount(t *testing.T) {
	env := newTestEnv(t)

	session, err := env.sessions.CreateOneOnOne(context.Background(), env.mentee.ID, dtos.CreateSessionRequest{
		MentorID:      env.mentor.ID.String(),
		Title:         "System design",
		ScheduledDate: time.Now().Add(time.Hour),
		Duration:      90,
		SessionType:   "video",
	})
	if err != nil {
		t.Fatalf("CreateOneOnOne: %v", err)
	}

	if session.Amount != 150 {
		t.Fatalf("expected amount 150, got %v", session.Amount)
	}
	if session.Status != models.SessionStatusPending {
		t.Fatalf("expected pending, got %s", session.Status)
	}
	if len(session.Participants) != 1 || session.Participants[0].MenteeID != env.mentee.ID {
		t.Fatalf("expected mentee as the only participant, got %+v", session.Participants)
	}

	event := env.notifier.next(t)
	if event.Kind != SessionEventRequest || event.RecipientID != env.mentor.ID || event.RecipientEmail != env.mentor.Email {
		t.Fatalf("unexpected notification %+v", event)
	}
}

func TestCreateOneOnOneWithoutHourlyRate(t *testing.T) {
	env := newTestEnv(t)
	mentor := env.createUser(t, "Volunteer", models.RoleMentor, nil)

	session, err := env.sessions.CreateOneOnOne(context.Background(), env.mentee.ID, dtos.CreateSessionRequest{
		MentorID:      mentor.ID.String(),
		Title:         "Career chat",
		ScheduledDate: time.Now().Add(time.Hour),
		Duration:      30,
		SessionType:   "chat",
	})
	if err != nil {
		t.Fatalf("CreateOneOnOne: %v", err)
	}
	if session.Amount != 0 {
		t.Fatalf("expected zero amount, got %v", session.Amount)
	}
}

func TestCreateOneOnOneValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.sessions.CreateOneOnOne(ctx, env.mentee.ID, dtos.CreateSessionRequest{
		MentorID:      env.mentor.ID.String(),
		Title:         "Too soon",
		ScheduledDate: time.Now().Add(-time.Minute),
		Duration:      10,
		SessionType:   "video",
	})
	assertKind(t, err, apperrors.KindValidation)
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || len(appErr.Fields) != 2 {
		t.Fatalf("expected two field errors, got %+v", err)
	}

	_, err = env.sessions.CreateOneOnOne(ctx, env.mentee.ID, dtos.CreateSessionRequest{
		MentorID:      env.mentee.ID.String(),
		Title:         "Not a mentor",
		ScheduledDate: time.Now().Add(time.Hour),
		Duration:      481,
		SessionType:   "video",
	})
	assertKind(t, err, apperrors.KindValidation)

	other := env.createUser(t, "Other", models.RoleMentee, nil)
	_, err = env.sessions.CreateOneOnOne(ctx, other.ID, dtos.CreateSessionRequest{
		MentorID:      env.mentee.ID.String(),
		Title:         "Not a mentor",
		ScheduledDate: time.Now().Add(time.Hour),
		Duration:      60,
		SessionType:   "video",
	})
	assertKind(t, err, apperrors.KindValidation)

	_, err = env.sessions.CreateOneOnOne(ctx, env.mentor.ID, dtos.CreateSessionRequest{
		MentorID:      env.createUser(t, "Second", models.RoleMentor, nil).ID.String(),
		Title:         "Mentor booking mentor",
		ScheduledDate: time.Now().Add(time.Hour),
		Duration:      60,
		SessionType:   "video",
	})
	assertKind(t, err, apperrors.KindAuthorization)
}

func TestRejectThenCompleteFails(t *testing.T) {
	env := newTestEnv(t)
	session := env.requestSession(t)
	reason := "too busy"

	rejected, err := env.sessions.Reject(context.Background(), session.ID, env.mentor.ID, &reason)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != models.SessionStatusRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}
	if rejected.CancellationReason == nil || *rejected.CancellationReason != "too busy" {
		t.Fatalf("expected cancellation reason, got %v", rejected.CancellationReason)
	}
	if rejected.CancelledBy == nil || *rejected.CancelledBy != env.mentor.ID || rejected.CancelledAt == nil {
		t.Fatalf("expected cancellation metadata to be stamped")
	}

	event := env.notifier.next(t)
	if event.Kind != SessionEventRejected || event.RecipientID != env.mentee.ID {
		t.Fatalf("unexpected notification %+v", event)
	}

	_, err = env.sessions.Complete(context.Background(), session.ID, env.mentor.ID)
	assertKind(t, err, apperrors.KindConflict)
}

func TestAcceptRequiresMentor(t *testing.T) {
	env := newTestEnv(t)
	session := env.requestSession(t)

	_, err := env.sessions.Accept(context.Background(), session.ID, env.mentee.ID)
	assertKind(t, err, apperrors.KindAuthorization)
	if apperrors.HTTPStatus(err) != http.StatusNotFound {
		t.Fatalf("expected hidden authorization failure, got %d", apperrors.HTTPStatus(err))
	}

	stranger := env.createUser(t, "Stranger", models.RoleMentor, nil)
	_, err = env.sessions.Accept(context.Background(), session.ID, stranger.ID)
	if apperrors.HTTPStatus(err) != http.StatusNotFound {
		t.Fatalf("expected 404 for non-party, got %v", err)
	}

	_, err = env.sessions.Accept(context.Background(), uuid.New(), env.mentor.ID)
	assertKind(t, err, apperrors.KindNotFound)
}

func TestConcurrentAcceptAndCancelExactlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	session := env.requestSession(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = env.sessions.Accept(context.Background(), session.ID, env.mentor.ID)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = env.sessions.Cancel(context.Background(), session.ID, env.mentee.ID, nil)
	}()
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assertKind(t, err, apperrors.KindConflict)
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d (%v)", wins, errs)
	}

	stored, err := env.sessions.Get(context.Background(), session.ID, env.mentee.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != models.SessionStatusAccepted && stored.Status != models.SessionStatusCancelled {
		t.Fatalf("unexpected final status %s", stored.Status)
	}
}

func TestCancelRecordsActor(t *testing.T) {
	env := newTestEnv(t)
	session := env.acceptedSession(t)
	reason := "conflict with exam"

	cancelled, err := env.sessions.Cancel(context.Background(), session.ID, env.mentee.ID, &reason)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != models.SessionStatusCancelled || *cancelled.CancelledBy != env.mentee.ID {
		t.Fatalf("unexpected cancelled session %+v", cancelled)
	}
	if event := env.notifier.next(t); event.Kind != SessionEventCancelled || event.RecipientID != env.mentor.ID {
		t.Fatalf("unexpected notification %+v", event)
	}

	_, err = env.sessions.Cancel(context.Background(), session.ID, env.mentor.ID, nil)
	assertKind(t, err, apperrors.KindConflict)
}

func TestLastSlotConcurrentJoin(t *testing.T) {
	env := newTestEnv(t)
	session := env.groupSession(t, 5)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		mentee := env.createUser(t, "Early", models.RoleMentee, nil)
		if _, err := env.sessions.JoinGroup(ctx, session.ID, mentee.ID); err != nil {
			t.Fatalf("JoinGroup %d: %v", i, err)
		}
	}

	late := []*models.User{
		env.createUser(t, "LateA", models.RoleMentee, nil),
		env.createUser(t, "LateB", models.RoleMentee, nil),
	}
	var wg sync.WaitGroup
	results := make([]*models.Session, len(late))
	errs := make([]error, len(late))
	for i, u := range late {
		wg.Add(1)
		go func(i int, u *models.User) {
			defer wg.Done()
			results[i], errs[i] = env.sessions.JoinGroup(ctx, session.ID, u.ID)
		}(i, u)
	}
	wg.Wait()

	wins := 0
	for i, err := range errs {
		if err == nil {
			wins++
			if results[i].Status != models.SessionStatusFull {
				t.Fatalf("expected winner to flip status to full, got %s", results[i].Status)
			}
			continue
		}
		assertKind(t, err, apperrors.KindCapacity)
	}
	if wins != 1 {
		t.Fatalf("expected exactly one join to win, got %d", wins)
	}

	stored, _ := env.sessions.Get(ctx, session.ID, env.mentor.ID)
	if len(stored.Participants) != stored.MaxParticipants {
		t.Fatalf("expected %d participants, got %d", stored.MaxParticipants, len(stored.Participants))
	}
}

func TestJoinGroupFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.groupSession(t, 2)

	if _, err := env.sessions.JoinGroup(ctx, session.ID, env.mentee.ID); err != nil {
		t.Fatalf("JoinGroup: %v", err)
	}
	_, err := env.sessions.JoinGroup(ctx, session.ID, env.mentee.ID)
	assertKind(t, err, apperrors.KindDuplicate)

	_, err = env.sessions.JoinGroup(ctx, session.ID, env.mentor.ID)
	assertKind(t, err, apperrors.KindAuthorization)

	_, err = env.sessions.JoinGroup(ctx, uuid.New(), env.mentee.ID)
	assertKind(t, err, apperrors.KindNotFound)

	oneOnOne := env.requestSession(t)
	other := env.createUser(t, "Other", models.RoleMentee, nil)
	_, err = env.sessions.JoinGroup(ctx, oneOnOne.ID, other.ID)
	assertKind(t, err, apperrors.KindNotFound)

	if _, err := env.sessions.Cancel(ctx, session.ID, env.mentor.ID, nil); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	_, err = env.sessions.JoinGroup(ctx, session.ID, other.ID)
	assertKind(t, err, apperrors.KindNotFound)
}

func TestCreateGroupValidation(t *testing.T) {
	env := newTestEnv(t)
	req := dtos.CreateGroupSessionRequest{
		Title:           "Office hours",
		ScheduledDate:   time.Now().Add(time.Hour),
		Duration:        60,
		SessionType:     "video",
		MaxParticipants: 51,
	}

	_, err := env.sessions.CreateGroup(context.Background(), env.mentor.ID, req)
	assertKind(t, err, apperrors.KindValidation)

	req.MaxParticipants = 10
	_, err = env.sessions.CreateGroup(context.Background(), env.mentee.ID, req)
	assertKind(t, err, apperrors.KindAuthorization)

	session, err := env.sessions.CreateGroup(context.Background(), env.mentor.ID, req)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if session.Status != models.SessionStatusOpen || session.MenteeID != nil {
		t.Fatalf("unexpected group session %+v", session)
	}
}

func TestGroupLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.groupSession(t, 3)
	if _, err := env.sessions.JoinGroup(ctx, session.ID, env.mentee.ID); err != nil {
		t.Fatalf("JoinGroup: %v", err)
	}

	_, err := env.sessions.Cancel(ctx, session.ID, env.mentee.ID, nil)
	assertKind(t, err, apperrors.KindAuthorization)
	_, err = env.sessions.Start(ctx, session.ID, env.mentee.ID)
	assertKind(t, err, apperrors.KindAuthorization)

	started, err := env.sessions.Start(ctx, session.ID, env.mentor.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if started.Status != models.SessionStatusAccepted || started.AcceptedAt == nil {
		t.Fatalf("expected accepted group session, got %+v", started)
	}

	// a started group is closed to joins, even for an existing participant
	_, err = env.sessions.JoinGroup(ctx, session.ID, env.mentee.ID)
	assertKind(t, err, apperrors.KindNotFound)
	latecomer := env.createUser(t, "Latecomer", models.RoleMentee, nil)
	_, err = env.sessions.JoinGroup(ctx, session.ID, latecomer.ID)
	assertKind(t, err, apperrors.KindNotFound)

	eligible, err := env.sessions.IsMessagingEligible(ctx, session.ID)
	if err != nil || !eligible {
		t.Fatalf("expected started group to be messaging eligible (%v)", err)
	}

	_, err = env.sessions.Complete(ctx, session.ID, env.mentee.ID)
	assertKind(t, err, apperrors.KindAuthorization)
	if _, err := env.sessions.Complete(ctx, session.ID, env.mentor.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	_, err = env.sessions.AddFeedback(ctx, session.ID, env.mentee.ID, dtos.FeedbackRequest{Rating: 5})
	assertKind(t, err, apperrors.KindNotFound)
}

func TestFeedbackOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.acceptedSession(t)

	_, err := env.sessions.AddFeedback(ctx, session.ID, env.mentee.ID, dtos.FeedbackRequest{Rating: 4})
	assertKind(t, err, apperrors.KindConflict)

	if _, err := env.sessions.Complete(ctx, session.ID, env.mentor.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	_, err = env.sessions.AddFeedback(ctx, session.ID, env.mentor.ID, dtos.FeedbackRequest{Rating: 5})
	assertKind(t, err, apperrors.KindAuthorization)
	_, err = env.sessions.AddFeedback(ctx, session.ID, env.mentee.ID, dtos.FeedbackRequest{Rating: 6})
	assertKind(t, err, apperrors.KindValidation)

	text := "clear and patient"
	rated, err := env.sessions.AddFeedback(ctx, session.ID, env.mentee.ID, dtos.FeedbackRequest{Rating: 4, Feedback: &text})
	if err != nil {
		t.Fatalf("AddFeedback: %v", err)
	}
	if *rated.Rating != 4 || *rated.Feedback != text {
		t.Fatalf("unexpected feedback %+v", rated)
	}

	_, err = env.sessions.AddFeedback(ctx, session.ID, env.mentee.ID, dtos.FeedbackRequest{Rating: 1})
	assertKind(t, err, apperrors.KindDuplicate)

	stored, _ := env.sessions.Get(ctx, session.ID, env.mentee.ID)
	if *stored.Rating != 4 {
		t.Fatalf("rating changed after duplicate submission: %d", *stored.Rating)
	}

	mentor, err := env.store.Users().GetByID(ctx, env.mentor.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if mentor.Rating != 4 {
		t.Fatalf("expected mentor rating 4, got %v", mentor.Rating)
	}
	if mentor.SessionCount != 1 {
		t.Fatalf("expected mentor session count 1, got %d", mentor.SessionCount)
	}
}

func TestCompleteByMenteeDoesNotCountForMentor(t *testing.T) {
	env := newTestEnv(t)
	session := env.acceptedSession(t)

	if _, err := env.sessions.Complete(context.Background(), session.ID, env.mentee.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	mentor, _ := env.store.Users().GetByID(context.Background(), env.mentor.ID)
	if mentor.SessionCount != 0 {
		t.Fatalf("expected session count unchanged, got %d", mentor.SessionCount)
	}
}

func TestAverageRating(t *testing.T) {
	tests := []struct {
		ratings []int
		want    float64
	}{
		{nil, 0},
		{[]int{5}, 5},
		{[]int{5, 4, 4}, 4.3},
		{[]int{1, 2}, 1.5},
		{[]int{5, 5, 4}, 4.7},
	}
	for _, tt := range tests {
		if got := AverageRating(tt.ratings); got != tt.want {
			t.Errorf("AverageRating(%v) = %v, want %v", tt.ratings, got, tt.want)
		}
	}
}

func TestPartyPredicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.requestSession(t)
	stranger := env.createUser(t, "Stranger", models.RoleMentee, nil)

	for _, tc := range []struct {
		user uuid.UUID
		want bool
	}{
		{env.mentor.ID, true},
		{env.mentee.ID, true},
		{stranger.ID, false},
	} {
		got, err := env.sessions.IsAuthorizedParty(ctx, session.ID, tc.user)
		if err != nil || got != tc.want {
			t.Fatalf("IsAuthorizedParty(%s) = %v, %v; want %v", tc.user, got, err, tc.want)
		}
	}

	if ok, err := env.sessions.IsAuthorizedParty(ctx, uuid.New(), env.mentor.ID); ok || err != nil {
		t.Fatalf("missing session should not authorize (%v)", err)
	}
	if ok, _ := env.sessions.IsMessagingEligible(ctx, session.ID); ok {
		t.Fatalf("pending session should not be messaging eligible")
	}

	_, err := env.sessions.Get(ctx, session.ID, stranger.ID)
	if apperrors.HTTPStatus(err) != http.StatusNotFound {
		t.Fatalf("expected 404 for stranger, got %v", err)
	}
}

func TestListSessionsForUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.requestSession(t)
	env.acceptedSession(t)
	env.groupSession(t, 4)

	all, total, err := env.sessions.List(ctx, env.mentor.ID, models.SessionFilter{Limit: 10})
	if err != nil || total != 3 || len(all) != 3 {
		t.Fatalf("expected 3 sessions for mentor, got %d/%d (%v)", len(all), total, err)
	}

	accepted := models.SessionStatusAccepted
	filtered, total, _ := env.sessions.List(ctx, env.mentee.ID, models.SessionFilter{Status: &accepted, Limit: 10})
	if total != 1 || filtered[0].Status != accepted {
		t.Fatalf("expected one accepted session for mentee, got %d", total)
	}

	group := models.SessionModeGroup
	groups, total, _ := env.sessions.List(ctx, env.mentee.ID, models.SessionFilter{Mode: &group, Limit: 10})
	if total != 0 || len(groups) != 0 {
		t.Fatalf("mentee has not joined any group, got %d", total)
	}
}

func TestTransitionBroadcastsStatusChange(t *testing.T) {
	env := newTestEnv(t)
	session := env.requestSession(t)

	client := env.connect(t, env.mentee)
	if !env.realtime.JoinSession(context.Background(), client, session.ID) {
		t.Fatalf("expected mentee to join")
	}
	drain(client)

	if _, err := env.sessions.Accept(context.Background(), session.ID, env.mentor.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	changes := framesOf(drain(client), websocket.EventSessionStatusChanged)
	if len(changes) != 1 {
		t.Fatalf("expected one status change frame, got %d", len(changes))
	}
	var payload dtos.SessionStatusChangedPayload
	if err := json.Unmarshal(changes[0].Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.SessionID != session.ID || payload.Status != "accepted" || payload.UpdatedBy != env.mentor.ID {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestNotifierFailureDoesNotBlockTransition(t *testing.T) {
	env := newTestEnv(t)
	session := env.requestSession(t)

	env.notifier.mu.Lock()
	env.notifier.err = errTestUpstream
	env.notifier.mu.Unlock()

	if _, err := env.sessions.Accept(context.Background(), session.ID, env.mentor.ID); err != nil {
		t.Fatalf("Accept should succeed despite notifier failure: %v", err)
	}
	env.notifier.next(t)
}
