package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/MentorLink/internal/apperrors"
	"github.com/preetsinghmakkar/MentorLink/internal/models"
	"github.com/preetsinghmakkar/MentorLink/internal/utils"
)

const testSecret = "test-secret"

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	auth := NewAuthService(env.store.Users(), testSecret, time.Second)

	token, err := utils.GenerateAccessToken(env.mentee.ID, string(models.RoleMentee), testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	identity, err := auth.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if identity.UserID != env.mentee.ID || identity.Name != env.mentee.Name || identity.Role != models.RoleMentee {
		t.Fatalf("unexpected identity %+v", identity)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	env := newTestEnv(t)
	auth := NewAuthService(env.store.Users(), testSecret, time.Second)

	wrongSecret, _ := utils.GenerateAccessToken(env.mentee.ID, "mentee", "other-secret", time.Minute)
	unknownUser, _ := utils.GenerateAccessToken(uuid.New(), "mentee", testSecret, time.Minute)

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"wrong secret": wrongSecret,
		"deleted user": unknownUser,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := auth.Authenticate(context.Background(), token)
			assertKind(t, err, apperrors.KindAuthentication)
		})
	}
}
