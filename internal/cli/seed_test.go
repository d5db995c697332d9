package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/preetsinghmakkar/MentorLink/internal/models"
	"github.com/preetsinghmakkar/MentorLink/internal/repositories/memory"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func TestSeedUsers(t *testing.T) {
	mentorID := uuid.New()
	menteeID := uuid.New()
	path := writeSeed(t, `
users:
  - id: `+mentorID.String()+`
    name: Maya
    email: maya@example.com
    role: mentor
    hourly_rate: 120
  - id: `+menteeID.String()+`
    name: Eli
    email: eli@example.com
    role: mentee
`)

	users := memory.NewStore().Users()
	ctx := context.Background()

	n, err := seedUsers(ctx, users, path)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != 2 {
		t.Fatalf("created %d users, want 2", n)
	}

	mentor, err := users.GetByID(ctx, mentorID)
	if err != nil {
		t.Fatalf("get mentor: %v", err)
	}
	if mentor.Role != models.RoleMentor || mentor.HourlyRate == nil || *mentor.HourlyRate != 120 {
		t.Fatalf("unexpected mentor: %+v", mentor)
	}

	// a second run skips existing users
	n, err = seedUsers(ctx, users, path)
	if err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if n != 0 {
		t.Fatalf("reseed created %d users, want 0", n)
	}
}

func TestSeedUsersRejectsBadEntries(t *testing.T) {
	users := memory.NewStore().Users()

	tests := map[string]string{
		"bad id":   "users:\n  - id: nope\n    name: X\n    role: mentee\n",
		"bad role": "users:\n  - id: " + uuid.NewString() + "\n    name: X\n    role: wizard\n",
		"bad yaml": "users: [",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := seedUsers(context.Background(), users, writeSeed(t, content)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}

	if _, err := seedUsers(context.Background(), users, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
