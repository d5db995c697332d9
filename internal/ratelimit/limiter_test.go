package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterWindow(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow(context.Background(), "u1"); !ok {
			t.Fatalf("message %d should be allowed", i+1)
		}
	}
	if ok, _ := l.Allow(context.Background(), "u1"); ok {
		t.Fatalf("third message in window should be rejected")
	}
	if ok, _ := l.Allow(context.Background(), "u2"); !ok {
		t.Fatalf("other users have their own window")
	}

	now = now.Add(time.Minute)
	if ok, _ := l.Allow(context.Background(), "u1"); !ok {
		t.Fatalf("new window should reset the count")
	}
}

func TestMemoryLimiterCleanup(t *testing.T) {
	l := NewMemoryLimiter(1, time.Second)
	now := time.Now()
	l.now = func() time.Time { return now }
	l.Allow(context.Background(), "idle")

	now = now.Add(10 * time.Second)
	l.Cleanup()
	if len(l.clients) != 0 {
		t.Fatalf("expected idle window to be removed")
	}
}
