package utils

import (
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	userID := uuid.New()
	token, err := GenerateAccessToken(userID, "mentor", "secret", time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	claims, err := ParseAccessToken(token, "secret")
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.UserID != userID || claims.Role != "mentor" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	token, _ := GenerateAccessToken(uuid.New(), "mentee", "secret", time.Minute)
	if _, err := ParseAccessToken(token, "other-secret"); err == nil {
		t.Fatalf("expected wrong secret to fail")
	}

	expired, _ := GenerateAccessToken(uuid.New(), "mentee", "secret", -time.Minute)
	// ttl <= 0 falls back to the default expiry, so this one is still valid
	if _, err := ParseAccessToken(expired, "secret"); err != nil {
		t.Fatalf("expected default ttl token to be valid, got %v", err)
	}

	if _, err := ParseAccessToken("not-a-jwt", "secret"); err == nil {
		t.Fatalf("expected garbage to fail")
	}
}

func TestParsePage(t *testing.T) {
	cases := []struct {
		page, limit         string
		wantPage, wantLimit int
	}{
		{"", "", 1, DefaultPageLimit},
		{"3", "10", 3, 10},
		{"-1", "0", 1, DefaultPageLimit},
		{"x", "1000", 1, MaxPageLimit},
	}
	for _, tc := range cases {
		page, limit := ParsePage(tc.page, tc.limit)
		if page != tc.wantPage || limit != tc.wantLimit {
			t.Fatalf("ParsePage(%q,%q) = %d,%d", tc.page, tc.limit, page, limit)
		}
	}
	if Offset(3, 10) != 20 {
		t.Fatalf("unexpected offset")
	}
	if p := NewPagination(2, 10, 21); p.TotalPages != 3 {
		t.Fatalf("expected 3 pages, got %d", p.TotalPages)
	}
}

func TestHugePageNeverOverflowsOffset(t *testing.T) {
	page, limit := ParsePage(strconv.Itoa(math.MaxInt), strconv.Itoa(MaxPageLimit))
	if page != MaxPage {
		t.Fatalf("expected page clamped to %d, got %d", MaxPage, page)
	}
	if off := Offset(page, limit); off < 0 {
		t.Fatalf("offset overflowed: %d", off)
	}

	for _, tc := range []struct{ page, limit int }{
		{math.MaxInt, MaxPageLimit},
		{math.MaxInt, math.MaxInt},
		{0, 10},
		{5, 0},
	} {
		if off := Offset(tc.page, tc.limit); off < 0 {
			t.Fatalf("Offset(%d,%d) = %d", tc.page, tc.limit, off)
		}
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("short", 50); got != "short" {
		t.Fatalf("unexpected preview %q", got)
	}
	long := strings.Repeat("é", 60)
	got := Preview(long, 50)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != 53 {
		t.Fatalf("unexpected preview %q", got)
	}
}
