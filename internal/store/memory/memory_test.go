package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pickly.app/internal/access"
	"pickly.app/internal/auth"
)

func TestPrincipalUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.CreatePrincipal(ctx, &auth.Principal{ID: "p1", Email: "a@x.io"}); err != nil {
		t.Fatalf("CreatePrincipal: %v", err)
	}
	if err := s.CreatePrincipal(ctx, &auth.Principal{ID: "p2", Email: "a@x.io"}); !errors.Is(err, auth.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if _, err := s.FindPrincipalByEmail(ctx, "b@x.io"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetAdmin(ctx, "p1", true); err != nil {
		t.Fatalf("SetAdmin: %v", err)
	}
	p, _ := s.FindPrincipal(ctx, "p1")
	if !p.Admin {
		t.Fatalf("expected admin flag")
	}
	p.Email = "mutated@x.io"
	again, _ := s.FindPrincipal(ctx, "p1")
	if again.Email != "a@x.io" {
		t.Fatalf("store leaked its internal copy")
	}
}

func TestListLiveNewestFirstWithLimit(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		sess := &auth.RefreshSession{
			ID:          fmt.Sprintf("s%d", i),
			PrincipalID: "p1",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			ExpiresAt:   base.Add(time.Hour),
		}
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}
	if _, err := s.Revoke(ctx, "s4", base); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	live, err := s.ListLive(ctx, "p1", base.Add(10*time.Minute), 2)
	if err != nil {
		t.Fatalf("ListLive: %v", err)
	}
	if len(live) != 2 || live[0].ID != "s3" || live[1].ID != "s2" {
		t.Fatalf("unexpected live sessions: %v, %v", live[0].ID, live[1].ID)
	}
	expired, _ := s.ListLive(ctx, "p1", base.Add(2*time.Hour), 10)
	if len(expired) != 0 {
		t.Fatalf("expected expired sessions hidden, got %d", len(expired))
	}
}

func TestRevokeIsCompareAndSet(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	_ = s.CreateSession(ctx, &auth.RefreshSession{ID: "s1", PrincipalID: "p1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)})

	won, err := s.Revoke(ctx, "s1", now)
	if err != nil || !won {
		t.Fatalf("first revoke: won=%v err=%v", won, err)
	}
	won, err = s.Revoke(ctx, "s1", now)
	if err != nil || won {
		t.Fatalf("second revoke should lose: won=%v err=%v", won, err)
	}
	n, err := s.RevokeAllLive(ctx, "p1", now)
	if err != nil || n != 0 {
		t.Fatalf("expected nothing left to revoke, n=%d err=%v", n, err)
	}
}

func TestActiveProfileIDsSkipsInactiveProfiles(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()
	_ = s.CreateProfile(ctx, &access.Profile{ID: "on", Name: "On", Active: true})
	_ = s.CreateProfile(ctx, &access.Profile{ID: "off", Name: "Off", Active: false})
	_ = s.UpsertAssignment(ctx, "h", "on", now)
	_ = s.UpsertAssignment(ctx, "h", "off", now)

	got, _ := s.ActiveProfileIDs(ctx, "h")
	if len(got) != 1 || got[0] != "on" {
		t.Fatalf("expected [on], got %v", got)
	}
	if err := s.UpsertAssignment(ctx, "h", "ghost", now); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
