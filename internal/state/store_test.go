package state_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/danhigham/nickclock/internal/domain"
	"github.com/danhigham/nickclock/internal/state"
)

func TestStore_OnActivity(t *testing.T) {
	s := state.New(nil) // nil drawFunc for testing

	s.OnActivity(domain.ActivityEntry{
		Kind:      domain.ActivityPublished,
		Name:      "Alice | 09:05 | day",
		Timestamp: time.Now(),
	})

	got := s.GetActivity()
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
	if s.LastPublished() != "Alice | 09:05 | day" {
		t.Errorf("LastPublished = %q", s.LastPublished())
	}
}

func TestStore_OnActivity_SkipKeepsLastPublished(t *testing.T) {
	s := state.New(nil)

	s.OnActivity(domain.ActivityEntry{Kind: domain.ActivityPublished, Name: "a"})
	s.OnActivity(domain.ActivityEntry{Kind: domain.ActivityFailed, Name: "b"})
	s.OnActivity(domain.ActivityEntry{Kind: domain.ActivitySkipped, Name: "c"})

	if s.LastPublished() != "a" {
		t.Errorf("LastPublished = %q, want a", s.LastPublished())
	}
}

func TestStore_OnActivity_Bounded(t *testing.T) {
	s := state.New(nil)

	for i := 0; i < 250; i++ {
		s.OnActivity(domain.ActivityEntry{Kind: domain.ActivitySkipped, Name: fmt.Sprint(i)})
	}

	got := s.GetActivity()
	if len(got) != 200 {
		t.Fatalf("got %d entries, want 200", len(got))
	}
	if got[0].Name != "50" || got[199].Name != "249" {
		t.Errorf("kept entries %q..%q, want 50..249", got[0].Name, got[199].Name)
	}
}

func TestStore_Profile(t *testing.T) {
	s := state.New(nil)

	if s.GetProfile() != nil {
		t.Fatal("expected no profile initially")
	}

	p := &domain.Profile{ID: 7, DisplayName: "Alice"}
	s.SetProfile(p)
	p.DisplayName = "mutated"

	got := s.GetProfile()
	if got == nil || got.DisplayName != "Alice" {
		t.Errorf("GetProfile = %+v, want Alice", got)
	}
}

func TestStore_DrawFunc(t *testing.T) {
	draws := 0
	s := state.New(func() { draws++ })

	s.SetAuthState(domain.AuthStateAwaitingCode)
	s.SetStatus("Code sent", false)
	s.SetAutoUpdate(true)

	if draws != 3 {
		t.Errorf("draws = %d, want 3", draws)
	}
	if s.GetAuthState() != domain.AuthStateAwaitingCode {
		t.Errorf("AuthState = %v", s.GetAuthState())
	}
	if msg, isErr := s.Status(); msg != "Code sent" || isErr {
		t.Errorf("Status = %q, %v", msg, isErr)
	}
}

func TestStore_Reset(t *testing.T) {
	s := state.New(nil)
	s.SetProfile(&domain.Profile{DisplayName: "Alice"})
	s.SetAutoUpdate(true)
	s.OnActivity(domain.ActivityEntry{Kind: domain.ActivityPublished, Name: "x"})
	s.SetTimezone(3)

	s.Reset()

	if s.GetProfile() != nil || s.AutoUpdate() || len(s.GetActivity()) != 0 || s.LastPublished() != "" {
		t.Error("Reset left account state behind")
	}
	if s.Timezone() != 3 {
		t.Errorf("Timezone = %d, want 3 (not account state)", s.Timezone())
	}
}
