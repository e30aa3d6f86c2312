package state

import (
	"context"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", "", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open("sqlite", "", dir)
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	// Reopening must not re-apply migrations.
	s2, err := Open("sqlite", "", dir)
	if err != nil {
		t.Fatal(err)
	}
	_ = s2.Close()
}

func TestSaveAndSearchMemories(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.SaveMemory(ctx, "user-1", "likes espresso in the morning"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveMemory(ctx, "user-1", "works on the robot project"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveMemory(ctx, "user-2", "espresso for someone else"); err != nil {
		t.Fatal(err)
	}

	found, err := s.SearchMemories(ctx, "user-1", "espresso", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 {
		t.Fatalf("found %d memories, want 1", len(found))
	}
	if found[0].Content != "likes espresso in the morning" {
		t.Errorf("Content = %q", found[0].Content)
	}

	all, err := s.SearchMemories(ctx, "user-1", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("found %d memories for empty query, want 2", len(all))
	}
}

func TestSaveAndListReflections(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := &Reflection{
		MessageID:       "discord-abc",
		UserID:          "user-1",
		Source:          "discord",
		OriginalMessage: "calculate 2+2",
		FinalResponse:   "4",
		Steps:           2,
		CapabilityLog: []CapabilityLogEntry{
			{Capability: "calculator", Action: "calculate", Success: true},
		},
	}
	if err := s.SaveReflection(ctx, r); err != nil {
		t.Fatal(err)
	}

	got, err := s.RecentReflections(ctx, "user-1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d reflections, want 1", len(got))
	}
	if got[0].Steps != 2 || len(got[0].CapabilityLog) != 1 {
		t.Errorf("reflection round-trip mismatch: %+v", got[0])
	}
	if got[0].CapabilityLog[0].Capability != "calculator" {
		t.Errorf("CapabilityLog = %+v", got[0].CapabilityLog)
	}
}

func TestRebindPostgresPlaceholders(t *testing.T) {
	s := &Store{postgres: true}
	got := s.rebind("INSERT INTO t (a, b) VALUES (?, ?)")
	want := "INSERT INTO t (a, b) VALUES ($1, $2)"
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}

	s.postgres = false
	if s.rebind("SELECT ?") != "SELECT ?" {
		t.Error("sqlite queries must pass through unchanged")
	}
}
