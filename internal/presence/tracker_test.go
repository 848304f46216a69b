package presence

import (
	"context"
	"path/filepath"
	"testing"

	"nestchat/internal/store"
	"nestchat/pkg/database"
	"nestchat/pkg/interfaces"
	"nestchat/pkg/types"
)

func newTestTracker(t *testing.T) (*Tracker, *store.Manager) {
	t.Helper()

	cfg := database.DefaultConfig(filepath.Join(t.TempDir(), "chat.db"))
	m, err := store.NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })

	if err := m.UpsertUser(context.Background(), &types.User{ID: "alice", Name: "Alice"}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	return NewTracker(m), m
}

func TestSetOnline(t *testing.T) {
	tracker, m := newTestTracker(t)
	ctx := context.Background()

	change, err := tracker.SetOnline(ctx, "alice")
	if err != nil {
		t.Fatalf("SetOnline failed: %v", err)
	}
	if change.UserID != "alice" || !change.IsOnline {
		t.Errorf("unexpected change: %+v", change)
	}
	if change.LastSeen != nil {
		t.Error("online change should not carry a last-seen timestamp")
	}

	user, err := m.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if !user.IsOnline {
		t.Error("store should record alice online")
	}
}

func TestSetOffline(t *testing.T) {
	tracker, m := newTestTracker(t)
	ctx := context.Background()

	if _, err := tracker.SetOnline(ctx, "alice"); err != nil {
		t.Fatalf("SetOnline failed: %v", err)
	}

	change, err := tracker.SetOffline(ctx, "alice")
	if err != nil {
		t.Fatalf("SetOffline failed: %v", err)
	}
	if change.IsOnline {
		t.Error("expected offline change")
	}
	if change.LastSeen == nil {
		t.Fatal("offline change must carry last-seen")
	}

	user, err := m.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.IsOnline {
		t.Error("store should record alice offline")
	}
	if user.LastSeen == nil {
		t.Error("store should record last-seen")
	}
}

func TestSetOnline_UnknownUser(t *testing.T) {
	tracker, m := newTestTracker(t)
	ctx := context.Background()

	// Flipping presence for an unsynced identity is a no-op, not an error:
	// the flag lands once the identity row arrives.
	if _, err := tracker.SetOnline(ctx, "ghost"); err != nil {
		t.Fatalf("SetOnline for unknown user failed: %v", err)
	}
	if _, err := m.GetUser(ctx, "ghost"); err != interfaces.ErrUserNotFound {
		t.Errorf("no identity row should have been created, got %v", err)
	}
}
