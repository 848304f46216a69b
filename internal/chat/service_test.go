package chat

import (
	"context"
	"path/filepath"
	"testing"

	"nestchat/internal/store"
	"nestchat/pkg/database"
	"nestchat/pkg/interfaces"
	"nestchat/pkg/types"
)

func newTestService(t *testing.T) (*Service, *store.Manager) {
	t.Helper()

	cfg := database.DefaultConfig(filepath.Join(t.TempDir(), "chat.db"))
	m, err := store.NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })

	ctx := context.Background()
	for _, u := range []*types.User{
		{ID: "alice", Name: "Alice"},
		{ID: "bob", Name: "Bob"},
		{ID: "mallory", Name: "Mallory"},
	} {
		if err := m.UpsertUser(ctx, u); err != nil {
			t.Fatalf("UpsertUser failed: %v", err)
		}
	}

	return NewService(m), m
}

func TestSend_NonParticipantRejected(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	room, err := svc.GetOrCreateRoom(ctx, "alice", "bob", "")
	if err != nil {
		t.Fatalf("GetOrCreateRoom failed: %v", err)
	}

	_, err = svc.Send(ctx, "mallory", room.ID, "let me in", "")
	if err != ErrNotParticipant {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}

	// The rejected send left no message and no pointer change.
	messages, err := m.ListMessagesPage(ctx, room.ID, 1, 10)
	if err != nil {
		t.Fatalf("ListMessagesPage failed: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("expected no messages after rejected send, got %d", len(messages))
	}
	raw, err := m.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("GetRoom failed: %v", err)
	}
	if raw.LastMessageID != "" {
		t.Errorf("room pointer changed by rejected send: %q", raw.LastMessageID)
	}
}

func TestSend_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	room, err := svc.GetOrCreateRoom(ctx, "alice", "bob", "")
	if err != nil {
		t.Fatalf("GetOrCreateRoom failed: %v", err)
	}

	if _, err := svc.Send(ctx, "alice", room.ID, "", ""); err != types.ErrEmptyContent {
		t.Errorf("empty content: expected ErrEmptyContent, got %v", err)
	}
	if _, err := svc.Send(ctx, "alice", room.ID, "hello", "carrier-pigeon"); err != types.ErrInvalidMessageType {
		t.Errorf("bad type: expected ErrInvalidMessageType, got %v", err)
	}

	msg, err := svc.Send(ctx, "alice", room.ID, "hello", "")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if msg.Type != types.MessageTypeText {
		t.Errorf("expected type to default to text, got %q", msg.Type)
	}
}

func TestEmptyRoomID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Send(ctx, "alice", "", "hello", ""); err != types.ErrInvalidRoomID {
		t.Errorf("Send: expected ErrInvalidRoomID, got %v", err)
	}
	if _, err := svc.HistoryPage(ctx, "alice", "", 1, 10); err != types.ErrInvalidRoomID {
		t.Errorf("HistoryPage: expected ErrInvalidRoomID, got %v", err)
	}
	if _, err := svc.MarkRead(ctx, "alice", ""); err != types.ErrInvalidRoomID {
		t.Errorf("MarkRead: expected ErrInvalidRoomID, got %v", err)
	}
}

func TestSend_UnknownRoom(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Send(context.Background(), "alice", "missing", "hello", "")
	if err != interfaces.ErrRoomNotFound {
		t.Errorf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestHistoryPage_MarksReadSideEffect(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	room, err := svc.GetOrCreateRoom(ctx, "alice", "bob", "")
	if err != nil {
		t.Fatalf("GetOrCreateRoom failed: %v", err)
	}
	if _, err := svc.Send(ctx, "alice", room.ID, "one", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if _, err := svc.Send(ctx, "bob", room.ID, "two", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Bob reading history flips alice's messages, not his own.
	if _, err := svc.HistoryPage(ctx, "bob", room.ID, 1, 10); err != nil {
		t.Fatalf("HistoryPage failed: %v", err)
	}

	messages, err := svc.HistoryPage(ctx, "alice", room.ID, 1, 10)
	if err != nil {
		t.Fatalf("HistoryPage failed: %v", err)
	}
	for _, msg := range messages {
		if msg.Sender.ID == "alice" && !msg.Read {
			t.Error("alice's message should have been marked read by bob's fetch")
		}
	}
}

func TestHistoryPage_NonParticipant(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	room, err := svc.GetOrCreateRoom(ctx, "alice", "bob", "")
	if err != nil {
		t.Fatalf("GetOrCreateRoom failed: %v", err)
	}
	if _, err := svc.HistoryPage(ctx, "mallory", room.ID, 1, 10); err != ErrNotParticipant {
		t.Errorf("expected ErrNotParticipant, got %v", err)
	}
}

func TestMarkRead_NonParticipant(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	room, err := svc.GetOrCreateRoom(ctx, "alice", "bob", "")
	if err != nil {
		t.Fatalf("GetOrCreateRoom failed: %v", err)
	}
	if _, err := svc.MarkRead(ctx, "mallory", room.ID); err != ErrNotParticipant {
		t.Errorf("expected ErrNotParticipant, got %v", err)
	}
}

func TestGetOrCreateRoom_ServiceIdempotence(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.GetOrCreateRoom(ctx, "alice", "bob", "prop-9")
	if err != nil {
		t.Fatalf("GetOrCreateRoom failed: %v", err)
	}
	second, err := svc.GetOrCreateRoom(ctx, "bob", "alice", "prop-9")
	if err != nil {
		t.Fatalf("GetOrCreateRoom failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same room id, got %s and %s", first.ID, second.ID)
	}
	if len(second.Participants) != 2 {
		t.Errorf("expected 2 populated participants, got %d", len(second.Participants))
	}
}
