package websocket

import (
	"testing"
)

func newAuthedConn(t *testing.T, userID, name string) *Connection {
	t.Helper()
	conn := NewConnection(nil, DefaultOptions())
	conn.SetIdentity(userID, name)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestRegistry_RegisterRequiresAuth(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(nil); err != ErrNilConnection {
		t.Errorf("nil conn: expected ErrNilConnection, got %v", err)
	}

	unauthed := NewConnection(nil, DefaultOptions())
	t.Cleanup(func() { _ = unauthed.Close() })
	if err := r.Register(unauthed); err != ErrConnectionNotAuthenticated {
		t.Errorf("unauthenticated conn: expected ErrConnectionNotAuthenticated, got %v", err)
	}
}

func TestRegistry_UserChannels(t *testing.T) {
	r := NewRegistry()

	// One user, two devices.
	first := newAuthedConn(t, "alice", "Alice")
	second := newAuthedConn(t, "alice", "Alice")
	if err := r.Register(first); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(second); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if got := len(r.UserConnections("alice")); got != 2 {
		t.Errorf("expected 2 connections for alice, got %d", got)
	}
	if got := r.Stats()["online_users"]; got != 1 {
		t.Errorf("expected 1 online user, got %d", got)
	}

	r.Unregister(first)
	if got := len(r.UserConnections("alice")); got != 1 {
		t.Errorf("expected 1 connection after unregister, got %d", got)
	}

	// Idempotent.
	r.Unregister(first)
	if got := len(r.UserConnections("alice")); got != 1 {
		t.Errorf("double unregister changed state: %d connections", got)
	}
}

func TestRegistry_RoomChannels(t *testing.T) {
	r := NewRegistry()

	alice := newAuthedConn(t, "alice", "Alice")
	bob := newAuthedConn(t, "bob", "Bob")
	if err := r.Register(alice); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(bob); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	r.JoinRoom(alice, "room-1")
	r.JoinRoom(bob, "room-1")

	if got := len(r.RoomConnections("room-1")); got != 2 {
		t.Errorf("expected 2 connections in room, got %d", got)
	}
	if !alice.InRoom("room-1") {
		t.Error("connection should track its joined room")
	}

	r.LeaveRoom(alice, "room-1")
	if got := len(r.RoomConnections("room-1")); got != 1 {
		t.Errorf("expected 1 connection after leave, got %d", got)
	}
	if alice.InRoom("room-1") {
		t.Error("leave should clear the joined flag")
	}

	// Unregister cleans room subscriptions too.
	r.Unregister(bob)
	if got := len(r.RoomConnections("room-1")); got != 0 {
		t.Errorf("expected empty room after unregister, got %d", got)
	}
	if got := r.Stats()["active_rooms"]; got != 0 {
		t.Errorf("expected 0 active rooms, got %d", got)
	}
}
