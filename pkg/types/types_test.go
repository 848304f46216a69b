package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNormalizePair(t *testing.T) {
	a, b := NormalizePair("bob", "alice")
	if a != "alice" || b != "bob" {
		t.Errorf("NormalizePair(bob, alice) = %s, %s", a, b)
	}

	a, b = NormalizePair("alice", "bob")
	if a != "alice" || b != "bob" {
		t.Errorf("NormalizePair(alice, bob) = %s, %s", a, b)
	}
}

func TestHasParticipant(t *testing.T) {
	room := &Room{ParticipantA: "alice", ParticipantB: "bob"}

	if !room.HasParticipant("alice") || !room.HasParticipant("bob") {
		t.Error("both fixed members must pass the membership check")
	}
	if room.HasParticipant("mallory") {
		t.Error("outsiders must fail the membership check")
	}
	if room.HasParticipant("") {
		t.Error("empty id must fail the membership check")
	}
}

func TestIsValidUserID(t *testing.T) {
	cases := []struct {
		id    string
		valid bool
	}{
		{"alice", true},
		{"user-42", true},
		{"", false},
		{"has space", false},
		{"has\ttab", false},
		{strings.Repeat("x", 64), true},
		{strings.Repeat("x", 65), false},
	}
	for _, c := range cases {
		if got := IsValidUserID(c.id); got != c.valid {
			t.Errorf("IsValidUserID(%q) = %v, want %v", c.id, got, c.valid)
		}
	}
}

func TestValidateContent(t *testing.T) {
	if err := ValidateContent(""); err != ErrEmptyContent {
		t.Errorf("empty content: got %v", err)
	}
	if err := ValidateContent(strings.Repeat("a", maxContentLength+1)); err != ErrContentTooLong {
		t.Errorf("oversized content: got %v", err)
	}
	if err := ValidateContent("hello"); err != nil {
		t.Errorf("valid content: got %v", err)
	}
}

func TestIsValidMessageType(t *testing.T) {
	for _, valid := range []string{MessageTypeText, MessageTypeImage, MessageTypeOther} {
		if !IsValidMessageType(valid) {
			t.Errorf("%q should be valid", valid)
		}
	}
	if IsValidMessageType("video") {
		t.Error("unknown type should be invalid")
	}
}

func TestNewEvent(t *testing.T) {
	evt, err := NewEvent(EventUserTyping, TypingNotice{UserID: "alice", Name: "Alice"})
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	if evt.Name != EventUserTyping {
		t.Errorf("expected name %q, got %q", EventUserTyping, evt.Name)
	}

	raw, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded struct {
		Event string `json:"event"`
		Data  struct {
			UserID string `json:"user_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Event != "user_typing" || decoded.Data.UserID != "alice" {
		t.Errorf("unexpected wire form: %s", raw)
	}
}

func TestNewEvent_NilPayload(t *testing.T) {
	evt, err := NewEvent(EventLeaveRoom, nil)
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	if evt.Data != nil {
		t.Errorf("expected no data, got %s", evt.Data)
	}
}
