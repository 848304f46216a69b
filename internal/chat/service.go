package chat

import (
	"context"
	"fmt"
	"log"

	"nestchat/pkg/interfaces"
	"nestchat/pkg/types"
)

// Service is the single mutation path for rooms and messages. Both the
// realtime router and the REST gateway call through it, so the two
// surfaces cannot drift in how they persist. Broadcasting the result to
// joined connections is an explicit post-step the realtime caller performs;
// the REST path deliberately skips it.
type Service struct {
	store interfaces.ChatStore
}

// NewService creates the chat service on top of the durable store.
func NewService(store interfaces.ChatStore) *Service {
	return &Service{store: store}
}

// GetOrCreateRoom returns the room for (caller, other, listing), creating
// it if absent. Idempotent: the same unordered pair and listing ref always
// resolve to the same room.
func (s *Service) GetOrCreateRoom(ctx context.Context, callerID, otherID, propertyID string) (*types.RoomSummary, error) {
	if !types.IsValidUserID(callerID) || !types.IsValidUserID(otherID) {
		return nil, types.ErrInvalidUserID
	}

	room, created, err := s.store.GetOrCreateRoom(ctx, callerID, otherID, propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create room: %w", err)
	}
	if created {
		log.Printf("Created room %s for %s and %s (property=%q)", room.ID, callerID, otherID, propertyID)
	}

	return s.store.GetRoomSummary(ctx, room.ID)
}

// ListRooms returns the caller's rooms, most recently active first.
func (s *Service) ListRooms(ctx context.Context, callerID string) ([]*types.RoomSummary, error) {
	return s.store.ListRoomsForUser(ctx, callerID)
}

// HistoryPage returns one page of room history for a participant and, as a
// side effect of reading, marks the other party's messages read. Page 1 is
// the most recent window; rows come back in ascending persistence order.
func (s *Service) HistoryPage(ctx context.Context, callerID, roomID string, page, limit int) ([]*types.Message, error) {
	if roomID == "" {
		return nil, types.ErrInvalidRoomID
	}

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(callerID) {
		return nil, ErrNotParticipant
	}

	messages, err := s.store.ListMessagesPage(ctx, roomID, page, limit)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.MarkMessagesRead(ctx, roomID, callerID); err != nil {
		// History was fetched; a failed read-flag update is logged, not fatal.
		log.Printf("Failed to mark room %s read for %s: %v", roomID, callerID, err)
	}

	return messages, nil
}

// Send validates and persists a message. Membership is checked here, at
// the point of durable mutation, regardless of what the sender's
// connection has joined. On any error no message exists and the room
// pointer is unchanged.
func (s *Service) Send(ctx context.Context, senderID, roomID, content, msgType string) (*types.Message, error) {
	if roomID == "" {
		return nil, types.ErrInvalidRoomID
	}
	if err := types.ValidateContent(content); err != nil {
		return nil, err
	}
	if msgType == "" {
		msgType = types.MessageTypeText
	}
	if !types.IsValidMessageType(msgType) {
		return nil, types.ErrInvalidMessageType
	}

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(senderID) {
		return nil, ErrNotParticipant
	}

	return s.store.AppendMessage(ctx, roomID, senderID, content, msgType)
}

// MarkRead bulk-flips the read flag on messages in the room not sent by
// the caller and returns how many were flipped. Membership is re-checked
// because this is a durable mutation.
func (s *Service) MarkRead(ctx context.Context, callerID, roomID string) (int64, error) {
	if roomID == "" {
		return 0, types.ErrInvalidRoomID
	}

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return 0, err
	}
	if !room.HasParticipant(callerID) {
		return 0, ErrNotParticipant
	}

	return s.store.MarkMessagesRead(ctx, roomID, callerID)
}
