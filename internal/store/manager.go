package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"nestchat/pkg/database"
	"nestchat/pkg/interfaces"
	"nestchat/pkg/types"
)

// Manager is the durable layer behind the room directory and message log.
// Reads run concurrently on the pool; every write is funneled through one
// goroutine, which both avoids SQLite write contention and serializes
// get-or-create so concurrent calls for the same pair cannot race.
type Manager struct {
	db           *sql.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies migrations and starts the writer
// goroutine.
func NewManager(cfg *database.Config) (*Manager, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrationManager(db)
	if err := migrator.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	m := &Manager{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			op.result <- op.operation(m.db)
		case <-m.shutdown:
			// Operations accepted before shutdown still run to completion;
			// executeWrite cannot enqueue past this point.
			for {
				select {
				case op := <-m.writeChannel:
					op.result <- op.operation(m.db)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	result := make(chan error, 1)

	// The read lock spans the enqueue: Close cannot flip closed and drain
	// while an operation is still entering the channel, so every accepted
	// operation is answered.
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrStoreClosed
	}

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		m.mu.RUnlock()
	case <-time.After(30 * time.Second):
		m.mu.RUnlock()
		return ErrWriteTimeout
	}

	return <-result
}

// GetOrCreateRoom returns the room for the unordered pair and listing ref,
// creating it if absent. Serialized by the writer goroutine and backed by
// the UNIQUE(participant_a, participant_b, property_id) index.
func (m *Manager) GetOrCreateRoom(ctx context.Context, userA, userB, propertyID string) (*types.Room, bool, error) {
	a, b := types.NormalizePair(userA, userB)

	var room *types.Room
	var created bool

	err := m.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		existing, err := scanRoom(tx.QueryRowContext(ctx, `
			SELECT id, participant_a, participant_b, property_id, last_message_id, created_at, updated_at
			FROM rooms
			WHERE participant_a = ? AND participant_b = ? AND property_id = ?
		`, a, b, propertyID))
		if err == nil {
			room = existing
			return tx.Commit()
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to query room: %w", err)
		}

		now := time.Now().UTC()
		room = &types.Room{
			ID:           uuid.New().String(),
			ParticipantA: a,
			ParticipantB: b,
			PropertyID:   propertyID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO rooms (id, participant_a, participant_b, property_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, room.ID, a, b, propertyID, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert room: %w", err)
		}

		created = true
		return tx.Commit()
	})
	if err != nil {
		return nil, false, err
	}

	return room, created, nil
}

// GetRoom returns a room by id.
func (m *Manager) GetRoom(ctx context.Context, roomID string) (*types.Room, error) {
	room, err := scanRoom(m.db.QueryRowContext(ctx, `
		SELECT id, participant_a, participant_b, property_id, last_message_id, created_at, updated_at
		FROM rooms
		WHERE id = ?
	`, roomID))
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query room: %w", err)
	}
	return room, nil
}

// GetRoomSummary returns the populated view of one room.
func (m *Manager) GetRoomSummary(ctx context.Context, roomID string) (*types.RoomSummary, error) {
	room, err := m.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return m.populateRoom(ctx, room)
}

// ListRoomsForUser returns populated rooms where userID participates,
// most recently updated first.
func (m *Manager) ListRoomsForUser(ctx context.Context, userID string) ([]*types.RoomSummary, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, participant_a, participant_b, property_id, last_message_id, created_at, updated_at
		FROM rooms
		WHERE participant_a = ? OR participant_b = ?
		ORDER BY updated_at DESC
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rooms []*types.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room row: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating room rows: %w", err)
	}

	summaries := make([]*types.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summary, err := m.populateRoom(ctx, room)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// AppendMessage persists a message and touches the room pointer as one
// transaction: either both land or neither is observable. The message seq
// comes from the insert and is the room's ordering authority.
func (m *Manager) AppendMessage(ctx context.Context, roomID, senderID, content, msgType string) (*types.Message, error) {
	var message *types.Message

	err := m.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM rooms WHERE id = ?", roomID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check room: %w", err)
		}
		if exists == 0 {
			return interfaces.ErrRoomNotFound
		}

		now := time.Now().UTC()
		msg := &types.Message{
			ID:        uuid.New().String(),
			RoomID:    roomID,
			Content:   content,
			Type:      msgType,
			CreatedAt: now,
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, room_id, sender_id, content, type, read, created_at)
			VALUES (?, ?, ?, ?, ?, 0, ?)
		`, msg.ID, roomID, senderID, content, msgType, now)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read message seq: %w", err)
		}
		msg.Seq = seq

		_, err = tx.ExecContext(ctx, `
			UPDATE rooms SET last_message_id = ?, updated_at = ? WHERE id = ?
		`, msg.ID, now, roomID)
		if err != nil {
			return fmt.Errorf("failed to update room pointer: %w", err)
		}

		msg.Sender, err = m.senderRef(ctx, tx, senderID)
		if err != nil {
			return err
		}

		message = msg
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}

	return message, nil
}

// ListMessagesPage returns page N (1-based) of a room's history. Page 1
// holds the newest `limit` messages; rows within the page are ascending by
// seq so history renders oldest to newest.
func (m *Manager) ListMessagesPage(ctx context.Context, roomID string, page, limit int) ([]*types.Message, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 30
	}
	offset := (page - 1) * limit

	rows, err := m.db.QueryContext(ctx, `
		SELECT m.seq, m.id, m.room_id, m.sender_id, u.name, u.avatar, m.content, m.type, m.read, m.created_at
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = ?
		ORDER BY m.seq DESC
		LIMIT ? OFFSET ?
	`, roomID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}

	// Reverse newest-first rows into ascending display order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkMessagesRead bulk-flips read on messages in the room not sent by
// excludeSender.
func (m *Manager) MarkMessagesRead(ctx context.Context, roomID, excludeSender string) (int64, error) {
	var affected int64

	err := m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE messages SET read = 1
			WHERE room_id = ? AND sender_id <> ? AND read = 0
		`, roomID, excludeSender)
		if err != nil {
			return fmt.Errorf("failed to mark messages read: %w", err)
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to count marked messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// SetUserOnline flips the user's presence flag on.
func (m *Manager) SetUserOnline(ctx context.Context, userID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, "UPDATE users SET is_online = 1 WHERE id = ?", userID)
		if err != nil {
			return fmt.Errorf("failed to set user online: %w", err)
		}
		return nil
	})
}

// SetUserOffline flips the flag off and records the last-seen timestamp.
func (m *Manager) SetUserOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, "UPDATE users SET is_online = 0, last_seen = ? WHERE id = ?", lastSeen.UTC(), userID)
		if err != nil {
			return fmt.Errorf("failed to set user offline: %w", err)
		}
		return nil
	})
}

// GetUser returns a user by id.
func (m *Manager) GetUser(ctx context.Context, userID string) (*types.User, error) {
	var user types.User
	var isOnline int
	var lastSeen sql.NullTime

	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, avatar, is_online, last_seen FROM users WHERE id = ?
	`, userID).Scan(&user.ID, &user.Name, &user.Avatar, &isOnline, &lastSeen)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	user.IsOnline = isOnline != 0
	if lastSeen.Valid {
		t := lastSeen.Time
		user.LastSeen = &t
	}
	return &user, nil
}

// UpsertUser writes identity display data. Presence fields are left to the
// presence tracker; this only refreshes name and avatar.
func (m *Manager) UpsertUser(ctx context.Context, user *types.User) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO users (id, name, avatar) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, avatar = excluded.avatar
		`, user.ID, user.Name, user.Avatar)
		if err != nil {
			return fmt.Errorf("failed to upsert user: %w", err)
		}
		return nil
	})
}

// GetListingSummary returns the display summary for a listing, or nil when
// the listing is unknown.
func (m *Manager) GetListingSummary(ctx context.Context, propertyID string) (*types.ListingSummary, error) {
	if propertyID == "" {
		return nil, nil
	}

	var summary types.ListingSummary
	err := m.db.QueryRowContext(ctx, `
		SELECT id, title, thumbnail FROM properties WHERE id = ?
	`, propertyID).Scan(&summary.ID, &summary.Title, &summary.Thumbnail)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query listing: %w", err)
	}
	return &summary, nil
}

// UpsertListing writes listing display data consumed from the property
// service.
func (m *Manager) UpsertListing(ctx context.Context, listing *types.ListingSummary) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO properties (id, title, thumbnail) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET title = excluded.title, thumbnail = excluded.thumbnail
		`, listing.ID, listing.Title, listing.Thumbnail)
		if err != nil {
			return fmt.Errorf("failed to upsert listing: %w", err)
		}
		return nil
	})
}

// HealthCheck validates connectivity and a basic read.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rooms LIMIT 1").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close stops the writer goroutine and closes the pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	log.Println("Store closed")
	return nil
}

// populateRoom attaches participant users, the listing summary and the last
// message to a room row.
func (m *Manager) populateRoom(ctx context.Context, room *types.Room) (*types.RoomSummary, error) {
	summary := &types.RoomSummary{
		ID:        room.ID,
		CreatedAt: room.CreatedAt,
		UpdatedAt: room.UpdatedAt,
	}

	for _, participantID := range room.Participants() {
		user, err := m.GetUser(ctx, participantID)
		if err == interfaces.ErrUserNotFound {
			// Identity not synced yet; keep the id visible.
			user = &types.User{ID: participantID}
			err = nil
		}
		if err != nil {
			return nil, err
		}
		summary.Participants = append(summary.Participants, *user)
	}

	listing, err := m.GetListingSummary(ctx, room.PropertyID)
	if err != nil {
		return nil, err
	}
	summary.Property = listing

	if room.LastMessageID != "" {
		msg, err := m.getMessageByID(ctx, room.LastMessageID)
		if err != nil {
			return nil, err
		}
		summary.LastMessage = msg
	}

	return summary, nil
}

func (m *Manager) getMessageByID(ctx context.Context, messageID string) (*types.Message, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT m.seq, m.id, m.room_id, m.sender_id, u.name, u.avatar, m.content, m.type, m.read, m.created_at
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.id = ?
	`, messageID)

	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	return msg, nil
}

func (m *Manager) senderRef(ctx context.Context, tx *sql.Tx, senderID string) (types.UserRef, error) {
	ref := types.UserRef{ID: senderID}

	err := tx.QueryRowContext(ctx, "SELECT name, avatar FROM users WHERE id = ?", senderID).
		Scan(&ref.Name, &ref.Avatar)
	if err == sql.ErrNoRows {
		return ref, nil
	}
	if err != nil {
		return ref, fmt.Errorf("failed to query sender: %w", err)
	}
	return ref, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRoom(row rowScanner) (*types.Room, error) {
	var room types.Room
	err := row.Scan(
		&room.ID,
		&room.ParticipantA,
		&room.ParticipantB,
		&room.PropertyID,
		&room.LastMessageID,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func scanMessage(row rowScanner) (*types.Message, error) {
	var msg types.Message
	var name, avatar sql.NullString
	var read int

	err := row.Scan(
		&msg.Seq,
		&msg.ID,
		&msg.RoomID,
		&msg.Sender.ID,
		&name,
		&avatar,
		&msg.Content,
		&msg.Type,
		&read,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	msg.Sender.Name = name.String
	msg.Sender.Avatar = avatar.String
	msg.Read = read != 0
	return &msg, nil
}
