package database

import (
	"database/sql"
	"fmt"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// migrations are embedded so the binary carries its own schema. Ordered by
// version; applied versions are tracked in schema_migrations.
var migrations = []Migration{
	{
		Version:     "001",
		Description: "initial chat schema",
		SQL: `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	avatar     TEXT NOT NULL DEFAULT '',
	is_online  INTEGER NOT NULL DEFAULT 0,
	last_seen  DATETIME
);

CREATE TABLE IF NOT EXISTS properties (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	thumbnail  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS rooms (
	id               TEXT PRIMARY KEY,
	participant_a    TEXT NOT NULL,
	participant_b    TEXT NOT NULL,
	property_id      TEXT NOT NULL DEFAULT '',
	last_message_id  TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	UNIQUE (participant_a, participant_b, property_id)
);

CREATE TABLE IF NOT EXISTS messages (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	room_id     TEXT NOT NULL REFERENCES rooms(id),
	sender_id   TEXT NOT NULL,
	content     TEXT NOT NULL,
	type        TEXT NOT NULL DEFAULT 'text' CHECK (type IN ('text', 'image', 'other')),
	read        INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rooms_participant_a ON rooms(participant_a, updated_at);
CREATE INDEX IF NOT EXISTS idx_rooms_participant_b ON rooms(participant_b, updated_at);
CREATE INDEX IF NOT EXISTS idx_messages_room_seq ON messages(room_id, seq);
CREATE INDEX IF NOT EXISTS idx_messages_room_unread ON messages(room_id, read, sender_id);
`,
	},
}

// MigrationManager applies embedded migrations and validates the schema.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a migration manager for db.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies all pending migrations, each in its own
// transaction so a failed migration leaves no partial schema.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.apply(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s (%s): %w",
				migration.Version, migration.Description, err)
		}
	}

	return nil
}

// ValidateSchema checks the tables and indexes the store depends on.
func (m *MigrationManager) ValidateSchema() error {
	for _, table := range []string{"users", "properties", "rooms", "messages"} {
		exists, err := m.objectExists("table", table)
		if err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}

	indexes := []string{
		"idx_rooms_participant_a",
		"idx_rooms_participant_b",
		"idx_messages_room_seq",
		"idx_messages_room_unread",
	}
	for _, index := range indexes {
		exists, err := m.objectExists("index", index)
		if err != nil {
			return fmt.Errorf("failed to check index %s: %w", index, err)
		}
		if !exists {
			return fmt.Errorf("required index %s does not exist", index)
		}
	}

	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) appliedVersions() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	versions := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions[version] = true
	}
	return versions, rows.Err()
}

func (m *MigrationManager) apply(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *MigrationManager) objectExists(kind, name string) (bool, error) {
	var count int
	err := m.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
