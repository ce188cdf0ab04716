package database

import (
	"database/sql"
	"fmt"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    id         BIGSERIAL PRIMARY KEY,
    username   VARCHAR(50) UNIQUE NOT NULL,
    email      VARCHAR(255) UNIQUE NOT NULL,
    password   TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS chat_rooms (
    id          BIGSERIAL PRIMARY KEY,
    name        VARCHAR(100) NOT NULL CHECK (name <> ''),
    description TEXT NOT NULL DEFAULT '',
    is_private  BOOLEAN NOT NULL DEFAULT FALSE,
    created_by  BIGINT NOT NULL REFERENCES users(id),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS room_members (
    id        BIGSERIAL PRIMARY KEY,
    user_id   BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    room_id   BIGINT NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
    joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    role      VARCHAR(20) NOT NULL DEFAULT 'member' CHECK (role IN ('admin', 'moderator', 'member')),
    CONSTRAINT unique_user_room UNIQUE (user_id, room_id)
);
CREATE INDEX IF NOT EXISTS idx_room_members_room ON room_members (room_id);

CREATE TABLE IF NOT EXISTS messages (
    id           BIGSERIAL PRIMARY KEY,
    content      TEXT NOT NULL CHECK (content <> ''),
    sender_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    room_id      BIGINT NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
    sent_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    message_type VARCHAR(20) NOT NULL DEFAULT 'text' CHECK (message_type IN ('text', 'image', 'file'))
);
CREATE INDEX IF NOT EXISTS idx_messages_room_sent ON messages (room_id, sent_at DESC);
`

// SQLite needs DATETIME columns so the driver hands back time.Time values.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    username   VARCHAR(50) UNIQUE NOT NULL,
    email      VARCHAR(255) UNIQUE NOT NULL,
    password   TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_rooms (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        VARCHAR(100) NOT NULL CHECK (name <> ''),
    description TEXT NOT NULL DEFAULT '',
    is_private  BOOLEAN NOT NULL DEFAULT FALSE,
    created_by  INTEGER NOT NULL REFERENCES users(id),
    created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS room_members (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id   INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    room_id   INTEGER NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
    joined_at DATETIME NOT NULL,
    role      VARCHAR(20) NOT NULL DEFAULT 'member' CHECK (role IN ('admin', 'moderator', 'member')),
    CONSTRAINT unique_user_room UNIQUE (user_id, room_id)
);
CREATE INDEX IF NOT EXISTS idx_room_members_room ON room_members (room_id);

CREATE TABLE IF NOT EXISTS messages (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    content      TEXT NOT NULL CHECK (content <> ''),
    sender_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    room_id      INTEGER NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
    sent_at      DATETIME NOT NULL,
    message_type VARCHAR(20) NOT NULL DEFAULT 'text' CHECK (message_type IN ('text', 'image', 'file'))
);
CREATE INDEX IF NOT EXISTS idx_messages_room_sent ON messages (room_id, sent_at DESC);
`

func RunMigrations(db *sql.DB, driver string) error {
	var schema string
	switch driver {
	case DriverPostgres:
		schema = postgresSchema
	case DriverSQLite:
		schema = sqliteSchema
	default:
		return fmt.Errorf("unsupported driver %q", driver)
	}
	_, err := db.Exec(schema)
	return err
}
