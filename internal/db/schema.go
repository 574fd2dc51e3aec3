package db

import (
	"database/sql"
	"fmt"
)

// schema is the base database schema. Later changes go in migrations.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    full_name     TEXT NOT NULL,
    email         TEXT NOT NULL,
    phone         TEXT NOT NULL DEFAULT '',
    address       TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    user_type     TEXT NOT NULL DEFAULT 'donor' CHECK (user_type IN ('donor', 'orphanage', 'admin')),
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'user')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_active
    ON users(email) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS donations (
    id          INTEGER PRIMARY KEY,
    user_id     INTEGER NOT NULL REFERENCES users(id),
    title       TEXT NOT NULL,
    category    TEXT NOT NULL,
    size        TEXT NOT NULL DEFAULT '',
    condition   TEXT NOT NULL DEFAULT '',
    quantity    INTEGER NOT NULL CHECK (quantity >= 0),
    description TEXT NOT NULL DEFAULT '',
    image_url   TEXT NOT NULL DEFAULT '',
    gender      TEXT NOT NULL DEFAULT '',
    image       BLOB,
    image_mime  TEXT,
    status      TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS requests (
    id             INTEGER PRIMARY KEY,
    orphanage_id   INTEGER NOT NULL REFERENCES users(id),
    total_quantity INTEGER NOT NULL CHECK (total_quantity >= 5),
    notes          TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected', 'fulfilled')),
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS request_items (
    request_id         INTEGER NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
    position           INTEGER NOT NULL,
    donation_id        INTEGER NOT NULL REFERENCES donations(id),
    requested_quantity INTEGER NOT NULL CHECK (requested_quantity > 0),
    title              TEXT NOT NULL,
    category           TEXT NOT NULL,
    size               TEXT NOT NULL DEFAULT '',
    gender             TEXT NOT NULL DEFAULT '',
    condition          TEXT NOT NULL DEFAULT '',
    image_url          TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (request_id, position)
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS login_events (
    id         INTEGER PRIMARY KEY,
    user_id    INTEGER REFERENCES users(id),
    email      TEXT NOT NULL,
    success    INTEGER NOT NULL,
    ip_address TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// EnsureSchema creates all tables if they don't already exist and applies
// pending migrations.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return Migrate(db)
}
