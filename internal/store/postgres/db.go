package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the relay schema on PostgreSQL.
func Migrate(db *sql.DB) error {
	stmts := []string{
		// Users
		`CREATE TABLE IF NOT EXISTS users (
			id           BIGSERIAL PRIMARY KEY,
			username     VARCHAR(50)  UNIQUE NOT NULL,
			display_name VARCHAR(100) NOT NULL DEFAULT '',
			avatar_url   TEXT,
			is_active    BOOLEAN      NOT NULL DEFAULT TRUE,
			created_at   TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		// Conversations
		`CREATE TABLE IF NOT EXISTS conversations (
			id         BIGSERIAL    PRIMARY KEY,
			name       VARCHAR(100),
			is_group   BOOLEAN      NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		// Conversation participants
		`CREATE TABLE IF NOT EXISTS conversation_participants (
			user_id         BIGINT       NOT NULL REFERENCES users(id),
			conversation_id BIGINT       NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			joined_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, conversation_id)
		)`,

		// Who has seen the newest message
		`CREATE TABLE IF NOT EXISTS conversation_seen (
			conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			user_id         BIGINT NOT NULL,
			PRIMARY KEY (conversation_id, user_id)
		)`,

		// Per-member unread counters
		`CREATE TABLE IF NOT EXISTS conversation_unread (
			conversation_id BIGINT  NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			user_id         BIGINT  NOT NULL,
			unread_count    INTEGER NOT NULL DEFAULT 0 CHECK (unread_count >= 0),
			PRIMARY KEY (conversation_id, user_id)
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username)`,
		`CREATE INDEX IF NOT EXISTS idx_conv_participants_user ON conversation_participants(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_conv_participants_conv ON conversation_participants(conversation_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
