package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	role TEXT NOT NULL CHECK (role IN ('mentor', 'mentee', 'admin')),
	hourly_rate NUMERIC(10, 2),
	profile_pic TEXT,
	session_count INTEGER NOT NULL DEFAULT 0,
	rating DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sessions (
	id UUID PRIMARY KEY,
	mentor_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	mentee_id UUID REFERENCES users(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	session_type TEXT NOT NULL,
	session_mode TEXT NOT NULL CHECK (session_mode IN ('one-on-one', 'group')),
	max_participants INTEGER NOT NULL CHECK (max_participants BETWEEN 1 AND 50),
	status TEXT NOT NULL,
	scheduled_date TIMESTAMPTZ NOT NULL,
	duration INTEGER NOT NULL CHECK (duration BETWEEN 15 AND 480),
	amount DOUBLE PRECISION NOT NULL DEFAULT 0,
	accepted_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	cancelled_at TIMESTAMPTZ,
	cancelled_by UUID,
	cancellation_reason TEXT,
	rating INTEGER CHECK (rating BETWEEN 1 AND 5),
	feedback TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_sessions_mentor ON sessions(mentor_id);
CREATE INDEX IF NOT EXISTS idx_sessions_mentee ON sessions(mentee_id);

CREATE TABLE IF NOT EXISTS session_participants (
	session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	mentee_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	status TEXT NOT NULL,
	joined_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_id, mentee_id)
);

CREATE TABLE IF NOT EXISTS messages (
	seq BIGSERIAL UNIQUE,
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	receiver_id UUID REFERENCES users(id) ON DELETE CASCADE,
	content VARCHAR(1000) NOT NULL,
	message_type TEXT NOT NULL CHECK (message_type IN ('text', 'file', 'image')),
	file_url TEXT,
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	read_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_messages_session_seq ON messages(session_id, seq);
CREATE INDEX IF NOT EXISTS idx_messages_receiver_unread ON messages(session_id, receiver_id) WHERE is_read = FALSE;
`

// Migrate creates the tables if they don't exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
