package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		public_key TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS groups (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		created_by UUID NOT NULL REFERENCES users(id),
		member_count INT NOT NULL DEFAULT 0,
		admin_count INT NOT NULL DEFAULT 0,
		last_message_at TIMESTAMPTZ,
		last_message_preview TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS memberships (
		group_id UUID NOT NULL REFERENCES groups(id),
		user_id UUID NOT NULL REFERENCES users(id),
		role TEXT NOT NULL DEFAULT 'member',
		status TEXT NOT NULL DEFAULT 'active',
		joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		left_at TIMESTAMPTZ,
		removed_at TIMESTAMPTZ,
		added_by UUID,
		removed_by UUID,
		last_read_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (group_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		conversation_type TEXT NOT NULL,
		sender_id UUID NOT NULL REFERENCES users(id),
		receiver_id UUID REFERENCES users(id),
		group_id UUID REFERENCES groups(id),
		ciphertext TEXT NOT NULL DEFAULT '',
		iv TEXT NOT NULL DEFAULT '',
		key_for_receiver TEXT NOT NULL DEFAULT '',
		key_for_sender TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL DEFAULT 'user',
		system_action TEXT NOT NULL DEFAULT '',
		system_meta JSONB,
		reply_to UUID,
		is_edited BOOLEAN NOT NULL DEFAULT false,
		edited_at TIMESTAMPTZ,
		is_unsent BOOLEAN NOT NULL DEFAULT false,
		is_read BOOLEAN NOT NULL DEFAULT false,
		deleted_for TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_direct
		ON messages (sender_id, receiver_id, created_at)
		WHERE conversation_type = 'direct'`,

	`CREATE INDEX IF NOT EXISTS idx_messages_group
		ON messages (group_id, created_at)
		WHERE conversation_type = 'group'`,

	`CREATE INDEX IF NOT EXISTS idx_memberships_user
		ON memberships (user_id, status)`,
}

// Migrate applies the schema bootstrap. Statements are idempotent so startup
// can run them unconditionally.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
