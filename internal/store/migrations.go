package store

import (
	"time"
)

// Migration represents a database migration
type Migration struct {
	ID          int       `db:"id"`
	Version     string    `db:"version"`
	Description string    `db:"description"`
	SQL         string    `db:"sql"`
	AppliedAt   time.Time `db:"applied_at"`
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create notifications table",
			SQL: `
				CREATE TABLE IF NOT EXISTS notifications (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					recipient_name TEXT NOT NULL DEFAULT '',
					phone TEXT NOT NULL DEFAULT '',
					email TEXT NOT NULL DEFAULT '',
					channel TEXT NOT NULL,
					category TEXT NOT NULL,
					message TEXT NOT NULL,
					media_url TEXT NOT NULL DEFAULT '',
					sender_role TEXT NOT NULL DEFAULT '',
					business_ref TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT 'pending',
					attempt_count INTEGER NOT NULL DEFAULT 0,
					max_attempts INTEGER NOT NULL DEFAULT 10,
					next_attempt_at DATETIME,
					provider_message_id TEXT NOT NULL DEFAULT '',
					region TEXT NOT NULL DEFAULT '',
					last_error TEXT,
					created_at DATETIME NOT NULL,
					sent_at DATETIME,
					updated_at DATETIME NOT NULL
				);
			`,
		},
		{
			Version:     "002",
			Description: "Create notification indexes",
			SQL: `
				CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(status);
				CREATE INDEX IF NOT EXISTS idx_notifications_next_attempt ON notifications(status, next_attempt_at);
				CREATE INDEX IF NOT EXISTS idx_notifications_business_ref ON notifications(business_ref);
				CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create notifications table",
			SQL: `
				CREATE TABLE IF NOT EXISTS notifications (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					recipient_name TEXT NOT NULL DEFAULT '',
					phone TEXT NOT NULL DEFAULT '',
					email TEXT NOT NULL DEFAULT '',
					channel TEXT NOT NULL,
					category TEXT NOT NULL,
					message TEXT NOT NULL,
					media_url TEXT NOT NULL DEFAULT '',
					sender_role TEXT NOT NULL DEFAULT '',
					business_ref TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT 'pending',
					attempt_count INTEGER NOT NULL DEFAULT 0,
					max_attempts INTEGER NOT NULL DEFAULT 10,
					next_attempt_at TIMESTAMPTZ,
					provider_message_id TEXT NOT NULL DEFAULT '',
					region TEXT NOT NULL DEFAULT '',
					last_error TEXT,
					created_at TIMESTAMPTZ NOT NULL,
					sent_at TIMESTAMPTZ,
					updated_at TIMESTAMPTZ NOT NULL
				);
			`,
		},
		{
			Version:     "002",
			Description: "Create notification indexes",
			SQL: `
				CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(status);
				CREATE INDEX IF NOT EXISTS idx_notifications_next_attempt ON notifications(status, next_attempt_at);
				CREATE INDEX IF NOT EXISTS idx_notifications_business_ref ON notifications(business_ref);
				CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at);
			`,
		},
	}
}
