package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ConnectPostgres opens the alternate relational store and applies the schema.
func ConnectPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied", "driver", "postgres")
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            username TEXT NOT NULL UNIQUE,
            connected BOOLEAN NOT NULL DEFAULT FALSE,
            connection_id TEXT,
            last_seen_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE INDEX IF NOT EXISTS users_connection_id_idx ON users (connection_id);`,
	`CREATE TABLE IF NOT EXISTS messages (
            seq BIGSERIAL UNIQUE,
            id TEXT PRIMARY KEY,
            content TEXT NOT NULL,
            sender_id TEXT NOT NULL,
            sender_name TEXT NOT NULL,
            recipient_id TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            is_private BOOLEAN NOT NULL DEFAULT FALSE,
            read_by TEXT[] NOT NULL DEFAULT '{}',
            read_at TIMESTAMPTZ,
            CHECK (is_private = (recipient_id IS NOT NULL))
        );`,
	`CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages (is_private, sender_id, recipient_id);`,
	`CREATE INDEX IF NOT EXISTS messages_read_by_idx ON messages USING GIN (read_by);`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
