// Package db records users and search activity in a Turso/libsql database.
// The whole component is optional: a nil *Store is valid and every method is
// a no-op on it, so the bot runs fine without a database configured.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

type Store struct {
	db *sql.DB
}

// Open connects to the database and ensures the schema exists.
func Open(databaseURL, authToken string) (*Store, error) {
	url := fmt.Sprintf("%s?authToken=%s", databaseURL, authToken)

	database, err := sql.Open("libsql", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	database.SetMaxOpenConns(25)
	database.SetMaxIdleConns(25)
	database.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: database}
	if err := s.migrate(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			chat_id INTEGER PRIMARY KEY,
			username TEXT,
			tg_name TEXT,
			added_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS queries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER,
			query TEXT,
			results INTEGER,
			created_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS fetches (
			song_url TEXT PRIMARY KEY,
			title TEXT,
			counter INTEGER DEFAULT 0
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// Close closes the database connection safely.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
