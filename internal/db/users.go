package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RegisterUser inserts the user on first contact. Subsequent calls are
// no-ops.
func (s *Store) RegisterUser(ctx context.Context, chatID int64, username, tgName string) error {
	if s == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var exists bool
	checkQuery := `SELECT EXISTS(SELECT 1 FROM users WHERE chat_id = ?)`
	if err := s.db.QueryRowContext(ctx, checkQuery, chatID).Scan(&exists); err != nil {
		return fmt.Errorf("error checking user existence: %w", err)
	}
	if exists {
		return nil
	}

	insertQuery := `INSERT INTO users (chat_id, username, tg_name, added_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, insertQuery,
		chatID,
		sql.NullString{String: username, Valid: username != ""},
		sql.NullString{String: tgName, Valid: tgName != ""},
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert new user: %w", err)
	}
	return nil
}

// LogQuery records one search request and how many results it produced.
func (s *Store) LogQuery(ctx context.Context, chatID int64, query string, results int) error {
	if s == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	insertQuery := `INSERT INTO queries (chat_id, query, results, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, insertQuery, chatID, query, results, time.Now()); err != nil {
		return fmt.Errorf("failed to log query: %w", err)
	}
	return nil
}

// IncrementFetchCount bumps the per-song lyrics fetch counter.
func (s *Store) IncrementFetchCount(ctx context.Context, songURL, title string) error {
	if s == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `INSERT INTO fetches (song_url, title, counter) VALUES (?, ?, 1)
		ON CONFLICT(song_url) DO UPDATE SET counter = counter + 1`
	if _, err := s.db.ExecContext(ctx, query, songURL, title); err != nil {
		return fmt.Errorf("failed to increment fetch counter: %w", err)
	}
	return nil
}
