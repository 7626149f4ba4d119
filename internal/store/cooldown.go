package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// CooldownUntil implements risk.Store: the time a user's entries are
// blocked until, or the zero time if no cooldown is set.
func (s *Store) CooldownUntil(ctx context.Context, userID string) (time.Time, error) {
	var until string
	err := s.db.QueryRowContext(ctx, `SELECT until FROM cooldowns WHERE user_id = ?`, userID).Scan(&until)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return parseTime(until), nil
}

// SetCooldownUntil implements risk.Store.
func (s *Store) SetCooldownUntil(ctx context.Context, userID string, until time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cooldowns (user_id, until) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET until = excluded.until
	`, userID, formatTime(until))
	return err
}
