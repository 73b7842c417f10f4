package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/colonyops/triage/internal/core/notify"
	"github.com/colonyops/triage/internal/data/db"
)

// NotifyStore implements notify.Store using SQLite.
type NotifyStore struct {
	db *db.DB
}

var _ notify.Store = (*NotifyStore)(nil)

// NewNotifyStore creates a new SQLite-backed notification store.
func NewNotifyStore(database *db.DB) *NotifyStore {
	return &NotifyStore{db: database}
}

// Save persists a notification and returns its assigned id.
func (s *NotifyStore) Save(ctx context.Context, n notify.Notification) (int64, error) {
	res, err := s.db.Conn().ExecContext(ctx,
		`INSERT INTO notifications (level, message, created_at) VALUES (?, ?, ?)`,
		string(n.Level), n.Message, n.CreatedAt.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("save notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("save notification id: %w", err)
	}
	return id, nil
}

// List returns all notifications, newest first.
func (s *NotifyStore) List(ctx context.Context) ([]notify.Notification, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT id, level, message, created_at FROM notifications ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []notify.Notification
	for rows.Next() {
		var (
			n         notify.Notification
			level     string
			createdAt int64
		)
		if err := rows.Scan(&n.ID, &level, &n.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Level = notify.Level(level)
		n.CreatedAt = time.Unix(0, createdAt)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// Clear deletes all notifications.
func (s *NotifyStore) Clear(ctx context.Context) error {
	if _, err := s.db.Conn().ExecContext(ctx, `DELETE FROM notifications`); err != nil {
		return fmt.Errorf("clear notifications: %w", err)
	}
	return nil
}

// Count returns the number of stored notifications.
func (s *NotifyStore) Count(ctx context.Context) (int64, error) {
	var count int64
	row := s.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return count, nil
}
