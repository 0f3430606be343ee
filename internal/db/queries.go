package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/seatwatch/internal/errors"
)

// Notification is one entry in the local notification feed.
type Notification struct {
	ID         string
	Kind       string
	Title      string
	Message    string
	Available  int
	SnapshotAt int64 // unix seconds of the snapshot that triggered it
	Test       bool
	CreatedAt  int64
}

// GetSetting returns the stored value for key, or NOT_FOUND.
func GetSetting(ctx context.Context, db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", errors.NewNotFound(key)
	}
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return value, nil
}

// SetSetting upserts key.
func SetSetting(ctx context.Context, db *sql.DB, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := db.ExecContext(ctx, query, key, value, time.Now().Unix()); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// InsertNotification appends to the feed.
func InsertNotification(ctx context.Context, db *sql.DB, n *Notification) error {
	query := `
		INSERT INTO notifications (
			id, kind, title, message, available, snapshot_at, test, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		n.ID, n.Kind, n.Title, n.Message, n.Available, n.SnapshotAt, boolToInt(n.Test), n.CreatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListNotificationsAfter returns feed entries with id greater than afterID,
// oldest first. ULIDs sort by creation time, so this is a cursor. An empty
// afterID returns the most recent limit entries.
func ListNotificationsAfter(ctx context.Context, db *sql.DB, afterID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if afterID == "" {
		rows, err = db.QueryContext(ctx, `
			SELECT id, kind, title, message, available, snapshot_at, test, created_at
			FROM (
				SELECT * FROM notifications ORDER BY id DESC LIMIT ?
			) ORDER BY id ASC
		`, limit)
	} else {
		rows, err = db.QueryContext(ctx, `
			SELECT id, kind, title, message, available, snapshot_at, test, created_at
			FROM notifications
			WHERE id > ?
			ORDER BY id ASC
			LIMIT ?
		`, afterID, limit)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var n Notification
		var test int
		if err := rows.Scan(&n.ID, &n.Kind, &n.Title, &n.Message, &n.Available, &n.SnapshotAt, &test, &n.CreatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		n.Test = test != 0
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// PurgeNotifications deletes feed entries created before the given unix time.
func PurgeNotifications(ctx context.Context, db *sql.DB, before int64) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM notifications WHERE created_at < ?`, before)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
