package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/chirper/internal/model"
	"github.com/sakif/chirper/internal/repository"
)

// compile-time check that *DB implements repository.NotificationRepository
var _ repository.NotificationRepository = (*DB)(nil)

// CreateNotification records an event for recipientID. Only the actor's ID
// is stored; the actor snapshot is joined in at read time so a renamed user
// shows up under their current name in old notifications.
func (db *DB) CreateNotification(ctx context.Context, n *model.Notification, recipientID string) error {
	n.ID = xid.New().String()
	n.CreatedAt = time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO notifications (id, recipient_id, type, actor_id, tweet_id, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		n.ID, recipientID, n.Kind, n.Actor.ID, n.MessageID, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting notification: %w", err)
	}
	return nil
}

// ListNotifications returns the recipient's notifications, newest first.
func (db *DB) ListNotifications(ctx context.Context, recipientID string, opts repository.PageOptions) ([]model.Notification, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT n.id, n.type, n.tweet_id, n.is_read, n.created_at,
		        u.id, u.username, u.name, u.avatar_url
		 FROM notifications n JOIN users u ON u.id = n.actor_id
		 WHERE n.recipient_id = ?
		 ORDER BY n.created_at DESC, n.id DESC
		 LIMIT ? OFFSET ?`,
		recipientID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading notifications for %s: %w", recipientID, err)
	}
	defer rows.Close()

	ns := make([]model.Notification, 0, opts.Limit)
	for rows.Next() {
		var n model.Notification
		var read int
		if err := rows.Scan(
			&n.ID, &n.Kind, &n.MessageID, &read, &n.CreatedAt,
			&n.Actor.ID, &n.Actor.Username, &n.Actor.Name, &n.Actor.AvatarURL,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning notification row: %w", err)
		}
		n.Read = read != 0
		ns = append(ns, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating notification rows: %w", err)
	}
	return ns, nil
}

// MarkAllRead flips every unread notification for the recipient. Marking an
// already-read set is a no-op, not an error — the operation is idempotent on
// purpose, the client calls it every time the panel is opened.
func (db *DB) MarkAllRead(ctx context.Context, recipientID string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND is_read = 0`,
		recipientID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: marking notifications read for %s: %w", recipientID, err)
	}
	return nil
}

func (db *DB) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0`,
		recipientID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting unread notifications for %s: %w", recipientID, err)
	}
	return n, nil
}
