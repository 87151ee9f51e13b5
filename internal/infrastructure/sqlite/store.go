// Package sqlite is the single-node store backend: push subscriptions and the
// unread notification read model in one SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/notify-relay/internal/domain"
	_ "modernc.org/sqlite"
)

// Store implements the subscription and notification stores on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save upserts on (user_id, endpoint); created_at is kept from the first save.
func (s *Store) Save(ctx context.Context, sub *domain.PushSubscription) error {
	now := sub.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	created := sub.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions (subscription_id, user_id, endpoint, p256dh, auth, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, endpoint) DO UPDATE SET
			p256dh = excluded.p256dh,
			auth = excluded.auth,
			updated_at = excluded.updated_at`,
		domain.SubscriptionID(sub.UserID, sub.Endpoint), sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth, created, now)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]domain.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subscription_id, user_id, endpoint, p256dh, auth, created_at, updated_at
		FROM push_subscriptions WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.PushSubscription
	for rows.Next() {
		var sub domain.PushSubscription
		if err := rows.Scan(&sub.SubscriptionID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *Store) Delete(ctx context.Context, endpoint string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// DeleteForUser removes userID's registration of endpoint and leaves any other
// user's registration of the same endpoint in place.
func (s *Store) DeleteForUser(ctx context.Context, userID, endpoint string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE user_id = ? AND endpoint = ?`, userID, endpoint); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

func (s *Store) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	if _, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE subscription_id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("delete subscriptions: %w", err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, n *domain.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (notification_id, user_id, title, message, url, readed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.NotificationID, n.UserID, n.Title, n.Message, n.URL, n.Readed, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT notification_id, user_id, title, message, url, readed, created_at, updated_at
		FROM notifications WHERE notification_id = ?`, notificationID)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notification not found: %w", domain.ErrNotFound)
	}
	return n, err
}

func (s *Store) ListUnread(ctx context.Context, userID string) ([]domain.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT notification_id, user_id, title, message, url, readed, created_at, updated_at
		FROM notifications WHERE user_id = ? AND readed = 0
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list unread: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *Store) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND readed = 0`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

func (s *Store) MarkAsRead(ctx context.Context, notificationID string) (*domain.Notification, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET readed = 1, updated_at = ? WHERE notification_id = ?`,
		time.Now().UTC(), notificationID)
	if err != nil {
		return nil, fmt.Errorf("mark as read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("notification not found: %w", domain.ErrNotFound)
	}
	return s.Get(ctx, notificationID)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(row scanner) (*domain.Notification, error) {
	var n domain.Notification
	if err := row.Scan(&n.NotificationID, &n.UserID, &n.Title, &n.Message, &n.URL, &n.Readed, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}
