package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rivermead/atelier/internal/model"
)

type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// ListFilter narrows List results.
type ListFilter struct {
	UnreadOnly bool
	Limit      int
}

const notificationCols = `id, user_id, type, title, message, metadata, read, created_at`

// Insert persists a new notification with read=false and returns it.
func (s *NotificationStore) Insert(userID int64, notifType, title, message string, metadata map[string]string) (*model.Notification, error) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.Exec(
		`INSERT INTO notifications (id, user_id, type, title, message, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, notifType, title, message, string(metaJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return s.GetByID(id, userID)
}

// GetByID returns the notification, or (nil, nil) if it does not exist or
// belongs to a different user.
func (s *NotificationStore) GetByID(id string, userID int64) (*model.Notification, error) {
	row := s.db.QueryRow(
		`SELECT `+notificationCols+` FROM notifications WHERE id = ? AND user_id = ?`, id, userID,
	)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// List returns a user's notifications, newest first.
func (s *NotificationStore) List(userID int64, filter ListFilter) ([]model.Notification, error) {
	query := `SELECT ` + notificationCols + ` FROM notifications WHERE user_id = ?`
	args := []any{userID}
	if filter.UnreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}

// CountUnread returns the number of unread notifications for a user.
func (s *NotificationStore) CountUnread(userID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = 0`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// ErrNotFound is returned by mutations that matched no row.
var ErrNotFound = sql.ErrNoRows

// MarkRead sets the read flag on a single notification owned by userID.
func (s *NotificationStore) MarkRead(id string, userID int64) error {
	result, err := s.db.Exec(
		`UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?`, id, userID,
	)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("mark read %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkAllRead sets the read flag on every unread notification for a user.
func (s *NotificationStore) MarkAllRead(userID int64) error {
	_, err := s.db.Exec(
		`UPDATE notifications SET read = 1 WHERE user_id = ? AND read = 0`, userID,
	)
	if err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	return nil
}

// Delete removes a notification owned by userID.
func (s *NotificationStore) Delete(id string, userID int64) error {
	result, err := s.db.Exec(
		`DELETE FROM notifications WHERE id = ? AND user_id = ?`, id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteReadBefore removes read notifications created before the cutoff.
// Used by the retention sweep.
func (s *NotificationStore) DeleteReadBefore(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM notifications WHERE read = 1 AND created_at < ?`, cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete read notifications: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

func scanNotification(scanner interface{ Scan(...any) error }) (*model.Notification, error) {
	var n model.Notification
	var metaJSON string
	var readInt int
	err := scanner.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &metaJSON, &readInt, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	n.Read = readInt != 0
	if err := json.Unmarshal([]byte(metaJSON), &n.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &n, nil
}
