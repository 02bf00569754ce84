package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rivermead/atelier/internal/model"
)

type PreferenceStore struct {
	db *sql.DB
}

func NewPreferenceStore(db *sql.DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

const preferenceCols = `id, user_id, notification_type, email_enabled, push_enabled, in_app_enabled, created_at, updated_at`

// Get returns the preference record for (user, type), or (nil, nil) if none
// exists. Callers apply channel defaults for the nil case.
func (s *PreferenceStore) Get(userID int64, notifType string) (*model.NotificationPreference, error) {
	row := s.db.QueryRow(
		`SELECT `+preferenceCols+` FROM notification_preferences WHERE user_id = ? AND notification_type = ?`,
		userID, notifType,
	)
	p, err := scanPreference(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification preference: %w", err)
	}
	return p, nil
}

// Set upserts the preference record for (user, type).
func (s *PreferenceStore) Set(userID int64, notifType string, email, push, inApp bool) error {
	_, err := s.db.Exec(
		`INSERT INTO notification_preferences (user_id, notification_type, email_enabled, push_enabled, in_app_enabled, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, notification_type) DO UPDATE SET
		   email_enabled = excluded.email_enabled,
		   push_enabled = excluded.push_enabled,
		   in_app_enabled = excluded.in_app_enabled,
		   updated_at = excluded.updated_at`,
		userID, notifType, boolToInt(email), boolToInt(push), boolToInt(inApp), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set notification preference: %w", err)
	}
	return nil
}

// ListByUser returns all stored preference records for a user.
func (s *PreferenceStore) ListByUser(userID int64) ([]model.NotificationPreference, error) {
	rows, err := s.db.Query(
		`SELECT `+preferenceCols+` FROM notification_preferences WHERE user_id = ? ORDER BY notification_type`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list notification preferences: %w", err)
	}
	defer rows.Close()

	var prefs []model.NotificationPreference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification preference: %w", err)
		}
		prefs = append(prefs, *p)
	}
	return prefs, rows.Err()
}

func scanPreference(scanner interface{ Scan(...any) error }) (*model.NotificationPreference, error) {
	var p model.NotificationPreference
	var email, push, inApp int
	err := scanner.Scan(&p.ID, &p.UserID, &p.NotificationType, &email, &push, &inApp, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.EmailEnabled = email != 0
	p.PushEnabled = push != 0
	p.InAppEnabled = inApp != 0
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
