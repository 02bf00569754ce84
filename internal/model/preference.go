package model

import "time"

// NotificationPreference holds a user's per-type channel toggles. At most one
// record exists per (user, type); absence means channel defaults apply.
type NotificationPreference struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	NotificationType string    `json:"notification_type"`
	EmailEnabled     bool      `json:"email_enabled"`
	PushEnabled      bool      `json:"push_enabled"`
	InAppEnabled     bool      `json:"in_app_enabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// EnabledFor returns the flag matching the given channel.
func (p *NotificationPreference) EnabledFor(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelPush:
		return p.PushEnabled
	default:
		return p.InAppEnabled
	}
}

// DefaultEnabled is the resolution for a (type, channel) pair with no stored
// preference record: everything on, except system notifications stay in-app only.
func DefaultEnabled(notifType string, ch Channel) bool {
	if notifType == NotifTypeSystem && ch != ChannelInApp {
		return false
	}
	return true
}
