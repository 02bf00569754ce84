package model

import (
	"strings"
	"time"
)

// Notification type constants
const (
	NotifTypeNewBriefing        = "new_briefing"
	NotifTypeProjectUpdated     = "project_updated"
	NotifTypeNewMessage         = "new_message"
	NotifTypeFileRequested      = "file_requested"
	NotifTypeProjectCompleted   = "project_completed"
	NotifTypeBriefingApproved   = "briefing_approved"
	NotifTypeBriefingRejected   = "briefing_rejected"
	NotifTypeMilestoneCompleted = "milestone_completed"
	NotifTypeSystem             = "system"
)

// NotificationTypes lists every registered type in display order.
var NotificationTypes = []string{
	NotifTypeNewBriefing,
	NotifTypeProjectUpdated,
	NotifTypeNewMessage,
	NotifTypeFileRequested,
	NotifTypeProjectCompleted,
	NotifTypeBriefingApproved,
	NotifTypeBriefingRejected,
	NotifTypeMilestoneCompleted,
	NotifTypeSystem,
}

var notificationTypes = func() map[string]bool {
	m := make(map[string]bool, len(NotificationTypes))
	for _, t := range NotificationTypes {
		m[t] = true
	}
	return m
}()

// ValidNotificationType reports whether t is a known notification type.
func ValidNotificationType(t string) bool {
	return notificationTypes[t]
}

// Channel is a delivery destination for a notification.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// defaultChannels maps notification types to their default channel sets.
// Types absent from the table get every channel.
var defaultChannels = map[string][]Channel{
	NotifTypeSystem: {ChannelInApp},
}

// DefaultChannelsFor returns the default channel set for a notification type.
func DefaultChannelsFor(notifType string) []Channel {
	if chs, ok := defaultChannels[notifType]; ok {
		return append([]Channel(nil), chs...)
	}
	return []Channel{ChannelInApp, ChannelEmail, ChannelPush}
}

type Notification struct {
	ID        string            `json:"id"`
	UserID    int64             `json:"user_id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Read      bool              `json:"read"`
	CreatedAt time.Time         `json:"created_at"`
}

// RenderMessage resolves {key} placeholders in the message against metadata.
// Unknown placeholders are left verbatim.
func (n *Notification) RenderMessage() string {
	return InterpolateMessage(n.Message, n.Metadata)
}

// InterpolateMessage replaces each {key} in msg with metadata[key].
// Keys missing from metadata are left as-is.
func InterpolateMessage(msg string, metadata map[string]string) string {
	if len(metadata) == 0 || !strings.ContainsRune(msg, '{') {
		return msg
	}
	var b strings.Builder
	b.Grow(len(msg))
	for {
		open := strings.IndexByte(msg, '{')
		if open < 0 {
			b.WriteString(msg)
			return b.String()
		}
		close := strings.IndexByte(msg[open:], '}')
		if close < 0 {
			b.WriteString(msg)
			return b.String()
		}
		close += open
		key := msg[open+1 : close]
		if val, ok := metadata[key]; ok {
			b.WriteString(msg[:open])
			b.WriteString(val)
		} else {
			b.WriteString(msg[:close+1])
		}
		msg = msg[close+1:]
	}
}
