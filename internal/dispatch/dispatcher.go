// Package dispatch turns a domain event into a persisted notification and
// fans it out to the channels the owning user has enabled.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rivermead/atelier/internal/model"
	"github.com/rivermead/atelier/internal/push"
	"github.com/rivermead/atelier/internal/store"
)

// ErrInvalidType rejects dispatch requests with an unregistered type.
var ErrInvalidType = errors.New("invalid notification type")

// EmailSender delivers a rendered notification email to a user.
type EmailSender interface {
	Send(userID int64, subject, body string) error
}

// PushSender delivers a push payload to all of a user's devices.
type PushSender interface {
	SendToUser(userID int64, payload push.Payload) error
}

// Resolver answers whether a channel is enabled for (user, type).
type Resolver interface {
	ShouldSend(userID int64, notifType string, channel model.Channel) (bool, error)
}

// Status of one channel within a dispatch.
type Status string

const (
	StatusSent    Status = "sent"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// ChannelResult records the independent outcome of one channel.
type ChannelResult struct {
	Channel model.Channel `json:"channel"`
	Status  Status        `json:"status"`
	Reason  string        `json:"reason,omitempty"`
}

// CreateRequest describes a notification to dispatch. Channels overrides the
// type's default channel set when non-empty.
type CreateRequest struct {
	UserID   int64
	Type     string
	Title    string
	Message  string
	Metadata map[string]string
	Channels []model.Channel
}

type Dispatcher struct {
	notifications *store.NotificationStore
	resolver      Resolver
	email         EmailSender
	push          PushSender
	logger        *slog.Logger
}

func NewDispatcher(notifications *store.NotificationStore, resolver Resolver, email EmailSender, pushSender PushSender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		resolver:      resolver,
		email:         email,
		push:          pushSender,
		logger:        logger,
	}
}

// CreateNotification persists the notification record and then attempts each
// requested channel independently. The record write is the only load-bearing
// step: it completes before any channel send starts, and a channel failure
// never affects the record or the other channels.
func (d *Dispatcher) CreateNotification(req CreateRequest) (*model.Notification, []ChannelResult, error) {
	if !model.ValidNotificationType(req.Type) {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidType, req.Type)
	}

	channels := req.Channels
	if len(channels) == 0 {
		channels = model.DefaultChannelsFor(req.Type)
	}

	n, err := d.notifications.Insert(req.UserID, req.Type, req.Title, req.Message, req.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("persist notification: %w", err)
	}

	rendered := n.RenderMessage()
	results := make([]ChannelResult, len(channels))

	var wg sync.WaitGroup
	for i, ch := range channels {
		switch ch {
		case model.ChannelInApp:
			// Satisfied by the record insert above
			results[i] = ChannelResult{Channel: ch, Status: StatusSent}
		case model.ChannelEmail, model.ChannelPush:
			wg.Add(1)
			go func(i int, ch model.Channel) {
				defer wg.Done()
				results[i] = d.sendChannel(n, ch, rendered)
			}(i, ch)
		default:
			results[i] = ChannelResult{Channel: ch, Status: StatusFailed, Reason: "unknown channel"}
		}
	}
	wg.Wait()

	return n, results, nil
}

func (d *Dispatcher) sendChannel(n *model.Notification, ch model.Channel, rendered string) ChannelResult {
	enabled, err := d.resolver.ShouldSend(n.UserID, n.Type, ch)
	if err != nil {
		// Fail open: the resolver already answered true, just record the hiccup
		d.logger.Warn("preference lookup failed, proceeding", "channel", ch, "error", err)
	}
	if !enabled {
		return ChannelResult{Channel: ch, Status: StatusSkipped, Reason: "disabled by preference"}
	}

	var sendErr error
	switch ch {
	case model.ChannelEmail:
		if d.email == nil {
			sendErr = fmt.Errorf("email sender not configured")
		} else {
			sendErr = d.email.Send(n.UserID, n.Title, rendered)
		}
	case model.ChannelPush:
		if d.push == nil {
			sendErr = fmt.Errorf("push sender not configured")
		} else {
			sendErr = d.push.SendToUser(n.UserID, push.Payload{
				Title: n.Title,
				Body:  rendered,
				URL:   n.Metadata["actionUrl"],
				Tag:   n.ID,
			})
		}
	}

	if sendErr != nil {
		d.logger.Error("channel send failed", "channel", ch, "notification_id", n.ID, "error", sendErr)
		return ChannelResult{Channel: ch, Status: StatusFailed, Reason: sendErr.Error()}
	}
	return ChannelResult{Channel: ch, Status: StatusSent}
}
