package email

import (
	"fmt"

	"github.com/rivermead/atelier/internal/model"
)

// UserLookup resolves a user ID to an address. (nil, nil) means unknown user.
type UserLookup interface {
	GetByID(id int64) (*model.User, error)
}

// NotificationSender adapts the Postmark client to the dispatcher's
// per-user contract: it resolves the recipient address and sends the
// already-rendered subject and body.
type NotificationSender struct {
	client *Client
	users  UserLookup
}

func NewNotificationSender(client *Client, users UserLookup) *NotificationSender {
	return &NotificationSender{client: client, users: users}
}

// Send delivers a rendered notification email to the user's address.
func (s *NotificationSender) Send(userID int64, subject, body string) error {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return fmt.Errorf("look up user %d: %w", userID, err)
	}
	if user == nil {
		return fmt.Errorf("user %d not found", userID)
	}
	if user.Email == "" {
		return fmt.Errorf("user %d has no email address", userID)
	}
	return s.client.Send(user.Email, subject, body, "")
}
