package model

import (
	"fmt"
	"net/url"
	"time"
)

// PushSubscription is a browser push endpoint registered by one of a user's
// devices. Unique per (user, endpoint).
type PushSubscription struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dhKey string    `json:"p256dh_key"`
	AuthKey   string    `json:"auth_key"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that the endpoint is an absolute URL and both keys are present.
func (s *PushSubscription) Validate() error {
	u, err := url.Parse(s.Endpoint)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("endpoint %q is not an absolute URL", s.Endpoint)
	}
	if s.P256dhKey == "" || s.AuthKey == "" {
		return fmt.Errorf("p256dh and auth keys are required")
	}
	return nil
}
