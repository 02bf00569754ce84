package push

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/rivermead/atelier/internal/model"
)

// ErrNoSubscriptions is returned when the user has no registered push endpoints.
var ErrNoSubscriptions = errors.New("no push subscriptions for user")

// SubscriptionStore is the slice of the push store the sender needs.
type SubscriptionStore interface {
	ListByUser(userID int64) ([]model.PushSubscription, error)
	DeleteByEndpoint(endpoint string) error
}

// UserSender fans a payload out to every subscription a user has registered.
// Expired endpoints (410 from the push service) are pruned as they are found.
type UserSender struct {
	service *Service
	store   SubscriptionStore
	logger  *slog.Logger
}

func NewUserSender(service *Service, store SubscriptionStore, logger *slog.Logger) *UserSender {
	return &UserSender{service: service, store: store, logger: logger}
}

// SendToUser delivers the payload to all of the user's devices. Delivery
// succeeds if at least one endpoint accepted the payload.
func (s *UserSender) SendToUser(userID int64, payload Payload) error {
	subs, err := s.store.ListByUser(userID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return ErrNoSubscriptions
	}

	var delivered int
	var errs []error
	for i := range subs {
		sub := &subs[i]
		if err := s.service.Send(sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				s.logger.Debug("pruning expired push endpoint", "endpoint", sub.Endpoint)
				if derr := s.store.DeleteByEndpoint(sub.Endpoint); derr != nil {
					s.logger.Error("delete expired endpoint", "error", derr)
				}
			}
			errs = append(errs, err)
			continue
		}
		delivered++
	}

	if delivered == 0 {
		return fmt.Errorf("all %d endpoints failed: %w", len(subs), errors.Join(errs...))
	}
	return nil
}
