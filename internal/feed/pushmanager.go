package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ManagerState is the push subscription lifecycle state.
type ManagerState string

const (
	StateUnsupported         ManagerState = "unsupported"
	StateUnsubscribed        ManagerState = "unsubscribed"
	StatePermissionRequested ManagerState = "permission_requested"
	StateSubscribed          ManagerState = "subscribed"
)

var (
	// ErrUnsupported means the platform lacks push capability; terminal.
	ErrUnsupported = errors.New("push not supported on this platform")
	// ErrPermissionDenied means the user declined; unsubscribed for the session.
	ErrPermissionDenied = errors.New("push permission denied")
)

// Subscription is the wire shape shared with the push transport.
type Subscription struct {
	Endpoint string           `json:"endpoint"`
	Keys     SubscriptionKeys `json:"keys"`
}

type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Platform abstracts the browser-level push machinery: permission prompts,
// the background delivery agent, and subscription management.
type Platform interface {
	Supported() bool
	RequestPermission(ctx context.Context) (granted bool, err error)
	RegisterAgent(ctx context.Context) error
	// ExistingSubscription returns the current subscription, or nil if none.
	ExistingSubscription(ctx context.Context) (*Subscription, error)
	Subscribe(ctx context.Context, vapidPublicKey string) (*Subscription, error)
	Unsubscribe(ctx context.Context) error
}

// SubscriptionAPI is the server surface for persisting subscriptions.
type SubscriptionAPI interface {
	VAPIDPublicKey(ctx context.Context) (string, error)
	SaveSubscription(ctx context.Context, sub Subscription) error
	RemoveSubscription(ctx context.Context, endpoint string) error
}

// SubscriptionManager walks a device through
// unsupported → unsubscribed → permission-requested → subscribed.
type SubscriptionManager struct {
	platform Platform
	api      SubscriptionAPI
	logger   *slog.Logger

	mu      sync.Mutex
	state   ManagerState
	current *Subscription
}

func NewSubscriptionManager(platform Platform, api SubscriptionAPI, logger *slog.Logger) *SubscriptionManager {
	state := StateUnsubscribed
	if !platform.Supported() {
		state = StateUnsupported
	}
	return &SubscriptionManager{
		platform: platform,
		api:      api,
		logger:   logger,
		state:    state,
	}
}

// State returns the current lifecycle state.
func (m *SubscriptionManager) State() ManagerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscription returns the active subscription, or nil.
func (m *SubscriptionManager) Subscription() *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	sub := *m.current
	return &sub
}

// Enable runs the subscription flow: permission, agent registration, reuse or
// create a subscription, then submit it for persistence. Persistence is
// best-effort — a failed save leaves the device subscribed but undiscoverable
// by the dispatcher until a later save succeeds.
func (m *SubscriptionManager) Enable(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateUnsupported:
		m.mu.Unlock()
		return ErrUnsupported
	case StateSubscribed:
		m.mu.Unlock()
		return nil
	}
	m.state = StatePermissionRequested
	m.mu.Unlock()

	granted, err := m.platform.RequestPermission(ctx)
	if err != nil {
		m.setState(StateUnsubscribed)
		return fmt.Errorf("request permission: %w", err)
	}
	if !granted {
		m.setState(StateUnsubscribed)
		return ErrPermissionDenied
	}

	if err := m.platform.RegisterAgent(ctx); err != nil {
		m.setState(StateUnsubscribed)
		return fmt.Errorf("register delivery agent: %w", err)
	}

	sub, err := m.platform.ExistingSubscription(ctx)
	if err != nil {
		m.setState(StateUnsubscribed)
		return fmt.Errorf("look up existing subscription: %w", err)
	}
	if sub == nil {
		key, err := m.api.VAPIDPublicKey(ctx)
		if err != nil {
			m.setState(StateUnsubscribed)
			return fmt.Errorf("fetch server public key: %w", err)
		}
		sub, err = m.platform.Subscribe(ctx, key)
		if err != nil {
			m.setState(StateUnsubscribed)
			return fmt.Errorf("create subscription: %w", err)
		}
	}

	m.mu.Lock()
	m.state = StateSubscribed
	m.current = sub
	m.mu.Unlock()

	if err := m.api.SaveSubscription(ctx, *sub); err != nil {
		// Degraded but acceptable: push stays dormant until persisted
		m.logger.Warn("subscription active but not persisted", "endpoint", sub.Endpoint, "error", err)
	}
	return nil
}

// Disable cancels the active subscription. Removal from the server-side
// record store is attempted but not guaranteed here.
func (m *SubscriptionManager) Disable(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateUnsupported {
		m.mu.Unlock()
		return ErrUnsupported
	}
	current := m.current
	m.mu.Unlock()

	if err := m.platform.Unsubscribe(ctx); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}

	m.mu.Lock()
	m.state = StateUnsubscribed
	m.current = nil
	m.mu.Unlock()

	if current != nil {
		if err := m.api.RemoveSubscription(ctx, current.Endpoint); err != nil {
			m.logger.Warn("subscription cancelled but record not removed", "endpoint", current.Endpoint, "error", err)
		}
	}
	return nil
}

func (m *SubscriptionManager) setState(s ManagerState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
