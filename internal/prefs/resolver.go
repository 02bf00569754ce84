// Package prefs resolves whether a notification should be delivered on a
// given channel, caching per-user preference lookups with a fixed TTL.
package prefs

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rivermead/atelier/internal/model"
)

// DefaultTTL is how long a resolved preference is trusted before the store is
// consulted again.
const DefaultTTL = 5 * time.Minute

// Store is the preference lookup the resolver wraps. A (nil, nil) return means
// no record exists and channel defaults apply.
type Store interface {
	Get(userID int64, notifType string) (*model.NotificationPreference, error)
}

type cacheKey struct {
	userID    int64
	notifType string
	channel   model.Channel
}

type cacheEntry struct {
	enabled  bool
	cachedAt time.Time
}

// Resolver answers ShouldSend questions, keeping a TTL-bounded cache over the
// preference store. Safe for concurrent use.
type Resolver struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry
}

type Option func(*Resolver)

// WithTTL overrides the cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithClock injects a clock, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func NewResolver(store Store, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: logger,
		cache:  make(map[cacheKey]cacheEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ShouldSend reports whether delivery should proceed for (user, type, channel).
//
// A store failure fails open: the returned bool is true so a storage hiccup
// never suppresses delivery, and the error is returned alongside for the
// caller to log. Fail-open results are not cached.
func (r *Resolver) ShouldSend(userID int64, notifType string, channel model.Channel) (bool, error) {
	key := cacheKey{userID: userID, notifType: notifType, channel: channel}

	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && r.now().Sub(entry.cachedAt) < r.ttl {
		return entry.enabled, nil
	}

	pref, err := r.store.Get(userID, notifType)
	if err != nil {
		return true, fmt.Errorf("preference lookup for user %d type %s: %w", userID, notifType, err)
	}

	var enabled bool
	if pref != nil {
		enabled = pref.EnabledFor(channel)
	} else {
		enabled = model.DefaultEnabled(notifType, channel)
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{enabled: enabled, cachedAt: r.now()}
	r.mu.Unlock()

	return enabled, nil
}

// InvalidateUser drops every cached entry for the user, across all types and
// channels. Called when the user updates their preferences.
func (r *Resolver) InvalidateUser(userID int64) {
	r.mu.Lock()
	for key := range r.cache {
		if key.userID == userID {
			delete(r.cache, key)
		}
	}
	r.mu.Unlock()
	if r.logger != nil {
		r.logger.Debug("preference cache invalidated", "user_id", userID)
	}
}
