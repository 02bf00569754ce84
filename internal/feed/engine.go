// Package feed is the client side of the notification subsystem: a polling
// sync engine over the server API and the push subscription state machine.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rivermead/atelier/internal/model"
)

// DefaultInterval is how often the engine polls the server.
const DefaultInterval = 30 * time.Second

// ErrFetchInProgress is returned by Refresh when another fetch holds the
// in-flight guard.
var ErrFetchInProgress = errors.New("fetch already in progress")

// API is the server surface the engine polls and mutates against. All calls
// operate on the authenticated user's notifications.
type API interface {
	Fetch(ctx context.Context) ([]model.Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
}

// Engine keeps a local copy of the user's notification list in sync with the
// server. Mutations are applied optimistically and rolled back if the server
// rejects them.
type Engine struct {
	api      API
	interval time.Duration
	logger   *slog.Logger
	onAlert  func(unread int)
	onChange func()

	inFlight atomic.Bool

	mu            sync.Mutex
	notifications []model.Notification
	unread        int

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type EngineOption func(*Engine)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) EngineOption {
	return func(e *Engine) { e.interval = d }
}

// OnAlert registers the audible-alert callback. It fires only when the unread
// count rises above a previous non-zero count, never on the first load.
func OnAlert(fn func(unread int)) EngineOption {
	return func(e *Engine) { e.onAlert = fn }
}

// OnChange registers a callback invoked after any local state change.
func OnChange(fn func()) EngineOption {
	return func(e *Engine) { e.onChange = fn }
}

func NewEngine(api API, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		api:      api,
		interval: DefaultInterval,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins the poll loop. An immediate fetch runs before the first tick.
// Call Stop (or cancel ctx) on logout; an in-flight fetch is not interrupted,
// only further scheduling.
func (e *Engine) Start(ctx context.Context) {
	e.loopMu.Lock()
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	done := e.done
	e.loopMu.Unlock()

	go func() {
		defer close(done)

		if err := e.Refresh(ctx); err != nil && !errors.Is(err, ErrFetchInProgress) {
			e.logger.Warn("initial fetch failed", "error", err)
		}

		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := e.Refresh(ctx); err != nil {
					if errors.Is(err, ErrFetchInProgress) {
						// Previous cycle still running; skip this tick entirely
						continue
					}
					e.logger.Warn("poll fetch failed", "error", err)
				}
			}
		}
	}()
}

// Stop cancels the poll loop and waits for it to exit.
func (e *Engine) Stop() {
	e.loopMu.Lock()
	cancel := e.cancel
	done := e.done
	e.loopMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Refresh fetches the notification list immediately, bypassing the timer.
// Exactly one fetch runs at a time: a call that loses the guard returns
// ErrFetchInProgress without queuing.
func (e *Engine) Refresh(ctx context.Context) error {
	if !e.inFlight.CompareAndSwap(false, true) {
		return ErrFetchInProgress
	}
	defer e.inFlight.Store(false)

	fetched, err := e.api.Fetch(ctx)
	if err != nil {
		// Local state stays as-is: stale but consistent until the next poll
		return fmt.Errorf("fetch notifications: %w", err)
	}

	e.mu.Lock()
	prevUnread := e.unread
	e.notifications = fetched
	e.unread = countUnread(fetched)
	alert := e.unread > prevUnread && prevUnread > 0
	unread := e.unread
	e.mu.Unlock()

	if alert && e.onAlert != nil {
		e.onAlert(unread)
	}
	e.notifyChange()
	return nil
}

// Notifications returns a copy of the current local list.
func (e *Engine) Notifications() []model.Notification {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Notification(nil), e.notifications...)
}

// UnreadCount returns the locally derived unread count.
func (e *Engine) UnreadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unread
}

// MarkAsRead optimistically marks one notification read, then confirms with
// the server, rolling back on rejection.
func (e *Engine) MarkAsRead(ctx context.Context, id string) error {
	return e.mutate(ctx,
		func(items []model.Notification) []model.Notification {
			for i := range items {
				if items[i].ID == id {
					items[i].Read = true
				}
			}
			return items
		},
		func(ctx context.Context) error { return e.api.MarkRead(ctx, id) },
	)
}

// MarkAllAsRead optimistically marks everything read, then confirms with the
// server, rolling back on rejection.
func (e *Engine) MarkAllAsRead(ctx context.Context) error {
	return e.mutate(ctx,
		func(items []model.Notification) []model.Notification {
			for i := range items {
				items[i].Read = true
			}
			return items
		},
		func(ctx context.Context) error { return e.api.MarkAllRead(ctx) },
	)
}

// Delete optimistically removes a notification, then confirms with the
// server, rolling back on rejection.
func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.mutate(ctx,
		func(items []model.Notification) []model.Notification {
			kept := items[:0]
			for _, n := range items {
				if n.ID != id {
					kept = append(kept, n)
				}
			}
			return kept
		},
		func(ctx context.Context) error { return e.api.Delete(ctx, id) },
	)
}

// mutate is the optimistic-update command: snapshot, apply forward locally,
// call the server, and on failure restore the snapshot exactly.
func (e *Engine) mutate(ctx context.Context, apply func([]model.Notification) []model.Notification, op func(context.Context) error) error {
	e.mu.Lock()
	snapshot := append([]model.Notification(nil), e.notifications...)
	prevUnread := e.unread
	e.notifications = apply(append([]model.Notification(nil), e.notifications...))
	e.unread = countUnread(e.notifications)
	e.mu.Unlock()
	e.notifyChange()

	if err := op(ctx); err != nil {
		e.mu.Lock()
		e.notifications = snapshot
		e.unread = prevUnread
		e.mu.Unlock()
		e.notifyChange()
		return fmt.Errorf("server rejected mutation: %w", err)
	}
	// Success needs no follow-up: the next poll reconciles
	return nil
}

func (e *Engine) notifyChange() {
	if e.onChange != nil {
		e.onChange()
	}
}

func countUnread(items []model.Notification) int {
	count := 0
	for i := range items {
		if !items[i].Read {
			count++
		}
	}
	return count
}
