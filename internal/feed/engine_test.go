package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rivermead/atelier/internal/model"
)

// scriptedAPI serves successive Fetch results and records mutation calls.
type scriptedAPI struct {
	mu         sync.Mutex
	fetches    [][]model.Notification
	fetchCalls int
	fetchErr   error
	mutateErr  error
	marked     []string
	deleted    []string
	markedAll  int

	blockFetch chan struct{} // when set, Fetch waits until closed
}

func (a *scriptedAPI) Fetch(ctx context.Context) ([]model.Notification, error) {
	a.mu.Lock()
	block := a.blockFetch
	a.fetchCalls++
	idx := a.fetchCalls - 1
	err := a.fetchErr
	a.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.fetches) == 0 {
		return nil, nil
	}
	if idx >= len(a.fetches) {
		idx = len(a.fetches) - 1
	}
	return append([]model.Notification(nil), a.fetches[idx]...), nil
}

func (a *scriptedAPI) MarkRead(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mutateErr != nil {
		return a.mutateErr
	}
	a.marked = append(a.marked, id)
	return nil
}

func (a *scriptedAPI) MarkAllRead(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mutateErr != nil {
		return a.mutateErr
	}
	a.markedAll++
	return nil
}

func (a *scriptedAPI) Delete(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mutateErr != nil {
		return a.mutateErr
	}
	a.deleted = append(a.deleted, id)
	return nil
}

func (a *scriptedAPI) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fetchCalls
}

func batch(unread, read int) []model.Notification {
	var items []model.Notification
	for i := 0; i < unread; i++ {
		items = append(items, model.Notification{ID: "u" + string(rune('a'+i)), Read: false})
	}
	for i := 0; i < read; i++ {
		items = append(items, model.Notification{ID: "r" + string(rune('a'+i)), Read: true})
	}
	return items
}

func TestRefreshMergesAndCountsUnread(t *testing.T) {
	api := &scriptedAPI{fetches: [][]model.Notification{batch(2, 1)}}
	e := NewEngine(api, slog.Default())

	if err := e.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := len(e.Notifications()); got != 3 {
		t.Errorf("len(notifications) = %d, want 3", got)
	}
	if got := e.UnreadCount(); got != 2 {
		t.Errorf("unread = %d, want 2", got)
	}
}

func TestAlertSuppressionOnFirstBaseline(t *testing.T) {
	api := &scriptedAPI{fetches: [][]model.Notification{
		{},          // initial fetch: 0 unread
		batch(3, 0), // first arrivals: 3 unread, baseline was 0 — no alert
		batch(5, 0), // more arrivals: 5 unread, baseline 3 — alert
	}}

	var alerts []int
	e := NewEngine(api, slog.Default(), OnAlert(func(unread int) {
		alerts = append(alerts, unread)
	}))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := e.Refresh(ctx); err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
	}

	if len(alerts) != 1 {
		t.Fatalf("alerts = %v, want exactly one", alerts)
	}
	if alerts[0] != 5 {
		t.Errorf("alert unread = %d, want 5 (fired on 3→5, not 0→3)", alerts[0])
	}
}

func TestNoAlertWhenCountDrops(t *testing.T) {
	api := &scriptedAPI{fetches: [][]model.Notification{
		batch(4, 0),
		batch(2, 2), // two were read elsewhere
	}}

	alerted := false
	e := NewEngine(api, slog.Default(), OnAlert(func(int) { alerted = true }))

	ctx := context.Background()
	e.Refresh(ctx)
	e.Refresh(ctx)

	if alerted {
		t.Error("alert must not fire when unread count decreases")
	}
}

func TestRefreshDedupeGuard(t *testing.T) {
	block := make(chan struct{})
	api := &scriptedAPI{blockFetch: block, fetches: [][]model.Notification{{}}}
	e := NewEngine(api, slog.Default())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.Refresh(context.Background())
	}()

	// Wait for the first fetch to take the guard
	for i := 0; i < 100 && api.calls() == 0; i++ {
		time.Sleep(time.Millisecond)
	}

	if err := e.Refresh(context.Background()); !errors.Is(err, ErrFetchInProgress) {
		t.Errorf("overlapping refresh: err = %v, want ErrFetchInProgress", err)
	}

	close(block)
	wg.Wait()

	if got := api.calls(); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (second cycle must be skipped, not queued)", got)
	}
}

func TestFetchFailureLeavesStateUnchanged(t *testing.T) {
	api := &scriptedAPI{fetches: [][]model.Notification{batch(2, 0)}}
	e := NewEngine(api, slog.Default())
	ctx := context.Background()

	e.Refresh(ctx)

	api.mu.Lock()
	api.fetchErr = errors.New("network down")
	api.mu.Unlock()

	if err := e.Refresh(ctx); err == nil {
		t.Fatal("expected fetch error")
	}
	if got := e.UnreadCount(); got != 2 {
		t.Errorf("unread after failed fetch = %d, want 2 (stale but consistent)", got)
	}
	if got := len(e.Notifications()); got != 2 {
		t.Errorf("len(notifications) = %d, want 2", got)
	}
}

func TestMarkAsReadOptimistic(t *testing.T) {
	api := &scriptedAPI{fetches: [][]model.Notification{batch(2, 0)}}
	e := NewEngine(api, slog.Default())
	ctx := context.Background()
	e.Refresh(ctx)

	id := e.Notifications()[0].ID
	if err := e.MarkAsRead(ctx, id); err != nil {
		t.Fatalf("mark as read: %v", err)
	}

	if got := e.UnreadCount(); got != 1 {
		t.Errorf("unread = %d, want 1", got)
	}
	for _, n := range e.Notifications() {
		if n.ID == id && !n.Read {
			t.Error("expected item marked read locally")
		}
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.marked) != 1 || api.marked[0] != id {
		t.Errorf("server marked = %v, want [%s]", api.marked, id)
	}
}

func TestMarkAsReadRollbackOnRejection(t *testing.T) {
	api := &scriptedAPI{fetches: [][]model.Notification{batch(1, 1)}}
	e := NewEngine(api, slog.Default())
	ctx := context.Background()
	e.Refresh(ctx)

	before := e.Notifications()
	id := before[0].ID

	api.mu.Lock()
	api.mutateErr = errors.New("forbidden")
	api.mu.Unlock()

	if err := e.MarkAsRead(ctx, id); err == nil {
		t.Fatal("expected mutation error")
	}

	after := e.Notifications()
	if len(after) != len(before) {
		t.Fatalf("len changed: %d != %d", len(after), len(before))
	}
	for i := range before {
		if after[i].ID != before[i].ID || after[i].Read != before[i].Read {
			t.Errorf("item %d changed after rollback: %+v != %+v", i, after[i], before[i])
		}
	}
	if got := e.UnreadCount(); got != 1 {
		t.Errorf("unread = %d, want 1 (restored)", got)
	}
}

func TestMarkAllAsRead(t *testing.T) {
	api := &scriptedAPI{fetches: [][]model.Notification{batch(3, 1)}}
	e := NewEngine(api, slog.Default())
	ctx := context.Background()
	e.Refresh(ctx)

	if err := e.MarkAllAsRead(ctx); err != nil {
		t.Fatalf("mark all as read: %v", err)
	}
	if got := e.UnreadCount(); got != 0 {
		t.Errorf("unread = %d, want 0", got)
	}
}

func TestDeleteDecrementsUnreadOnlyIfUnread(t *testing.T) {
	api := &scriptedAPI{fetches: [][]model.Notification{batch(1, 1)}}
	e := NewEngine(api, slog.Default())
	ctx := context.Background()
	e.Refresh(ctx)

	var unreadID, readID string
	for _, n := range e.Notifications() {
		if n.Read {
			readID = n.ID
		} else {
			unreadID = n.ID
		}
	}

	if err := e.Delete(ctx, readID); err != nil {
		t.Fatalf("delete read item: %v", err)
	}
	if got := e.UnreadCount(); got != 1 {
		t.Errorf("unread after deleting read item = %d, want 1", got)
	}

	if err := e.Delete(ctx, unreadID); err != nil {
		t.Fatalf("delete unread item: %v", err)
	}
	if got := e.UnreadCount(); got != 0 {
		t.Errorf("unread after deleting unread item = %d, want 0", got)
	}
	if got := len(e.Notifications()); got != 0 {
		t.Errorf("len(notifications) = %d, want 0", got)
	}
}

func TestDeleteRollbackRestoresItem(t *testing.T) {
	api := &scriptedAPI{fetches: [][]model.Notification{batch(1, 0)}}
	e := NewEngine(api, slog.Default())
	ctx := context.Background()
	e.Refresh(ctx)

	id := e.Notifications()[0].ID
	api.mu.Lock()
	api.mutateErr = errors.New("server error")
	api.mu.Unlock()

	if err := e.Delete(ctx, id); err == nil {
		t.Fatal("expected mutation error")
	}
	if got := len(e.Notifications()); got != 1 {
		t.Errorf("len(notifications) = %d, want 1 (restored)", got)
	}
	if got := e.UnreadCount(); got != 1 {
		t.Errorf("unread = %d, want 1 (restored)", got)
	}
}

func TestStartPollsAndStopCancels(t *testing.T) {
	api := &scriptedAPI{fetches: [][]model.Notification{{}}}
	e := NewEngine(api, slog.Default(), WithInterval(10*time.Millisecond))

	e.Start(context.Background())

	// Initial fetch plus at least one tick
	deadline := time.After(2 * time.Second)
	for api.calls() < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for poll ticks")
		case <-time.After(5 * time.Millisecond):
		}
	}

	e.Stop()
	after := api.calls()
	time.Sleep(50 * time.Millisecond)
	if got := api.calls(); got != after {
		t.Errorf("fetch calls after Stop = %d, want %d (no further scheduling)", got, after)
	}
}
