package store

import (
	"errors"
	"testing"
	"time"

	"github.com/rivermead/atelier/internal/database"
	"github.com/rivermead/atelier/internal/model"
)

func setupTestDB(t *testing.T) (*NotificationStore, *UserStore, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	us := NewUserStore(db)
	u, err := us.Create("dana@example.com", "Dana")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return NewNotificationStore(db), us, u.ID
}

func TestNotificationInsert(t *testing.T) {
	ns, _, uid := setupTestDB(t)

	n, err := ns.Insert(uid, model.NotifTypeNewBriefing, "New briefing", "A briefing for {projectName} is ready", map[string]string{"projectName": "Spring Catalog"})
	if err != nil {
		t.Fatalf("insert notification: %v", err)
	}
	if n.ID == "" {
		t.Error("expected non-empty ID")
	}
	if n.Read {
		t.Error("expected read=false on insert")
	}
	if n.Metadata["projectName"] != "Spring Catalog" {
		t.Errorf("metadata[projectName] = %q, want %q", n.Metadata["projectName"], "Spring Catalog")
	}
	if n.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestNotificationInsertNilMetadata(t *testing.T) {
	ns, _, uid := setupTestDB(t)

	n, err := ns.Insert(uid, model.NotifTypeSystem, "Maintenance", "Scheduled downtime tonight", nil)
	if err != nil {
		t.Fatalf("insert notification: %v", err)
	}
	if n.Metadata == nil {
		t.Error("expected empty metadata map, got nil")
	}
}

func TestNotificationList(t *testing.T) {
	ns, _, uid := setupTestDB(t)

	first, _ := ns.Insert(uid, model.NotifTypeNewMessage, "Message", "one", nil)
	second, _ := ns.Insert(uid, model.NotifTypeNewMessage, "Message", "two", nil)
	if err := ns.MarkRead(first.ID, uid); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	all, err := ns.List(uid, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}

	unread, err := ns.List(uid, ListFilter{UnreadOnly: true})
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(unread) != 1 || unread[0].ID != second.ID {
		t.Errorf("unread = %v, want only %s", unread, second.ID)
	}

	limited, err := ns.List(uid, ListFilter{Limit: 1})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("len(limited) = %d, want 1", len(limited))
	}
}

func TestNotificationListOtherUser(t *testing.T) {
	ns, us, uid := setupTestDB(t)

	other, _ := us.Create("sam@example.com", "Sam")
	ns.Insert(uid, model.NotifTypeNewMessage, "Message", "for dana", nil)

	list, err := ns.List(other.ID, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("len(list) = %d, want 0", len(list))
	}
}

func TestCountUnread(t *testing.T) {
	ns, _, uid := setupTestDB(t)

	n1, _ := ns.Insert(uid, model.NotifTypeNewMessage, "Message", "one", nil)
	ns.Insert(uid, model.NotifTypeNewMessage, "Message", "two", nil)
	ns.Insert(uid, model.NotifTypeNewMessage, "Message", "three", nil)

	count, err := ns.CountUnread(uid)
	if err != nil {
		t.Fatalf("count unread: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	ns.MarkRead(n1.ID, uid)
	count, _ = ns.CountUnread(uid)
	if count != 2 {
		t.Errorf("count after mark read = %d, want 2", count)
	}
}

func TestMarkAllRead(t *testing.T) {
	ns, _, uid := setupTestDB(t)

	ns.Insert(uid, model.NotifTypeNewMessage, "Message", "one", nil)
	ns.Insert(uid, model.NotifTypeNewMessage, "Message", "two", nil)

	if err := ns.MarkAllRead(uid); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	count, _ := ns.CountUnread(uid)
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestMarkReadWrongOwner(t *testing.T) {
	ns, us, uid := setupTestDB(t)

	other, _ := us.Create("sam@example.com", "Sam")
	n, _ := ns.Insert(uid, model.NotifTypeNewMessage, "Message", "for dana", nil)

	err := ns.MarkRead(n.ID, other.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	got, _ := ns.GetByID(n.ID, uid)
	if got.Read {
		t.Error("notification should remain unread after failed cross-user mark")
	}
}

func TestNotificationDelete(t *testing.T) {
	ns, _, uid := setupTestDB(t)

	n, _ := ns.Insert(uid, model.NotifTypeNewMessage, "Message", "one", nil)
	if err := ns.Delete(n.ID, uid); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := ns.GetByID(n.ID, uid)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}

	if err := ns.Delete(n.ID, uid); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestDeleteReadBefore(t *testing.T) {
	ns, _, uid := setupTestDB(t)

	old, _ := ns.Insert(uid, model.NotifTypeNewMessage, "Message", "old", nil)
	ns.MarkRead(old.ID, uid)
	fresh, _ := ns.Insert(uid, model.NotifTypeNewMessage, "Message", "fresh", nil)

	deleted, err := ns.DeleteReadBefore(time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("delete read before: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	list, _ := ns.List(uid, ListFilter{})
	if len(list) != 1 || list[0].ID != fresh.ID {
		t.Errorf("expected only the unread notification to survive, got %v", list)
	}
}
