package store

import (
	"testing"

	"github.com/rivermead/atelier/internal/database"
)

func setupPushTestDB(t *testing.T) (*PushStore, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	u, err := NewUserStore(db).Create("dana@example.com", "Dana")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return NewPushStore(db), u.ID
}

func TestSaveSubscription(t *testing.T) {
	ps, uid := setupPushTestDB(t)

	sub, err := ps.SaveSubscription(uid, "https://push.example.com/sub1", "p256dh_1", "auth_1")
	if err != nil {
		t.Fatalf("save subscription: %v", err)
	}
	if sub.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if sub.Endpoint != "https://push.example.com/sub1" {
		t.Errorf("endpoint = %q, want %q", sub.Endpoint, "https://push.example.com/sub1")
	}
}

func TestSaveSubscriptionUpsert(t *testing.T) {
	ps, uid := setupPushTestDB(t)

	first, _ := ps.SaveSubscription(uid, "https://push.example.com/sub1", "p256dh_old", "auth_old")
	second, err := ps.SaveSubscription(uid, "https://push.example.com/sub1", "p256dh_new", "auth_new")
	if err != nil {
		t.Fatalf("re-save subscription: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert created new row: id %d != %d", second.ID, first.ID)
	}
	if second.P256dhKey != "p256dh_new" || second.AuthKey != "auth_new" {
		t.Error("expected keys rotated on upsert")
	}

	subs, _ := ps.ListByUser(uid)
	if len(subs) != 1 {
		t.Errorf("len(subs) = %d, want 1", len(subs))
	}
}

func TestRemoveSubscription(t *testing.T) {
	ps, uid := setupPushTestDB(t)

	ps.SaveSubscription(uid, "https://push.example.com/sub1", "k", "a")
	if err := ps.Remove(uid, "https://push.example.com/sub1"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	subs, _ := ps.ListByUser(uid)
	if len(subs) != 0 {
		t.Errorf("len(subs) = %d, want 0", len(subs))
	}
}

func TestDeleteByEndpoint(t *testing.T) {
	ps, uid := setupPushTestDB(t)

	ps.SaveSubscription(uid, "https://push.example.com/gone", "k", "a")
	ps.SaveSubscription(uid, "https://push.example.com/alive", "k", "a")

	if err := ps.DeleteByEndpoint("https://push.example.com/gone"); err != nil {
		t.Fatalf("delete by endpoint: %v", err)
	}

	subs, _ := ps.ListByUser(uid)
	if len(subs) != 1 || subs[0].Endpoint != "https://push.example.com/alive" {
		t.Errorf("subs = %v, want only the alive endpoint", subs)
	}
}
