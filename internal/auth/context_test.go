package auth

import (
	"context"
	"testing"
)

func TestWithAuthRoundTrip(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UserID: 42, Email: "dana@example.com"})

	ac, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected auth context to be present")
	}
	if ac.UserID != 42 {
		t.Errorf("user id = %d, want 42", ac.UserID)
	}
	if ac.Email != "dana@example.com" {
		t.Errorf("email = %q, want dana@example.com", ac.Email)
	}
}

func TestEmptyContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("expected no auth context on empty context")
	}
	if id := UserID(context.Background()); id != 0 {
		t.Errorf("user id = %d, want 0", id)
	}
}
