package email

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rivermead/atelier/internal/model"
)

func TestSend(t *testing.T) {
	var received postmarkEmail
	var gotToken string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Postmark-Server-Token")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"MessageID": "test-id"}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "noreply@example.com", WithAPIURL(server.URL))

	err := client.Send("dana@example.com", "Project updated", "The Spring Catalog project was updated", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotToken != "test-token" {
		t.Errorf("server token = %q, want %q", gotToken, "test-token")
	}
	if received.To != "dana@example.com" {
		t.Errorf("To = %q, want %q", received.To, "dana@example.com")
	}
	if received.From != "noreply@example.com" {
		t.Errorf("From = %q, want %q", received.From, "noreply@example.com")
	}
	if received.Subject != "Project updated" {
		t.Errorf("Subject = %q, want %q", received.Subject, "Project updated")
	}
}

func TestSendServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient("test-token", "noreply@example.com", WithAPIURL(server.URL))
	if err := client.Send("dana@example.com", "Subject", "Body", ""); err == nil {
		t.Fatal("expected error for 422 response")
	}
}

func TestSendNotConfigured(t *testing.T) {
	client := NewClient("", "noreply@example.com")

	if err := client.Send("dana@example.com", "Subject", "Body", ""); err == nil {
		t.Fatal("expected error for unconfigured client")
	}
}

// fakeUsers serves a single user.
type fakeUsers struct {
	user *model.User
}

func (f *fakeUsers) GetByID(id int64) (*model.User, error) {
	if f.user != nil && f.user.ID == id {
		return f.user, nil
	}
	return nil, nil
}

func TestNotificationSenderResolvesAddress(t *testing.T) {
	var received postmarkEmail
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient("test-token", "noreply@example.com", WithAPIURL(server.URL))
	sender := NewNotificationSender(client, &fakeUsers{user: &model.User{ID: 7, Email: "sam@example.com"}})

	if err := sender.Send(7, "New briefing", "A briefing is ready for review"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if received.To != "sam@example.com" {
		t.Errorf("To = %q, want sam@example.com", received.To)
	}
}

func TestNotificationSenderUnknownUser(t *testing.T) {
	client := NewClient("test-token", "noreply@example.com")
	sender := NewNotificationSender(client, &fakeUsers{})

	if err := sender.Send(99, "Subject", "Body"); err == nil {
		t.Fatal("expected error for unknown user")
	}
}
