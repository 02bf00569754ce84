package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rivermead/atelier/internal/model"
)

// APIClient talks to the atelier server's notification API over HTTP. It
// implements both API and SubscriptionAPI for the authenticated user.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type APIClientOption func(*APIClient)

func WithAPIHTTPClient(c *http.Client) APIClientOption {
	return func(a *APIClient) { a.httpClient = c }
}

func NewAPIClient(baseURL, token string, opts ...APIClientOption) *APIClient {
	a := &APIClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *APIClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Fetch returns the user's full notification list.
func (a *APIClient) Fetch(ctx context.Context) ([]model.Notification, error) {
	var notifications []model.Notification
	if err := a.do(ctx, http.MethodGet, "/api/notifications", nil, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (a *APIClient) MarkRead(ctx context.Context, id string) error {
	return a.do(ctx, http.MethodPost, "/api/notifications/"+id+"/read", nil, nil)
}

func (a *APIClient) MarkAllRead(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/api/notifications/read-all", nil, nil)
}

func (a *APIClient) Delete(ctx context.Context, id string) error {
	return a.do(ctx, http.MethodDelete, "/api/notifications/"+id, nil, nil)
}

// VAPIDPublicKey fetches the server's public key for push subscription.
func (a *APIClient) VAPIDPublicKey(ctx context.Context) (string, error) {
	var resp struct {
		PublicKey string `json:"public_key"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/push/vapid-key", nil, &resp); err != nil {
		return "", err
	}
	return resp.PublicKey, nil
}

// SaveSubscription submits a push subscription for persistence.
func (a *APIClient) SaveSubscription(ctx context.Context, sub Subscription) error {
	return a.do(ctx, http.MethodPost, "/api/push/subscribe", sub, nil)
}

// RemoveSubscription asks the server to drop a persisted subscription.
func (a *APIClient) RemoveSubscription(ctx context.Context, endpoint string) error {
	body := map[string]string{"endpoint": endpoint}
	return a.do(ctx, http.MethodDelete, "/api/push/subscribe", body, nil)
}
