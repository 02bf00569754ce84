package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rivermead/atelier/internal/auth"
	"github.com/rivermead/atelier/internal/dispatch"
	"github.com/rivermead/atelier/internal/model"
	"github.com/rivermead/atelier/internal/realtime"
	"github.com/rivermead/atelier/internal/store"
)

type NotificationHandler struct {
	notifStore *store.NotificationStore
	dispatcher *dispatch.Dispatcher
	hub        *realtime.Hub
	logger     *slog.Logger
}

func NewNotificationHandler(ns *store.NotificationStore, d *dispatch.Dispatcher, hub *realtime.Hub, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifStore: ns,
		dispatcher: d,
		hub:        hub,
		logger:     logger.With("component", "notification_handler"),
	}
}

func (h *NotificationHandler) nudge(userID int64, notificationID string) {
	if h.hub != nil {
		h.hub.Notify(userID, realtime.NotificationsChanged(notificationID))
	}
}

// List handles GET /api/notifications?unread=true&limit=50
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	filter := store.ListFilter{}
	if r.URL.Query().Get("unread") == "true" {
		filter.UnreadOnly = true
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	notifications, err := h.notifStore.List(userID, filter)
	if err != nil {
		h.logger.Error("list notifications", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if notifications == nil {
		notifications = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, notifications)
}

// UnreadCount handles GET /api/notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	count, err := h.notifStore.CountUnread(userID)
	if err != nil {
		h.logger.Error("count unread", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to count notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": count})
}

// MarkRead handles POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")

	if err := h.notifStore.MarkRead(id, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		h.logger.Error("mark read", "error", err, "notification_id", id)
		writeError(w, http.StatusInternalServerError, "failed to mark read")
		return
	}

	h.nudge(userID, id)
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	if err := h.notifStore.MarkAllRead(userID); err != nil {
		h.logger.Error("mark all read", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to mark all read")
		return
	}

	h.nudge(userID, "")
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/notifications/{id}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := r.PathValue("id")

	if err := h.notifStore.Delete(id, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		h.logger.Error("delete notification", "error", err, "notification_id", id)
		writeError(w, http.StatusInternalServerError, "failed to delete notification")
		return
	}

	h.nudge(userID, id)
	w.WriteHeader(http.StatusNoContent)
}

type createRequest struct {
	UserID   int64             `json:"user_id"`
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata"`
	Channels []string          `json:"channels"`
}

type createResponse struct {
	Notification *model.Notification      `json:"notification"`
	Channels     []dispatch.ChannelResult `json:"channels"`
}

// Create handles POST /api/internal/notifications, the service-to-service
// entry point that persists a notification and fans it out.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == 0 || req.Type == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "user_id, type, and title are required")
		return
	}

	var channels []model.Channel
	for _, c := range req.Channels {
		channels = append(channels, model.Channel(c))
	}

	n, channelResults, err := h.dispatcher.CreateNotification(dispatch.CreateRequest{
		UserID:   req.UserID,
		Type:     req.Type,
		Title:    req.Title,
		Message:  req.Message,
		Metadata: req.Metadata,
		Channels: channels,
	})
	if err != nil {
		if errors.Is(err, dispatch.ErrInvalidType) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("create notification", "error", err, "user_id", req.UserID)
		writeError(w, http.StatusInternalServerError, "failed to create notification")
		return
	}

	h.nudge(req.UserID, n.ID)
	writeJSON(w, http.StatusCreated, createResponse{
		Notification: n,
		Channels:     channelResults,
	})
}
