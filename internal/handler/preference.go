package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rivermead/atelier/internal/auth"
	"github.com/rivermead/atelier/internal/model"
	"github.com/rivermead/atelier/internal/prefs"
	"github.com/rivermead/atelier/internal/store"
)

type PreferenceHandler struct {
	prefStore *store.PreferenceStore
	resolver  *prefs.Resolver
	logger    *slog.Logger
}

func NewPreferenceHandler(ps *store.PreferenceStore, resolver *prefs.Resolver, logger *slog.Logger) *PreferenceHandler {
	return &PreferenceHandler{
		prefStore: ps,
		resolver:  resolver,
		logger:    logger.With("component", "preference_handler"),
	}
}

type preferenceItem struct {
	Type    string `json:"type"`
	Email   bool   `json:"email"`
	Push    bool   `json:"push"`
	InApp   bool   `json:"in_app"`
	Default bool   `json:"default"`
}

// List handles GET /api/notification-preferences. Every registered type is
// returned; types without a stored row carry their default values.
func (h *PreferenceHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	stored, err := h.prefStore.ListByUser(userID)
	if err != nil {
		h.logger.Error("list preferences", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to list preferences")
		return
	}

	byType := make(map[string]model.NotificationPreference, len(stored))
	for _, p := range stored {
		byType[p.NotificationType] = p
	}

	items := make([]preferenceItem, 0, len(model.NotificationTypes))
	for _, nt := range model.NotificationTypes {
		if p, ok := byType[nt]; ok {
			items = append(items, preferenceItem{
				Type:  nt,
				Email: p.EmailEnabled,
				Push:  p.PushEnabled,
				InApp: p.InAppEnabled,
			})
			continue
		}
		items = append(items, preferenceItem{
			Type:    nt,
			Email:   model.DefaultEnabled(nt, model.ChannelEmail),
			Push:    model.DefaultEnabled(nt, model.ChannelPush),
			InApp:   model.DefaultEnabled(nt, model.ChannelInApp),
			Default: true,
		})
	}

	writeJSON(w, http.StatusOK, items)
}

type updatePreferencesRequest struct {
	Preferences []preferenceItem `json:"preferences"`
}

// Update handles PUT /api/notification-preferences. Stored rows change
// immediately; the resolver cache for the user is invalidated so dispatch
// sees the new values on the next send.
func (h *PreferenceHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req updatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	for _, p := range req.Preferences {
		if !model.ValidNotificationType(p.Type) {
			writeError(w, http.StatusBadRequest, "unknown notification type: "+p.Type)
			return
		}
	}

	for _, p := range req.Preferences {
		if err := h.prefStore.Set(userID, p.Type, p.Email, p.Push, p.InApp); err != nil {
			h.logger.Error("set preference", "error", err, "user_id", userID, "type", p.Type)
			writeError(w, http.StatusInternalServerError, "failed to update preferences")
			return
		}
	}

	h.resolver.InvalidateUser(userID)
	h.List(w, r)
}
