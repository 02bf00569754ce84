// Package server wires stores, delivery services, and HTTP handlers into a
// single router.
package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rivermead/atelier/internal/dispatch"
	"github.com/rivermead/atelier/internal/email"
	"github.com/rivermead/atelier/internal/handler"
	"github.com/rivermead/atelier/internal/middleware"
	"github.com/rivermead/atelier/internal/prefs"
	"github.com/rivermead/atelier/internal/push"
	"github.com/rivermead/atelier/internal/realtime"
	"github.com/rivermead/atelier/internal/store"
)

// Config holds everything the server needs beyond the database handle.
type Config struct {
	JWTSecret   string
	InternalKey string
	Push        push.Config
	Email       *email.Client
}

type Server struct {
	db            *sql.DB
	cfg           Config
	hub           *realtime.Hub
	notifStore    *store.NotificationStore
	resolver      *prefs.Resolver
	notificationH *handler.NotificationHandler
	preferenceH   *handler.PreferenceHandler
	pushH         *handler.PushHandler
	rateLimiter   *middleware.RateLimiter
	logger        *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := realtime.NewHub(logger.With("component", "realtime"))

	notifStore := store.NewNotificationStore(db)
	prefStore := store.NewPreferenceStore(db)
	pushStore := store.NewPushStore(db)
	userStore := store.NewUserStore(db)

	resolver := prefs.NewResolver(prefStore, logger.With("component", "prefs"))

	// Delivery senders are optional: a nil sender makes the dispatcher report
	// that channel as failed without affecting the others.
	var emailSender dispatch.EmailSender
	if cfg.Email != nil && cfg.Email.Configured() {
		emailSender = email.NewNotificationSender(cfg.Email, userStore)
	}

	pushLogger := logger.With("component", "push")
	var pushSvc *push.Service
	var pushSender dispatch.PushSender
	if cfg.Push.VAPIDPublicKey != "" && cfg.Push.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(cfg.Push)
		pushSender = push.NewUserSender(pushSvc, pushStore, pushLogger)
	}

	dispatcher := dispatch.NewDispatcher(notifStore, resolver, emailSender, pushSender, logger.With("component", "dispatch"))

	return &Server{
		db:            db,
		cfg:           cfg,
		hub:           hub,
		notifStore:    notifStore,
		resolver:      resolver,
		notificationH: handler.NewNotificationHandler(notifStore, dispatcher, hub, logger),
		preferenceH:   handler.NewPreferenceHandler(prefStore, resolver, logger),
		pushH:         handler.NewPushHandler(pushStore, pushSvc, logger),
		rateLimiter:   middleware.NewRateLimiter(),
		logger:        logger,
	}
}

// RateLimiter exposes the limiter for periodic cleanup.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// NotificationStore exposes the store for retention sweeps.
func (s *Server) NotificationStore() *store.NotificationStore {
	return s.notifStore
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Service-to-service dispatch: shared-key auth, rate limited per client IP
	internalMux := http.NewServeMux()
	internalMux.HandleFunc("POST /api/internal/notifications", s.notificationH.Create)
	internalChain := middleware.RequireInternalKey(s.cfg.InternalKey)(
		middleware.RateLimit(s.rateLimiter, middleware.RealIP, 120, time.Minute)(internalMux))
	outerMux.Handle("/api/internal/", internalChain)

	// User-facing routes behind bearer auth
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)
	authMiddleware := middleware.RequireAuth(s.cfg.JWTSecret)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/notifications", s.notificationH.List)
	mux.HandleFunc("GET /api/notifications/unread-count", s.notificationH.UnreadCount)
	mux.HandleFunc("POST /api/notifications/{id}/read", s.notificationH.MarkRead)
	mux.HandleFunc("POST /api/notifications/read-all", s.notificationH.MarkAllRead)
	mux.HandleFunc("DELETE /api/notifications/{id}", s.notificationH.Delete)

	mux.HandleFunc("GET /api/notification-preferences", s.preferenceH.List)
	mux.HandleFunc("PUT /api/notification-preferences", s.preferenceH.Update)

	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscribe", s.pushH.Unsubscribe)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)

	mux.HandleFunc("GET /ws", realtime.HandleWebSocket(s.hub, s.logger.With("component", "realtime")))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
