package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rivermead/atelier/internal/database"
	"github.com/rivermead/atelier/internal/email"
	"github.com/rivermead/atelier/internal/logging"
	"github.com/rivermead/atelier/internal/push"
	"github.com/rivermead/atelier/internal/server"
)

const retentionPeriod = 90 * 24 * time.Hour

func main() {
	generateKeys := flag.Bool("generate-vapid-keys", false, "print a fresh VAPID key pair and exit")
	flag.Parse()

	if *generateKeys {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			log.Fatalf("generate VAPID keys: %v", err)
		}
		fmt.Printf("ATELIER_VAPID_PUBLIC_KEY=%s\nATELIER_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

	port := envOr("ATELIER_PORT", "8080")
	dbPath := envOr("ATELIER_DB_PATH", "atelier.db")
	logger := logging.Setup(os.Getenv("ATELIER_LOG_LEVEL"), os.Getenv("ATELIER_LOG_FORMAT"))

	jwtSecret := os.Getenv("ATELIER_JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("ATELIER_JWT_SECRET is required")
	}

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	cfg := server.Config{
		JWTSecret:   jwtSecret,
		InternalKey: os.Getenv("ATELIER_INTERNAL_KEY"),
		Push: push.Config{
			VAPIDPublicKey:  os.Getenv("ATELIER_VAPID_PUBLIC_KEY"),
			VAPIDPrivateKey: os.Getenv("ATELIER_VAPID_PRIVATE_KEY"),
			Subscriber:      os.Getenv("ATELIER_VAPID_SUBSCRIBER"),
		},
	}
	if token := os.Getenv("ATELIER_POSTMARK_TOKEN"); token != "" {
		cfg.Email = email.NewClient(token, os.Getenv("ATELIER_FROM_EMAIL"))
	}

	srv := server.New(db, cfg, logger)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	maintCtx, stopMaint := context.WithCancel(context.Background())
	defer stopMaint()
	go maintenanceLoop(maintCtx, srv, logger)

	go func() {
		logger.Info("atelier listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}

// maintenanceLoop periodically prunes old read notifications and expired
// rate-limit buckets.
func maintenanceLoop(ctx context.Context, srv *server.Server, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			srv.RateLimiter().Cleanup()
			cutoff := time.Now().Add(-retentionPeriod)
			deleted, err := srv.NotificationStore().DeleteReadBefore(cutoff)
			if err != nil {
				logger.Error("retention sweep", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Info("retention sweep", "deleted", deleted)
			}
		case <-ctx.Done():
			return
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
