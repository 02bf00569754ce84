// feedwatch tails a user's notification feed in the terminal. It polls the
// server, prints arrivals as they land, and rings the terminal bell when new
// unread notifications arrive on top of existing ones.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rivermead/atelier/internal/feed"
	"github.com/rivermead/atelier/internal/logging"
	"github.com/rivermead/atelier/internal/model"
)

func main() {
	baseURL := flag.String("url", envOr("ATELIER_URL", "http://localhost:8080"), "server base URL")
	token := flag.String("token", os.Getenv("ATELIER_TOKEN"), "bearer token")
	interval := flag.Duration("interval", feed.DefaultInterval, "poll interval")
	flag.Parse()

	if *token == "" {
		log.Fatal("a bearer token is required (-token or ATELIER_TOKEN)")
	}

	logger := logging.Setup(envOr("ATELIER_LOG_LEVEL", "warn"), "")
	client := feed.NewAPIClient(*baseURL, *token)

	var mu sync.Mutex
	seen := make(map[string]bool)

	var engine *feed.Engine
	engine = feed.NewEngine(client, logger,
		feed.WithInterval(*interval),
		feed.OnAlert(func(unread int) {
			// Terminal bell
			fmt.Printf("\a%s %d unread\n", time.Now().Format("15:04:05"), unread)
		}),
		feed.OnChange(func() {
			mu.Lock()
			defer mu.Unlock()
			for _, n := range engine.Notifications() {
				if seen[n.ID] {
					continue
				}
				seen[n.ID] = true
				printNotification(n)
			}
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)

	fmt.Printf("watching %s (every %s)\n", *baseURL, *interval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	engine.Stop()
}

func printNotification(n model.Notification) {
	marker := " "
	if !n.Read {
		marker = "*"
	}
	fmt.Printf("%s %s [%s] %s — %s\n",
		marker, n.CreatedAt.Local().Format("15:04"), n.Type, n.Title, n.RenderMessage())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
