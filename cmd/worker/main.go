package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"presence/internal/config"
	"presence/internal/notify"
	"presence/internal/queue"
)

// Worker consumes queued notifications and delivers them to the configured
// webhook. Delivery is best-effort: a failed message is logged and dropped,
// never retried, matching the fire-and-forget contract.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := queue.NewRedisClient(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient, "presence:notifications")
	}

	client := notify.NewClient(cfg.WebhookURL)
	if client.Skip() {
		log.Println("NOTIFY_WEBHOOK_URL not set; notifications will be logged only")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for notifications...")
	for msg := range messages {
		if msg.Type != notify.MessageType {
			continue
		}

		var n notify.Notification
		if err := json.Unmarshal(msg.Body, &n); err != nil {
			log.Printf("malformed notification dropped: %v", err)
			continue
		}

		if client.Skip() {
			log.Printf("notify [%s]: %s", n.Channel, n.Message)
			continue
		}

		if err := client.Deliver(ctx, n); err != nil {
			log.Printf("notification delivery failed: %v", err)
			continue
		}
		log.Printf("notification delivered on channel %s", n.Channel)
	}

	log.Println("worker stopped")
}
