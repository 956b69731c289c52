package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shopcore/storefront/internal/audit"
	"github.com/shopcore/storefront/internal/cache"
	"github.com/shopcore/storefront/internal/config"
	kafkax "github.com/shopcore/storefront/internal/kafka"
	"github.com/shopcore/storefront/internal/orders"
	"github.com/shopcore/storefront/internal/postgres"
)

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := cache.NewRedis(cfg.RedisAddr)
	defer rdb.Close()

	// Service
	svc := &audit.Service{
		Rec:   &audit.PGRecorder{DB: db},
		Cache: rdb,
		Name:  cfg.ServiceName + "-auditor",
	}

	// Consumers, one per topic
	group := getenv("AUDIT_GROUP", "order-auditor")
	workers := mustAtoi(os.Getenv("AUDIT_WORKERS"), "4")

	for _, topic := range []string{orders.TopicOrderPlaced, orders.TopicOrderCancelled} {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topic, workers)
		go func(topic string, cons *kafkax.Consumer) {
			log.Printf("audit consumer started: group=%s topic=%s workers=%d", group, topic, workers)
			if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
				log.Printf("consumer exit (%s): %v", topic, err)
				cancel()
			}
		}(topic, cons)
	}

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down consumers...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
