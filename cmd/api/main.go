package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shopcore/storefront/internal/cache"
	"github.com/shopcore/storefront/internal/catalog"
	"github.com/shopcore/storefront/internal/checkout"
	"github.com/shopcore/storefront/internal/config"
	"github.com/shopcore/storefront/internal/httpx"
	"github.com/shopcore/storefront/internal/inventory"
	kafkax "github.com/shopcore/storefront/internal/kafka"
	"github.com/shopcore/storefront/internal/orders"
	"github.com/shopcore/storefront/internal/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := cache.NewRedis(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	pPlaced := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024)
	pPlaced.Start(ctx)
	pCancelled := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCancelled, 1024)
	pCancelled.Start(ctx)

	// services & handlers
	svc := &checkout.Service{
		Inventory:    &inventory.PGStore{DB: db},
		Ledger:       &orders.PGLedger{DB: db},
		Cache:        rdb,
		PlacedEvents: pPlaced,
		CancelEvents: pCancelled,
		Name:         cfg.ServiceName,
	}
	router := httpx.NewRouter()
	ph := &httpx.ProductsHandler{
		Catalog:   &catalog.Repo{DB: db},
		Inventory: svc.Inventory,
		Cache:     rdb,
	}
	ph.Register(router)
	oh := &httpx.OrdersHandler{
		Checkout: svc,
		Ledger:   svc.Ledger,
	}
	oh.Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pPlaced.Close() // close inbox -> flush & close writer
	pCancelled.Close()
	pPlaced.WaitClosed() // drain
	pCancelled.WaitClosed()
}
