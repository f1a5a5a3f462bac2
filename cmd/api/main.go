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

	"github.com/woolstore/storefront/internal/auth"
	"github.com/woolstore/storefront/internal/cart"
	"github.com/woolstore/storefront/internal/catalog"
	"github.com/woolstore/storefront/internal/config"
	"github.com/woolstore/storefront/internal/httpx"
	kafkax "github.com/woolstore/storefront/internal/kafka"
	"github.com/woolstore/storefront/internal/orders"
	"github.com/woolstore/storefront/internal/postgres"
	"github.com/woolstore/storefront/internal/redisx"
	"github.com/woolstore/storefront/internal/session"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	pCreated.Start(ctx)
	pCancelled := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCancelled, 1024)
	pCancelled.Start(ctx)
	pStatus := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatus, 1024)
	pStatus.Start(ctx)

	// Repos & services
	catalogRepo := &catalog.Repo{DB: db}
	orderRepo := &orders.Repo{DB: db}
	userRepo := &auth.Repo{DB: db}

	orderSvc := &orders.Service{
		Catalog:   catalogRepo,
		Store:     orderRepo,
		Customers: userRepo,
		Events: &orders.Emitter{
			Created:   pCreated,
			Cancelled: pCancelled,
			Status:    pStatus,
			Service:   cfg.ServiceName,
		},
	}

	authn := &auth.Authenticator{
		Users:    userRepo,
		Sessions: &session.RedisStore{RDB: rdb},
	}

	carts := &cart.Aggregator{
		Store:   &cart.RedisStore{RDB: rdb},
		Catalog: catalogRepo,
	}

	// Router & handlers
	router := httpx.NewRouter()
	router.Use(httpx.WithSession(authn))

	(&httpx.AuthHandler{Auth: authn, CookieSecure: cfg.CookieSecure}).Register(router)
	(&httpx.ProductsHandler{Catalog: catalogRepo}).Register(router)
	(&httpx.CartHandler{Cart: carts}).Register(router)
	(&httpx.OrdersHandler{Service: orderSvc, Redis: rdb}).Register(router)
	(&httpx.AdminHandler{Customers: userRepo}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	for _, p := range []*kafkax.Producer{pCreated, pCancelled, pStatus} {
		p.Close()
	}
	cancel()
	for _, p := range []*kafkax.Producer{pCreated, pCancelled, pStatus} {
		p.WaitClosed()
	}
}
