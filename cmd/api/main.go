package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/dnjuguna/mkulima-market/internal/auth"
	"github.com/dnjuguna/mkulima-market/internal/config"
	"github.com/dnjuguna/mkulima-market/internal/httpx"
	"github.com/dnjuguna/mkulima-market/internal/kafkax"
	"github.com/dnjuguna/mkulima-market/internal/market"
	"github.com/dnjuguna/mkulima-market/internal/mpesa"
	"github.com/dnjuguna/mkulima-market/internal/postgres"
	"github.com/dnjuguna/mkulima-market/internal/redisx"
	"github.com/dnjuguna/mkulima-market/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log := logrus.StandardLogger()
	if cfg.LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(ctx)

	// Repos
	users := &store.UserRepo{DB: db}
	farmers := &store.FarmerRepo{DB: db}
	categories := &store.CategoryRepo{DB: db}
	products := &store.ProductRepo{DB: db}
	carts := &store.CartRepo{DB: db}
	orders := &store.OrderRepo{DB: db}
	payments := &store.PaymentRepo{DB: db}

	authSvc := &auth.Service{
		Users:    users,
		Farmers:  farmers,
		Sessions: &auth.RedisSessions{Client: rdb},
		TTL:      cfg.SessionTTL,
	}

	// Router & handlers
	router := httpx.NewRouter()
	router.Use(auth.Middleware(authSvc))

	(&httpx.AuthHandler{Auth: authSvc}).Register(router)
	(&httpx.CartHandler{Cart: carts}).Register(router)
	(&httpx.ProductsHandler{Products: products, Farmers: farmers, Categories: categories}).Register(router)
	(&httpx.OrdersHandler{
		Orders: orders, Farmers: farmers, Producer: prod, Service: cfg.ServiceName,
	}).Register(router)
	(&httpx.PaymentsHandler{
		Orders:   orders,
		Payments: payments,
		Gateway:  mpesa.NewClient(cfg.Mpesa.BaseURL, cfg.Mpesa.ShortCode, cfg.Mpesa.CallbackURL),
		Verifier: &mpesa.Verifier{Secret: []byte(cfg.Mpesa.WebhookSecret)},
		Dedup:    &redisx.PaymentDedup{Client: rdb},
		Producer: prod,
		Service:  cfg.ServiceName,
		Log:      log,
	}).Register(router)

	// Reaper: abandoned checkouts and unresolved payments give stock back
	reaper := &market.Reaper{
		Store:          orders,
		Interval:       cfg.ReaperInterval,
		AbandonAfter:   cfg.AbandonAfter,
		PaymentTimeout: cfg.PaymentTimeout,
		Log:            log,
		OnCancelled: func(o market.SweptOrder, reason string) {
			httpx.PublishOrderEvent(prod, cfg.ServiceName, "", market.TopicOrderCancelled,
				market.EventOrderCancelled, o.OrderID,
				market.OrderCancelledPayload{OrderID: o.OrderID, UserID: o.UserID, Reason: reason})
		},
	}
	go reaper.Run(ctx)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Infof("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel() // stop the reaper before the producer goes away
	prod.Close()
	prod.WaitClosed()
}
