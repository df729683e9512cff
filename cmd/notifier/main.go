package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/dnjuguna/mkulima-market/internal/config"
	"github.com/dnjuguna/mkulima-market/internal/kafkax"
	"github.com/dnjuguna/mkulima-market/internal/market"
	"github.com/dnjuguna/mkulima-market/internal/notify"
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

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notify.Service{
		Users:       &store.UserRepo{DB: db},
		SMS:         notify.NewSMSSender(cfg.Notifier),
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-notifier",
		Log:         log,
	}

	// Email is optional; without a sender address we run SMS-only.
	if email, err := notify.NewEmailSender(ctx, cfg.Notifier); err != nil {
		log.WithError(err).Warn("email disabled")
	} else {
		svc.Email = email
	}

	topics := []string{market.TopicOrderConfirmed, market.TopicOrderCancelled}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.Notifier.Group, topics, cfg.Notifier.Workers, log)

	go func() {
		log.Infof("notifier consumer started: group=%s workers=%d", cfg.Notifier.Group, cfg.Notifier.Workers)
		if err := cons.Start(ctx, svc.HandleEvent); err != nil {
			log.Errorf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
