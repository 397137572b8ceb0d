package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-checkout-orders/internal/config"
	kafkax "github.com/ariefcatur/go-checkout-orders/internal/kafka"
	"github.com/ariefcatur/go-checkout-orders/internal/logx"
	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/ariefcatur/go-checkout-orders/internal/projection"
	"github.com/ariefcatur/go-checkout-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// projector follows every order lifecycle topic and keeps the Redis status
// cache current for GET /orders/{id}/status.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logx.New(cfg.LogLevel, cfg.ServiceName+"-projector")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping", zap.Error(err))
	}

	h := projection.NewHandler(rdb, cfg.ProjectorGroup, log)
	topics := orders.Topics()
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, topics, cfg.ProjectorWorkers, log)

	log.Info("projector started",
		zap.String("group", cfg.ProjectorGroup),
		zap.Strings("topics", topics),
		zap.Int("workers", cfg.ProjectorWorkers))
	if err := cons.Start(ctx, h.Handle); err != nil {
		log.Error("consumer exit", zap.Error(err))
		return
	}
	log.Info("projector stopped")
}
