// cmd/historian/main.go drains the race event queue from Redis into the Postgres archive.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/typerace/internal/cache"
	"github.com/jason-s-yu/typerace/internal/config"
	"github.com/jason-s-yu/typerace/internal/database"
	"github.com/jason-s-yu/typerace/internal/historian"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisAddr := cfg.RedisAddr
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rdb, err := cache.Connect(ctx, redisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		logger.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Fatalf("postgres: %v", err)
	}
	logger.Infof("Connected to database at %s:%s/%s", cfg.PGHost, cfg.PGPort, cfg.PGDatabase)

	hs := historian.NewService(
		cache.NewPublisher(rdb, cfg.QueueName),
		&database.Archive{Pool: pool},
		logger,
		cfg.HistorianBatchSize,
		cfg.HistorianFlush,
	)
	hs.Run(ctx)
	logger.Info("Historian shutdown complete.")
}
