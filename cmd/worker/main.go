// Package main runs the background worker that delivers ticket emails.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jamm-events/backend/config"
	"github.com/jamm-events/backend/internal/emaillogs"
	"github.com/jamm-events/backend/internal/events"
	"github.com/jamm-events/backend/internal/tickets"
	"github.com/jamm-events/backend/internal/worker"
	"github.com/jamm-events/backend/pkg/database"
	"github.com/jamm-events/backend/pkg/queue"
	"github.com/jamm-events/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jobQueue := queue.NewQueue(rdb.Client, logger)
	mailer := worker.NewMailer(cfg.Email)
	if mailer == nil {
		logger.Warn("SMTP not configured, emails will be logged only")
	}

	processor := worker.NewEmailProcessor(
		tickets.NewRepository(pool),
		events.NewRepository(pool),
		emaillogs.NewRepository(pool),
		mailer,
		jobQueue,
		logger,
	)

	go processor.Run(ctx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	// give the in-flight job a moment to finish
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
