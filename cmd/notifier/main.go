package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iliyamo/tourism-booking/internal/config"
	"github.com/iliyamo/tourism-booking/internal/logging"
	"github.com/iliyamo/tourism-booking/internal/notify"
	"github.com/iliyamo/tourism-booking/internal/queue"
	"github.com/iliyamo/tourism-booking/internal/voucher"
)

// The notifier drains booking.events and writes guest notifications.  It
// runs separately from the API so a slow mail path never holds a booking
// transaction.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}
	cfg := config.LoadNotifierConfig()

	logger, err := logging.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := notify.NewHandler(cfg.OutboxPath, voucher.NewRenderer(cfg.VoucherDir, cfg.VoucherURL), logger)
	c := &queue.Consumer{
		URL:      cfg.RabbitURL,
		Queue:    cfg.Queue,
		Prefetch: cfg.Prefetch,
		Log:      logger,
		Handle:   h.Handle,
	}
	logger.Info("notifier started", zap.String("queue", cfg.Queue), zap.String("outbox", cfg.OutboxPath))
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("consumer stopped", zap.Error(err))
	}
	logger.Info("notifier stopped")
}
