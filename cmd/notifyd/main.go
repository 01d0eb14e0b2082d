package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/bookstore/quantumstore/internal/config"
	"github.com/bookstore/quantumstore/internal/events"
	"github.com/bookstore/quantumstore/internal/notify"
	"github.com/bookstore/quantumstore/pkg/logger"
	"go.uber.org/zap"
)

// notifyd delivers the mail and shipping notices bookstored queues on
// RabbitMQ.
func main() {
	cfg := config.Load()

	log := logger.NewLogger(cfg.ServiceName+"-notifyd", cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	if cfg.RabbitMQURL == "" {
		log.Fatal("RABBITMQ_URL is required")
	}

	consumer, err := events.NewConsumer(cfg.RabbitMQURL, cfg.ServiceName+".notifications", log)
	if err != nil {
		log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer consumer.Close()

	console := notify.NewConsole(os.Stdout, log)
	relay := notify.NewRelay(console, console)
	consumer.Handle(events.EventTypeNotificationEmail, relay.Email)
	consumer.Handle(events.EventTypeNotificationShipping, relay.Shipping)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Notification worker started")
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Consumer stopped", zap.Error(err))
	}
	log.Info("Notification worker stopped")
}
