package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bookstore/quantumstore/internal/cli"
	"github.com/bookstore/quantumstore/internal/config"
	"github.com/bookstore/quantumstore/internal/db"
	"github.com/bookstore/quantumstore/internal/events"
	grpcserver "github.com/bookstore/quantumstore/internal/grpc"
	"github.com/bookstore/quantumstore/internal/httpserver"
	"github.com/bookstore/quantumstore/internal/metrics"
	"github.com/bookstore/quantumstore/internal/notify"
	"github.com/bookstore/quantumstore/internal/repo"
	"github.com/bookstore/quantumstore/internal/store"
	"github.com/bookstore/quantumstore/pkg/logger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log := logger.NewLogger(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	log.Info("Book store starting", zap.String("db_driver", cfg.DBDriver))

	// Connect to database
	database, err := db.Connect(cfg.DBDriver, cfg.DSN(), cfg.LogLevel == "debug")
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	// Run migrations
	log.Info("Running database migrations...")
	if err := db.RunMigrations(database); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	catalogRepo := repo.NewCatalogRepository(database, log)
	console := notify.NewConsole(os.Stdout, log)

	var (
		mailer    notify.Mailer  = console
		shipper   notify.Shipper = console
		eventPub  store.EventPublisher
		brokerHC  httpserver.BrokerHealth
		publisher *events.Publisher
	)

	// RabbitMQ is optional; without it the store runs standalone
	if cfg.RabbitMQURL != "" {
		log.Info("Connecting to RabbitMQ")
		publisher, err = events.NewPublisher(cfg.RabbitMQURL, log)
		if err != nil {
			log.Warn("RabbitMQ unavailable, events disabled", zap.Error(err))
			publisher = nil
		}
	}
	if publisher != nil {
		defer publisher.Close()

		queued := notify.NewQueued(publisher)
		mailer = notify.MailFanout{console, queued}
		shipper = notify.ShipFanout{console, queued}
		eventPub = publisher
		brokerHC = publisher
	}

	m := metrics.New()
	bookStore := store.New(catalogRepo, mailer, shipper, eventPub, m, log, store.Settings{
		Currency:      cfg.Currency,
		NotifyTimeout: cfg.NotifyTimeout,
	})
	defer bookStore.Close()

	// Start HTTP server
	var httpServer *http.Server
	if cfg.HTTPPort != "" {
		httpServer = httpserver.New(fmt.Sprintf(":%s", cfg.HTTPPort), httpserver.Deps{
			Catalog: bookStore,
			DB:      database,
			Broker:  brokerHC,
			Metrics: m.Handler(),
			Log:     log,
		})

		go func() {
			log.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal("Failed to serve HTTP", zap.Error(err))
			}
		}()
	}

	// Start gRPC server
	var grpcServer *grpc.Server
	if cfg.GRPCPort != "" {
		grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
		if err != nil {
			log.Fatal("Failed to listen on gRPC port", zap.Error(err))
		}

		grpcServer = grpcserver.NewServer(grpcserver.NewHealthServer(database, brokerHC, log), log)

		go func() {
			log.Info("Starting gRPC server", zap.String("address", grpcListener.Addr().String()))
			if err := grpcServer.Serve(grpcListener); err != nil {
				log.Fatal("Failed to serve gRPC", zap.Error(err))
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	menuDone := make(chan error, 1)
	go func() {
		menuDone <- cli.NewMenu(bookStore, os.Stdin, os.Stdout, log).Run(ctx)
	}()

	// Wait for the menu to exit or an interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-menuDone:
		if err != nil {
			log.Error("Menu stopped", zap.Error(err))
		}
	case sig := <-quit:
		log.Info("Received signal", zap.String("signal", sig.String()))
		cancel()
	}

	log.Info("Shutting down...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	log.Info("Book store stopped")
}
