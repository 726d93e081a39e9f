package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	handlers "github.com/wekeepgrowing/byway-payment/internal/adapter/handler/http"
	"github.com/wekeepgrowing/byway-payment/internal/app"
	"github.com/wekeepgrowing/byway-payment/internal/config"
	grpcServer "github.com/wekeepgrowing/byway-payment/internal/infrastructure/grpc"
	httpServer "github.com/wekeepgrowing/byway-payment/internal/infrastructure/http"
	pkglogger "github.com/wekeepgrowing/byway-payment/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := pkglogger.NewZapLogger(cfg.Log.ZapConfig(cfg.Service))
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	go application.RunBackground(ctx, cfg.Checkout)

	// Initialize servers
	grpcSrv := grpcServer.NewServer(cfg, logger)
	httpSrv := httpServer.NewServer(cfg, logger, httpServer.Handlers{
		Checkout: handlers.NewCheckoutHandler(application.Payments, application.Wallets, logger),
		Webhook:  handlers.NewWebhookHandler(application.Webhooks, logger),
	})

	// Start servers
	go func() {
		if err := grpcSrv.Start(); err != nil {
			logger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.Start(); err != nil {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	logger.Info("Payment service started",
		zap.String("http", cfg.Server.HTTP.Address()),
		zap.String("grpc", cfg.Server.GRPC.Address()),
		zap.String("lock_backend", cfg.Checkout.LockBackend))

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down servers...")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	if err := grpcSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown gRPC server", zap.Error(err))
	}

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	logger.Info("Servers shut down successfully")
}
