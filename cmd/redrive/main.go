// Command redrive re-runs settlement for a stuck order or replays failed
// webhook events that are due for retry.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/byway-payment/internal/app"
	"github.com/wekeepgrowing/byway-payment/internal/config"
	pkglogger "github.com/wekeepgrowing/byway-payment/pkg/logger"
)

func main() {
	orderFlag := flag.String("order", "", "order id to re-drive")
	retry := flag.Bool("retry", false, "replay failed webhook events whose retry time has passed")
	limit := flag.Int("limit", 100, "maximum events to replay with -retry")
	flag.Parse()

	if *orderFlag == "" && !*retry {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := pkglogger.NewZapLogger(cfg.Log.ZapConfig(cfg.Service))
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	failed := 0
	if *orderFlag != "" {
		if !redriveOrder(ctx, application, *orderFlag, logger) {
			failed++
		}
	}
	if *retry {
		failed += replayFailed(ctx, application, *limit, logger)
	}

	if failed > 0 {
		logger.Warn("Redrive finished with failures", zap.Int("failed", failed))
		application.Close()
		logger.Sync()
		os.Exit(1)
	}
}

func redriveOrder(ctx context.Context, a *app.App, raw string, logger *zap.Logger) bool {
	orderID, err := uuid.Parse(raw)
	if err != nil {
		logger.Error("Invalid order id", zap.String("order_id", raw), zap.Error(err))
		return false
	}
	result, err := a.Webhooks.RedriveOrder(ctx, orderID)
	if err != nil {
		logger.Error("Failed to re-drive order", zap.String("order_id", raw), zap.Error(err))
		return false
	}
	logger.Info("Order re-driven",
		zap.String("order_id", raw),
		zap.String("outcome", string(result.Outcome)),
		zap.String("message", result.Message))
	return true
}

// replayFailed returns the number of events that failed again.
func replayFailed(ctx context.Context, a *app.App, limit int, logger *zap.Logger) int {
	events, err := a.Repos.WebhookEvents.ListRetryable(ctx, limit)
	if err != nil {
		logger.Error("Failed to list retryable webhook events", zap.Error(err))
		return 1
	}
	logger.Info("Replaying webhook events", zap.Int("count", len(events)))

	failed := 0
	for i := range events {
		if ctx.Err() != nil {
			break
		}
		event := &events[i]
		result, err := a.Webhooks.Replay(ctx, event)
		if err != nil {
			failed++
			logger.Warn("Webhook replay failed",
				zap.String("gateway", string(event.Gateway)),
				zap.String("event_id", event.EventID),
				zap.Int("attempts", event.Attempts),
				zap.Error(err))
			continue
		}
		logger.Info("Webhook replayed",
			zap.String("gateway", string(event.Gateway)),
			zap.String("event_id", event.EventID),
			zap.String("outcome", string(result.Outcome)))
	}
	return failed
}
