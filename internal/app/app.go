package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/byway-payment/internal/config"
	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	"github.com/wekeepgrowing/byway-payment/internal/domain/provider"
	"github.com/wekeepgrowing/byway-payment/internal/infrastructure/database"
	"github.com/wekeepgrowing/byway-payment/internal/infrastructure/lock"
	"github.com/wekeepgrowing/byway-payment/internal/infrastructure/notification"
	gatewayFactory "github.com/wekeepgrowing/byway-payment/internal/infrastructure/provider"
	"github.com/wekeepgrowing/byway-payment/internal/usecase"
	"github.com/wekeepgrowing/byway-payment/pkg/messaging"
)

// App holds the wired services shared by the server and the redrive tool.
type App struct {
	DB       *gorm.DB
	Repos    *database.Repositories
	Payments *usecase.PaymentService
	Wallets  *usecase.WalletService
	Webhooks *usecase.WebhookService

	memoryLock *usecase.MemoryCheckoutLock
	redis      *redis.Client
	logger     *zap.Logger
}

// New connects to the database (and redis when configured) and builds the
// service graph. Callers must Close the returned App.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a := &App{DB: db, logger: logger}

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, logger); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.Repos = database.NewRepositories(db, logger)

	gateways, err := gatewayFactory.NewFactory(&cfg.Gateway, logger).Enabled()
	if err != nil {
		a.Close()
		return nil, err
	}
	paymentGateways := make([]provider.PaymentGateway, 0, len(gateways))
	webhookGateways := make([]provider.WebhookGateway, 0, len(gateways))
	for _, gw := range gateways {
		paymentGateways = append(paymentGateways, gw)
		webhookGateways = append(webhookGateways, gw)
	}

	if cfg.Redis.Enabled() {
		a.redis, err = messaging.Connect(ctx, messaging.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	checkoutLock, err := a.checkoutLock(cfg.Checkout)
	if err != nil {
		a.Close()
		return nil, err
	}

	var notifier provider.NotificationSender = notification.NewLogSender(logger)
	if a.redis != nil && cfg.Notification.Channel != "" {
		notifier = notification.NewRedisSender(messaging.NewRedisPublisher(a.redis), cfg.Notification.Channel, logger)
	}

	a.Wallets = usecase.NewWalletService(a.Repos.Wallet, cfg.Checkout.DefaultCurrency, logger)
	adminShare := cfg.Revenue.DefaultShare()
	revenue := usecase.NewRevenueDistributionService(
		a.Repos.Order,
		a.Repos.User,
		a.Wallets,
		notifier,
		usecase.RevenueConfig{
			AdminUserID:            cfg.Revenue.AdminID(),
			DefaultSharePercentage: &adminShare,
		},
		logger,
	)
	fulfillment := usecase.NewFulfillment(a.Repos.Transaction, a.Repos.Enrollment, a.Repos.Cart, revenue, notifier, logger)

	a.Payments = usecase.NewPaymentService(
		a.Repos.Order,
		a.Repos.Transaction,
		a.Repos.Enrollment,
		paymentGateways,
		a.Wallets,
		fulfillment,
		checkoutLock,
		usecase.CheckoutConfig{
			LockTTL:         cfg.Checkout.LockTTL,
			SuccessURL:      cfg.Checkout.SuccessURL,
			CancelURL:       cfg.Checkout.CancelURL,
			DefaultGateway:  model.PaymentGateway(cfg.Gateway.Default),
			DefaultCurrency: cfg.Checkout.DefaultCurrency,
		},
		logger,
	)
	a.Webhooks = usecase.NewWebhookService(
		webhookGateways,
		a.Repos.Order,
		a.Repos.Transaction,
		a.Repos.WebhookEvents,
		a.Wallets,
		fulfillment,
		checkoutLock,
		logger,
	)
	return a, nil
}

func (a *App) checkoutLock(cfg config.CheckoutConfig) (usecase.CheckoutLock, error) {
	switch cfg.LockBackend {
	case config.LockBackendRedis:
		if a.redis == nil {
			return nil, fmt.Errorf("checkout.lock_backend is redis but redis.addr is empty")
		}
		return lock.NewRedisCheckoutLock(a.redis, a.logger), nil
	default:
		a.memoryLock = usecase.NewMemoryCheckoutLock(a.logger)
		return a.memoryLock, nil
	}
}

// RunBackground starts the in-memory lock sweeper when that backend is in use.
// It returns when ctx is done.
func (a *App) RunBackground(ctx context.Context, cfg config.CheckoutConfig) {
	if a.memoryLock == nil {
		<-ctx.Done()
		return
	}
	a.memoryLock.Run(ctx, cfg.SweepInterval)
}

func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB, a.logger); err != nil {
			a.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}
}
