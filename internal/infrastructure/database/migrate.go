package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
)

// Migrate runs database migrations. users, courses and cart_items are
// owned by the catalog service in production and migrated here for local setups.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	if err := createExtensions(db); err != nil {
		logger.Error("Failed to create extensions", zap.Error(err))
		return err
	}

	err := db.AutoMigrate(
		&model.User{},
		&model.Course{},
		&model.CartItem{},
		&model.Order{},
		&model.OrderItem{},
		&model.Transaction{},
		&model.Wallet{},
		&model.Enrollment{},
		&model.WebhookEventLog{},
	)
	if err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}

	if err := createCustomIndexes(db); err != nil {
		logger.Error("Failed to create custom indexes", zap.Error(err))
		return err
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// createCustomIndexes creates custom indexes that GORM doesn't handle automatically
func createCustomIndexes(db *gorm.DB) error {
	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_webhook_events_retryable ON webhook_events (next_retry_at) WHERE status = 'failed'`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_order_type ON transactions (order_id, type, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_pending ON orders (created_at) WHERE payment_status = 'PENDING'`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func createExtensions(db *gorm.DB) error {
	return db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error
}
