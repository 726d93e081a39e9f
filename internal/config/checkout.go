package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

type CheckoutConfig struct {
	LockBackend     string        `yaml:"lock_backend"`
	LockTTL         time.Duration `yaml:"lock_ttl"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	SuccessURL      string        `yaml:"success_url"`
	CancelURL       string        `yaml:"cancel_url"`
	DefaultCurrency string        `yaml:"default_currency"`
}

func (c *CheckoutConfig) applyDefaults() {
	if c.LockBackend == "" {
		c.LockBackend = LockBackendMemory
	}
	if c.LockTTL == 0 {
		c.LockTTL = 15 * time.Minute
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = time.Minute
	}
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = "USD"
	}
}

func (c *CheckoutConfig) Validate() error {
	if c.LockBackend != LockBackendMemory && c.LockBackend != LockBackendRedis {
		return fmt.Errorf("unsupported checkout.lock_backend %q", c.LockBackend)
	}
	if c.LockTTL < 0 {
		return fmt.Errorf("checkout.lock_ttl must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("checkout.sweep_interval must be positive")
	}
	return nil
}

type RevenueConfig struct {
	// AdminUserID receives the platform share. Empty means the first ADMIN user.
	AdminUserID string `yaml:"admin_user_id"`
	// DefaultAdminShare is a percentage, e.g. "20".
	DefaultAdminShare string `yaml:"default_admin_share"`
}

func (c *RevenueConfig) applyDefaults() {
	if c.DefaultAdminShare == "" {
		c.DefaultAdminShare = "20"
	}
}

func (c *RevenueConfig) Validate() error {
	if c.AdminUserID != "" {
		if _, err := uuid.Parse(c.AdminUserID); err != nil {
			return fmt.Errorf("revenue.admin_user_id: %w", err)
		}
	}
	share, err := decimal.NewFromString(c.DefaultAdminShare)
	if err != nil {
		return fmt.Errorf("revenue.default_admin_share: %w", err)
	}
	if share.IsNegative() || share.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("revenue.default_admin_share must be between 0 and 100")
	}
	return nil
}

// AdminID returns the configured platform admin, or uuid.Nil.
func (c RevenueConfig) AdminID() uuid.UUID {
	id, err := uuid.Parse(c.AdminUserID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func (c RevenueConfig) DefaultShare() decimal.Decimal {
	share, err := decimal.NewFromString(c.DefaultAdminShare)
	if err != nil {
		return decimal.NewFromInt(20)
	}
	return share
}
