package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	pkgconfig "github.com/wekeepgrowing/byway-payment/pkg/config"
)

// EnvPrefix prefixes environment overrides, e.g. PAYMENT_GATEWAY_STRIPE_SECRET_KEY.
const EnvPrefix = "PAYMENT"

type Config struct {
	Service      ServiceConfig      `yaml:"service"`
	Database     DatabaseConfig     `yaml:"database"`
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	JWT          JWTConfig          `yaml:"jwt"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Checkout     CheckoutConfig     `yaml:"checkout"`
	Revenue      RevenueConfig      `yaml:"revenue"`
	Redis        RedisConfig        `yaml:"redis"`
	Notification NotificationConfig `yaml:"notification"`
}

func LoadConfig() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/payment.yaml"
	}
	return LoadFile(configPath)
}

// LoadFile reads the YAML file at path and applies environment overrides.
func LoadFile(path string) (*Config, error) {
	// Ensure absolute path
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	// Read config file
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides secrets and connection strings from the environment.
func (c *Config) applyEnv() {
	targets := map[string]*string{
		"database.host":                   &c.Database.Host,
		"database.password":               &c.Database.Password,
		"jwt.secret":                      &c.JWT.Secret,
		"gateway.stripe.secret_key":       &c.Gateway.Stripe.SecretKey,
		"gateway.stripe.webhook_secret":   &c.Gateway.Stripe.WebhookSecret,
		"gateway.razorpay.key_id":         &c.Gateway.Razorpay.KeyID,
		"gateway.razorpay.key_secret":     &c.Gateway.Razorpay.KeySecret,
		"gateway.razorpay.webhook_secret": &c.Gateway.Razorpay.WebhookSecret,
		"redis.addr":                      &c.Redis.Addr,
		"redis.password":                  &c.Redis.Password,
		"revenue.admin_user_id":           &c.Revenue.AdminUserID,
	}

	keys := make([]string, 0, len(targets))
	for key := range targets {
		keys = append(keys, key)
	}
	for key, value := range pkgconfig.EnvOverrides(EnvPrefix, keys...) {
		*targets[key] = value
	}
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "payment"
	}
	if c.Server.HTTP.Port == 0 {
		c.Server.HTTP.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Gateway.applyDefaults()
	c.Checkout.applyDefaults()
	c.Revenue.applyDefaults()
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if err := c.Gateway.Validate(); err != nil {
		return err
	}
	if err := c.Checkout.Validate(); err != nil {
		return err
	}
	return c.Revenue.Validate()
}
