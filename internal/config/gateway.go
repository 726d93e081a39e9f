package config

import (
	"fmt"
	"strings"
	"time"
)

type GatewayConfig struct {
	Default  string         `yaml:"default"`
	Stripe   StripeConfig   `yaml:"stripe"`
	Razorpay RazorpayConfig `yaml:"razorpay"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Rate     RateConfig     `yaml:"rate"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

func (c StripeConfig) Enabled() bool { return c.SecretKey != "" }

type RazorpayConfig struct {
	KeyID         string `yaml:"key_id"`
	KeySecret     string `yaml:"key_secret"`
	WebhookSecret string `yaml:"webhook_secret"`
}

func (c RazorpayConfig) Enabled() bool { return c.KeyID != "" && c.KeySecret != "" }

// BreakerConfig tunes the circuit breaker around outbound gateway calls.
type BreakerConfig struct {
	MaxRequests  uint32        `yaml:"max_requests"`
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
	FailureRatio float64       `yaml:"failure_ratio"`
	MinRequests  uint32        `yaml:"min_requests"`
}

type RateConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

func (c *GatewayConfig) applyDefaults() {
	c.Default = strings.ToUpper(c.Default)
	if c.Default == "" {
		c.Default = "STRIPE"
	}
	if c.Breaker.MaxRequests == 0 {
		c.Breaker.MaxRequests = 3
	}
	if c.Breaker.Interval == 0 {
		c.Breaker.Interval = 15 * time.Second
	}
	if c.Breaker.Timeout == 0 {
		c.Breaker.Timeout = 30 * time.Second
	}
	if c.Breaker.FailureRatio == 0 {
		c.Breaker.FailureRatio = 0.6
	}
	if c.Breaker.MinRequests == 0 {
		c.Breaker.MinRequests = 3
	}
	if c.Rate.PerSecond == 0 {
		c.Rate.PerSecond = 20
	}
	if c.Rate.Burst == 0 {
		c.Rate.Burst = 10
	}
}

func (c *GatewayConfig) Validate() error {
	switch c.Default {
	case "STRIPE":
		if !c.Stripe.Enabled() {
			return fmt.Errorf("gateway.default is STRIPE but gateway.stripe.secret_key is empty")
		}
	case "RAZORPAY":
		if !c.Razorpay.Enabled() {
			return fmt.Errorf("gateway.default is RAZORPAY but gateway.razorpay keys are empty")
		}
	default:
		return fmt.Errorf("unsupported gateway.default %q", c.Default)
	}
	if c.Stripe.Enabled() && c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("gateway.stripe.webhook_secret is required")
	}
	if c.Razorpay.Enabled() && c.Razorpay.WebhookSecret == "" {
		return fmt.Errorf("gateway.razorpay.webhook_secret is required")
	}
	return nil
}
