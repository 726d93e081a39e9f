package provider

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/byway-payment/internal/config"
	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	"github.com/wekeepgrowing/byway-payment/internal/domain/provider"
	razorpayProvider "github.com/wekeepgrowing/byway-payment/internal/infrastructure/provider/razorpay"
	stripeProvider "github.com/wekeepgrowing/byway-payment/internal/infrastructure/provider/stripe"
	"github.com/wekeepgrowing/byway-payment/internal/infrastructure/resilience"
)

// Gateway is implemented by every concrete provider.
type Gateway interface {
	provider.PaymentGateway
	provider.WebhookGateway
}

// Factory creates payment providers based on the provider type
type Factory struct {
	config *config.GatewayConfig
	logger *zap.Logger
}

// NewFactory creates a new provider factory
func NewFactory(config *config.GatewayConfig, logger *zap.Logger) *Factory {
	return &Factory{
		config: config,
		logger: logger,
	}
}

// GetProvider returns a payment provider based on the provider type
func (f *Factory) GetProvider(gateway model.PaymentGateway) (Gateway, error) {
	switch gateway {
	case model.GatewayStripe:
		return f.createStripeProvider()
	case model.GatewayRazorpay:
		return f.createRazorpayProvider()
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", gateway)
	}
}

// GetProviderFromString returns a payment provider from a string type
func (f *Factory) GetProviderFromString(providerStr string) (Gateway, error) {
	// Default to the configured gateway if not specified
	if providerStr == "" {
		providerStr = f.config.Default
	}
	return f.GetProvider(model.PaymentGateway(strings.ToUpper(providerStr)))
}

// Enabled builds every gateway that has credentials configured.
func (f *Factory) Enabled() ([]Gateway, error) {
	var gateways []Gateway
	if f.config.Stripe.Enabled() {
		gw, err := f.createStripeProvider()
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, gw)
	}
	if f.config.Razorpay.Enabled() {
		gw, err := f.createRazorpayProvider()
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, gw)
	}
	if len(gateways) == 0 {
		return nil, fmt.Errorf("no payment gateway configured")
	}
	return gateways, nil
}

func (f *Factory) guard(name model.PaymentGateway) *resilience.Guard {
	return resilience.NewGuard(strings.ToLower(string(name)), f.config.Breaker, f.config.Rate, f.logger)
}

// createStripeProvider creates a new Stripe provider instance
func (f *Factory) createStripeProvider() (Gateway, error) {
	if !f.config.Stripe.Enabled() {
		return nil, fmt.Errorf("Stripe secret key not configured")
	}

	return stripeProvider.NewStripeProvider(
		f.config.Stripe,
		f.guard(model.GatewayStripe),
		f.logger.Named("stripe"),
	), nil
}

// createRazorpayProvider creates a new Razorpay provider instance
func (f *Factory) createRazorpayProvider() (Gateway, error) {
	if !f.config.Razorpay.Enabled() {
		return nil, fmt.Errorf("Razorpay key id/secret not configured")
	}

	return razorpayProvider.NewRazorpayProvider(
		f.config.Razorpay,
		f.guard(model.GatewayRazorpay),
		f.logger.Named("razorpay"),
	), nil
}
