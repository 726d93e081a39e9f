package stripe

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/byway-payment/internal/config"
	customErr "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	"github.com/wekeepgrowing/byway-payment/internal/domain/provider"
	"github.com/wekeepgrowing/byway-payment/internal/infrastructure/resilience"
)

const signatureHeader = "Stripe-Signature"

// StripeProvider implements provider.PaymentGateway and provider.WebhookGateway on Stripe Checkout.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	guard         *resilience.Guard
	logger        *zap.Logger
}

// NewStripeProvider creates a provider talking to the public Stripe API.
func NewStripeProvider(cfg config.StripeConfig, guard *resilience.Guard, logger *zap.Logger) *StripeProvider {
	return NewStripeProviderWithBackends(cfg, nil, guard, logger)
}

// NewStripeProviderWithBackends lets callers point the client at another API host.
func NewStripeProviderWithBackends(cfg config.StripeConfig, backends *stripe.Backends, guard *resilience.Guard, logger *zap.Logger) *StripeProvider {
	api := &client.API{}
	api.Init(cfg.SecretKey, backends)

	return &StripeProvider{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		guard:         guard,
		logger:        logger,
	}
}

func (s *StripeProvider) Name() model.PaymentGateway { return model.GatewayStripe }

func (s *StripeProvider) SignatureHeader() string { return signatureHeader }

// CreateCheckoutSession creates a one-off payment session. Metadata is set on
// both the session and its payment intent so failure events can be correlated.
func (s *StripeProvider) CreateCheckoutSession(ctx context.Context, input *provider.CheckoutSessionInput, customerEmail string, orderID uuid.UUID) (*provider.CheckoutSession, error) {
	meta := input.Metadata.Map()

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(input.SuccessURL),
		CancelURL:         stripe.String(input.CancelURL),
		ClientReferenceID: stripe.String(orderID.String()),
		Metadata:          meta,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: meta,
		},
	}
	if customerEmail != "" {
		params.CustomerEmail = stripe.String(customerEmail)
	}
	params.Context = ctx

	for _, li := range input.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(li.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(li.Currency)),
				UnitAmount: stripe.Int64(toMinorUnits(li.UnitPrice)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(li.Name),
				},
			},
		})
	}

	sess, err := resilience.Call(ctx, s.guard, func() (*stripe.CheckoutSession, error) {
		return s.api.CheckoutSessions.New(params)
	})
	if err != nil {
		s.logger.Error("Failed to create Stripe checkout session",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
		return nil, customErr.NewPaymentError("failed to create stripe checkout session", err)
	}

	s.logger.Info("Stripe checkout session created",
		zap.String("order_id", orderID.String()),
		zap.String("session_id", sess.ID),
	)

	return &provider.CheckoutSession{
		ID:            sess.ID,
		URL:           sess.URL,
		PaymentStatus: string(sess.PaymentStatus),
		AmountTotal:   fromMinorUnits(sess.AmountTotal),
	}, nil
}

func (s *StripeProvider) VerifySignature(rawBody []byte, signature string) (*provider.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(rawBody, signature, s.webhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return nil, customErr.NewInvalidSignatureError(err)
	}
	return s.normalize(event, rawBody)
}

func (s *StripeProvider) ParseEvent(rawBody []byte) (*provider.WebhookEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, customErr.NewValidationError("malformed stripe event: %v", err)
	}
	return s.normalize(event, rawBody)
}

func (s *StripeProvider) ParseMetadata(raw map[string]string) (*provider.Metadata, error) {
	return provider.ParseMetadata(raw)
}

func (s *StripeProvider) IsCheckoutSessionCompleted(event *provider.WebhookEvent) bool {
	return event.Kind == provider.EventCheckoutCompleted && event.Checkout != nil
}

func (s *StripeProvider) GetPaymentIntentID(event *provider.WebhookEvent) (string, error) {
	var id string
	switch {
	case event.Checkout != nil:
		id = event.Checkout.PaymentIntentID
	case event.Failure != nil:
		id = event.Failure.PaymentIntentID
	}
	if id == "" {
		return "", customErr.NewValidationError("stripe event %s carries no payment intent", event.ID)
	}
	return id, nil
}

// GetCheckoutSessionMetadata reads the metadata copied onto the payment intent.
func (s *StripeProvider) GetCheckoutSessionMetadata(ctx context.Context, paymentIntentID string) (*provider.Metadata, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := resilience.Call(ctx, s.guard, func() (*stripe.PaymentIntent, error) {
		return s.api.PaymentIntents.Get(paymentIntentID, params)
	})
	if err != nil {
		return nil, customErr.NewPaymentError("failed to fetch stripe payment intent", err)
	}
	return provider.ParseMetadata(pi.Metadata)
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}
