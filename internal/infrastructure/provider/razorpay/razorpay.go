package razorpay

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/byway-payment/internal/config"
	customErr "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	"github.com/wekeepgrowing/byway-payment/internal/domain/provider"
	"github.com/wekeepgrowing/byway-payment/internal/infrastructure/resilience"
)

const (
	signatureHeader = "X-Razorpay-Signature"

	// Razorpay rejects note values longer than this.
	maxNoteLength = 256
)

type paymentLinks interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type payments interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayProvider implements provider.PaymentGateway and provider.WebhookGateway
// on Razorpay payment links.
type RazorpayProvider struct {
	links         paymentLinks
	payments      payments
	webhookSecret string
	guard         *resilience.Guard
	logger        *zap.Logger
}

func NewRazorpayProvider(cfg config.RazorpayConfig, guard *resilience.Guard, logger *zap.Logger) *RazorpayProvider {
	client := razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	return &RazorpayProvider{
		links:         client.PaymentLink,
		payments:      client.Payment,
		webhookSecret: cfg.WebhookSecret,
		guard:         guard,
		logger:        logger,
	}
}

func (r *RazorpayProvider) Name() model.PaymentGateway { return model.GatewayRazorpay }

func (r *RazorpayProvider) SignatureHeader() string { return signatureHeader }

// CreateCheckoutSession creates a payment link for the whole order. The link
// id plays the role of the session id.
func (r *RazorpayProvider) CreateCheckoutSession(ctx context.Context, input *provider.CheckoutSessionInput, customerEmail string, orderID uuid.UUID) (*provider.CheckoutSession, error) {
	if len(input.LineItems) == 0 {
		return nil, customErr.NewValidationError("payment link needs at least one line item")
	}
	currency := strings.ToUpper(input.LineItems[0].Currency)

	names := make([]string, 0, len(input.LineItems))
	for _, li := range input.LineItems {
		names = append(names, li.Name)
	}

	data := map[string]interface{}{
		"amount":          toMinorUnits(input.Total()),
		"currency":        currency,
		"reference_id":    orderID.String(),
		"description":     truncate(strings.Join(names, ", "), 2048),
		"callback_url":    input.SuccessURL,
		"callback_method": "get",
		"notes":           r.notes(input.Metadata),
	}
	if customerEmail != "" {
		data["customer"] = map[string]interface{}{"email": customerEmail}
	}

	resp, err := resilience.Call(ctx, r.guard, func() (map[string]interface{}, error) {
		return r.links.Create(data, nil)
	})
	if err != nil {
		r.logger.Error("Failed to create Razorpay payment link",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
		return nil, customErr.NewPaymentError("failed to create razorpay payment link", err)
	}

	id, _ := resp["id"].(string)
	if id == "" {
		return nil, customErr.NewPaymentError("razorpay payment link response has no id", nil)
	}
	shortURL, _ := resp["short_url"].(string)
	status, _ := resp["status"].(string)

	r.logger.Info("Razorpay payment link created",
		zap.String("order_id", orderID.String()),
		zap.String("link_id", id),
	)

	return &provider.CheckoutSession{
		ID:            id,
		URL:           shortURL,
		PaymentStatus: status,
		AmountTotal:   amountFrom(resp["amount"]),
	}, nil
}

// notes encodes metadata as link notes, dropping course ids that do not fit.
func (r *RazorpayProvider) notes(meta provider.Metadata) map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range meta.Map() {
		if len(v) >= maxNoteLength {
			r.logger.Debug("Dropping oversized payment link note", zap.String("key", k))
			continue
		}
		out[k] = v
	}
	return out
}

func (r *RazorpayProvider) VerifySignature(rawBody []byte, signature string) (*provider.WebhookEvent, error) {
	if signature == "" || !utils.VerifyWebhookSignature(string(rawBody), signature, r.webhookSecret) {
		return nil, customErr.NewInvalidSignatureError(fmt.Errorf("razorpay signature mismatch"))
	}
	return r.ParseEvent(rawBody)
}

func (r *RazorpayProvider) ParseEvent(rawBody []byte) (*provider.WebhookEvent, error) {
	return normalize(rawBody)
}

func (r *RazorpayProvider) ParseMetadata(raw map[string]string) (*provider.Metadata, error) {
	return provider.ParseMetadata(raw)
}

func (r *RazorpayProvider) IsCheckoutSessionCompleted(event *provider.WebhookEvent) bool {
	return event.Kind == provider.EventCheckoutCompleted && event.Checkout != nil
}

func (r *RazorpayProvider) GetPaymentIntentID(event *provider.WebhookEvent) (string, error) {
	var id string
	switch {
	case event.Checkout != nil:
		id = event.Checkout.PaymentIntentID
	case event.Failure != nil:
		id = event.Failure.PaymentIntentID
	}
	if id == "" {
		return "", customErr.NewValidationError("razorpay event %s carries no payment id", event.ID)
	}
	return id, nil
}

// GetCheckoutSessionMetadata reads the notes of a payment.
func (r *RazorpayProvider) GetCheckoutSessionMetadata(ctx context.Context, paymentID string) (*provider.Metadata, error) {
	resp, err := resilience.Call(ctx, r.guard, func() (map[string]interface{}, error) {
		return r.payments.Fetch(paymentID, nil, nil)
	})
	if err != nil {
		return nil, customErr.NewPaymentError("failed to fetch razorpay payment", err)
	}
	return provider.ParseMetadata(stringMap(resp["notes"]))
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

// amountFrom reads an amount in paise from a decoded JSON map value.
func amountFrom(v interface{}) decimal.Decimal {
	switch n := v.(type) {
	case float64:
		return fromMinorUnits(int64(n))
	case int64:
		return fromMinorUnits(n)
	case int:
		return fromMinorUnits(int64(n))
	}
	return decimal.Zero
}

// stringMap converts Razorpay notes, which arrive as an object or as an empty array.
func stringMap(v interface{}) map[string]string {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok {
			out[k] = s
		} else if val != nil {
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
