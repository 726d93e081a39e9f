package provider

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
)

// EventKind classifies a normalized gateway event.
type EventKind string

const (
	EventCheckoutCompleted EventKind = "checkout_completed"
	EventPaymentFailed     EventKind = "payment_failed"
	EventIgnored           EventKind = "ignored"
)

// WebhookEvent is a verified gateway event. Exactly one of Checkout or Failure
// is set, matching Kind; both are nil for ignored events.
type WebhookEvent struct {
	ID      string
	Type    string
	Kind    EventKind
	Gateway model.PaymentGateway
	Raw     []byte

	Checkout *CheckoutCompleted
	Failure  *PaymentFailed
}

type CheckoutCompleted struct {
	SessionID       string
	PaymentIntentID string
	AmountTotal     decimal.Decimal
	Currency        string
	Metadata        map[string]string
}

type PaymentFailed struct {
	PaymentIntentID string
	FailureCode     string
	FailureMessage  string
}

// WebhookGateway verifies and interprets gateway callbacks.
type WebhookGateway interface {
	Name() model.PaymentGateway

	// SignatureHeader names the HTTP header carrying the signature.
	SignatureHeader() string

	// VerifySignature authenticates rawBody and normalizes it. It fails with an
	// invalid signature error before anything else is inspected.
	VerifySignature(rawBody []byte, signature string) (*WebhookEvent, error)

	// ParseEvent normalizes a body that was verified earlier, e.g. on replay.
	ParseEvent(rawBody []byte) (*WebhookEvent, error)

	ParseMetadata(raw map[string]string) (*Metadata, error)

	IsCheckoutSessionCompleted(event *WebhookEvent) bool

	// GetPaymentIntentID returns the intent id of a checkout or failure event.
	GetPaymentIntentID(event *WebhookEvent) (string, error)

	// GetCheckoutSessionMetadata fetches the metadata attached to a payment out of band.
	GetCheckoutSessionMetadata(ctx context.Context, paymentIntentID string) (*Metadata, error)
}
