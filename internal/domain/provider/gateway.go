package provider

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
)

// PaymentGateway creates hosted checkout sessions.
type PaymentGateway interface {
	Name() model.PaymentGateway

	// CreateCheckoutSession creates a session whose metadata is echoed back on webhook delivery.
	CreateCheckoutSession(ctx context.Context, input *CheckoutSessionInput, customerEmail string, orderID uuid.UUID) (*CheckoutSession, error)
}

type LineItem struct {
	Name      string
	UnitPrice decimal.Decimal
	Currency  string
	Quantity  int64
}

type CheckoutSessionInput struct {
	LineItems  []LineItem
	SuccessURL string
	CancelURL  string
	Metadata   Metadata
}

// Total sums the line items.
func (in *CheckoutSessionInput) Total() decimal.Decimal {
	total := decimal.Zero
	for _, li := range in.LineItems {
		total = total.Add(li.UnitPrice.Mul(decimal.NewFromInt(li.Quantity)))
	}
	return total
}

type CheckoutSession struct {
	ID            string
	URL           string
	PaymentStatus string
	AmountTotal   decimal.Decimal
}
