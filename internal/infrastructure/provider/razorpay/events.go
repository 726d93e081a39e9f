package razorpay

import (
	"encoding/json"
	"strconv"
	"strings"

	customErr "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	"github.com/wekeepgrowing/byway-payment/internal/domain/provider"
)

const (
	eventPaymentLinkPaid = "payment_link.paid"
	eventPaymentFailed   = "payment.failed"
)

type webhookBody struct {
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		PaymentLink *struct {
			Entity linkEntity `json:"entity"`
		} `json:"payment_link"`
		Payment *struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type linkEntity struct {
	ID         string          `json:"id"`
	Amount     int64           `json:"amount"`
	AmountPaid int64           `json:"amount_paid"`
	Currency   string          `json:"currency"`
	Status     string          `json:"status"`
	Notes      json.RawMessage `json:"notes"`
}

type paymentEntity struct {
	ID               string          `json:"id"`
	Amount           int64           `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	ErrorCode        string          `json:"error_code"`
	ErrorDescription string          `json:"error_description"`
	Notes            json.RawMessage `json:"notes"`
}

// normalize maps a Razorpay webhook body onto the gateway-neutral event union.
// Razorpay sends the event id only as a header, so the id is derived from the
// event name and the entity it concerns.
func normalize(raw []byte) (*provider.WebhookEvent, error) {
	var body webhookBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, customErr.NewValidationError("malformed razorpay event: %v", err)
	}
	if body.Event == "" {
		return nil, customErr.NewValidationError("razorpay event has no type")
	}

	out := &provider.WebhookEvent{
		Type:    body.Event,
		Kind:    provider.EventIgnored,
		Gateway: model.GatewayRazorpay,
		Raw:     raw,
	}

	var payment *paymentEntity
	if body.Payload.Payment != nil {
		payment = &body.Payload.Payment.Entity
	}

	switch body.Event {
	case eventPaymentLinkPaid:
		if body.Payload.PaymentLink == nil {
			return nil, customErr.NewValidationError("razorpay %s event has no payment link", body.Event)
		}
		link := body.Payload.PaymentLink.Entity
		out.ID = body.Event + ":" + link.ID
		out.Kind = provider.EventCheckoutCompleted

		amount := link.AmountPaid
		if amount == 0 {
			amount = link.Amount
		}
		out.Checkout = &provider.CheckoutCompleted{
			SessionID:   link.ID,
			AmountTotal: fromMinorUnits(amount),
			Currency:    strings.ToUpper(link.Currency),
			Metadata:    decodeNotes(link.Notes),
		}
		if payment != nil {
			out.Checkout.PaymentIntentID = payment.ID
		}

	case eventPaymentFailed:
		if payment == nil {
			return nil, customErr.NewValidationError("razorpay %s event has no payment", body.Event)
		}
		out.ID = body.Event + ":" + payment.ID
		out.Kind = provider.EventPaymentFailed
		out.Failure = &provider.PaymentFailed{
			PaymentIntentID: payment.ID,
			FailureCode:     payment.ErrorCode,
			FailureMessage:  payment.ErrorDescription,
		}

	default:
		switch {
		case payment != nil:
			out.ID = body.Event + ":" + payment.ID
		case body.Payload.PaymentLink != nil:
			out.ID = body.Event + ":" + body.Payload.PaymentLink.Entity.ID
		default:
			out.ID = body.Event + ":" + strconv.FormatInt(body.CreatedAt, 10)
		}
	}

	return out, nil
}

func decodeNotes(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return stringMap(m)
}
