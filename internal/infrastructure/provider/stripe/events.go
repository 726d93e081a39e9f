package stripe

import (
	"encoding/json"
	"strings"

	"github.com/stripe/stripe-go/v79"

	customErr "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	"github.com/wekeepgrowing/byway-payment/internal/domain/provider"
)

// normalize maps a Stripe event onto the gateway-neutral event union.
func (s *StripeProvider) normalize(event stripe.Event, raw []byte) (*provider.WebhookEvent, error) {
	out := &provider.WebhookEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Kind:    provider.EventIgnored,
		Gateway: model.GatewayStripe,
		Raw:     raw,
	}
	if event.Data == nil {
		return out, nil
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, customErr.NewValidationError("malformed checkout session in event %s: %v", event.ID, err)
		}
		// Delayed payment methods complete the session before funds arrive.
		if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			return out, nil
		}
		out.Kind = provider.EventCheckoutCompleted
		out.Checkout = &provider.CheckoutCompleted{
			SessionID:   session.ID,
			AmountTotal: fromMinorUnits(session.AmountTotal),
			Currency:    strings.ToUpper(string(session.Currency)),
			Metadata:    session.Metadata,
		}
		if session.PaymentIntent != nil {
			out.Checkout.PaymentIntentID = session.PaymentIntent.ID
		}

	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, customErr.NewValidationError("malformed payment intent in event %s: %v", event.ID, err)
		}
		out.Kind = provider.EventPaymentFailed
		out.Failure = &provider.PaymentFailed{PaymentIntentID: intent.ID}
		if intent.LastPaymentError != nil {
			out.Failure.FailureCode = string(intent.LastPaymentError.Code)
			out.Failure.FailureMessage = intent.LastPaymentError.Msg
		}

	case stripe.EventTypeChargeFailed:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return nil, customErr.NewValidationError("malformed charge in event %s: %v", event.ID, err)
		}
		out.Kind = provider.EventPaymentFailed
		out.Failure = &provider.PaymentFailed{
			FailureCode:    charge.FailureCode,
			FailureMessage: charge.FailureMessage,
		}
		if charge.PaymentIntent != nil {
			out.Failure.PaymentIntentID = charge.PaymentIntent.ID
		}
	}

	return out, nil
}
