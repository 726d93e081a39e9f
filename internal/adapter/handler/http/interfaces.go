package http

import (
	"context"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	"github.com/wekeepgrowing/byway-payment/internal/domain/provider"
	"github.com/wekeepgrowing/byway-payment/internal/usecase"
)

// CheckoutService is the part of usecase.PaymentService the handlers use.
type CheckoutService interface {
	CreateCheckout(ctx context.Context, req *usecase.CheckoutRequest) (*usecase.CheckoutResult, error)
	CreateWalletTopUp(ctx context.Context, req *usecase.TopUpRequest) (*usecase.CheckoutResult, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Transaction, error)
}

type WalletReader interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*model.Wallet, error)
}

// WebhookProcessor is the part of usecase.WebhookService the handlers use.
type WebhookProcessor interface {
	Gateway(name model.PaymentGateway) (provider.WebhookGateway, bool)
	HandleWebhook(ctx context.Context, gateway model.PaymentGateway, rawBody []byte, signature string) (*usecase.WebhookResult, error)
	RedriveOrder(ctx context.Context, orderID uuid.UUID) (*usecase.WebhookResult, error)
}
