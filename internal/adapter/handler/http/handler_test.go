package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	customErr "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	"github.com/wekeepgrowing/byway-payment/internal/domain/provider"
	"github.com/wekeepgrowing/byway-payment/internal/middleware/auth"
	"github.com/wekeepgrowing/byway-payment/internal/usecase"
)

// MockCheckoutService is a mock implementation of CheckoutService
type MockCheckoutService struct {
	mock.Mock
}

func (m *MockCheckoutService) CreateCheckout(ctx context.Context, req *usecase.CheckoutRequest) (*usecase.CheckoutResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.CheckoutResult), args.Error(1)
}

func (m *MockCheckoutService) CreateWalletTopUp(ctx context.Context, req *usecase.TopUpRequest) (*usecase.CheckoutResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.CheckoutResult), args.Error(1)
}

func (m *MockCheckoutService) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Transaction, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]model.Transaction), args.Error(1)
}

type MockWalletReader struct {
	mock.Mock
}

func (m *MockWalletReader) GetWallet(ctx context.Context, userID uuid.UUID) (*model.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Wallet), args.Error(1)
}

// MockWebhookProcessor is a mock implementation of WebhookProcessor
type MockWebhookProcessor struct {
	mock.Mock
}

func (m *MockWebhookProcessor) Gateway(name model.PaymentGateway) (provider.WebhookGateway, bool) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(provider.WebhookGateway), args.Bool(1)
}

func (m *MockWebhookProcessor) HandleWebhook(ctx context.Context, gateway model.PaymentGateway, rawBody []byte, signature string) (*usecase.WebhookResult, error) {
	args := m.Called(ctx, gateway, rawBody, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.WebhookResult), args.Error(1)
}

func (m *MockWebhookProcessor) RedriveOrder(ctx context.Context, orderID uuid.UUID) (*usecase.WebhookResult, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.WebhookResult), args.Error(1)
}

// headerGateway only answers SignatureHeader.
type headerGateway struct {
	provider.WebhookGateway
	header string
}

func (g headerGateway) SignatureHeader() string { return g.header }

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewCustomValidator()
	return e
}

// serve runs handler for one request and renders a returned error the way echo would.
func serve(e *echo.Echo, handler echo.HandlerFunc, req *http.Request, params map[string]string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	var names, values []string
	for k, v := range params {
		names = append(names, k)
		values = append(values, v)
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func authed(req *http.Request, user *auth.AuthUser) *http.Request {
	return req.WithContext(auth.WithUser(req.Context(), user))
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestWebhookHandler(t *testing.T) {
	body := `{"id":"evt_1","type":"checkout.session.completed"}`

	tests := []struct {
		name       string
		gateway    string
		setup      func(p *MockWebhookProcessor)
		wantStatus int
		wantBody   string
	}{
		{
			name:    "processed",
			gateway: "stripe",
			setup: func(p *MockWebhookProcessor) {
				p.On("Gateway", model.GatewayStripe).Return(headerGateway{header: "Stripe-Signature"}, true)
				p.On("HandleWebhook", mock.Anything, model.GatewayStripe, []byte(body), "t=1,v1=abc").
					Return(&usecase.WebhookResult{EventID: "evt_1", Outcome: usecase.OutcomeProcessed}, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   `"outcome":"processed"`,
		},
		{
			name:    "unknown gateway",
			gateway: "paypal",
			setup: func(p *MockWebhookProcessor) {
				p.On("Gateway", model.GatewayPaypal).Return(nil, false)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:    "bad signature",
			gateway: "stripe",
			setup: func(p *MockWebhookProcessor) {
				p.On("Gateway", model.GatewayStripe).Return(headerGateway{header: "Stripe-Signature"}, true)
				p.On("HandleWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(nil, customErr.NewInvalidSignatureError(nil))
			},
			wantStatus: http.StatusBadRequest,
			wantBody:   "INVALID_SIGNATURE",
		},
		{
			name:    "settlement failure asks for retry",
			gateway: "stripe",
			setup: func(p *MockWebhookProcessor) {
				p.On("Gateway", model.GatewayStripe).Return(headerGateway{header: "Stripe-Signature"}, true)
				p.On("HandleWebhook", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(nil, customErr.NewPaymentError("failed to credit wallet", nil))
			},
			wantStatus: http.StatusInternalServerError,
			wantBody:   "PAYMENT_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := &MockWebhookProcessor{}
			tt.setup(processor)
			h := NewWebhookHandler(processor, zap.NewNop())

			req := httptest.NewRequest(http.MethodPost, "/webhooks/"+tt.gateway, strings.NewReader(body))
			req.Header.Set("Stripe-Signature", "t=1,v1=abc")

			rec := serve(newEcho(), h.HandleWebhook, req, map[string]string{"gateway": tt.gateway})

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
			processor.AssertExpectations(t)
		})
	}
}

func TestWebhookHandlerDetachesContext(t *testing.T) {
	processor := &MockWebhookProcessor{}
	processor.On("Gateway", model.GatewayStripe).Return(headerGateway{header: "Stripe-Signature"}, true)
	processor.On("HandleWebhook", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything, mock.Anything, mock.Anything).
		Return(&usecase.WebhookResult{Outcome: usecase.OutcomeIgnored}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader("{}")).WithContext(ctx)

	rec := serve(newEcho(), NewWebhookHandler(processor, zap.NewNop()).HandleWebhook, req, map[string]string{"gateway": "stripe"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRedriveOrder(t *testing.T) {
	orderID := uuid.New()

	processor := &MockWebhookProcessor{}
	processor.On("RedriveOrder", mock.Anything, orderID).
		Return(&usecase.WebhookResult{Outcome: usecase.OutcomeProcessed}, nil)
	h := NewWebhookHandler(processor, zap.NewNop())

	rec := serve(newEcho(), h.RedriveOrder, httptest.NewRequest(http.MethodPost, "/", nil), map[string]string{"id": orderID.String()})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(newEcho(), h.RedriveOrder, httptest.NewRequest(http.MethodPost, "/", nil), map[string]string{"id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateCheckout(t *testing.T) {
	user := &auth.AuthUser{UserID: uuid.New(), Email: "learner@byway.test", Role: "STUDENT"}
	courseID := uuid.New()

	t.Run("created", func(t *testing.T) {
		payments := &MockCheckoutService{}
		payments.On("CreateCheckout", mock.Anything, mock.MatchedBy(func(req *usecase.CheckoutRequest) bool {
			return req.UserID == user.UserID && req.Email == user.Email &&
				len(req.CourseIDs) == 1 && req.CourseIDs[0] == courseID && req.UseWallet
		})).Return(&usecase.CheckoutResult{OrderID: uuid.New(), Status: "COMPLETED", TotalAmount: decimal.NewFromInt(25)}, nil)

		h := NewCheckoutHandler(payments, &MockWalletReader{}, zap.NewNop())
		req := authed(jsonRequest(http.MethodPost, "/api/v1/checkout", `{"course_ids":["`+courseID.String()+`"],"use_wallet":true}`), user)

		rec := serve(newEcho(), h.CreateCheckout, req, nil)
		assert.Equal(t, http.StatusCreated, rec.Code)
		payments.AssertExpectations(t)
	})

	t.Run("validation", func(t *testing.T) {
		h := NewCheckoutHandler(&MockCheckoutService{}, &MockWalletReader{}, zap.NewNop())

		for _, body := range []string{`{"course_ids":[]}`, `{"course_ids":["x"]}`, `{"course_ids":["` + courseID.String() + `"],"gateway":"PAYPAL"}`} {
			rec := serve(newEcho(), h.CreateCheckout, authed(jsonRequest(http.MethodPost, "/api/v1/checkout", body), user), nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		}
	})

	t.Run("checkout in progress", func(t *testing.T) {
		payments := &MockCheckoutService{}
		payments.On("CreateCheckout", mock.Anything, mock.Anything).Return(nil, customErr.ErrCheckoutInProgress)
		h := NewCheckoutHandler(payments, &MockWalletReader{}, zap.NewNop())

		rec := serve(newEcho(), h.CreateCheckout, authed(jsonRequest(http.MethodPost, "/api/v1/checkout", `{"course_ids":["`+courseID.String()+`"]}`), user), nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "BUSINESS_RULE_VIOLATION")
	})

	t.Run("anonymous", func(t *testing.T) {
		h := NewCheckoutHandler(&MockCheckoutService{}, &MockWalletReader{}, zap.NewNop())
		rec := serve(newEcho(), h.CreateCheckout, jsonRequest(http.MethodPost, "/api/v1/checkout", `{}`), nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestCreateTopUp(t *testing.T) {
	user := &auth.AuthUser{UserID: uuid.New(), Email: "learner@byway.test"}

	payments := &MockCheckoutService{}
	payments.On("CreateWalletTopUp", mock.Anything, mock.MatchedBy(func(req *usecase.TopUpRequest) bool {
		return req.UserID == user.UserID && req.Amount.Equal(decimal.RequireFromString("50.00"))
	})).Return(&usecase.CheckoutResult{CheckoutURL: "https://checkout.test/cs_1"}, nil)
	h := NewCheckoutHandler(payments, &MockWalletReader{}, zap.NewNop())

	rec := serve(newEcho(), h.CreateTopUp, authed(jsonRequest(http.MethodPost, "/api/v1/wallet/topups", `{"amount":"50.00","currency":"USD"}`), user), nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "cs_1")
}

func TestGetWalletAndTransactions(t *testing.T) {
	user := &auth.AuthUser{UserID: uuid.New()}

	wallets := &MockWalletReader{}
	wallets.On("GetWallet", mock.Anything, user.UserID).Return(model.NewWallet(user.UserID, "USD"), nil)

	payments := &MockCheckoutService{}
	payments.On("ListTransactions", mock.Anything, user.UserID, 5, 0).Return([]model.Transaction{
		{ID: uuid.New(), UserID: user.UserID, Type: model.TransactionTypeWalletTopUp, Amount: decimal.NewFromInt(50), Currency: "USD"},
	}, nil)

	h := NewCheckoutHandler(payments, wallets, zap.NewNop())

	rec := serve(newEcho(), h.GetWallet, authed(httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil), user), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var wallet model.Wallet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wallet))
	assert.Equal(t, user.UserID, wallet.UserID)
	assert.True(t, wallet.Balance.IsZero())

	rec = serve(newEcho(), h.ListTransactions, authed(httptest.NewRequest(http.MethodGet, "/api/v1/wallet/transactions?limit=5", nil), user), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(model.TransactionTypeWalletTopUp))
	payments.AssertExpectations(t)
}
