package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	customErr "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	"github.com/wekeepgrowing/byway-payment/internal/domain/provider"
	domainRepo "github.com/wekeepgrowing/byway-payment/internal/domain/repository"
	"github.com/wekeepgrowing/byway-payment/internal/metrics"
)

// CheckoutRequest starts a course purchase.
type CheckoutRequest struct {
	UserID     uuid.UUID   `json:"-" validate:"required"`
	Email      string      `json:"email" validate:"omitempty,email"`
	CourseIDs  []uuid.UUID `json:"course_ids" validate:"required,min=1,max=50"`
	CouponCode string      `json:"coupon_code" validate:"omitempty,max=100"`
	UseWallet  bool        `json:"use_wallet"`
	Gateway    string      `json:"gateway" validate:"omitempty,oneof=STRIPE RAZORPAY"`
}

// TopUpRequest starts a wallet top-up through a gateway.
type TopUpRequest struct {
	UserID   uuid.UUID       `json:"-" validate:"required"`
	Email    string          `json:"email" validate:"omitempty,email"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"omitempty,len=3"`
	Gateway  string          `json:"gateway" validate:"omitempty,oneof=STRIPE RAZORPAY"`
}

type CheckoutResult struct {
	OrderID     uuid.UUID            `json:"order_id"`
	SessionID   string               `json:"session_id,omitempty"`
	CheckoutURL string               `json:"checkout_url,omitempty"`
	Status      string               `json:"status"`
	Gateway     model.PaymentGateway `json:"gateway"`
	TotalAmount decimal.Decimal      `json:"total_amount"`
	Currency    string               `json:"currency"`
}

type CheckoutConfig struct {
	LockTTL         time.Duration
	SuccessURL      string
	CancelURL       string
	DefaultGateway  model.PaymentGateway
	DefaultCurrency string
}

// PaymentService creates checkouts and runs the synchronous wallet payment path.
type PaymentService struct {
	orderRepo      domainRepo.OrderRepository
	txRepo         domainRepo.TransactionRepository
	enrollmentRepo domainRepo.EnrollmentRepository
	gateways       map[model.PaymentGateway]provider.PaymentGateway
	wallets        *WalletService
	fulfillment    *Fulfillment
	lock           CheckoutLock
	validate       *validator.Validate
	cfg            CheckoutConfig
	logger         *zap.Logger
}

func NewPaymentService(
	orderRepo domainRepo.OrderRepository,
	txRepo domainRepo.TransactionRepository,
	enrollmentRepo domainRepo.EnrollmentRepository,
	gateways []provider.PaymentGateway,
	wallets *WalletService,
	fulfillment *Fulfillment,
	lock CheckoutLock,
	cfg CheckoutConfig,
	logger *zap.Logger,
) *PaymentService {
	byName := make(map[model.PaymentGateway]provider.PaymentGateway, len(gateways))
	for _, gw := range gateways {
		byName[gw.Name()] = gw
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 15 * time.Minute
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	return &PaymentService{
		orderRepo:      orderRepo,
		txRepo:         txRepo,
		enrollmentRepo: enrollmentRepo,
		gateways:       byName,
		wallets:        wallets,
		fulfillment:    fulfillment,
		lock:           lock,
		validate:       validator.New(),
		cfg:            cfg,
		logger:         logger,
	}
}

// CreateCheckout places a PENDING order and either pays it from the wallet or
// opens a gateway session. The checkout lock stays held for a gateway session
// until its webhook arrives or the lock expires.
func (s *PaymentService) CreateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, customErr.NewValidationError("invalid checkout request: %v", err)
	}

	var gw provider.PaymentGateway
	if !req.UseWallet {
		var err error
		if gw, err = s.gateway(req.Gateway); err != nil {
			return nil, err
		}
	}

	orderID := uuid.New()
	acquired, err := s.lock.TryLock(ctx, req.UserID, orderID, s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire checkout lock: %w", err)
	}
	if !acquired {
		metrics.CheckoutLockRejections.Inc()
		return nil, customErr.ErrCheckoutInProgress
	}

	release := true
	defer func() {
		if release {
			if err := s.lock.UnlockByOrder(ctx, orderID); err != nil {
				s.logger.Warn("Failed to release checkout lock", zap.String("order_id", orderID.String()), zap.Error(err))
			}
		}
	}()

	items, courses, err := s.buildItems(ctx, req.UserID, req.CourseIDs)
	if err != nil {
		return nil, err
	}

	var coupon *string
	if req.CouponCode != "" {
		code := strings.TrimSpace(req.CouponCode)
		coupon = &code
	}

	gatewayName := model.GatewayWallet
	if gw != nil {
		gatewayName = gw.Name()
	}
	order := model.NewOrder(orderID, req.UserID, courses[0].Currency, gatewayName, items, coupon)
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	log := s.logger.With(zap.String("order_id", order.ID.String()), zap.String("user_id", req.UserID.String()))

	if req.UseWallet {
		if err := s.PayWithWallet(ctx, order); err != nil {
			if !customErr.IsPaymentError(err) {
				if _, markErr := s.orderRepo.MarkFailed(ctx, order.ID); markErr != nil {
					log.Error("Failed to mark order failed after wallet error", zap.Error(markErr))
				}
			}
			return nil, err
		}
		log.Info("Order paid from wallet", zap.String("amount", order.TotalAmount.StringFixed(2)))
		return &CheckoutResult{
			OrderID:     order.ID,
			Status:      string(model.OrderStatusCompleted),
			Gateway:     model.GatewayWallet,
			TotalAmount: order.TotalAmount,
			Currency:    order.Currency,
		}, nil
	}

	input := &provider.CheckoutSessionInput{
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
		Metadata: provider.Metadata{
			UserID:     req.UserID,
			OrderID:    order.ID,
			CourseIDs:  order.CourseIDs(),
			CouponCode: req.CouponCode,
		},
	}
	for i, item := range items {
		input.LineItems = append(input.LineItems, provider.LineItem{
			Name:      courses[i].Title,
			UnitPrice: item.EffectivePrice(),
			Currency:  order.Currency,
			Quantity:  1,
		})
	}

	session, err := gw.CreateCheckoutSession(ctx, input, req.Email, order.ID)
	if err != nil {
		if _, markErr := s.orderRepo.MarkFailed(ctx, order.ID); markErr != nil {
			log.Error("Failed to mark order failed after session error", zap.Error(markErr))
		}
		return nil, customErr.NewPaymentError("failed to create checkout session", err)
	}

	tx := model.NewTransaction(req.UserID, model.TransactionTypePurchase, order.TotalAmount, order.Currency, gw.Name()).
		WithOrder(order.ID).
		WithTransactionID(session.ID)
	if err := s.txRepo.Create(ctx, tx); err != nil {
		// the webhook recreates the row from the session if this one is missing
		log.Error("Failed to record pending purchase transaction", zap.String("session_id", session.ID), zap.Error(err))
	}

	release = false
	log.Info("Checkout session created",
		zap.String("gateway", string(gw.Name())),
		zap.String("session_id", session.ID),
		zap.String("amount", order.TotalAmount.StringFixed(2)))

	return &CheckoutResult{
		OrderID:     order.ID,
		SessionID:   session.ID,
		CheckoutURL: session.URL,
		Status:      string(model.OrderStatusPending),
		Gateway:     gw.Name(),
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
	}, nil
}

func (s *PaymentService) buildItems(ctx context.Context, userID uuid.UUID, courseIDs []uuid.UUID) ([]model.OrderItem, []*model.Course, error) {
	seen := make(map[uuid.UUID]bool, len(courseIDs))
	items := make([]model.OrderItem, 0, len(courseIDs))
	courses := make([]*model.Course, 0, len(courseIDs))

	for _, courseID := range courseIDs {
		if courseID == uuid.Nil {
			return nil, nil, customErr.NewValidationError("course id must not be empty")
		}
		if seen[courseID] {
			continue
		}
		seen[courseID] = true

		course, err := s.orderRepo.FindCourseByID(ctx, courseID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load course: %w", err)
		}
		if course == nil {
			return nil, nil, customErr.NewNotFoundError("course", courseID)
		}
		if len(courses) > 0 && !strings.EqualFold(course.Currency, courses[0].Currency) {
			return nil, nil, customErr.NewValidationError("courses in one order must share a currency")
		}

		enrolled, err := s.enrollmentRepo.FindByUserAndCourse(ctx, userID, courseID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to check enrollment: %w", err)
		}
		if enrolled != nil {
			return nil, nil, customErr.NewBusinessRuleViolation("already enrolled in course %s", courseID)
		}

		items = append(items, model.OrderItem{
			ID:                   uuid.New(),
			CourseID:             course.ID,
			CoursePrice:          course.Price,
			Discount:             decimal.Zero,
			AdminSharePercentage: course.AdminSharePercentage,
			CreatedAt:            time.Now(),
		})
		courses = append(courses, course)
	}
	return items, courses, nil
}

// PayWithWallet settles a PENDING order from the buyer's wallet balance.
func (s *PaymentService) PayWithWallet(ctx context.Context, order *model.Order) error {
	wallet, err := s.wallets.FindWallet(ctx, order.UserID)
	if err != nil {
		return err
	}
	if wallet == nil {
		return customErr.NewNotFoundError("wallet for user", order.UserID)
	}
	if !wallet.HasSufficientBalance(order.TotalAmount, order.Currency) {
		return customErr.NewInsufficientBalanceError(order.TotalAmount, wallet.Balance)
	}

	tx := model.NewTransaction(order.UserID, model.TransactionTypePurchase, order.TotalAmount, order.Currency, model.GatewayWallet).
		WithOrder(order.ID).
		WithTransactionID(model.WalletPurchaseKey(order.ID))

	if order.TotalAmount.IsPositive() {
		result, err := s.wallets.Debit(ctx, order.UserID, order.TotalAmount, order.Currency, tx)
		if err != nil {
			return err
		}
		if !result.Applied {
			s.logger.Info("Wallet payment already applied", zap.String("order_id", order.ID.String()))
			return nil
		}
		tx = result.Transaction
	} else {
		tx.Status = model.TransactionStatusCompleted
		tx.WalletID = &wallet.ID
		if err := s.txRepo.Create(ctx, tx); err != nil {
			if errors.Is(err, customErr.ErrDuplicateTransactionID) {
				return nil
			}
			return fmt.Errorf("failed to record wallet purchase: %w", err)
		}
	}

	won, err := s.orderRepo.MarkCompleted(ctx, order.ID, model.GatewayWallet, tx.ID.String())
	if err != nil {
		return fmt.Errorf("failed to complete order: %w", err)
	}
	if !won {
		return nil
	}
	order.Status = model.OrderStatusCompleted
	order.PaymentStatus = model.OrderStatusCompleted
	order.PaymentGateway = model.GatewayWallet

	return s.fulfillment.Complete(ctx, order, tx)
}

// CreateWalletTopUp opens a gateway session that credits the wallet once paid.
// The top-up transaction id doubles as the session's order id.
func (s *PaymentService) CreateWalletTopUp(ctx context.Context, req *TopUpRequest) (*CheckoutResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, customErr.NewValidationError("invalid top-up request: %v", err)
	}
	if !req.Amount.IsPositive() {
		return nil, customErr.ErrNonPositiveAmount
	}
	currency := req.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	amount, err := model.NewMoney(req.Amount.Round(2), currency)
	if err != nil {
		return nil, err
	}

	gw, err := s.gateway(req.Gateway)
	if err != nil {
		return nil, err
	}

	txID := uuid.New()
	acquired, err := s.lock.TryLock(ctx, req.UserID, txID, s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire checkout lock: %w", err)
	}
	if !acquired {
		metrics.CheckoutLockRejections.Inc()
		return nil, customErr.ErrCheckoutInProgress
	}

	input := &provider.CheckoutSessionInput{
		LineItems: []provider.LineItem{{
			Name:      "Wallet top-up",
			UnitPrice: amount.Amount(),
			Currency:  amount.Currency(),
			Quantity:  1,
		}},
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
		Metadata: provider.Metadata{
			UserID:        req.UserID,
			OrderID:       txID,
			IsWalletTopUp: true,
		},
	}

	session, err := gw.CreateCheckoutSession(ctx, input, req.Email, txID)
	if err != nil {
		if unlockErr := s.lock.UnlockByOrder(ctx, txID); unlockErr != nil {
			s.logger.Warn("Failed to release checkout lock", zap.Error(unlockErr))
		}
		return nil, customErr.NewPaymentError("failed to create top-up session", err)
	}

	tx := model.NewTransaction(req.UserID, model.TransactionTypeWalletTopUp, amount.Amount(), amount.Currency(), gw.Name()).
		WithTransactionID(session.ID)
	tx.ID = txID
	if err := s.txRepo.Create(ctx, tx); err != nil {
		s.logger.Error("Failed to record pending top-up transaction",
			zap.String("transaction_id", txID.String()),
			zap.String("session_id", session.ID),
			zap.Error(err))
	}

	s.logger.Info("Wallet top-up session created",
		zap.String("user_id", req.UserID.String()),
		zap.String("transaction_id", txID.String()),
		zap.String("amount", amount.String()))

	return &CheckoutResult{
		OrderID:     txID,
		SessionID:   session.ID,
		CheckoutURL: session.URL,
		Status:      string(model.TransactionStatusPending),
		Gateway:     gw.Name(),
		TotalAmount: amount.Amount(),
		Currency:    amount.Currency(),
	}, nil
}

// ListTransactions returns the user's ledger history, newest first.
func (s *PaymentService) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	txs, err := s.txRepo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

func (s *PaymentService) gateway(name string) (provider.PaymentGateway, error) {
	key := s.cfg.DefaultGateway
	if name != "" {
		key = model.PaymentGateway(strings.ToUpper(name))
	}
	gw, ok := s.gateways[key]
	if !ok {
		return nil, customErr.NewValidationError("payment gateway %q is not available", key)
	}
	return gw, nil
}
