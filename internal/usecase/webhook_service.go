package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	customErr "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	"github.com/wekeepgrowing/byway-payment/internal/domain/provider"
	domainRepo "github.com/wekeepgrowing/byway-payment/internal/domain/repository"
	"github.com/wekeepgrowing/byway-payment/internal/metrics"
)

// WebhookOutcome describes how a delivery was handled. Every outcome is a success for the gateway.
type WebhookOutcome string

const (
	OutcomeProcessed        WebhookOutcome = "processed"
	OutcomeAlreadyProcessed WebhookOutcome = "already_processed"
	OutcomeIgnored          WebhookOutcome = "ignored"
	OutcomeAcknowledged     WebhookOutcome = "acknowledged"
)

type WebhookResult struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Outcome   WebhookOutcome `json:"outcome"`
	Message   string         `json:"message,omitempty"`
}

// WebhookService settles orders and wallet top-ups from gateway callbacks.
type WebhookService struct {
	gateways    map[model.PaymentGateway]provider.WebhookGateway
	orderRepo   domainRepo.OrderRepository
	txRepo      domainRepo.TransactionRepository
	eventRepo   domainRepo.WebhookEventRepository
	wallets     *WalletService
	fulfillment *Fulfillment
	lock        CheckoutLock
	inflight    singleflight.Group
	logger      *zap.Logger
}

func NewWebhookService(
	gateways []provider.WebhookGateway,
	orderRepo domainRepo.OrderRepository,
	txRepo domainRepo.TransactionRepository,
	eventRepo domainRepo.WebhookEventRepository,
	wallets *WalletService,
	fulfillment *Fulfillment,
	lock CheckoutLock,
	logger *zap.Logger,
) *WebhookService {
	byName := make(map[model.PaymentGateway]provider.WebhookGateway, len(gateways))
	for _, gw := range gateways {
		byName[gw.Name()] = gw
	}
	return &WebhookService{
		gateways:    byName,
		orderRepo:   orderRepo,
		txRepo:      txRepo,
		eventRepo:   eventRepo,
		wallets:     wallets,
		fulfillment: fulfillment,
		lock:        lock,
		logger:      logger,
	}
}

// Gateway returns the webhook gateway registered under name.
func (s *WebhookService) Gateway(name model.PaymentGateway) (provider.WebhookGateway, bool) {
	gw, ok := s.gateways[name]
	return gw, ok
}

// HandleWebhook verifies and applies one delivery. The signature is checked
// before anything else is read or written.
func (s *WebhookService) HandleWebhook(ctx context.Context, gateway model.PaymentGateway, rawBody []byte, signature string) (*WebhookResult, error) {
	gw, ok := s.gateways[gateway]
	if !ok {
		return nil, customErr.NewNotFoundError("payment gateway", gateway)
	}

	event, err := gw.VerifySignature(rawBody, signature)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(string(gateway), "unknown", "rejected").Inc()
		s.logger.Warn("Webhook signature verification failed",
			zap.String("gateway", string(gateway)),
			zap.Error(err))
		if !customErr.IsInvalidSignature(err) {
			err = customErr.NewInvalidSignatureError(err)
		}
		return nil, err
	}

	// concurrent deliveries of one event share a single run
	v, err, shared := s.inflight.Do(string(gateway)+":"+event.ID, func() (interface{}, error) {
		return s.processLogged(ctx, gw, event)
	})
	if err != nil {
		return nil, err
	}
	result := *v.(*WebhookResult)
	if shared {
		s.logger.Debug("Webhook delivery collapsed into in-flight run", zap.String("event_id", event.ID))
	}
	return &result, nil
}

// Replay re-applies a logged delivery. Its signature was verified on receipt.
func (s *WebhookService) Replay(ctx context.Context, record *model.WebhookEventLog) (*WebhookResult, error) {
	gw, ok := s.gateways[record.Gateway]
	if !ok {
		return nil, customErr.NewNotFoundError("payment gateway", record.Gateway)
	}
	event, err := gw.ParseEvent([]byte(record.Payload))
	if err != nil {
		return nil, customErr.NewValidationError("stored webhook %s cannot be parsed: %v", record.EventID, err)
	}
	return s.processLogged(ctx, gw, event)
}

func (s *WebhookService) processLogged(ctx context.Context, gw provider.WebhookGateway, event *provider.WebhookEvent) (*WebhookResult, error) {
	log := s.logger.With(
		zap.String("gateway", string(gw.Name())),
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type))

	created, err := s.eventRepo.SaveEvent(ctx, &model.WebhookEventLog{
		Gateway:   gw.Name(),
		EventID:   event.ID,
		EventType: event.Type,
		Status:    model.WebhookStatusPending,
		Payload:   string(event.Raw),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record webhook event: %w", err)
	}
	if !created {
		existing, err := s.eventRepo.GetEvent(ctx, gw.Name(), event.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load webhook event: %w", err)
		}
		if existing != nil && existing.Status == model.WebhookStatusCompleted {
			log.Info("Webhook event already processed")
			metrics.WebhookEventsTotal.WithLabelValues(string(gw.Name()), string(event.Kind), "duplicate").Inc()
			return s.result(event, OutcomeAlreadyProcessed, "event already processed"), nil
		}
	}

	if err := s.eventRepo.MarkProcessing(ctx, gw.Name(), event.ID); err != nil {
		log.Warn("Failed to mark webhook event processing", zap.Error(err))
	}

	result, err := s.dispatch(ctx, gw, event)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(string(gw.Name()), string(event.Kind), "failed").Inc()
		if markErr := s.eventRepo.MarkFailed(ctx, gw.Name(), event.ID, err); markErr != nil {
			log.Error("Failed to mark webhook event failed", zap.Error(markErr))
		}
		return nil, err
	}

	metrics.WebhookEventsTotal.WithLabelValues(string(gw.Name()), string(event.Kind), string(result.Outcome)).Inc()
	if err := s.eventRepo.MarkProcessed(ctx, gw.Name(), event.ID); err != nil {
		log.Error("Failed to mark webhook event processed", zap.Error(err))
	}
	log.Info("Webhook event handled", zap.String("outcome", string(result.Outcome)), zap.String("message", result.Message))
	return result, nil
}

func (s *WebhookService) dispatch(ctx context.Context, gw provider.WebhookGateway, event *provider.WebhookEvent) (*WebhookResult, error) {
	switch {
	case gw.IsCheckoutSessionCompleted(event):
		return s.handleCheckoutCompleted(ctx, gw, event)
	case event.Kind == provider.EventPaymentFailed:
		return s.handlePaymentFailed(ctx, gw, event)
	default:
		return s.result(event, OutcomeIgnored, "event type not handled"), nil
	}
}

func (s *WebhookService) handleCheckoutCompleted(ctx context.Context, gw provider.WebhookGateway, event *provider.WebhookEvent) (*WebhookResult, error) {
	if event.Checkout == nil {
		return nil, customErr.NewValidationError("checkout event %s has no session data", event.ID)
	}
	meta, err := gw.ParseMetadata(event.Checkout.Metadata)
	if err != nil {
		return nil, err
	}

	if meta.IsWalletTopUp {
		return s.settleTopUp(ctx, gw, event, meta)
	}
	return s.settlePurchase(ctx, gw, event, meta)
}

func (s *WebhookService) settleTopUp(ctx context.Context, gw provider.WebhookGateway, event *provider.WebhookEvent, meta *provider.Metadata) (*WebhookResult, error) {
	defer s.unlockOrder(ctx, meta.OrderID)

	session := event.Checkout
	tx, err := s.resolveTransaction(ctx, meta.OrderID, model.TransactionTypeWalletTopUp, session.SessionID, func() *model.Transaction {
		tx := model.NewTransaction(meta.UserID, model.TransactionTypeWalletTopUp, session.AmountTotal, session.Currency, gw.Name()).
			WithTransactionID(session.SessionID)
		tx.ID = meta.OrderID
		return tx
	})
	if err != nil {
		return nil, err
	}
	if tx.IsCompleted() {
		return s.result(event, OutcomeAlreadyProcessed, "top-up already processed"), nil
	}
	if tx.UserID != meta.UserID {
		return nil, customErr.NewValidationError("top-up %s does not belong to user %s", tx.ID, meta.UserID)
	}

	result, err := s.wallets.Credit(ctx, tx.UserID, tx.Amount, tx.Currency, tx)
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues("topup", "failed").Inc()
		return nil, customErr.NewPaymentError("failed to credit wallet top-up", err)
	}
	if !result.Applied {
		return s.result(event, OutcomeAlreadyProcessed, "top-up already processed"), nil
	}

	metrics.SettlementsTotal.WithLabelValues("topup", "completed").Inc()
	metrics.PaymentAmount.WithLabelValues("topup").Observe(tx.Amount.InexactFloat64())
	return s.result(event, OutcomeProcessed, "wallet credited"), nil
}

func (s *WebhookService) settlePurchase(ctx context.Context, gw provider.WebhookGateway, event *provider.WebhookEvent, meta *provider.Metadata) (*WebhookResult, error) {
	order, err := s.orderRepo.FindByID(ctx, meta.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		return nil, customErr.NewNotFoundError("order", meta.OrderID)
	}
	defer s.unlockOrder(ctx, order.ID)

	if order.IsPaid() {
		return s.result(event, OutcomeAlreadyProcessed, "order already processed"), nil
	}
	if order.UserID != meta.UserID {
		return nil, customErr.NewValidationError("order %s does not belong to user %s", order.ID, meta.UserID)
	}

	session := event.Checkout
	if !session.AmountTotal.IsZero() && !session.AmountTotal.Equal(order.TotalAmount) {
		s.logger.Warn("Gateway amount differs from order total; using order total",
			zap.String("order_id", order.ID.String()),
			zap.String("gateway_amount", session.AmountTotal.StringFixed(2)),
			zap.String("order_amount", order.TotalAmount.StringFixed(2)))
	}

	tx, err := s.resolveTransaction(ctx, order.ID, model.TransactionTypePurchase, session.SessionID, func() *model.Transaction {
		return model.NewTransaction(order.UserID, model.TransactionTypePurchase, order.TotalAmount, order.Currency, gw.Name()).
			WithOrder(order.ID).
			WithTransactionID(session.SessionID)
	})
	if err != nil {
		return nil, err
	}

	intentID, err := gw.GetPaymentIntentID(event)
	if err != nil || intentID == "" {
		intentID = session.SessionID
	}

	// The order is still payable here, so the transaction stays PENDING and the
	// failed event's retry settles the same row.
	won, err := s.orderRepo.MarkCompleted(ctx, order.ID, gw.Name(), intentID)
	if err != nil {
		return nil, fmt.Errorf("failed to complete order: %w", err)
	}
	if !won {
		return s.result(event, OutcomeAlreadyProcessed, "order already processed"), nil
	}
	order.Status = model.OrderStatusCompleted
	order.PaymentStatus = model.OrderStatusCompleted
	order.PaymentGateway = gw.Name()
	order.PaymentIntentID = &intentID

	if err := s.fulfillment.Complete(ctx, order, tx); err != nil {
		return nil, err
	}
	return s.result(event, OutcomeProcessed, "order completed"), nil
}

// RedriveOrder re-runs fulfillment for a COMPLETED order whose purchase
// transaction did not complete.
func (s *WebhookService) RedriveOrder(ctx context.Context, orderID uuid.UUID) (*WebhookResult, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		return nil, customErr.NewNotFoundError("order", orderID)
	}
	if !order.IsPaid() {
		return nil, customErr.NewBusinessRuleViolation("order %s is %s; only completed orders can be re-driven", orderID, order.PaymentStatus)
	}

	tx, err := s.txRepo.FindByOrderID(ctx, orderID, model.TransactionTypePurchase)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	if tx == nil {
		return nil, customErr.NewNotFoundError("purchase transaction for order", orderID)
	}
	if tx.IsCompleted() {
		return &WebhookResult{Outcome: OutcomeAlreadyProcessed, Message: "order already fulfilled"}, nil
	}

	if err := s.fulfillment.Complete(ctx, order, tx); err != nil {
		return nil, err
	}
	s.logger.Info("Order re-driven", zap.String("order_id", orderID.String()))
	return &WebhookResult{Outcome: OutcomeProcessed, Message: "order fulfilled"}, nil
}

func (s *WebhookService) handlePaymentFailed(ctx context.Context, gw provider.WebhookGateway, event *provider.WebhookEvent) (*WebhookResult, error) {
	log := s.logger.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	intentID, err := gw.GetPaymentIntentID(event)
	if err != nil || intentID == "" {
		log.Warn("Payment failure event has no payment intent", zap.Error(err))
		return s.result(event, OutcomeAcknowledged, "no payment intent on failure event"), nil
	}

	meta, err := gw.GetCheckoutSessionMetadata(ctx, intentID)
	if err != nil {
		log.Warn("Payment failure metadata lookup failed", zap.String("payment_intent_id", intentID), zap.Error(err))
		return s.result(event, OutcomeAcknowledged, "failure metadata unavailable"), nil
	}
	defer s.unlockOrder(ctx, meta.OrderID)

	if meta.IsWalletTopUp {
		return s.failTopUp(ctx, event, meta)
	}

	order, err := s.orderRepo.FindByID(ctx, meta.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		log.Warn("Payment failure for unknown order", zap.String("order_id", meta.OrderID.String()))
		return s.result(event, OutcomeAcknowledged, "order not found"), nil
	}
	// COMPLETED is never downgraded by a late failure
	if order.PaymentStatus == model.OrderStatusFailed || order.PaymentStatus == model.OrderStatusCompleted {
		return s.result(event, OutcomeAlreadyProcessed, "order already processed"), nil
	}

	tx, err := s.txRepo.FindByOrderID(ctx, order.ID, model.TransactionTypePurchase)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	if tx != nil && tx.Status == model.TransactionStatusPending {
		if err := s.txRepo.UpdateStatus(ctx, tx.ID, model.TransactionStatusFailed); err != nil {
			return nil, fmt.Errorf("failed to mark transaction failed: %w", err)
		}
	}

	if _, err := s.orderRepo.MarkFailed(ctx, order.ID); err != nil {
		return nil, fmt.Errorf("failed to mark order failed: %w", err)
	}

	fields := []zap.Field{zap.String("order_id", order.ID.String())}
	if failure := event.Failure; failure != nil {
		fields = append(fields,
			zap.String("failure_code", failure.FailureCode),
			zap.String("failure_message", failure.FailureMessage))
	}
	log.Info("Order payment failed", fields...)
	metrics.SettlementsTotal.WithLabelValues("purchase", "payment_failed").Inc()
	return s.result(event, OutcomeProcessed, "order marked failed"), nil
}

func (s *WebhookService) failTopUp(ctx context.Context, event *provider.WebhookEvent, meta *provider.Metadata) (*WebhookResult, error) {
	tx, err := s.txRepo.FindByID(ctx, meta.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load top-up transaction: %w", err)
	}
	if tx == nil || tx.Status != model.TransactionStatusPending {
		return s.result(event, OutcomeAlreadyProcessed, "top-up already processed"), nil
	}
	if err := s.txRepo.UpdateStatus(ctx, tx.ID, model.TransactionStatusFailed); err != nil {
		return nil, fmt.Errorf("failed to mark top-up failed: %w", err)
	}
	metrics.SettlementsTotal.WithLabelValues("topup", "payment_failed").Inc()
	return s.result(event, OutcomeProcessed, "top-up marked failed"), nil
}

// resolveTransaction finds the ledger row for a settlement, creating it from
// build when none exists. A unique-key collision means a concurrent delivery
// created it first, so the row is re-read by its key.
func (s *WebhookService) resolveTransaction(ctx context.Context, orderID uuid.UUID, txType model.TransactionType, sessionID string, build func() *model.Transaction) (*model.Transaction, error) {
	tx, err := s.txRepo.FindByOrderID(ctx, orderID, txType)
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction by order: %w", err)
	}
	if tx == nil {
		byID, err := s.txRepo.FindByID(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("failed to find transaction: %w", err)
		}
		if byID != nil && byID.Type == txType {
			tx = byID
		}
	}
	if tx == nil && sessionID != "" {
		if tx, err = s.txRepo.FindByTransactionID(ctx, sessionID); err != nil {
			return nil, fmt.Errorf("failed to find transaction by key: %w", err)
		}
	}
	if tx != nil {
		return tx, nil
	}

	tx = build()
	err = s.txRepo.Create(ctx, tx)
	if err == nil {
		return tx, nil
	}
	if !errors.Is(err, customErr.ErrDuplicateTransactionID) || tx.TransactionID == nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	existing, err := s.txRepo.FindByTransactionID(ctx, *tx.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-resolve transaction: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("transaction %s collided but cannot be found", *tx.TransactionID)
	}
	return existing, nil
}

func (s *WebhookService) unlockOrder(ctx context.Context, orderID uuid.UUID) {
	if err := s.lock.UnlockByOrder(ctx, orderID); err != nil {
		s.logger.Warn("Failed to release checkout lock", zap.String("order_id", orderID.String()), zap.Error(err))
	}
}

func (s *WebhookService) result(event *provider.WebhookEvent, outcome WebhookOutcome, message string) *WebhookResult {
	return &WebhookResult{
		EventID:   event.ID,
		EventType: event.Type,
		Outcome:   outcome,
		Message:   message,
	}
}
