package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	customErr "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	"github.com/wekeepgrowing/byway-payment/internal/domain/provider"
	domainRepo "github.com/wekeepgrowing/byway-payment/internal/domain/repository"
	"github.com/wekeepgrowing/byway-payment/internal/metrics"
)

// Fulfillment delivers what a paid order bought. Every step is safe to repeat.
type Fulfillment struct {
	txRepo         domainRepo.TransactionRepository
	enrollmentRepo domainRepo.EnrollmentRepository
	cartRepo       domainRepo.CartRepository
	revenue        *RevenueDistributionService
	notifier       provider.NotificationSender
	logger         *zap.Logger
}

func NewFulfillment(
	txRepo domainRepo.TransactionRepository,
	enrollmentRepo domainRepo.EnrollmentRepository,
	cartRepo domainRepo.CartRepository,
	revenue *RevenueDistributionService,
	notifier provider.NotificationSender,
	logger *zap.Logger,
) *Fulfillment {
	return &Fulfillment{
		txRepo:         txRepo,
		enrollmentRepo: enrollmentRepo,
		cartRepo:       cartRepo,
		revenue:        revenue,
		notifier:       notifier,
		logger:         logger,
	}
}

// Complete fulfills a COMPLETED order and completes its purchase transaction.
// On failure the transaction is marked FAILED and the order stays COMPLETED,
// so the purchase can be re-driven.
func (f *Fulfillment) Complete(ctx context.Context, order *model.Order, tx *model.Transaction) error {
	if err := f.Fulfill(ctx, order); err != nil {
		f.failTransaction(ctx, tx, err)
		metrics.SettlementsTotal.WithLabelValues("purchase", "failed").Inc()
		return customErr.NewPaymentError(fmt.Sprintf("failed to settle order %s", order.ID), err)
	}
	if !tx.IsCompleted() {
		if err := f.txRepo.UpdateStatus(ctx, tx.ID, model.TransactionStatusCompleted); err != nil {
			f.failTransaction(ctx, tx, err)
			metrics.SettlementsTotal.WithLabelValues("purchase", "failed").Inc()
			return customErr.NewPaymentError(fmt.Sprintf("failed to complete transaction for order %s", order.ID), err)
		}
		tx.Status = model.TransactionStatusCompleted
	}

	metrics.SettlementsTotal.WithLabelValues("purchase", "completed").Inc()
	metrics.PaymentAmount.WithLabelValues("purchase").Observe(order.TotalAmount.InexactFloat64())
	f.NotifyPurchaseSuccess(ctx, order)
	return nil
}

func (f *Fulfillment) failTransaction(ctx context.Context, tx *model.Transaction, cause error) {
	if err := f.txRepo.UpdateStatus(ctx, tx.ID, model.TransactionStatusFailed); err != nil {
		f.logger.Error("Failed to mark transaction failed",
			zap.String("transaction_id", tx.ID.String()),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	tx.Status = model.TransactionStatusFailed
}

// Fulfill enrolls the buyer, distributes revenue and clears the cart.
func (f *Fulfillment) Fulfill(ctx context.Context, order *model.Order) error {
	for _, item := range order.Items {
		if err := f.enroll(ctx, order, item.CourseID); err != nil {
			return err
		}
	}

	if _, err := f.revenue.DistributeRevenue(ctx, order.ID); err != nil {
		return fmt.Errorf("revenue distribution: %w", err)
	}

	if err := f.cartRepo.DeleteByUserAndCourses(ctx, order.UserID, order.CourseIDs()); err != nil {
		f.logger.Warn("Failed to clear cart after purchase",
			zap.String("order_id", order.ID.String()),
			zap.String("user_id", order.UserID.String()),
			zap.Error(err))
	}
	return nil
}

func (f *Fulfillment) enroll(ctx context.Context, order *model.Order, courseID uuid.UUID) error {
	existing, err := f.enrollmentRepo.FindByUserAndCourse(ctx, order.UserID, courseID)
	if err != nil {
		return fmt.Errorf("failed to check enrollment: %w", err)
	}
	if existing != nil {
		return nil
	}

	orderID := order.ID
	err = f.enrollmentRepo.Create(ctx, &model.Enrollment{
		ID:        uuid.New(),
		UserID:    order.UserID,
		CourseID:  courseID,
		OrderID:   &orderID,
		CreatedAt: time.Now(),
	})
	if err != nil && !errors.Is(err, customErr.ErrDuplicateEnrollment) {
		return fmt.Errorf("failed to create enrollment for course %s: %w", courseID, err)
	}
	return nil
}

// NotifyPurchaseSuccess emits the real-time purchase_success event to the buyer.
func (f *Fulfillment) NotifyPurchaseSuccess(ctx context.Context, order *model.Order) {
	courseIDs := make([]string, 0, len(order.Items))
	for _, id := range order.CourseIDs() {
		courseIDs = append(courseIDs, id.String())
	}

	sendQuietly(ctx, f.notifier, f.logger, &model.Notification{
		UserID:  order.UserID,
		Type:    model.NotificationPurchaseSuccess,
		Title:   "Payment successful",
		Message: "Your purchase is complete.",
		Data: map[string]interface{}{
			"order_id":     order.ID.String(),
			"course_ids":   courseIDs,
			"total_amount": order.TotalAmount.StringFixed(2),
			"currency":     order.Currency,
		},
		CreatedAt: time.Now(),
	})
}
