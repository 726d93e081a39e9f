package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	customErr "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	"github.com/wekeepgrowing/byway-payment/internal/domain/provider"
	domainRepo "github.com/wekeepgrowing/byway-payment/internal/domain/repository"
	"github.com/wekeepgrowing/byway-payment/internal/metrics"
)

const (
	revenueSideAdmin      = "admin"
	revenueSideInstructor = "instructor"
)

var hundred = decimal.NewFromInt(100)

// RevenueSplit is the outcome for one order item.
type RevenueSplit struct {
	CourseID        uuid.UUID
	InstructorID    uuid.UUID
	AdminShare      decimal.Decimal
	InstructorShare decimal.Decimal
}

// RevenueDistributionService splits each order item between the platform and the course instructor.
type RevenueDistributionService struct {
	orderRepo    domainRepo.OrderRepository
	userRepo     domainRepo.UserRepository
	wallets      *WalletService
	notifier     provider.NotificationSender
	adminUserID  uuid.UUID
	defaultShare decimal.Decimal
	logger       *zap.Logger
}

type RevenueConfig struct {
	// AdminUserID receives the platform share; uuid.Nil means the first ADMIN user.
	AdminUserID uuid.UUID
	// DefaultSharePercentage applies to items without their own percentage.
	// Nil means model.DefaultAdminSharePercentage; zero is a valid 0% fee.
	DefaultSharePercentage *decimal.Decimal
}

func NewRevenueDistributionService(
	orderRepo domainRepo.OrderRepository,
	userRepo domainRepo.UserRepository,
	wallets *WalletService,
	notifier provider.NotificationSender,
	cfg RevenueConfig,
	logger *zap.Logger,
) *RevenueDistributionService {
	share := model.DefaultAdminSharePercentage
	if cfg.DefaultSharePercentage != nil {
		share = *cfg.DefaultSharePercentage
	}
	return &RevenueDistributionService{
		orderRepo:    orderRepo,
		userRepo:     userRepo,
		wallets:      wallets,
		notifier:     notifier,
		adminUserID:  cfg.AdminUserID,
		defaultShare: share,
		logger:       logger,
	}
}

// DistributeRevenue credits the platform admin and each instructor for a completed order.
// Items are processed in order; on error the earlier items stay credited. Every
// credit carries a natural key, so running it again for the same order only
// applies what is missing.
func (s *RevenueDistributionService) DistributeRevenue(ctx context.Context, orderID uuid.UUID) ([]RevenueSplit, error) {
	items, err := s.orderRepo.ListItems(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	if len(items) == 0 {
		return nil, customErr.NewNotFoundError("order items for order", orderID)
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		return nil, customErr.NewNotFoundError("order", orderID)
	}

	admin, err := s.platformAdmin(ctx)
	if err != nil {
		return nil, err
	}

	splits := make([]RevenueSplit, 0, len(items))
	for _, item := range items {
		split, err := s.distributeItem(ctx, order, admin, item)
		if err != nil {
			s.logger.Error("Revenue distribution stopped",
				zap.String("order_id", orderID.String()),
				zap.String("course_id", item.CourseID.String()),
				zap.Int("items_done", len(splits)),
				zap.Error(err))
			return splits, err
		}
		splits = append(splits, *split)
	}

	s.logger.Info("Revenue distributed",
		zap.String("order_id", orderID.String()),
		zap.Int("items", len(splits)))
	return splits, nil
}

func (s *RevenueDistributionService) platformAdmin(ctx context.Context) (*model.User, error) {
	var (
		admin *model.User
		err   error
	)
	if s.adminUserID != uuid.Nil {
		admin, err = s.userRepo.FindByID(ctx, s.adminUserID)
	} else {
		admin, err = s.userRepo.FindPlatformAdmin(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load platform admin: %w", err)
	}
	if admin == nil {
		return nil, customErr.NewNotFoundError("platform admin", "user")
	}
	return admin, nil
}

func (s *RevenueDistributionService) distributeItem(ctx context.Context, order *model.Order, admin *model.User, item model.OrderItem) (*RevenueSplit, error) {
	course, err := s.orderRepo.FindCourseByID(ctx, item.CourseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load course: %w", err)
	}
	if course == nil {
		return nil, customErr.NewNotFoundError("course", item.CourseID)
	}

	instructor, err := s.userRepo.FindByID(ctx, course.CreatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instructor: %w", err)
	}
	if instructor == nil {
		return nil, customErr.NewNotFoundError("instructor", course.CreatorID)
	}

	price := item.EffectivePrice()
	pct := item.SharePercentage(s.defaultShare)
	adminShare := price.Mul(pct).Div(hundred).Round(2)
	instructorShare := price.Sub(adminShare)

	split := &RevenueSplit{
		CourseID:        course.ID,
		InstructorID:    instructor.ID,
		AdminShare:      adminShare,
		InstructorShare: instructorShare,
	}

	adminApplied, err := s.credit(ctx, order, course, admin.ID, adminShare, pct, revenueSideAdmin)
	if err != nil {
		return nil, err
	}
	instructorApplied, err := s.credit(ctx, order, course, instructor.ID, instructorShare, pct, revenueSideInstructor)
	if err != nil {
		return nil, err
	}

	// a re-run that applied nothing new has already notified
	if adminApplied || instructorApplied || (!adminShare.IsPositive() && !instructorShare.IsPositive()) {
		s.notifyItem(ctx, order, course, admin.ID, instructor.ID, split)
	}
	return split, nil
}

func (s *RevenueDistributionService) credit(ctx context.Context, order *model.Order, course *model.Course, userID uuid.UUID, amount, pct decimal.Decimal, side string) (bool, error) {
	if !amount.IsPositive() {
		return false, nil
	}

	tx := model.NewTransaction(userID, model.TransactionTypeRevenue, amount, order.Currency, model.GatewayInternal).
		WithOrder(order.ID).
		WithTransactionID(model.RevenueKey(order.ID, course.ID, side))
	tx.Metadata = datatypes.JSONMap{
		"course_id":        course.ID.String(),
		"side":             side,
		"share_percentage": pct.String(),
	}

	result, err := s.wallets.Credit(ctx, userID, amount, order.Currency, tx)
	if err != nil {
		return false, fmt.Errorf("failed to credit %s revenue for course %s: %w", side, course.ID, err)
	}
	if result.Applied {
		metrics.PaymentAmount.WithLabelValues("revenue_" + side).Observe(amount.InexactFloat64())
	}
	return result.Applied, nil
}

func (s *RevenueDistributionService) notifyItem(ctx context.Context, order *model.Order, course *model.Course, adminID, instructorID uuid.UUID, split *RevenueSplit) {
	now := time.Now()
	data := map[string]interface{}{
		"order_id":  order.ID.String(),
		"course_id": course.ID.String(),
	}
	with := func(extra map[string]interface{}) map[string]interface{} {
		out := make(map[string]interface{}, len(data)+len(extra))
		for k, v := range data {
			out[k] = v
		}
		for k, v := range extra {
			out[k] = v
		}
		return out
	}

	notifications := []*model.Notification{
		{
			UserID:    instructorID,
			Type:      model.NotificationInstructorRevenue,
			Title:     "New course sale",
			Message:   fmt.Sprintf("You earned %s %s from a sale of %q.", split.InstructorShare.StringFixed(2), order.Currency, course.Title),
			Data:      with(map[string]interface{}{"amount": split.InstructorShare.StringFixed(2)}),
			CreatedAt: now,
		},
		{
			UserID:    adminID,
			Type:      model.NotificationAdminRevenue,
			Title:     "Platform revenue",
			Message:   fmt.Sprintf("Platform share of %s %s from %q.", split.AdminShare.StringFixed(2), order.Currency, course.Title),
			Data:      with(map[string]interface{}{"amount": split.AdminShare.StringFixed(2)}),
			CreatedAt: now,
		},
		{
			UserID:    order.UserID,
			Type:      model.NotificationPurchaseConfirmation,
			Title:     "Purchase confirmed",
			Message:   fmt.Sprintf("You now have access to %q.", course.Title),
			Data:      data,
			CreatedAt: now,
		},
	}

	for _, n := range notifications {
		sendQuietly(ctx, s.notifier, s.logger, n)
	}
}

// sendQuietly delivers n and only logs failures.
func sendQuietly(ctx context.Context, notifier provider.NotificationSender, logger *zap.Logger, n *model.Notification) {
	if notifier == nil {
		return
	}
	if err := notifier.Send(ctx, n); err != nil {
		logger.Warn("Failed to send notification",
			zap.String("user_id", n.UserID.String()),
			zap.String("type", string(n.Type)),
			zap.Error(err))
	}
}
