package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	customErr "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/byway-payment/internal/domain/repository"
)

type enrollmentRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewEnrollmentRepository creates a new enrollment repository
func NewEnrollmentRepository(db *gorm.DB, logger *zap.Logger) domainRepo.EnrollmentRepository {
	return &enrollmentRepository{
		db:     db,
		logger: logger,
	}
}

func (r *enrollmentRepository) Create(ctx context.Context, enrollment *model.Enrollment) error {
	if err := r.db.WithContext(ctx).Create(enrollment).Error; err != nil {
		if isUniqueViolation(err) {
			return customErr.ErrDuplicateEnrollment
		}
		r.logger.Error("Failed to create enrollment",
			zap.String("user_id", enrollment.UserID.String()),
			zap.String("course_id", enrollment.CourseID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create enrollment: %w", err)
	}
	return nil
}

func (r *enrollmentRepository) FindByUserAndCourse(ctx context.Context, userID, courseID uuid.UUID) (*model.Enrollment, error) {
	var enrollment model.Enrollment
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&enrollment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return &enrollment, nil
}

type cartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) domainRepo.CartRepository {
	return &cartRepository{db: db}
}

func (r *cartRepository) DeleteByUserAndCourses(ctx context.Context, userID uuid.UUID, courseIDs []uuid.UUID) error {
	if len(courseIDs) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND course_id IN ?", userID, courseIDs).
		Delete(&model.CartItem{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete cart items: %w", err)
	}
	return nil
}
