package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
)

type EnrollmentRepository interface {
	// Create fails with ErrDuplicateEnrollment when the user is already enrolled.
	Create(ctx context.Context, enrollment *model.Enrollment) error

	FindByUserAndCourse(ctx context.Context, userID, courseID uuid.UUID) (*model.Enrollment, error)
}

type CartRepository interface {
	DeleteByUserAndCourses(ctx context.Context, userID uuid.UUID, courseIDs []uuid.UUID) error
}
