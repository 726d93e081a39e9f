package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
)

// UserRepository reads accounts. Lookups return nil, nil when nothing matches.
type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)

	// FindPlatformAdmin returns the account that receives the platform's revenue share.
	FindPlatformAdmin(ctx context.Context) (*model.User, error)
}
