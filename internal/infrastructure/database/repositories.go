package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/byway-payment/internal/adapter/repository"
	domainRepo "github.com/wekeepgrowing/byway-payment/internal/domain/repository"
)

// Repositories holds all repository instances
type Repositories struct {
	User          domainRepo.UserRepository
	Order         domainRepo.OrderRepository
	Transaction   domainRepo.TransactionRepository
	Wallet        domainRepo.WalletRepository
	Enrollment    domainRepo.EnrollmentRepository
	Cart          domainRepo.CartRepository
	WebhookEvents domainRepo.WebhookEventRepository
}

// NewRepositories creates new repository instances with database connection
func NewRepositories(db *gorm.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		User:          repository.NewUserRepository(db, logger),
		Order:         repository.NewOrderRepository(db, logger),
		Transaction:   repository.NewTransactionRepository(db, logger),
		Wallet:        repository.NewWalletRepository(db, logger),
		Enrollment:    repository.NewEnrollmentRepository(db, logger),
		Cart:          repository.NewCartRepository(db),
		WebhookEvents: repository.NewWebhookEventRepository(db, logger),
	}
}
