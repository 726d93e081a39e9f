package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type TransactionType string

const (
	TransactionTypePurchase    TransactionType = "PURCHASE"
	TransactionTypeRefund      TransactionType = "REFUND"
	TransactionTypeWalletTopUp TransactionType = "WALLET_TOPUP"
	TransactionTypeRevenue     TransactionType = "REVENUE"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
)

// Transaction is a ledger row. TransactionID is the external idempotency key
// (gateway session id, or a natural key for internal entries).
type Transaction struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID        *uuid.UUID        `gorm:"type:uuid;index" json:"order_id,omitempty"`
	UserID         uuid.UUID         `gorm:"type:uuid;not null;index" json:"user_id"`
	WalletID       *uuid.UUID        `gorm:"type:uuid;index" json:"wallet_id,omitempty"`
	Amount         decimal.Decimal   `gorm:"type:decimal(15,2);not null" json:"amount"`
	Currency       string            `gorm:"size:3;not null" json:"currency"`
	Type           TransactionType   `gorm:"column:type;size:20;not null;index" json:"type"`
	Status         TransactionStatus `gorm:"size:20;not null;default:'PENDING';index" json:"status"`
	PaymentGateway PaymentGateway    `gorm:"size:20;not null" json:"payment_gateway"`
	TransactionID  *string           `gorm:"column:transaction_id;size:255;uniqueIndex" json:"transaction_id,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt      time.Time         `gorm:"default:now()" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Transaction) TableName() string {
	return "transactions"
}

// NewTransaction returns a PENDING transaction.
func NewTransaction(userID uuid.UUID, txType TransactionType, amount decimal.Decimal, currency string, gateway PaymentGateway) *Transaction {
	now := time.Now()
	return &Transaction{
		ID:             uuid.New(),
		UserID:         userID,
		Amount:         amount,
		Currency:       NormalizeCurrency(currency),
		Type:           txType,
		Status:         TransactionStatusPending,
		PaymentGateway: gateway,
		Metadata:       datatypes.JSONMap{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (t *Transaction) WithOrder(orderID uuid.UUID) *Transaction {
	t.OrderID = &orderID
	return t
}

func (t *Transaction) WithTransactionID(key string) *Transaction {
	t.TransactionID = &key
	return t
}

func (t *Transaction) IsCompleted() bool {
	return t.Status == TransactionStatusCompleted
}

// Natural ledger keys for entries that have no gateway session.
func WalletPurchaseKey(orderID uuid.UUID) string {
	return "wallet:" + orderID.String()
}

func RevenueKey(orderID, courseID uuid.UUID, side string) string {
	return "revenue:" + orderID.String() + ":" + courseID.String() + ":" + side
}
