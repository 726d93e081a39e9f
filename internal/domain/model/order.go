package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is shared by Order.Status and Order.PaymentStatus.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

// Scan implements sql.Scanner interface
func (s *OrderStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = OrderStatus(v)
	case []byte:
		*s = OrderStatus(v)
	default:
		*s = OrderStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (s OrderStatus) Value() (driver.Value, error) {
	return string(s), nil
}

type PaymentGateway string

const (
	GatewayWallet   PaymentGateway = "WALLET"
	GatewayStripe   PaymentGateway = "STRIPE"
	GatewayPaypal   PaymentGateway = "PAYPAL"
	GatewayRazorpay PaymentGateway = "RAZORPAY"
	GatewayInternal PaymentGateway = "INTERNAL"
)

// DefaultAdminSharePercentage applies to items without an explicit share.
var DefaultAdminSharePercentage = decimal.NewFromInt(20)

// Order is a purchase of one or more courses.
type Order struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	Status          OrderStatus     `gorm:"size:20;not null;default:'PENDING'" json:"status"`
	PaymentStatus   OrderStatus     `gorm:"size:20;not null;default:'PENDING';index" json:"payment_status"`
	PaymentIntentID *string         `gorm:"size:255;index" json:"payment_intent_id,omitempty"`
	PaymentGateway  PaymentGateway  `gorm:"size:20;not null" json:"payment_gateway"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"total_amount"`
	Currency        string          `gorm:"size:3;not null" json:"currency"`
	CouponCode      *string         `gorm:"size:100" json:"coupon_code,omitempty"`
	CreatedAt       time.Time       `gorm:"default:now()" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"default:now()" json:"updated_at"`

	// Relations
	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

// TableName specifies the table name for GORM
func (Order) TableName() string {
	return "orders"
}

// NewOrder creates a PENDING order whose total is the sum of the items' effective prices.
func NewOrder(id, userID uuid.UUID, currency string, gateway PaymentGateway, items []OrderItem, couponCode *string) *Order {
	now := time.Now()
	order := &Order{
		ID:             id,
		UserID:         userID,
		Status:         OrderStatusPending,
		PaymentStatus:  OrderStatusPending,
		PaymentGateway: gateway,
		TotalAmount:    decimal.Zero,
		Currency:       NormalizeCurrency(currency),
		CouponCode:     couponCode,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for i := range items {
		items[i].OrderID = order.ID
		order.TotalAmount = order.TotalAmount.Add(items[i].EffectivePrice())
	}
	order.Items = items
	return order
}

func (o *Order) IsPaid() bool {
	return o.PaymentStatus == OrderStatusCompleted
}

func (o *Order) CourseIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.CourseID)
	}
	return ids
}

// OrderItem is immutable once the order is placed.
type OrderItem struct {
	ID                   uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID              uuid.UUID        `gorm:"type:uuid;not null;index" json:"order_id"`
	CourseID             uuid.UUID        `gorm:"type:uuid;not null" json:"course_id"`
	CoursePrice          decimal.Decimal  `gorm:"type:decimal(15,2);not null" json:"course_price"`
	Discount             decimal.Decimal  `gorm:"type:decimal(15,2);not null;default:0" json:"discount"`
	CouponID             *uuid.UUID       `gorm:"type:uuid" json:"coupon_id,omitempty"`
	AdminSharePercentage *decimal.Decimal `gorm:"type:decimal(5,2)" json:"admin_share_percentage,omitempty"`
	CreatedAt            time.Time        `gorm:"default:now()" json:"created_at"`
}

// TableName specifies the table name for GORM
func (OrderItem) TableName() string {
	return "order_items"
}

func (i OrderItem) EffectivePrice() decimal.Decimal {
	return i.CoursePrice.Sub(i.Discount)
}

// SharePercentage returns the platform share, falling back to fallback when unset.
func (i OrderItem) SharePercentage(fallback decimal.Decimal) decimal.Decimal {
	if i.AdminSharePercentage != nil {
		return *i.AdminSharePercentage
	}
	return fallback
}
