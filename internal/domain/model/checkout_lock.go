package model

import (
	"time"

	"github.com/google/uuid"
)

// CheckoutLockInfo marks a user as having a checkout in flight.
// OrderID is the order id, or the transaction id of a wallet top-up.
type CheckoutLockInfo struct {
	UserID    uuid.UUID `json:"user_id"`
	OrderID   uuid.UUID `json:"order_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (l CheckoutLockInfo) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
