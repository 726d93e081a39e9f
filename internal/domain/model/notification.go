package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationPurchaseSuccess      NotificationType = "purchase_success"
	NotificationInstructorRevenue    NotificationType = "instructor_revenue"
	NotificationAdminRevenue         NotificationType = "admin_revenue"
	NotificationPurchaseConfirmation NotificationType = "purchase_confirmation"
)

type Notification struct {
	UserID    uuid.UUID              `json:"user_id"`
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
