package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type UserRole string

const (
	RoleUser       UserRole = "USER"
	RoleInstructor UserRole = "INSTRUCTOR"
	RoleAdmin      UserRole = "ADMIN"
)

// User is owned by the account service; this service only reads it.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"size:255;not null" json:"email"`
	Name      string    `gorm:"size:255" json:"name"`
	Role      UserRole  `gorm:"size:20;not null;default:'USER';index" json:"role"`
	CreatedAt time.Time `gorm:"default:now()" json:"created_at"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}

// Course is owned by the catalog service; this service only reads it.
type Course struct {
	ID                   uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Title                string           `gorm:"size:255;not null" json:"title"`
	CreatorID            uuid.UUID        `gorm:"type:uuid;not null;index" json:"creator_id"`
	Price                decimal.Decimal  `gorm:"type:decimal(15,2);not null" json:"price"`
	Currency             string           `gorm:"size:3;not null;default:'USD'" json:"currency"`
	AdminSharePercentage *decimal.Decimal `gorm:"type:decimal(5,2)" json:"admin_share_percentage,omitempty"`
	CreatedAt            time.Time        `gorm:"default:now()" json:"created_at"`
}

// TableName specifies the table name for GORM
func (Course) TableName() string {
	return "courses"
}

// Enrollment grants a user access to a course. Unique per (user, course).
type Enrollment struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_enrollments_user_course" json:"user_id"`
	CourseID  uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_enrollments_user_course" json:"course_id"`
	OrderID   *uuid.UUID `gorm:"type:uuid;index" json:"order_id,omitempty"`
	CreatedAt time.Time  `gorm:"default:now()" json:"created_at"`
}

// TableName specifies the table name for GORM
func (Enrollment) TableName() string {
	return "enrollments"
}

type CartItem struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	CourseID  uuid.UUID `gorm:"type:uuid;not null" json:"course_id"`
	CreatedAt time.Time `gorm:"default:now()" json:"created_at"`
}

// TableName specifies the table name for GORM
func (CartItem) TableName() string {
	return "cart_items"
}
