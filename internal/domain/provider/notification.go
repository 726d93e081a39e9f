package provider

import (
	"context"

	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
)

// NotificationSender delivers user notifications.
type NotificationSender interface {
	Send(ctx context.Context, notification *model.Notification) error
}
