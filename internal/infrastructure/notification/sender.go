package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	"github.com/wekeepgrowing/byway-payment/pkg/messaging"
)

// RedisSender publishes notifications to <channel>:<user id>.
type RedisSender struct {
	publisher messaging.Publisher
	channel   string
	logger    *zap.Logger
}

func NewRedisSender(publisher messaging.Publisher, channel string, logger *zap.Logger) *RedisSender {
	return &RedisSender{publisher: publisher, channel: channel, logger: logger}
}

func (s *RedisSender) Send(ctx context.Context, n *model.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	channel := fmt.Sprintf("%s:%s", s.channel, n.UserID)
	if err := s.publisher.Publish(ctx, channel, n); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	s.logger.Debug("Notification published",
		zap.String("channel", channel),
		zap.String("type", string(n.Type)),
	)
	return nil
}

// LogSender only logs notifications. Used when no channel is configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, n *model.Notification) error {
	s.logger.Info("Notification",
		zap.String("user_id", n.UserID.String()),
		zap.String("type", string(n.Type)),
		zap.String("title", n.Title),
	)
	return nil
}
