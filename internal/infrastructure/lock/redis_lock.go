package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
)

const (
	userKeyPrefix  = "checkout_lock:user:"
	orderKeyPrefix = "checkout_lock:order:"
)

// unlockByOrderScript deletes the user lock only while it still points at the
// order, then drops the reverse key. KEYS: user key, order key. ARGV: order id.
const unlockByOrderScript = `
local raw = redis.call('GET', KEYS[1])
local removed = 0
if raw and string.find(raw, ARGV[1], 1, true) then
	redis.call('DEL', KEYS[1])
	removed = 1
end
redis.call('DEL', KEYS[2])
return removed
`

// redisClient is the subset of *redis.Client the lock uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisCheckoutLock is a cluster-wide checkout lock. Expiry is left to Redis
// key TTLs, so there is nothing to sweep.
type RedisCheckoutLock struct {
	client redisClient
	now    func() time.Time
	logger *zap.Logger
}

func NewRedisCheckoutLock(client redisClient, logger *zap.Logger) *RedisCheckoutLock {
	return &RedisCheckoutLock{client: client, now: time.Now, logger: logger}
}

func userKey(userID uuid.UUID) string   { return userKeyPrefix + userID.String() }
func orderKey(orderID uuid.UUID) string { return orderKeyPrefix + orderID.String() }

func (l *RedisCheckoutLock) encode(userID, orderID uuid.UUID, ttl time.Duration) ([]byte, error) {
	return json.Marshal(model.CheckoutLockInfo{UserID: userID, OrderID: orderID, ExpiresAt: l.now().Add(ttl)})
}

func (l *RedisCheckoutLock) IsLocked(ctx context.Context, userID uuid.UUID) (bool, error) {
	info, err := l.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return info != nil, nil
}

// Lock replaces whatever lock the user holds.
func (l *RedisCheckoutLock) Lock(ctx context.Context, userID, orderID uuid.UUID, ttl time.Duration) error {
	prev, err := l.Get(ctx, userID)
	if err != nil {
		return err
	}

	value, err := l.encode(userID, orderID, ttl)
	if err != nil {
		return fmt.Errorf("failed to encode checkout lock: %w", err)
	}
	if err := l.client.Set(ctx, userKey(userID), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set checkout lock: %w", err)
	}
	if err := l.client.Set(ctx, orderKey(orderID), userID.String(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set checkout lock order index: %w", err)
	}

	if prev != nil && prev.OrderID != orderID {
		if err := l.client.Del(ctx, orderKey(prev.OrderID)).Err(); err != nil {
			l.logger.Warn("Failed to drop replaced checkout lock index",
				zap.String("order_id", prev.OrderID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// TryLock sets the lock with SET NX, so two nodes cannot both win.
func (l *RedisCheckoutLock) TryLock(ctx context.Context, userID, orderID uuid.UUID, ttl time.Duration) (bool, error) {
	value, err := l.encode(userID, orderID, ttl)
	if err != nil {
		return false, fmt.Errorf("failed to encode checkout lock: %w", err)
	}

	ok, err := l.client.SetNX(ctx, userKey(userID), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire checkout lock: %w", err)
	}
	if !ok {
		return false, nil
	}

	if err := l.client.Set(ctx, orderKey(orderID), userID.String(), ttl).Err(); err != nil {
		// Without the order index the lock could only be released by expiry.
		if delErr := l.client.Del(ctx, userKey(userID)).Err(); delErr != nil {
			l.logger.Error("Failed to roll back checkout lock",
				zap.String("user_id", userID.String()),
				zap.Error(delErr))
		}
		return false, fmt.Errorf("failed to set checkout lock order index: %w", err)
	}
	return true, nil
}

func (l *RedisCheckoutLock) UnlockByUser(ctx context.Context, userID uuid.UUID) error {
	info, err := l.Get(ctx, userID)
	if err != nil {
		return err
	}

	keys := []string{userKey(userID)}
	if info != nil {
		keys = append(keys, orderKey(info.OrderID))
	}
	if err := l.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to release checkout lock: %w", err)
	}
	return nil
}

func (l *RedisCheckoutLock) UnlockByOrder(ctx context.Context, orderID uuid.UUID) error {
	owner, err := l.client.Get(ctx, orderKey(orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read checkout lock order index: %w", err)
	}

	userID, err := uuid.Parse(owner)
	if err != nil {
		l.logger.Warn("Dropping malformed checkout lock index", zap.String("order_id", orderID.String()))
		return l.client.Del(ctx, orderKey(orderID)).Err()
	}

	err = l.client.Eval(ctx, unlockByOrderScript,
		[]string{userKey(userID), orderKey(orderID)},
		orderID.String(),
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release checkout lock: %w", err)
	}
	return nil
}

func (l *RedisCheckoutLock) Get(ctx context.Context, userID uuid.UUID) (*model.CheckoutLockInfo, error) {
	raw, err := l.client.Get(ctx, userKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkout lock: %w", err)
	}

	var info model.CheckoutLockInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("failed to decode checkout lock: %w", err)
	}
	return &info, nil
}
