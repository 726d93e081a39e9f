package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	"github.com/wekeepgrowing/byway-payment/internal/metrics"
)

// CheckoutLock keeps a user to one checkout in flight at a time.
type CheckoutLock interface {
	IsLocked(ctx context.Context, userID uuid.UUID) (bool, error)

	// Lock sets the lock unconditionally, replacing any previous holder.
	Lock(ctx context.Context, userID, orderID uuid.UUID, ttl time.Duration) error

	// TryLock sets the lock only if the user holds no live lock.
	TryLock(ctx context.Context, userID, orderID uuid.UUID, ttl time.Duration) (bool, error)

	UnlockByUser(ctx context.Context, userID uuid.UUID) error
	UnlockByOrder(ctx context.Context, orderID uuid.UUID) error

	// Get returns nil when no live lock exists.
	Get(ctx context.Context, userID uuid.UUID) (*model.CheckoutLockInfo, error)
}

// MemoryCheckoutLock is a process-local CheckoutLock. Expired records are
// cleared by whichever read observes them, and by Run.
type MemoryCheckoutLock struct {
	mu      sync.Mutex
	byUser  map[uuid.UUID]model.CheckoutLockInfo
	byOrder map[uuid.UUID]uuid.UUID
	now     func() time.Time
	logger  *zap.Logger
}

type MemoryLockOption func(*MemoryCheckoutLock)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryLockOption {
	return func(l *MemoryCheckoutLock) {
		l.now = now
	}
}

func NewMemoryCheckoutLock(logger *zap.Logger, opts ...MemoryLockOption) *MemoryCheckoutLock {
	l := &MemoryCheckoutLock{
		byUser:  make(map[uuid.UUID]model.CheckoutLockInfo),
		byOrder: make(map[uuid.UUID]uuid.UUID),
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// live returns the user's lock, dropping it first if expired. Caller holds mu.
func (l *MemoryCheckoutLock) live(userID uuid.UUID) (model.CheckoutLockInfo, bool) {
	info, ok := l.byUser[userID]
	if !ok {
		return model.CheckoutLockInfo{}, false
	}
	if info.Expired(l.now()) {
		l.remove(info)
		return model.CheckoutLockInfo{}, false
	}
	return info, true
}

// remove deletes info from both indexes. Caller holds mu.
func (l *MemoryCheckoutLock) remove(info model.CheckoutLockInfo) {
	delete(l.byUser, info.UserID)
	if owner, ok := l.byOrder[info.OrderID]; ok && owner == info.UserID {
		delete(l.byOrder, info.OrderID)
	}
	metrics.CheckoutLocksActive.Set(float64(len(l.byUser)))
}

func (l *MemoryCheckoutLock) set(userID, orderID uuid.UUID, ttl time.Duration) {
	if prev, ok := l.byUser[userID]; ok {
		l.remove(prev)
	}
	l.byUser[userID] = model.CheckoutLockInfo{UserID: userID, OrderID: orderID, ExpiresAt: l.now().Add(ttl)}
	l.byOrder[orderID] = userID
	metrics.CheckoutLocksActive.Set(float64(len(l.byUser)))
}

func (l *MemoryCheckoutLock) IsLocked(_ context.Context, userID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.live(userID)
	return ok, nil
}

func (l *MemoryCheckoutLock) Lock(_ context.Context, userID, orderID uuid.UUID, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.set(userID, orderID, ttl)
	return nil
}

func (l *MemoryCheckoutLock) TryLock(_ context.Context, userID, orderID uuid.UUID, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.live(userID); held {
		return false, nil
	}
	l.set(userID, orderID, ttl)
	return true, nil
}

func (l *MemoryCheckoutLock) UnlockByUser(_ context.Context, userID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if info, ok := l.byUser[userID]; ok {
		l.remove(info)
	}
	return nil
}

func (l *MemoryCheckoutLock) UnlockByOrder(_ context.Context, orderID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	userID, ok := l.byOrder[orderID]
	if !ok {
		return nil
	}
	if info, ok := l.byUser[userID]; ok && info.OrderID == orderID {
		l.remove(info)
		return nil
	}
	delete(l.byOrder, orderID)
	return nil
}

func (l *MemoryCheckoutLock) Get(_ context.Context, userID uuid.UUID) (*model.CheckoutLockInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, ok := l.live(userID)
	if !ok {
		return nil, nil
	}
	return &info, nil
}

// Sweep drops expired locks and returns how many were removed.
func (l *MemoryCheckoutLock) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for _, info := range l.byUser {
		if info.Expired(now) {
			l.remove(info)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (l *MemoryCheckoutLock) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.logger.Debug("Swept expired checkout locks", zap.Int("count", n))
			}
		}
	}
}
