package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	customErr "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	"github.com/wekeepgrowing/byway-payment/internal/domain/provider"
	"github.com/wekeepgrowing/byway-payment/internal/usecase"
)

func TestHandleWebhook_WalletTopUp(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	user := h.store.addUser(model.RoleUser)

	topUpID := uuid.New()
	tx := model.NewTransaction(user.ID, model.TransactionTypeWalletTopUp, dec("50"), "USD", model.GatewayStripe).
		WithTransactionID("cs_topup")
	tx.ID = topUpID
	require.NoError(t, fakeTxRepo{h.store}.Create(ctx, tx))
	require.NoError(t, h.lock.Lock(ctx, user.ID, topUpID, time.Minute))

	meta := provider.Metadata{UserID: user.ID, OrderID: topUpID, IsWalletTopUp: true}
	event := checkoutCompleted("evt_1", "cs_topup", meta, "50.00")

	result, err := h.deliver(event)
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeProcessed, result.Outcome)
	assert.True(t, dec("50").Equal(h.store.balance(user.ID)))
	assert.Equal(t, model.TransactionStatusCompleted, h.store.tx(topUpID).Status)
	assert.Equal(t, 1, h.store.countTx(model.TransactionTypeWalletTopUp))

	locked, err := h.lock.IsLocked(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, locked)

	t.Run("same event again", func(t *testing.T) {
		result, err := h.deliver(event)
		require.NoError(t, err)
		assert.Equal(t, usecase.OutcomeAlreadyProcessed, result.Outcome)
		assert.True(t, dec("50").Equal(h.store.balance(user.ID)))
	})

	t.Run("new event for the same session", func(t *testing.T) {
		result, err := h.deliver(checkoutCompleted("evt_2", "cs_topup", meta, "50.00"))
		require.NoError(t, err)
		assert.Equal(t, usecase.OutcomeAlreadyProcessed, result.Outcome)
		assert.True(t, dec("50").Equal(h.store.balance(user.ID)))
		assert.Equal(t, 1, h.store.countTx(model.TransactionTypeWalletTopUp))
	})
}

func TestHandleWebhook_TopUpWithoutPendingTransaction(t *testing.T) {
	h := newHarness(t)
	user := h.store.addUser(model.RoleUser)
	topUpID := uuid.New()

	meta := provider.Metadata{UserID: user.ID, OrderID: topUpID, IsWalletTopUp: true}
	result, err := h.deliver(checkoutCompleted("evt_1", "cs_lost", meta, "12.50"))
	require.NoError(t, err)

	assert.Equal(t, usecase.OutcomeProcessed, result.Outcome)
	assert.True(t, dec("12.50").Equal(h.store.balance(user.ID)))
	stored := h.store.tx(topUpID)
	assert.Equal(t, model.TransactionStatusCompleted, stored.Status)
	require.NotNil(t, stored.TransactionID)
	assert.Equal(t, "cs_lost", *stored.TransactionID)
}

func TestHandleWebhook_Purchase(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	buyer := h.store.addUser(model.RoleUser)
	instructor := h.store.addUser(model.RoleInstructor)
	order := h.store.placeOrder(buyer.ID,
		h.store.addCourse(instructor.ID, "100.00"),
		h.store.addCourse(instructor.ID, "50.00"))
	pending := h.store.pendingPurchase(order, "cs_order")
	require.NoError(t, h.lock.Lock(ctx, buyer.ID, order.ID, time.Minute))

	meta := provider.Metadata{UserID: buyer.ID, OrderID: order.ID, CourseIDs: order.CourseIDs()}
	result, err := h.deliver(checkoutCompleted("evt_paid", "cs_order", meta, "150.00"))
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeProcessed, result.Outcome)

	stored := h.store.order(order.ID)
	assert.Equal(t, model.OrderStatusCompleted, stored.PaymentStatus)
	require.NotNil(t, stored.PaymentIntentID)
	assert.Equal(t, "pi_cs_order", *stored.PaymentIntentID)
	assert.Equal(t, model.TransactionStatusCompleted, h.store.tx(pending.ID).Status)
	assert.Equal(t, 1, h.store.countTx(model.TransactionTypePurchase))
	assert.Equal(t, 2, h.store.countEnrollments(buyer.ID))
	assert.True(t, dec("30").Equal(h.store.balance(h.admin.ID)))
	assert.True(t, dec("120").Equal(h.store.balance(instructor.ID)))
	assert.Equal(t, 1, h.notifier.count(model.NotificationPurchaseSuccess))

	locked, err := h.lock.IsLocked(ctx, buyer.ID)
	require.NoError(t, err)
	assert.False(t, locked)

	t.Run("redelivery under a new event id changes nothing", func(t *testing.T) {
		result, err := h.deliver(checkoutCompleted("evt_paid_again", "cs_order", meta, "150.00"))
		require.NoError(t, err)
		assert.Equal(t, usecase.OutcomeAlreadyProcessed, result.Outcome)
		assert.True(t, dec("30").Equal(h.store.balance(h.admin.ID)))
		assert.Equal(t, 2, h.store.countEnrollments(buyer.ID))
		assert.Equal(t, 1, h.notifier.count(model.NotificationPurchaseSuccess))
	})

	t.Run("late failure does not downgrade", func(t *testing.T) {
		h.hook.On("GetCheckoutSessionMetadata", mock.Anything, "pi_cs_order").Return(&meta, nil)
		result, err := h.deliver(paymentFailed("evt_late_fail", "pi_cs_order"))
		require.NoError(t, err)
		assert.Equal(t, usecase.OutcomeAlreadyProcessed, result.Outcome)
		assert.Equal(t, model.OrderStatusCompleted, h.store.order(order.ID).PaymentStatus)
		assert.Equal(t, model.TransactionStatusCompleted, h.store.tx(pending.ID).Status)
	})
}

func TestHandleWebhook_OrderUpdateFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	buyer := h.store.addUser(model.RoleUser)
	order := h.store.placeOrder(buyer.ID, h.store.addCourse(h.store.addUser(model.RoleInstructor).ID, "40.00"))
	pending := h.store.pendingPurchase(order, "cs_retry")
	meta := provider.Metadata{UserID: buyer.ID, OrderID: order.ID, CourseIDs: order.CourseIDs()}

	completed := checkoutCompleted("evt_retry", "cs_retry", meta, "40.00")
	h.store.failMarkComplete = errors.New("connection refused")
	_, err := h.deliver(completed)
	require.Error(t, err)

	assert.Equal(t, model.OrderStatusPending, h.store.order(order.ID).PaymentStatus)
	assert.Equal(t, model.TransactionStatusPending, h.store.tx(pending.ID).Status)
	assert.Equal(t, 1, h.store.countTx(model.TransactionTypePurchase))
	assert.Equal(t, 0, h.store.countEnrollments(buyer.ID))

	event, err := fakeEventRepo{h.store}.GetEvent(ctx, model.GatewayStripe, "evt_retry")
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, model.WebhookStatusFailed, event.Status)

	h.store.failMarkComplete = nil
	h.hook.On("ParseEvent", completed.Raw).Return(completed, nil)
	result, err := h.webhooks.Replay(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeProcessed, result.Outcome)
	assert.Equal(t, model.OrderStatusCompleted, h.store.order(order.ID).PaymentStatus)
	assert.Equal(t, model.TransactionStatusCompleted, h.store.tx(pending.ID).Status)
	assert.Equal(t, 1, h.store.countTx(model.TransactionTypePurchase))
	assert.Equal(t, 1, h.store.countEnrollments(buyer.ID))
}

func TestHandleWebhook_ConcurrentDuplicates(t *testing.T) {
	h := newHarness(t)
	buyer := h.store.addUser(model.RoleUser)
	instructor := h.store.addUser(model.RoleInstructor)
	order := h.store.placeOrder(buyer.ID, h.store.addCourse(instructor.ID, "100.00"))
	h.store.pendingPurchase(order, "cs_dup")

	meta := provider.Metadata{UserID: buyer.ID, OrderID: order.ID}
	events := []*provider.WebhookEvent{
		checkoutCompleted("evt_a", "cs_dup", meta, "100.00"),
		checkoutCompleted("evt_b", "cs_dup", meta, "100.00"),
	}
	for _, e := range events {
		e.Raw = []byte("payload:" + e.ID)
		h.hook.On("VerifySignature", e.Raw, "sig").Return(e, nil)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		e := events[i%2]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.webhooks.HandleWebhook(context.Background(), model.GatewayStripe, e.Raw, "sig")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.True(t, dec("20").Equal(h.store.balance(h.admin.ID)))
	assert.True(t, dec("80").Equal(h.store.balance(instructor.ID)))
	assert.Equal(t, 1, h.store.countEnrollments(buyer.ID))
	assert.Equal(t, 1, h.store.countTx(model.TransactionTypePurchase))
	assert.Equal(t, 1, h.notifier.count(model.NotificationPurchaseSuccess))
}

func TestHandleWebhook_PaymentFailed(t *testing.T) {
	ctx := context.Background()

	t.Run("pending order is marked failed", func(t *testing.T) {
		h := newHarness(t)
		buyer := h.store.addUser(model.RoleUser)
		order := h.store.placeOrder(buyer.ID, h.store.addCourse(h.admin.ID, "25.00"))
		pending := h.store.pendingPurchase(order, "cs_fail")
		require.NoError(t, h.lock.Lock(ctx, buyer.ID, order.ID, time.Minute))

		h.hook.On("GetCheckoutSessionMetadata", mock.Anything, "pi_fail").
			Return(&provider.Metadata{UserID: buyer.ID, OrderID: order.ID}, nil)

		result, err := h.deliver(paymentFailed("evt_fail", "pi_fail"))
		require.NoError(t, err)
		assert.Equal(t, usecase.OutcomeProcessed, result.Outcome)
		assert.Equal(t, model.OrderStatusFailed, h.store.order(order.ID).PaymentStatus)
		assert.Equal(t, model.TransactionStatusFailed, h.store.tx(pending.ID).Status)

		locked, err := h.lock.IsLocked(ctx, buyer.ID)
		require.NoError(t, err)
		assert.False(t, locked)
	})

	t.Run("already failed order is left alone", func(t *testing.T) {
		h := newHarness(t)
		buyer := h.store.addUser(model.RoleUser)
		order := h.store.placeOrder(buyer.ID, h.store.addCourse(h.admin.ID, "25.00"))
		_, err := fakeOrderRepo{h.store}.MarkFailed(ctx, order.ID)
		require.NoError(t, err)

		h.hook.On("GetCheckoutSessionMetadata", mock.Anything, "pi_twice").
			Return(&provider.Metadata{UserID: buyer.ID, OrderID: order.ID}, nil)

		result, err := h.deliver(paymentFailed("evt_twice", "pi_twice"))
		require.NoError(t, err)
		assert.Equal(t, usecase.OutcomeAlreadyProcessed, result.Outcome)
		assert.Equal(t, 0, h.store.countTx(model.TransactionTypePurchase))
		assert.Equal(t, model.OrderStatusFailed, h.store.order(order.ID).PaymentStatus)
	})

	t.Run("failed top-up", func(t *testing.T) {
		h := newHarness(t)
		user := h.store.addUser(model.RoleUser)
		tx := model.NewTransaction(user.ID, model.TransactionTypeWalletTopUp, dec("10"), "USD", model.GatewayStripe)
		require.NoError(t, fakeTxRepo{h.store}.Create(ctx, tx))

		h.hook.On("GetCheckoutSessionMetadata", mock.Anything, "pi_topup").
			Return(&provider.Metadata{UserID: user.ID, OrderID: tx.ID, IsWalletTopUp: true}, nil)

		result, err := h.deliver(paymentFailed("evt_topup_fail", "pi_topup"))
		require.NoError(t, err)
		assert.Equal(t, usecase.OutcomeProcessed, result.Outcome)
		assert.Equal(t, model.TransactionStatusFailed, h.store.tx(tx.ID).Status)
		assert.True(t, h.store.balance(user.ID).IsZero())
	})

	t.Run("metadata lookup failure is acknowledged", func(t *testing.T) {
		h := newHarness(t)
		h.hook.On("GetCheckoutSessionMetadata", mock.Anything, "pi_gone").Return(nil, errors.New("no such payment_intent"))

		result, err := h.deliver(paymentFailed("evt_gone", "pi_gone"))
		require.NoError(t, err)
		assert.Equal(t, usecase.OutcomeAcknowledged, result.Outcome)
	})

	t.Run("unknown order is acknowledged", func(t *testing.T) {
		h := newHarness(t)
		h.hook.On("GetCheckoutSessionMetadata", mock.Anything, "pi_orphan").
			Return(&provider.Metadata{UserID: uuid.New(), OrderID: uuid.New()}, nil)

		result, err := h.deliver(paymentFailed("evt_orphan", "pi_orphan"))
		require.NoError(t, err)
		assert.Equal(t, usecase.OutcomeAcknowledged, result.Outcome)
	})
}

func TestHandleWebhook_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid signature changes nothing", func(t *testing.T) {
		h := newHarness(t)
		raw := []byte(`{"id":"evt_forged"}`)
		h.hook.On("VerifySignature", raw, "bad").Return(nil, errors.New("signature mismatch"))

		_, err := h.webhooks.HandleWebhook(ctx, model.GatewayStripe, raw, "bad")
		require.Error(t, err)
		assert.True(t, customErr.IsInvalidSignature(err))
		assert.Empty(t, h.store.events)
	})

	t.Run("unknown gateway", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.webhooks.HandleWebhook(ctx, model.GatewayRazorpay, []byte("{}"), "sig")
		require.Error(t, err)
		assert.True(t, customErr.IsNotFound(err))
	})

	t.Run("unhandled event type is ignored", func(t *testing.T) {
		h := newHarness(t)
		result, err := h.deliver(&provider.WebhookEvent{ID: "evt_misc", Type: "customer.created", Kind: provider.EventIgnored})
		require.NoError(t, err)
		assert.Equal(t, usecase.OutcomeIgnored, result.Outcome)
	})

	t.Run("missing order id is a validation error and the event is kept for retry", func(t *testing.T) {
		h := newHarness(t)
		event := checkoutCompleted("evt_noorder", "cs_x", provider.Metadata{UserID: uuid.New()}, "10.00")
		delete(event.Checkout.Metadata, provider.MetaOrderID)

		_, err := h.deliver(event)
		require.Error(t, err)
		assert.True(t, customErr.IsValidation(err))

		logged, err := fakeEventRepo{h.store}.GetEvent(ctx, model.GatewayStripe, "evt_noorder")
		require.NoError(t, err)
		require.NotNil(t, logged)
		assert.Equal(t, model.WebhookStatusFailed, logged.Status)
	})

	t.Run("metadata user must own the order", func(t *testing.T) {
		h := newHarness(t)
		buyer := h.store.addUser(model.RoleUser)
		order := h.store.placeOrder(buyer.ID, h.store.addCourse(h.admin.ID, "10.00"))

		meta := provider.Metadata{UserID: uuid.New(), OrderID: order.ID}
		_, err := h.deliver(checkoutCompleted("evt_other", "cs_other", meta, "10.00"))
		require.Error(t, err)
		assert.True(t, customErr.IsValidation(err))
		assert.Equal(t, model.OrderStatusPending, h.store.order(order.ID).PaymentStatus)
	})
}

func TestHandleWebhook_SettlementFailureAndRedrive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	buyer := h.store.addUser(model.RoleUser)
	instructor := h.store.addUser(model.RoleInstructor)
	order := h.store.placeOrder(buyer.ID, h.store.addCourse(instructor.ID, "100.00"))
	pending := h.store.pendingPurchase(order, "cs_broken")

	// revenue distribution cannot find the platform admin
	h.store.mu.Lock()
	delete(h.store.users, h.admin.ID)
	h.store.mu.Unlock()

	meta := provider.Metadata{UserID: buyer.ID, OrderID: order.ID}
	_, err := h.deliver(checkoutCompleted("evt_broken", "cs_broken", meta, "100.00"))
	require.Error(t, err)
	assert.True(t, customErr.IsPaymentError(err))

	assert.Equal(t, model.OrderStatusCompleted, h.store.order(order.ID).PaymentStatus)
	assert.Equal(t, model.TransactionStatusFailed, h.store.tx(pending.ID).Status)
	assert.Equal(t, 1, h.store.countEnrollments(buyer.ID))
	assert.True(t, h.store.balance(instructor.ID).IsZero())

	h.store.mu.Lock()
	h.store.users[h.admin.ID] = h.admin
	h.store.mu.Unlock()

	result, err := h.webhooks.RedriveOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeProcessed, result.Outcome)
	assert.Equal(t, model.TransactionStatusCompleted, h.store.tx(pending.ID).Status)
	assert.True(t, dec("80").Equal(h.store.balance(instructor.ID)))
	assert.True(t, dec("20").Equal(h.store.balance(h.admin.ID)))

	result, err = h.webhooks.RedriveOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeAlreadyProcessed, result.Outcome)
	assert.True(t, dec("80").Equal(h.store.balance(instructor.ID)))
}

func TestRedriveOrder_RequiresPaidOrder(t *testing.T) {
	h := newHarness(t)
	buyer := h.store.addUser(model.RoleUser)
	order := h.store.placeOrder(buyer.ID, h.store.addCourse(h.admin.ID, "10.00"))

	_, err := h.webhooks.RedriveOrder(context.Background(), order.ID)
	require.Error(t, err)
	assert.True(t, customErr.IsBusinessRuleViolation(err))

	_, err = h.webhooks.RedriveOrder(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, customErr.IsNotFound(err))
}

func TestReplay(t *testing.T) {
	h := newHarness(t)
	user := h.store.addUser(model.RoleUser)
	meta := provider.Metadata{UserID: user.ID, OrderID: uuid.New(), IsWalletTopUp: true}
	event := checkoutCompleted("evt_replay", "cs_replay", meta, "5.00")
	event.Raw = []byte("stored payload")
	h.hook.On("ParseEvent", event.Raw).Return(event, nil)

	record := &model.WebhookEventLog{Gateway: model.GatewayStripe, EventID: "evt_replay", Payload: "stored payload", Status: model.WebhookStatusFailed}
	result, err := h.webhooks.Replay(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeProcessed, result.Outcome)
	assert.True(t, dec("5").Equal(h.store.balance(user.ID)))
}
