package usecase_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	customErr "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	"github.com/wekeepgrowing/byway-payment/internal/domain/provider"
	"github.com/wekeepgrowing/byway-payment/internal/usecase"
)

// memStore is an in-memory database shared by the fake repositories.
type memStore struct {
	mu          sync.Mutex
	users       map[uuid.UUID]model.User
	courses     map[uuid.UUID]model.Course
	orders      map[uuid.UUID]model.Order
	txs         map[uuid.UUID]model.Transaction
	wallets     map[uuid.UUID]model.Wallet
	enrollments map[[2]uuid.UUID]model.Enrollment
	cart        []model.CartItem
	events      map[string]model.WebhookEventLog

	failLedger       map[uuid.UUID]error
	failEnrollment   error
	failMarkComplete error
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[uuid.UUID]model.User),
		courses:     make(map[uuid.UUID]model.Course),
		orders:      make(map[uuid.UUID]model.Order),
		txs:         make(map[uuid.UUID]model.Transaction),
		wallets:     make(map[uuid.UUID]model.Wallet),
		enrollments: make(map[[2]uuid.UUID]model.Enrollment),
		events:      make(map[string]model.WebhookEventLog),
		failLedger:  make(map[uuid.UUID]error),
	}
}

func (s *memStore) addUser(role model.UserRole) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := model.User{ID: uuid.New(), Email: uuid.NewString() + "@example.com", Role: role}
	s.users[u.ID] = u
	return u
}

func (s *memStore) addCourse(creatorID uuid.UUID, price string) model.Course {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := model.Course{ID: uuid.New(), Title: "Course " + price, CreatorID: creatorID, Price: decimal.RequireFromString(price), Currency: "USD"}
	s.courses[c.ID] = c
	return c
}

func (s *memStore) setCourseCurrency(courseID uuid.UUID, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.courses[courseID]
	c.Currency = code
	s.courses[courseID] = c
}

func (s *memStore) setBalance(userID uuid.UUID, amount string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := model.NewWallet(userID, "USD")
	w.Balance = decimal.RequireFromString(amount)
	s.wallets[userID] = *w
}

func (s *memStore) balance(userID uuid.UUID) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[userID]
	if !ok {
		return decimal.Zero
	}
	return w.Balance
}

func (s *memStore) order(id uuid.UUID) model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *memStore) tx(id uuid.UUID) model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs[id]
}

func (s *memStore) countTx(txType model.TransactionType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tx := range s.txs {
		if tx.Type == txType {
			n++
		}
	}
	return n
}

func (s *memStore) countEnrollments(userID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.enrollments {
		if key[0] == userID {
			n++
		}
	}
	return n
}

// placeOrder stores a PENDING order for the given courses.
func (s *memStore) placeOrder(userID uuid.UUID, courses ...model.Course) model.Order {
	items := make([]model.OrderItem, 0, len(courses))
	for _, c := range courses {
		items = append(items, model.OrderItem{ID: uuid.New(), CourseID: c.ID, CoursePrice: c.Price, AdminSharePercentage: c.AdminSharePercentage})
	}
	order := model.NewOrder(uuid.New(), userID, "USD", model.GatewayStripe, items, nil)
	_ = fakeOrderRepo{s}.Create(context.Background(), order)
	return *order
}

func copyOrder(o model.Order) *model.Order {
	o.Items = append([]model.OrderItem(nil), o.Items...)
	return &o
}

type fakeUserRepo struct{ s *memStore }

func (r fakeUserRepo) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r fakeUserRepo) FindPlatformAdmin(_ context.Context) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Role == model.RoleAdmin {
			return &u, nil
		}
	}
	return nil, nil
}

type fakeOrderRepo struct{ s *memStore }

func (r fakeOrderRepo) Create(_ context.Context, order *model.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.orders[order.ID] = *copyOrder(*order)
	return nil
}

func (r fakeOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, nil
	}
	return copyOrder(o), nil
}

func (r fakeOrderRepo) ListItems(_ context.Context, orderID uuid.UUID) ([]model.OrderItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]model.OrderItem(nil), r.s.orders[orderID].Items...), nil
}

func (r fakeOrderRepo) MarkCompleted(_ context.Context, id uuid.UUID, gateway model.PaymentGateway, intentID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failMarkComplete != nil {
		return false, r.s.failMarkComplete
	}
	o, ok := r.s.orders[id]
	if !ok || o.PaymentStatus == model.OrderStatusCompleted {
		return false, nil
	}
	o.Status = model.OrderStatusCompleted
	o.PaymentStatus = model.OrderStatusCompleted
	o.PaymentGateway = gateway
	o.PaymentIntentID = &intentID
	r.s.orders[id] = o
	return true, nil
}

func (r fakeOrderRepo) MarkFailed(_ context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok || o.PaymentStatus != model.OrderStatusPending {
		return false, nil
	}
	o.Status = model.OrderStatusFailed
	o.PaymentStatus = model.OrderStatusFailed
	r.s.orders[id] = o
	return true, nil
}

func (r fakeOrderRepo) FindCourseByID(_ context.Context, id uuid.UUID) (*model.Course, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.courses[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

type fakeTxRepo struct{ s *memStore }

func (r fakeTxRepo) Create(_ context.Context, tx *model.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.insertTx(tx)
}

// insertTx enforces the unique transaction_id constraint. Caller holds mu.
func (s *memStore) insertTx(tx *model.Transaction) error {
	if tx.TransactionID != nil {
		if _, ok := s.txByKey(*tx.TransactionID); ok {
			return customErr.ErrDuplicateTransactionID
		}
	}
	s.txs[tx.ID] = *tx
	return nil
}

func (s *memStore) txByKey(key string) (model.Transaction, bool) {
	for _, tx := range s.txs {
		if tx.TransactionID != nil && *tx.TransactionID == key {
			return tx, true
		}
	}
	return model.Transaction{}, false
}

func (r fakeTxRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.txs[id]
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (r fakeTxRepo) FindByOrderID(_ context.Context, orderID uuid.UUID, txType model.TransactionType) (*model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *model.Transaction
	for _, tx := range r.s.txs {
		if tx.OrderID != nil && *tx.OrderID == orderID && tx.Type == txType {
			if found == nil || tx.CreatedAt.After(found.CreatedAt) {
				t := tx
				found = &t
			}
		}
	}
	return found, nil
}

func (r fakeTxRepo) FindByTransactionID(_ context.Context, key string) (*model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.txByKey(key)
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (r fakeTxRepo) UpdateStatus(_ context.Context, id uuid.UUID, status model.TransactionStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.txs[id]
	if !ok {
		return customErr.NewNotFoundError("transaction", id)
	}
	tx.Status = status
	r.s.txs[id] = tx
	return nil
}

func (r fakeTxRepo) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Transaction
	for _, tx := range r.s.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeWalletRepo struct{ s *memStore }

func (r fakeWalletRepo) FindByUserID(_ context.Context, userID uuid.UUID) (*model.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[userID]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (r fakeWalletRepo) Create(_ context.Context, wallet *model.Wallet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.wallets[wallet.UserID] = *wallet
	return nil
}

// ApplyEntry mirrors the gorm implementation: one critical section covering
// the idempotency check, the balance change and the ledger row.
func (r fakeWalletRepo) ApplyEntry(_ context.Context, entry *model.LedgerEntry) (*model.LedgerResult, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failLedger[entry.UserID]; err != nil {
		return nil, err
	}

	rec := *entry.Transaction
	existing, found := s.txs[rec.ID]
	if !found && rec.TransactionID != nil {
		existing, found = s.txByKey(*rec.TransactionID)
	}
	if found {
		if existing.Status == model.TransactionStatusCompleted {
			w := s.wallets[entry.UserID]
			return &model.LedgerResult{Wallet: &w, Transaction: &existing, Applied: false}, nil
		}
		rec = existing
	}

	w, ok := s.wallets[entry.UserID]
	if !ok {
		if entry.Direction == model.LedgerDebit {
			return nil, customErr.NewNotFoundError("wallet for user", entry.UserID)
		}
		w = *model.NewWallet(entry.UserID, entry.Currency)
	}

	var err error
	if entry.Direction == model.LedgerCredit {
		err = w.AddAmount(entry.Amount, entry.Currency)
	} else {
		err = w.ReduceAmount(entry.Amount, entry.Currency)
	}
	if err != nil {
		return nil, err
	}
	s.wallets[entry.UserID] = w

	rec.Status = model.TransactionStatusCompleted
	rec.WalletID = &w.ID
	rec.UpdatedAt = time.Now()
	s.txs[rec.ID] = rec

	return &model.LedgerResult{Wallet: &w, Transaction: &rec, Applied: true}, nil
}

type fakeEnrollmentRepo struct{ s *memStore }

func (r fakeEnrollmentRepo) Create(_ context.Context, e *model.Enrollment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failEnrollment != nil {
		return r.s.failEnrollment
	}
	key := [2]uuid.UUID{e.UserID, e.CourseID}
	if _, ok := r.s.enrollments[key]; ok {
		return customErr.ErrDuplicateEnrollment
	}
	r.s.enrollments[key] = *e
	return nil
}

func (r fakeEnrollmentRepo) FindByUserAndCourse(_ context.Context, userID, courseID uuid.UUID) (*model.Enrollment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.enrollments[[2]uuid.UUID{userID, courseID}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

type fakeCartRepo struct{ s *memStore }

func (r fakeCartRepo) DeleteByUserAndCourses(_ context.Context, userID uuid.UUID, courseIDs []uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	drop := make(map[uuid.UUID]bool, len(courseIDs))
	for _, id := range courseIDs {
		drop[id] = true
	}
	kept := r.s.cart[:0]
	for _, item := range r.s.cart {
		if item.UserID == userID && drop[item.CourseID] {
			continue
		}
		kept = append(kept, item)
	}
	r.s.cart = kept
	return nil
}

type fakeEventRepo struct{ s *memStore }

func eventKey(gateway model.PaymentGateway, id string) string { return string(gateway) + ":" + id }

func (r fakeEventRepo) SaveEvent(_ context.Context, e *model.WebhookEventLog) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := eventKey(e.Gateway, e.EventID)
	if _, ok := r.s.events[key]; ok {
		return false, nil
	}
	r.s.events[key] = *e
	return true, nil
}

func (r fakeEventRepo) GetEvent(_ context.Context, gateway model.PaymentGateway, id string) (*model.WebhookEventLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[eventKey(gateway, id)]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r fakeEventRepo) setStatus(gateway model.PaymentGateway, id string, status model.WebhookStatus, cause error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := eventKey(gateway, id)
	e := r.s.events[key]
	e.Status = status
	if cause != nil {
		msg := cause.Error()
		e.LastError = &msg
		e.Attempts++
	}
	r.s.events[key] = e
}

func (r fakeEventRepo) MarkProcessing(_ context.Context, gateway model.PaymentGateway, id string) error {
	r.setStatus(gateway, id, model.WebhookStatusProcessing, nil)
	return nil
}

func (r fakeEventRepo) MarkProcessed(_ context.Context, gateway model.PaymentGateway, id string) error {
	r.setStatus(gateway, id, model.WebhookStatusCompleted, nil)
	return nil
}

func (r fakeEventRepo) MarkFailed(_ context.Context, gateway model.PaymentGateway, id string, cause error) error {
	r.setStatus(gateway, id, model.WebhookStatusFailed, cause)
	return nil
}

func (r fakeEventRepo) ListRetryable(_ context.Context, limit int) ([]model.WebhookEventLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.WebhookEventLog
	for _, e := range r.s.events {
		if e.Status == model.WebhookStatusFailed && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

// recordingNotifier keeps every notification and optionally fails.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, notification *model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, *notification)
	return n.err
}

func (n *recordingNotifier) count(t model.NotificationType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.Type == t {
			c++
		}
	}
	return c
}

// MockWebhookGateway mocks the calls that reach the gateway; metadata parsing
// and classification use the real helpers.
type MockWebhookGateway struct {
	mock.Mock
}

func (m *MockWebhookGateway) Name() model.PaymentGateway { return model.GatewayStripe }
func (m *MockWebhookGateway) SignatureHeader() string    { return "Stripe-Signature" }

func (m *MockWebhookGateway) VerifySignature(rawBody []byte, signature string) (*provider.WebhookEvent, error) {
	args := m.Called(rawBody, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.WebhookEvent), args.Error(1)
}

func (m *MockWebhookGateway) ParseEvent(rawBody []byte) (*provider.WebhookEvent, error) {
	args := m.Called(rawBody)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.WebhookEvent), args.Error(1)
}

func (m *MockWebhookGateway) ParseMetadata(raw map[string]string) (*provider.Metadata, error) {
	return provider.ParseMetadata(raw)
}

func (m *MockWebhookGateway) IsCheckoutSessionCompleted(event *provider.WebhookEvent) bool {
	return event.Kind == provider.EventCheckoutCompleted
}

func (m *MockWebhookGateway) GetPaymentIntentID(event *provider.WebhookEvent) (string, error) {
	switch {
	case event.Checkout != nil:
		return event.Checkout.PaymentIntentID, nil
	case event.Failure != nil:
		return event.Failure.PaymentIntentID, nil
	}
	return "", nil
}

func (m *MockWebhookGateway) GetCheckoutSessionMetadata(ctx context.Context, intentID string) (*provider.Metadata, error) {
	args := m.Called(ctx, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.Metadata), args.Error(1)
}

// MockPaymentGateway is a mock implementation of provider.PaymentGateway
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) Name() model.PaymentGateway { return model.GatewayStripe }

func (m *MockPaymentGateway) CreateCheckoutSession(ctx context.Context, input *provider.CheckoutSessionInput, email string, orderID uuid.UUID) (*provider.CheckoutSession, error) {
	args := m.Called(ctx, input, email, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.CheckoutSession), args.Error(1)
}

// harness wires the real services over the in-memory store.
type harness struct {
	store    *memStore
	notifier *recordingNotifier
	lock     *usecase.MemoryCheckoutLock
	wallets  *usecase.WalletService
	revenue  *usecase.RevenueDistributionService
	fulfill  *usecase.Fulfillment
	webhooks *usecase.WebhookService
	payments *usecase.PaymentService
	hook     *MockWebhookGateway
	checkout *MockPaymentGateway
	admin    model.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()
	store := newMemStore()
	h := &harness{
		store:    store,
		notifier: &recordingNotifier{},
		lock:     usecase.NewMemoryCheckoutLock(logger),
		hook:     new(MockWebhookGateway),
		checkout: new(MockPaymentGateway),
	}
	h.admin = store.addUser(model.RoleAdmin)

	h.wallets = usecase.NewWalletService(fakeWalletRepo{store}, "USD", logger)
	h.revenue = usecase.NewRevenueDistributionService(fakeOrderRepo{store}, fakeUserRepo{store}, h.wallets, h.notifier, usecase.RevenueConfig{}, logger)
	h.fulfill = usecase.NewFulfillment(fakeTxRepo{store}, fakeEnrollmentRepo{store}, fakeCartRepo{store}, h.revenue, h.notifier, logger)
	h.webhooks = usecase.NewWebhookService(
		[]provider.WebhookGateway{h.hook},
		fakeOrderRepo{store}, fakeTxRepo{store}, fakeEventRepo{store},
		h.wallets, h.fulfill, h.lock, logger)
	h.payments = usecase.NewPaymentService(
		fakeOrderRepo{store}, fakeTxRepo{store}, fakeEnrollmentRepo{store},
		[]provider.PaymentGateway{h.checkout},
		h.wallets, h.fulfill, h.lock,
		usecase.CheckoutConfig{
			LockTTL:        15 * time.Minute,
			SuccessURL:     "https://byway.test/success",
			CancelURL:      "https://byway.test/cancel",
			DefaultGateway: model.GatewayStripe,
		}, logger)
	return h
}

// deliver runs a signed delivery of event through the webhook service.
func (h *harness) deliver(event *provider.WebhookEvent) (*usecase.WebhookResult, error) {
	raw := []byte("payload:" + event.ID)
	event.Raw = raw
	h.hook.On("VerifySignature", raw, "sig").Return(event, nil)
	return h.webhooks.HandleWebhook(context.Background(), model.GatewayStripe, raw, "sig")
}

func checkoutCompleted(eventID, sessionID string, meta provider.Metadata, amount string) *provider.WebhookEvent {
	return &provider.WebhookEvent{
		ID:      eventID,
		Type:    "checkout.session.completed",
		Kind:    provider.EventCheckoutCompleted,
		Gateway: model.GatewayStripe,
		Checkout: &provider.CheckoutCompleted{
			SessionID:       sessionID,
			PaymentIntentID: "pi_" + sessionID,
			AmountTotal:     decimal.RequireFromString(amount),
			Currency:        "USD",
			Metadata:        meta.Map(),
		},
	}
}

func paymentFailed(eventID, intentID string) *provider.WebhookEvent {
	return &provider.WebhookEvent{
		ID:      eventID,
		Type:    "payment_intent.payment_failed",
		Kind:    provider.EventPaymentFailed,
		Gateway: model.GatewayStripe,
		Failure: &provider.PaymentFailed{
			PaymentIntentID: intentID,
			FailureCode:     "card_declined",
			FailureMessage:  "Your card was declined.",
		},
	}
}

// pendingPurchase records the PENDING transaction a gateway checkout leaves behind.
func (s *memStore) pendingPurchase(order model.Order, sessionID string) model.Transaction {
	tx := model.NewTransaction(order.UserID, model.TransactionTypePurchase, order.TotalAmount, order.Currency, model.GatewayStripe).
		WithOrder(order.ID).
		WithTransactionID(sessionID)
	_ = fakeTxRepo{s}.Create(context.Background(), tx)
	return *tx
}
