package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/order-fulfillment-core/internal/apperr"
	"github.com/Cheertaboi/order-fulfillment-core/internal/ledger"
	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
	"github.com/Cheertaboi/order-fulfillment-core/internal/policy"
)

// In-memory fakes for the store interfaces. They ignore the tx parameter so
// service logic runs without a database; atomicity itself is not under test.

// fakeRunner serializes units of work the way conflicting row locks serialize
// transactions against the real database, so concurrency tests exercise the
// same ordering guarantees the services rely on.
type fakeRunner struct{ mu *sync.Mutex }

func newFakeRunner() fakeRunner { return fakeRunner{mu: &sync.Mutex{}} }

func (r fakeRunner) WithTx(_ context.Context, fn func(tx *sql.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(nil)
}

type noopNotifier struct{}

func (noopNotifier) OrderEvent(*models.Order, string)   {}
func (noopNotifier) ReturnEvent(*models.Return, string) {}
func (noopNotifier) PayoutEvent(*models.Payout, string) {}

type stubVerifier struct{ ok bool }

func (v stubVerifier) Verify(_, _, _ string) bool { return v.ok }

func walletKey(owner models.WalletOwner) string {
	return string(owner.Type) + ":" + owner.ID
}

// memWallets backs both the ledger and payout admission.
type memWallets struct {
	mu      sync.Mutex
	nextID  int
	wallets map[string]*models.Wallet
}

func newMemWallets() *memWallets {
	return &memWallets{nextID: 1, wallets: map[string]*models.Wallet{}}
}

func (m *memWallets) Get(_ context.Context, owner models.WalletOwner) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[walletKey(owner)]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (m *memWallets) LockOrCreate(_ context.Context, _ *sql.Tx, owner models.WalletOwner) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[walletKey(owner)]
	if !ok {
		w = &models.Wallet{
			ID: m.nextID, Owner: owner, Active: true,
			Balance: decimal.Zero, PendingBalance: decimal.Zero,
			TotalEarned: decimal.Zero, TotalWithdrawn: decimal.Zero,
			TotalCredits: decimal.Zero, TotalDebits: decimal.Zero,
		}
		m.nextID++
		m.wallets[walletKey(owner)] = w
	}
	cp := *w
	return &cp, nil
}

func (m *memWallets) Update(_ context.Context, _ *sql.Tx, w *models.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.wallets[walletKey(w.Owner)] = &cp
	return nil
}

type memTxns struct {
	mu      sync.Mutex
	entries []models.Transaction
}

func (m *memTxns) Insert(_ context.Context, _ *sql.Tx, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *t)
	return nil
}

func (m *memTxns) ExistsForReference(_ context.Context, _ *sql.Tx, category models.TxnCategory, refID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.Category != category {
			continue
		}
		if e.Reference.ReturnID == refID || e.Reference.ReferralID == refID || e.Reference.PayoutID == refID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memTxns) ListByWallet(_ context.Context, walletID, limit, offset int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []models.Transaction
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].WalletID == walletID {
			all = append(all, m.entries[i])
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memTxns) Sums(_ context.Context, walletID int) (decimal.Decimal, decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	credits, debits := decimal.Zero, decimal.Zero
	for _, e := range m.entries {
		if e.WalletID != walletID {
			continue
		}
		if e.Direction == models.TxnCredit {
			credits = credits.Add(e.Amount)
		} else {
			debits = debits.Add(e.Amount)
		}
	}
	return credits, debits, nil
}

func (m *memTxns) byCategory(category models.TxnCategory) []models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for _, e := range m.entries {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}

type memCoupons struct {
	mu        sync.Mutex
	nextID    int
	byCode    map[string]*models.CouponMeta
	userUsage map[int]map[string]int
}

func newMemCoupons() *memCoupons {
	return &memCoupons{nextID: 1, byCode: map[string]*models.CouponMeta{}, userUsage: map[int]map[string]int{}}
}

func (m *memCoupons) add(meta *models.CouponMeta) *models.CouponMeta {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta.ID = m.nextID
	m.nextID++
	m.byCode[meta.Code] = meta
	return meta
}

func (m *memCoupons) GetMeta(_ context.Context, code string) (*models.CouponMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.byCode[code]
	if !ok {
		return nil, nil
	}
	cp := *meta
	return &cp, nil
}

func (m *memCoupons) LockUsage(_ context.Context, _ *sql.Tx, couponID int) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, meta := range m.byCode {
		if meta.ID == couponID {
			return meta.UsedCount, meta.UsageLimit, nil
		}
	}
	return 0, 0, apperr.Newf(apperr.CodeNotFound, "coupon %d not found", couponID)
}

func (m *memCoupons) IncrementUsage(_ context.Context, _ *sql.Tx, couponID int, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, meta := range m.byCode {
		if meta.ID == couponID {
			meta.UsedCount++
			if m.userUsage[couponID] == nil {
				m.userUsage[couponID] = map[string]int{}
			}
			m.userUsage[couponID][userID]++
			return nil
		}
	}
	return apperr.Newf(apperr.CodeNotFound, "coupon %d not found", couponID)
}

func (m *memCoupons) UserUsageCount(_ context.Context, couponID int, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userUsage[couponID][userID], nil
}

func (m *memCoupons) Create(_ context.Context, _ *sql.Tx, meta *models.CouponMeta) (int, error) {
	return m.add(meta).ID, nil
}

// memOrders also implements OrderCounter. Prior order counts are set by tests
// via priorOrders, mimicking the committed-state read of the real repository.
type memOrders struct {
	mu          sync.Mutex
	nextID      int
	byNumber    map[string]*models.Order
	priorOrders map[string]int
}

func newMemOrders() *memOrders {
	return &memOrders{nextID: 1, byNumber: map[string]*models.Order{}, priorOrders: map[string]int{}}
}

func (m *memOrders) Create(_ context.Context, _ *sql.Tx, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = m.nextID
	m.nextID++
	cp := *o
	m.byNumber[o.Number] = &cp
	return nil
}

func (m *memOrders) get(number string) *models.Order {
	w, ok := m.byNumber[number]
	if !ok {
		return nil
	}
	cp := *w
	return &cp
}

func (m *memOrders) GetByNumber(_ context.Context, number string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(number), nil
}

func (m *memOrders) LockByNumber(_ context.Context, _ *sql.Tx, number string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(number), nil
}

func (m *memOrders) SetPayment(_ context.Context, _ *sql.Tx, orderID int, status models.PaymentStatus, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byNumber {
		if o.ID == orderID {
			o.PaymentStatus = status
			o.PaymentID = paymentID
		}
	}
	return nil
}

func (m *memOrders) SetStatus(_ context.Context, _ *sql.Tx, orderID int, status models.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byNumber {
		if o.ID == orderID {
			o.Status = status
		}
	}
	return nil
}

func (m *memOrders) SetCancelled(_ context.Context, _ *sql.Tx, orderID int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byNumber {
		if o.ID == orderID {
			o.Status = models.OrderCancelled
			o.CancelReason = reason
		}
	}
	return nil
}

func (m *memOrders) SetShipped(_ context.Context, _ *sql.Tx, orderID int, trackingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byNumber {
		if o.ID == orderID {
			o.Status = models.OrderShipped
			o.TrackingID = trackingID
		}
	}
	return nil
}

func (m *memOrders) SetDelivered(_ context.Context, _ *sql.Tx, orderID int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byNumber {
		if o.ID == orderID {
			o.Status = models.OrderDelivered
			o.DeliveredAt = &at
		}
	}
	return nil
}

func (m *memOrders) CountByUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.priorOrders[userID], nil
}

type memCatalog struct {
	mu       sync.Mutex
	products map[string]*models.CatalogProduct
}

func newMemCatalog() *memCatalog {
	return &memCatalog{products: map[string]*models.CatalogProduct{}}
}

func (m *memCatalog) add(p models.CatalogProduct) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = &p
}

func (m *memCatalog) stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *memCatalog) LockForSale(_ context.Context, _ *sql.Tx, ids []string) (map[string]models.CatalogProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.CatalogProduct, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = *p
		}
	}
	return out, nil
}

func (m *memCatalog) AdjustStock(_ context.Context, _ *sql.Tx, productID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return apperr.Newf(apperr.CodeNotFound, "product %s not found", productID)
	}
	p.Stock += delta
	return nil
}

type memEvents struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemEvents() *memEvents {
	return &memEvents{seen: map[string]bool{}}
}

func (m *memEvents) MarkProcessed(_ context.Context, _ *sql.Tx, key, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[key] {
		return apperr.Newf(apperr.CodeStateConflict, "event %s already processed", key)
	}
	m.seen[key] = true
	return nil
}

type memReferrals struct {
	mu    sync.Mutex
	byID  map[string]*models.Referral
	codes map[string]*models.ReferralCode
}

func newMemReferrals() *memReferrals {
	return &memReferrals{byID: map[string]*models.Referral{}, codes: map[string]*models.ReferralCode{}}
}

func (m *memReferrals) addCode(rc models.ReferralCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[rc.Code] = &rc
}

func (m *memReferrals) Create(_ context.Context, ref *models.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ref
	m.byID[ref.ID] = &cp
	return nil
}

func (m *memReferrals) LockPendingByReferredUser(_ context.Context, _ *sql.Tx, userID string) (*models.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.ReferredUserID == userID && r.Status == models.ReferralPending {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memReferrals) LockByOrder(_ context.Context, _ *sql.Tx, orderNumber string) (*models.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.OrderID == orderNumber {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memReferrals) GetByReferredUser(_ context.Context, userID string) (*models.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.Referral
	for _, r := range m.byID {
		if r.ReferredUserID != userID {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *memReferrals) Update(_ context.Context, _ *sql.Tx, ref *models.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ref
	m.byID[ref.ID] = &cp
	return nil
}

func (m *memReferrals) ResolveCode(_ context.Context, code string) (*models.ReferralCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.codes[code]
	if !ok {
		return nil, nil
	}
	cp := *rc
	return &cp, nil
}

func (m *memReferrals) ExpireBefore(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.byID {
		if r.Status == models.ReferralPending && r.ExpiresAt.Before(now) {
			r.Status = models.ReferralExpired
			n++
		}
	}
	return n, nil
}

type memPayouts struct {
	mu   sync.Mutex
	byID map[string]*models.Payout
}

func newMemPayouts() *memPayouts {
	return &memPayouts{byID: map[string]*models.Payout{}}
}

func (m *memPayouts) Create(_ context.Context, _ *sql.Tx, p *models.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *memPayouts) Get(_ context.Context, id string) (*models.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memPayouts) Lock(ctx context.Context, _ *sql.Tx, id string) (*models.Payout, error) {
	return m.Get(ctx, id)
}

func (m *memPayouts) Update(_ context.Context, _ *sql.Tx, p *models.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *memPayouts) ReservedAmount(_ context.Context, _ *sql.Tx, walletID int) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, p := range m.byID {
		if p.WalletID == walletID && (p.Status == models.PayoutPending || p.Status == models.PayoutProcessing) {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

type memReturns struct {
	mu   sync.Mutex
	byID map[string]*models.Return
}

func newMemReturns() *memReturns {
	return &memReturns{byID: map[string]*models.Return{}}
}

func (m *memReturns) Create(_ context.Context, _ *sql.Tx, ret *models.Return) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ret
	m.byID[ret.ID] = &cp
	return nil
}

func (m *memReturns) Get(_ context.Context, id string) (*models.Return, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *ret
	return &cp, nil
}

func (m *memReturns) Lock(ctx context.Context, _ *sql.Tx, id string) (*models.Return, error) {
	return m.Get(ctx, id)
}

func (m *memReturns) Update(_ context.Context, _ *sql.Tx, ret *models.Return) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ret
	m.byID[ret.ID] = &cp
	return nil
}

func (m *memReturns) HasOpenForOrder(_ context.Context, _ *sql.Tx, orderID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.OrderID == orderID && r.Status != models.ReturnCancelled && r.Status != models.ReturnRejected && r.Status != models.ReturnRefundCompleted {
			return true, nil
		}
	}
	return false, nil
}

// fixture wires every service against the in-memory stores.
type fixture struct {
	clock     *testclock.Clock
	wallets   *memWallets
	txns      *memTxns
	coupons   *memCoupons
	orders    *memOrders
	catalog   *memCatalog
	events    *memEvents
	referrals *memReferrals
	payouts   *memPayouts
	returns   *memReturns
	policy    *policy.Policy

	ledger    *ledger.Ledger
	couponSvc *CouponService
	orderSvc  *OrderService
	refSvc    *ReferralService
	payoutSvc *PayoutService
	returnSvc *ReturnService
}

func newFixture() *fixture {
	f := &fixture{
		clock:     testclock.NewClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)),
		wallets:   newMemWallets(),
		txns:      &memTxns{},
		coupons:   newMemCoupons(),
		orders:    newMemOrders(),
		catalog:   newMemCatalog(),
		events:    newMemEvents(),
		referrals: newMemReferrals(),
		payouts:   newMemPayouts(),
		returns:   newMemReturns(),
		policy:    policy.Default(),
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	run := newFakeRunner()
	notifier := noopNotifier{}

	f.ledger = ledger.New(f.wallets, f.txns, f.clock, log)
	f.couponSvc = NewCouponService(f.coupons, run, f.clock)
	f.refSvc = NewReferralService(f.referrals, f.orders, f.ledger, f.policy, f.clock, log)
	f.orderSvc = NewOrderService(OrderServiceDeps{
		Orders:    f.orders,
		Catalog:   f.catalog,
		Events:    f.events,
		Coupons:   f.couponSvc,
		Referrals: f.refSvc,
		Ledger:    f.ledger,
		Run:       run,
		Policy:    f.policy,
		Verifier:  stubVerifier{ok: true},
		Notifier:  notifier,
		Clock:     f.clock,
		Log:       log,
	})
	f.payoutSvc = NewPayoutService(f.payouts, f.wallets, f.ledger, run, notifier, f.clock, log)
	f.returnSvc = NewReturnService(f.returns, f.orders, f.catalog, f.ledger, run, f.policy, notifier, f.clock, log)
	return f
}

func (f *fixture) addProduct(id, category string, price int64, stock int) {
	f.catalog.add(models.CatalogProduct{
		ID: id, Name: "product " + id, Category: category,
		Price: decimal.NewFromInt(price), Stock: stock, Active: true,
	})
}

func (f *fixture) addCoupon(meta models.CouponMeta) *models.CouponMeta {
	meta.Code = models.NormalizeCouponCode(meta.Code)
	return f.coupons.add(&meta)
}

func testAddress() models.Address {
	return models.Address{
		Name: "Asha Verma", Line1: "14 Lake Road", City: "Pune",
		State: "MH", PostalCode: "411001", Country: "IN", Phone: "9999999999",
	}
}
