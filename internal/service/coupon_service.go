package service

import (
	"context"
	"database/sql"
	"sync"

	"github.com/juju/clock"
	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/order-fulfillment-core/internal/apperr"
	"github.com/Cheertaboi/order-fulfillment-core/internal/cache"
	"github.com/Cheertaboi/order-fulfillment-core/internal/concurrency"
	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
)

// Validation failure reasons, distinguishable by the caller.
var (
	ErrCouponNotFound    = apperr.New(apperr.CodeNotFound, "coupon not found or inactive")
	ErrCouponOutOfWindow = apperr.New(apperr.CodeValidation, "coupon is not valid at this time")
	ErrMinOrderNotMet    = apperr.New(apperr.CodeValidation, "order amount below coupon minimum")
	ErrUsageExhausted    = apperr.New(apperr.CodeValidation, "coupon usage limit reached")
	ErrNotApplicable     = apperr.New(apperr.CodeValidation, "coupon does not apply to any item in the cart")
)

// CouponStore is the persistence surface the validator needs.
type CouponStore interface {
	GetMeta(ctx context.Context, code string) (*models.CouponMeta, error)
	LockUsage(ctx context.Context, tx *sql.Tx, couponID int) (usedCount, usageLimit int, err error)
	IncrementUsage(ctx context.Context, tx *sql.Tx, couponID int, userID string) error
	UserUsageCount(ctx context.Context, couponID int, userID string) (int, error)
	Create(ctx context.Context, tx *sql.Tx, meta *models.CouponMeta) (int, error)
}

type CouponService struct {
	store CouponStore
	run   TxRunner
	clock clock.Clock
	cache *cache.CouponCache
}

func NewCouponService(store CouponStore, run TxRunner, clk clock.Clock) *CouponService {
	return &CouponService{
		store: store,
		run:   run,
		clock: clk,
		cache: cache.NewCouponCache(),
	}
}

// ApplicabilityItem is a cart line enriched with its catalog category, used
// for applicability and exclusion checks.
type ApplicabilityItem struct {
	ProductID string
	Category  string
}

type ValidateCouponRequest struct {
	Code        string
	UserID      string
	OrderAmount decimal.Decimal
	Items       []ApplicabilityItem // optional; empty skips applicability checks
}

type ValidateCouponResult struct {
	Discount decimal.Decimal `json:"discount"`
	Coupon   models.Coupon   `json:"coupon"`
}

// Validate runs the full coupon contract and computes the discount. It never
// increments the usage counter: that happens only on committed order creation.
func (s *CouponService) Validate(ctx context.Context, req ValidateCouponRequest) (*ValidateCouponResult, error) {
	meta, err := s.meta(ctx, models.NormalizeCouponCode(req.Code))
	if err != nil {
		return nil, err
	}
	if meta == nil || !meta.Active {
		return nil, ErrCouponNotFound
	}

	now := s.clock.Now()
	if now.Before(meta.StartDate) || now.After(meta.EndDate) {
		return nil, ErrCouponOutOfWindow
	}
	if req.OrderAmount.LessThan(meta.MinOrderAmount) {
		return nil, ErrMinOrderNotMet
	}
	if meta.UsageLimit > 0 && meta.UsedCount >= meta.UsageLimit {
		return nil, ErrUsageExhausted
	}
	if meta.PerUserLimit > 0 {
		used, err := s.store.UserUsageCount(ctx, meta.ID, req.UserID)
		if err != nil {
			return nil, err
		}
		if used >= meta.PerUserLimit {
			return nil, ErrUsageExhausted
		}
	}
	if len(req.Items) > 0 && !s.anyApplicable(ctx, meta, req.Items) {
		return nil, ErrNotApplicable
	}

	return &ValidateCouponResult{
		Discount: meta.Discount(req.OrderAmount),
		Coupon:   meta.Coupon,
	}, nil
}

func (s *CouponService) meta(ctx context.Context, code string) (*models.CouponMeta, error) {
	if m, ok := s.cache.Get(code); ok {
		return m, nil
	}
	m, err := s.store.GetMeta(ctx, code)
	if err != nil {
		return nil, err
	}
	if m != nil {
		s.cache.Set(code, m)
	}
	return m, nil
}

// anyApplicable fans item checks out over a small worker pool and reports
// whether at least one cart item can carry the coupon.
func (s *CouponService) anyApplicable(ctx context.Context, meta *models.CouponMeta, items []ApplicabilityItem) bool {
	applicableProducts := toSet(meta.ApplicableProducts)
	applicableCategories := toSet(meta.ApplicableCategories)
	excludedProducts := toSet(meta.ExcludedProducts)
	excludedCategories := toSet(meta.ExcludedCategories)
	unrestricted := len(applicableProducts) == 0 && len(applicableCategories) == 0

	var mu sync.Mutex
	found := false

	concurrency.FanOut(ctx, 4, len(items), func(_ context.Context, idx int) {
		it := items[idx]
		if excludedProducts[it.ProductID] || excludedCategories[it.Category] {
			return
		}
		if unrestricted || applicableProducts[it.ProductID] || applicableCategories[it.Category] {
			mu.Lock()
			found = true
			mu.Unlock()
		}
	})
	return found
}

func toSet(vals []string) map[string]bool {
	set := make(map[string]bool, len(vals))
	for _, v := range vals {
		set[v] = true
	}
	return set
}

// ConsumeUsage rechecks limits under the coupon row lock and increments the
// counters, inside the transaction that persists the order. If the order
// insert fails the increment rolls back with it; usage is never reserved for
// an abandoned checkout.
func (s *CouponService) ConsumeUsage(ctx context.Context, tx *sql.Tx, couponID int, code, userID string) error {
	usedCount, usageLimit, err := s.store.LockUsage(ctx, tx, couponID)
	if err != nil {
		return err
	}
	if usageLimit > 0 && usedCount >= usageLimit {
		return ErrUsageExhausted
	}
	if err := s.store.IncrementUsage(ctx, tx, couponID, userID); err != nil {
		return err
	}
	s.cache.Invalidate(code)
	return nil
}

// Create persists a new coupon definition (administration surface).
func (s *CouponService) Create(ctx context.Context, meta *models.CouponMeta) (int, error) {
	meta.Code = models.NormalizeCouponCode(meta.Code)
	if meta.Code == "" {
		return 0, apperr.New(apperr.CodeValidation, "coupon code required")
	}
	if meta.DiscountType != models.DiscountPercentage && meta.DiscountType != models.DiscountFixed {
		return 0, apperr.Newf(apperr.CodeValidation, "unknown discount type %q", meta.DiscountType)
	}
	if !meta.DiscountValue.IsPositive() {
		return 0, apperr.New(apperr.CodeValidation, "discount value must be positive")
	}
	if meta.DiscountType == models.DiscountPercentage && meta.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return 0, apperr.New(apperr.CodeValidation, "percentage discount cannot exceed 100")
	}
	if meta.EndDate.Before(meta.StartDate) {
		return 0, apperr.New(apperr.CodeValidation, "end date before start date")
	}

	var id int
	err := s.run.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = s.store.Create(ctx, tx, meta)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.cache.Invalidate(meta.Code)
	return id, nil
}
