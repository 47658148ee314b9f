package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type Coupon struct {
	ID             int             `json:"id"`
	Code           string          `json:"code"` // stored upper-cased, unique
	DiscountType   DiscountType    `json:"discount_type"`
	DiscountValue  decimal.Decimal `json:"discount_value"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount"`
	MaxDiscount    decimal.Decimal `json:"max_discount"` // zero means uncapped
	UsageLimit     int             `json:"usage_limit"`  // zero means unlimited
	UsedCount      int             `json:"used_count"`
	PerUserLimit   int             `json:"per_user_limit"` // zero means unlimited
	StartDate      time.Time       `json:"start_date"`
	EndDate        time.Time       `json:"end_date"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CouponMeta is the read model used during validation: the coupon plus its
// applicability and exclusion sets.
type CouponMeta struct {
	Coupon
	ApplicableProducts   []string
	ApplicableCategories []string
	ExcludedProducts     []string
	ExcludedCategories   []string
}

// NormalizeCouponCode maps user input onto the stored form.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Discount computes the discount this coupon grants on the given amount.
// Callers must have validated applicability first.
func (c *Coupon) Discount(amount decimal.Decimal) decimal.Decimal {
	switch c.DiscountType {
	case DiscountPercentage:
		d := amount.Mul(c.DiscountValue).Div(decimal.NewFromInt(100))
		if c.MaxDiscount.IsPositive() {
			d = decimal.Min(d, c.MaxDiscount)
		}
		return d.Round(2)
	case DiscountFixed:
		return decimal.Min(c.DiscountValue, amount).Round(2)
	}
	return decimal.Zero
}
