package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
)

type CouponRepo struct {
	db *sql.DB
}

func NewCouponRepo(db *sql.DB) *CouponRepo {
	return &CouponRepo{db: db}
}

// GetMeta loads a coupon with its applicability sets. Returns (nil, nil) when
// the code does not exist.
func (r *CouponRepo) GetMeta(ctx context.Context, code string) (*models.CouponMeta, error) {
	var c models.Coupon

	query := `
		SELECT id, code, discount_type, discount_value, min_order_amount,
		       max_discount, usage_limit, used_count, per_user_limit,
		       start_date, end_date, active, created_at, updated_at
		FROM coupons
		WHERE code = $1
	`

	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&c.ID,
		&c.Code,
		&c.DiscountType,
		&c.DiscountValue,
		&c.MinOrderAmount,
		&c.MaxDiscount,
		&c.UsageLimit,
		&c.UsedCount,
		&c.PerUserLimit,
		&c.StartDate,
		&c.EndDate,
		&c.Active,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	meta := &models.CouponMeta{Coupon: c}
	for _, set := range []struct {
		query string
		dst   *[]string
	}{
		{`SELECT product_id FROM coupon_applicable_products WHERE coupon_id = $1`, &meta.ApplicableProducts},
		{`SELECT category_name FROM coupon_applicable_categories WHERE coupon_id = $1`, &meta.ApplicableCategories},
		{`SELECT product_id FROM coupon_excluded_products WHERE coupon_id = $1`, &meta.ExcludedProducts},
		{`SELECT category_name FROM coupon_excluded_categories WHERE coupon_id = $1`, &meta.ExcludedCategories},
	} {
		vals, err := r.stringSet(ctx, set.query, c.ID)
		if err != nil {
			return nil, err
		}
		*set.dst = vals
	}
	return meta, nil
}

func (r *CouponRepo) stringSet(ctx context.Context, query string, couponID int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, couponID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// LockUsage locks the coupon row and returns its current counters. Locking
// the row serializes concurrent placements racing for the last redemption.
func (r *CouponRepo) LockUsage(ctx context.Context, tx *sql.Tx, couponID int) (usedCount, usageLimit int, err error) {
	query := `SELECT used_count, usage_limit FROM coupons WHERE id = $1 FOR UPDATE`
	err = tx.QueryRowContext(ctx, query, couponID).Scan(&usedCount, &usageLimit)
	return usedCount, usageLimit, err
}

// IncrementUsage bumps the global counter and records the per-user redemption.
// Must run inside the same transaction that persists the order.
func (r *CouponRepo) IncrementUsage(ctx context.Context, tx *sql.Tx, couponID int, userID string) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE coupons SET used_count = used_count + 1, updated_at = NOW() WHERE id = $1`,
		couponID,
	); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO coupon_redemptions (coupon_id, user_id, redeemed_at) VALUES ($1, $2, NOW())`,
		couponID, userID,
	)
	return err
}

// UserUsageCount counts how many times a user has redeemed a coupon.
func (r *CouponRepo) UserUsageCount(ctx context.Context, couponID int, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM coupon_redemptions WHERE coupon_id = $1 AND user_id = $2`,
		couponID, userID,
	).Scan(&n)
	return n, err
}

// Create inserts a coupon with its applicability sets in one transaction.
func (r *CouponRepo) Create(ctx context.Context, tx *sql.Tx, meta *models.CouponMeta) (int, error) {
	query := `
		INSERT INTO coupons
		(code, discount_type, discount_value, min_order_amount, max_discount,
		 usage_limit, used_count, per_user_limit, start_date, end_date, active,
		 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,0,$7,$8,$9,$10,NOW(),NOW())
		RETURNING id
	`
	var id int
	err := tx.QueryRowContext(ctx, query,
		meta.Code,
		meta.DiscountType,
		meta.DiscountValue,
		meta.MinOrderAmount,
		meta.MaxDiscount,
		meta.UsageLimit,
		meta.PerUserLimit,
		meta.StartDate,
		meta.EndDate,
		meta.Active,
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	for _, set := range []struct {
		stmt string
		vals []string
	}{
		{`INSERT INTO coupon_applicable_products (coupon_id, product_id) VALUES ($1, $2)`, meta.ApplicableProducts},
		{`INSERT INTO coupon_applicable_categories (coupon_id, category_name) VALUES ($1, $2)`, meta.ApplicableCategories},
		{`INSERT INTO coupon_excluded_products (coupon_id, product_id) VALUES ($1, $2)`, meta.ExcludedProducts},
		{`INSERT INTO coupon_excluded_categories (coupon_id, category_name) VALUES ($1, $2)`, meta.ExcludedCategories},
	} {
		for _, v := range set.vals {
			if _, err := tx.ExecContext(ctx, set.stmt, id, v); err != nil {
				return 0, err
			}
		}
	}
	return id, nil
}
