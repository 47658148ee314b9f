package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
)

type ReferralRepo struct {
	db *sql.DB
}

func NewReferralRepo(db *sql.DB) *ReferralRepo {
	return &ReferralRepo{db: db}
}

func (r *ReferralRepo) Create(ctx context.Context, ref *models.Referral) error {
	query := `
		INSERT INTO referrals
		(id, referrer_id, referrer_type, referred_user_id, code, status,
		 commission_amount, commission_status, expires_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
	`
	_, err := r.db.ExecContext(ctx, query,
		ref.ID, ref.Referrer.ID, ref.Referrer.Type, ref.ReferredUserID, ref.Code,
		ref.Status, ref.CommissionAmount, ref.CommissionStatus, ref.ExpiresAt, ref.CreatedAt,
	)
	return err
}

const referralColumns = `
	id, referrer_id, referrer_type, referred_user_id, code, status,
	COALESCE(order_id, ''), commission_amount, commission_status,
	converted_at, credited_at, expires_at, created_at, updated_at
`

func scanReferral(row *sql.Row) (*models.Referral, error) {
	var ref models.Referral
	err := row.Scan(
		&ref.ID, &ref.Referrer.ID, &ref.Referrer.Type, &ref.ReferredUserID, &ref.Code,
		&ref.Status, &ref.OrderID, &ref.CommissionAmount, &ref.CommissionStatus,
		&ref.ConvertedAt, &ref.CreditedAt, &ref.ExpiresAt, &ref.CreatedAt, &ref.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ref, nil
}

// LockPendingByReferredUser returns the user's pending referral locked for
// conversion, or (nil, nil). A user has at most one pending referral.
func (r *ReferralRepo) LockPendingByReferredUser(ctx context.Context, tx *sql.Tx, userID string) (*models.Referral, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+referralColumns+` FROM referrals
		 WHERE referred_user_id = $1 AND status = $2 FOR UPDATE`,
		userID, models.ReferralPending,
	)
	return scanReferral(row)
}

// LockByOrder returns the referral converted by an order, locked, or (nil, nil).
func (r *ReferralRepo) LockByOrder(ctx context.Context, tx *sql.Tx, orderNumber string) (*models.Referral, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+referralColumns+` FROM referrals WHERE order_id = $1 FOR UPDATE`,
		orderNumber,
	)
	return scanReferral(row)
}

// Update writes the mutable referral fields inside the caller's transaction.
func (r *ReferralRepo) Update(ctx context.Context, tx *sql.Tx, ref *models.Referral) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE referrals
		SET status = $2, order_id = $3, commission_amount = $4,
		    commission_status = $5, converted_at = $6, credited_at = $7,
		    updated_at = NOW()
		WHERE id = $1
	`,
		ref.ID, ref.Status, nullIfEmpty(ref.OrderID), ref.CommissionAmount,
		ref.CommissionStatus, ref.ConvertedAt, ref.CreditedAt,
	)
	return err
}

// ResolveCode looks up the referrer behind a code, or (nil, nil).
func (r *ReferralRepo) ResolveCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	var rc models.ReferralCode
	err := r.db.QueryRowContext(ctx,
		`SELECT code, owner_id, owner_type, tier, active FROM referral_codes WHERE code = $1`,
		code,
	).Scan(&rc.Code, &rc.Owner.ID, &rc.Owner.Type, &rc.Tier, &rc.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rc, nil
}

// GetByReferredUser returns the user's most recent referral of any status,
// or (nil, nil). Used to reject duplicate signup registrations and to find
// ongoing influencer attributions.
func (r *ReferralRepo) GetByReferredUser(ctx context.Context, userID string) (*models.Referral, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+referralColumns+` FROM referrals
		 WHERE referred_user_id = $1 ORDER BY created_at DESC LIMIT 1`,
		userID,
	)
	return scanReferral(row)
}

// ExpireBefore marks unconverted referrals past their window as expired and
// returns how many moved.
func (r *ReferralRepo) ExpireBefore(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE referrals
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND expires_at < $3
	`,
		models.ReferralExpired, models.ReferralPending, now,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
