package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
)

type TransactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

// Insert appends a ledger entry. The table has no UPDATE path anywhere in
// this repo: entries are immutable.
func (r *TransactionRepo) Insert(ctx context.Context, tx *sql.Tx, t *models.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, wallet_id, owner_id, owner_type, direction, amount, balance_after,
		 category, ref_order_id, ref_payout_id, ref_referral_id, ref_return_id,
		 ref_adjusted_by, description, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`
	_, err := tx.ExecContext(ctx, query,
		t.ID, t.WalletID, t.Owner.ID, t.Owner.Type, t.Direction, t.Amount, t.BalanceAfter,
		t.Category,
		nullIfEmpty(t.Reference.OrderID),
		nullIfEmpty(t.Reference.PayoutID),
		nullIfEmpty(t.Reference.ReferralID),
		nullIfEmpty(t.Reference.ReturnID),
		nullIfEmpty(t.Reference.AdjustedBy),
		t.Description, t.Status, t.CreatedAt,
	)
	return err
}

// refColumn maps a category to the reference column that identifies its
// originating entity for duplicate detection.
func refColumn(category models.TxnCategory) (string, error) {
	switch category {
	case models.CategoryRefund:
		return "ref_return_id", nil
	case models.CategoryCommission, models.CategoryReferralBonus:
		return "ref_referral_id", nil
	case models.CategoryWithdrawal:
		return "ref_payout_id", nil
	case models.CategoryOrderPayment, models.CategoryBonus:
		return "ref_order_id", nil
	}
	return "", fmt.Errorf("category %s has no unique reference", category)
}

// ExistsForReference reports whether a completed entry already exists for the
// given category and originating entity. Used as the idempotency guard before
// refund and commission credits.
func (r *TransactionRepo) ExistsForReference(ctx context.Context, tx *sql.Tx, category models.TxnCategory, refID string) (bool, error) {
	col, err := refColumn(category)
	if err != nil {
		return false, err
	}
	var n int
	query := fmt.Sprintf(
		`SELECT COUNT(*) FROM transactions WHERE category = $1 AND %s = $2 AND status = $3`, col)
	if err := tx.QueryRowContext(ctx, query, category, refID, models.TxnCompleted).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListByWallet returns entries newest first.
func (r *TransactionRepo) ListByWallet(ctx context.Context, walletID, limit, offset int) ([]models.Transaction, error) {
	query := `
		SELECT id, wallet_id, owner_id, owner_type, direction, amount, balance_after,
		       category,
		       COALESCE(ref_order_id, ''), COALESCE(ref_payout_id, ''),
		       COALESCE(ref_referral_id, ''), COALESCE(ref_return_id, ''),
		       COALESCE(ref_adjusted_by, ''),
		       description, status, created_at
		FROM transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, walletID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(
			&t.ID, &t.WalletID, &t.Owner.ID, &t.Owner.Type, &t.Direction, &t.Amount, &t.BalanceAfter,
			&t.Category,
			&t.Reference.OrderID, &t.Reference.PayoutID,
			&t.Reference.ReferralID, &t.Reference.ReturnID,
			&t.Reference.AdjustedBy,
			&t.Description, &t.Status, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Sums recomputes completed credit and debit totals for a wallet, used by the
// integrity check against the wallet's aggregate counters.
func (r *TransactionRepo) Sums(ctx context.Context, walletID int) (credits, debits decimal.Decimal, err error) {
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE direction = $2), 0),
			COALESCE(SUM(amount) FILTER (WHERE direction = $3), 0)
		FROM transactions
		WHERE wallet_id = $1 AND status = $4
	`
	err = r.db.QueryRowContext(ctx, query,
		walletID, models.TxnCredit, models.TxnDebit, models.TxnCompleted,
	).Scan(&credits, &debits)
	return credits, debits, err
}
