package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
)

type PayoutRepo struct {
	db *sql.DB
}

func NewPayoutRepo(db *sql.DB) *PayoutRepo {
	return &PayoutRepo{db: db}
}

func (r *PayoutRepo) Create(ctx context.Context, tx *sql.Tx, p *models.Payout) error {
	query := `
		INSERT INTO payouts
		(id, owner_id, owner_type, wallet_id, amount, method,
		 account_name, account_number, ifsc, upi_id,
		 status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
	`
	_, err := tx.ExecContext(ctx, query,
		p.ID, p.Owner.ID, p.Owner.Type, p.WalletID, p.Amount, p.Method,
		nullIfEmpty(p.Details.AccountName), nullIfEmpty(p.Details.AccountNumber),
		nullIfEmpty(p.Details.IFSC), nullIfEmpty(p.Details.UPIID),
		p.Status, p.CreatedAt,
	)
	return err
}

const payoutColumns = `
	id, owner_id, owner_type, wallet_id, amount, method,
	COALESCE(account_name, ''), COALESCE(account_number, ''),
	COALESCE(ifsc, ''), COALESCE(upi_id, ''),
	status, COALESCE(reason, ''), COALESCE(processed_by, ''), processed_at,
	COALESCE(external_ref, ''), created_at, updated_at
`

func scanPayout(row *sql.Row) (*models.Payout, error) {
	var p models.Payout
	err := row.Scan(
		&p.ID, &p.Owner.ID, &p.Owner.Type, &p.WalletID, &p.Amount, &p.Method,
		&p.Details.AccountName, &p.Details.AccountNumber,
		&p.Details.IFSC, &p.Details.UPIID,
		&p.Status, &p.Reason, &p.ProcessedBy, &p.ProcessedAt,
		&p.ExternalRef, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PayoutRepo) Get(ctx context.Context, id string) (*models.Payout, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, id)
	return scanPayout(row)
}

// Lock loads the payout FOR UPDATE so a resolution cannot race another.
func (r *PayoutRepo) Lock(ctx context.Context, tx *sql.Tx, id string) (*models.Payout, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1 FOR UPDATE`, id)
	return scanPayout(row)
}

func (r *PayoutRepo) Update(ctx context.Context, tx *sql.Tx, p *models.Payout) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE payouts
		SET status = $2, reason = $3, processed_by = $4, processed_at = $5,
		    external_ref = $6, updated_at = NOW()
		WHERE id = $1
	`,
		p.ID, p.Status, nullIfEmpty(p.Reason), nullIfEmpty(p.ProcessedBy),
		p.ProcessedAt, nullIfEmpty(p.ExternalRef),
	)
	return err
}

// ReservedAmount sums unresolved payout requests against a wallet. The sum is
// held out of the available balance until each request resolves.
func (r *PayoutRepo) ReservedAmount(ctx context.Context, tx *sql.Tx, walletID int) (decimal.Decimal, error) {
	var reserved decimal.Decimal
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payouts
		WHERE wallet_id = $1 AND status IN ($2, $3)
	`,
		walletID, models.PayoutPending, models.PayoutProcessing,
	).Scan(&reserved)
	return reserved, err
}
