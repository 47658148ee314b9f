package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
)

type WalletRepo struct {
	db *sql.DB
}

func NewWalletRepo(db *sql.DB) *WalletRepo {
	return &WalletRepo{db: db}
}

const walletColumns = `
	id, owner_id, owner_type, balance, pending_balance,
	total_earned, total_withdrawn, total_credits, total_debits,
	active, created_at, updated_at
`

func scanWallet(row *sql.Row) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(
		&w.ID, &w.Owner.ID, &w.Owner.Type, &w.Balance, &w.PendingBalance,
		&w.TotalEarned, &w.TotalWithdrawn, &w.TotalCredits, &w.TotalDebits,
		&w.Active, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

// Get returns the wallet for an owner without locking, or (nil, nil).
func (r *WalletRepo) Get(ctx context.Context, owner models.WalletOwner) (*models.Wallet, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 AND owner_type = $2`,
		owner.ID, owner.Type,
	)
	return scanWallet(row)
}

// LockOrCreate returns the owner's wallet locked FOR UPDATE, creating it
// lazily on first use. The (owner_id, owner_type) unique index makes the
// create race-safe: a losing insert falls through to the locked select.
func (r *WalletRepo) LockOrCreate(ctx context.Context, tx *sql.Tx, owner models.WalletOwner) (*models.Wallet, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 AND owner_type = $2 FOR UPDATE`,
		owner.ID, owner.Type,
	)
	w, err := scanWallet(row)
	if err != nil {
		return nil, err
	}
	if w != nil {
		return w, nil
	}

	insert := `
		INSERT INTO wallets (owner_id, owner_type, balance, pending_balance,
		                     total_earned, total_withdrawn, total_credits, total_debits,
		                     active, created_at, updated_at)
		VALUES ($1, $2, 0, 0, 0, 0, 0, 0, TRUE, NOW(), NOW())
		ON CONFLICT (owner_id, owner_type) DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, insert, owner.ID, owner.Type); err != nil {
		return nil, err
	}
	row = tx.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 AND owner_type = $2 FOR UPDATE`,
		owner.ID, owner.Type,
	)
	return scanWallet(row)
}

// Update writes balance and aggregate columns. Caller must hold the row lock.
func (r *WalletRepo) Update(ctx context.Context, tx *sql.Tx, w *models.Wallet) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET balance = $2, pending_balance = $3,
		    total_earned = $4, total_withdrawn = $5,
		    total_credits = $6, total_debits = $7,
		    updated_at = NOW()
		WHERE id = $1
	`,
		w.ID, w.Balance, w.PendingBalance,
		w.TotalEarned, w.TotalWithdrawn,
		w.TotalCredits, w.TotalDebits,
	)
	return err
}
