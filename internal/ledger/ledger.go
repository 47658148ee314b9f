// Package ledger is the single authority for wallet balance mutation. Every
// credit and debit appends an immutable transaction carrying the resulting
// balance; wallet aggregates stay derivable from the transaction log.
package ledger

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
	"github.com/im7mortal/kmutex"
	"github.com/juju/clock"
	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/order-fulfillment-core/internal/apperr"
	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
)

// WalletStore is the persistence surface the ledger needs for wallets.
type WalletStore interface {
	Get(ctx context.Context, owner models.WalletOwner) (*models.Wallet, error)
	LockOrCreate(ctx context.Context, tx *sql.Tx, owner models.WalletOwner) (*models.Wallet, error)
	Update(ctx context.Context, tx *sql.Tx, w *models.Wallet) error
}

// TransactionStore appends and reads ledger entries. There is deliberately no
// update method.
type TransactionStore interface {
	Insert(ctx context.Context, tx *sql.Tx, t *models.Transaction) error
	ExistsForReference(ctx context.Context, tx *sql.Tx, category models.TxnCategory, refID string) (bool, error)
	ListByWallet(ctx context.Context, walletID, limit, offset int) ([]models.Transaction, error)
	Sums(ctx context.Context, walletID int) (credits, debits decimal.Decimal, err error)
}

type Ledger struct {
	wallets WalletStore
	txns    TransactionStore
	clock   clock.Clock
	locks   *kmutex.Kmutex
	log     *slog.Logger
}

func New(wallets WalletStore, txns TransactionStore, clk clock.Clock, log *slog.Logger) *Ledger {
	return &Ledger{
		wallets: wallets,
		txns:    txns,
		clock:   clk,
		locks:   kmutex.New(),
		log:     log,
	}
}

func ownerKey(owner models.WalletOwner) string {
	return string(owner.Type) + ":" + owner.ID
}

// referenceID returns the id that makes an entry unique for its category, or
// empty when the category has no single-shot guarantee (adjustments, manual
// bonuses may legitimately repeat).
func referenceID(category models.TxnCategory, ref models.TxnReference) string {
	switch category {
	case models.CategoryRefund:
		return ref.ReturnID
	case models.CategoryCommission, models.CategoryReferralBonus:
		return ref.ReferralID
	case models.CategoryWithdrawal:
		return ref.PayoutID
	}
	return ""
}

// Credit adds amount to the owner's balance and appends the entry. For
// categories with a unique originating entity a duplicate reference fails
// with a state-conflict before anything moves.
func (l *Ledger) Credit(ctx context.Context, tx *sql.Tx, owner models.WalletOwner, amount decimal.Decimal, category models.TxnCategory, ref models.TxnReference, description string) (*models.Transaction, error) {
	return l.mutate(ctx, tx, owner, amount, models.TxnCredit, category, ref, description)
}

// Debit removes amount from the owner's balance. Fails with insufficient
// funds when amount exceeds the balance; nothing is appended in that case.
func (l *Ledger) Debit(ctx context.Context, tx *sql.Tx, owner models.WalletOwner, amount decimal.Decimal, category models.TxnCategory, ref models.TxnReference, description string) (*models.Transaction, error) {
	return l.mutate(ctx, tx, owner, amount, models.TxnDebit, category, ref, description)
}

func (l *Ledger) mutate(ctx context.Context, tx *sql.Tx, owner models.WalletOwner, amount decimal.Decimal, direction models.TxnDirection, category models.TxnCategory, ref models.TxnReference, description string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, apperr.Newf(apperr.CodeValidation, "amount must be positive, got %s", amount)
	}

	key := ownerKey(owner)
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	if refID := referenceID(category, ref); refID != "" {
		exists, err := l.txns.ExistsForReference(ctx, tx, category, refID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, apperr.Newf(apperr.CodeStateConflict,
				"%s transaction already recorded for %s", category, refID)
		}
	}

	w, err := l.wallets.LockOrCreate(ctx, tx, owner)
	if err != nil {
		return nil, err
	}

	switch direction {
	case models.TxnCredit:
		w.Balance = w.Balance.Add(amount)
		w.TotalCredits = w.TotalCredits.Add(amount)
		if category == models.CategoryCommission || category == models.CategoryBonus || category == models.CategoryReferralBonus {
			w.TotalEarned = w.TotalEarned.Add(amount)
		}
	case models.TxnDebit:
		if amount.GreaterThan(w.Balance) {
			return nil, apperr.InsufficientFunds(w.Balance, amount)
		}
		w.Balance = w.Balance.Sub(amount)
		w.TotalDebits = w.TotalDebits.Add(amount)
		if category == models.CategoryWithdrawal {
			w.TotalWithdrawn = w.TotalWithdrawn.Add(amount)
		}
	}

	entry := &models.Transaction{
		ID:           uuid.NewString(),
		WalletID:     w.ID,
		Owner:        owner,
		Direction:    direction,
		Amount:       amount,
		BalanceAfter: w.Balance,
		Category:     category,
		Reference:    ref,
		Description:  description,
		Status:       models.TxnCompleted,
		CreatedAt:    l.clock.Now().UTC(),
	}
	if err := l.txns.Insert(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := l.wallets.Update(ctx, tx, w); err != nil {
		return nil, err
	}

	l.log.Info("ledger entry",
		"owner", key,
		"direction", direction,
		"category", category,
		"amount", amount.String(),
		"balance_after", w.Balance.String(),
	)
	return entry, nil
}

// HoldPending raises the owner's pending balance without touching spendable
// balance or the transaction log. Used for not-yet-credited commission.
func (l *Ledger) HoldPending(ctx context.Context, tx *sql.Tx, owner models.WalletOwner, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Newf(apperr.CodeValidation, "amount must be positive, got %s", amount)
	}
	key := ownerKey(owner)
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	w, err := l.wallets.LockOrCreate(ctx, tx, owner)
	if err != nil {
		return err
	}
	w.PendingBalance = w.PendingBalance.Add(amount)
	return l.wallets.Update(ctx, tx, w)
}

// ReleasePending lowers the pending balance with no ledger entry, for voided
// commission. No transaction was ever created for the held amount.
func (l *Ledger) ReleasePending(ctx context.Context, tx *sql.Tx, owner models.WalletOwner, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Newf(apperr.CodeValidation, "amount must be positive, got %s", amount)
	}
	key := ownerKey(owner)
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	w, err := l.wallets.LockOrCreate(ctx, tx, owner)
	if err != nil {
		return err
	}
	if amount.GreaterThan(w.PendingBalance) {
		return apperr.Newf(apperr.CodeIntegrity,
			"pending release %s exceeds pending balance %s", amount, w.PendingBalance)
	}
	w.PendingBalance = w.PendingBalance.Sub(amount)
	return l.wallets.Update(ctx, tx, w)
}

// SettlePending converts held pending funds into a real credit: pending goes
// down, balance goes up, and a completed entry is appended, all in one unit.
func (l *Ledger) SettlePending(ctx context.Context, tx *sql.Tx, owner models.WalletOwner, amount decimal.Decimal, category models.TxnCategory, ref models.TxnReference, description string) (*models.Transaction, error) {
	if err := l.ReleasePending(ctx, tx, owner, amount); err != nil {
		return nil, err
	}
	return l.Credit(ctx, tx, owner, amount, category, ref, description)
}

// Summary returns the owner's balances, zero-valued for owners who never
// earned anything.
func (l *Ledger) Summary(ctx context.Context, owner models.WalletOwner) (*models.WalletSummary, error) {
	w, err := l.wallets.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return &models.WalletSummary{
			Balance:        decimal.Zero,
			PendingBalance: decimal.Zero,
			TotalEarned:    decimal.Zero,
			TotalWithdrawn: decimal.Zero,
		}, nil
	}
	return &models.WalletSummary{
		Balance:        w.Balance,
		PendingBalance: w.PendingBalance,
		TotalEarned:    w.TotalEarned,
		TotalWithdrawn: w.TotalWithdrawn,
	}, nil
}

// Transactions lists the owner's ledger history, newest first.
func (l *Ledger) Transactions(ctx context.Context, owner models.WalletOwner, limit, offset int) ([]models.Transaction, error) {
	w, err := l.wallets.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return l.txns.ListByWallet(ctx, w.ID, limit, offset)
}

// VerifyIntegrity recomputes credit/debit sums from the log and compares them
// with the wallet. A mismatch is reported, never repaired: it means the
// invariant enforcement above has a bug.
func (l *Ledger) VerifyIntegrity(ctx context.Context, owner models.WalletOwner) error {
	w, err := l.wallets.Get(ctx, owner)
	if err != nil {
		return err
	}
	if w == nil {
		return nil
	}
	credits, debits, err := l.txns.Sums(ctx, w.ID)
	if err != nil {
		return err
	}
	if !w.Balance.Equal(credits.Sub(debits)) {
		return apperr.Newf(apperr.CodeIntegrity,
			"wallet %d balance %s does not equal credits %s - debits %s",
			w.ID, w.Balance, credits, debits)
	}
	if !w.TotalCredits.Equal(credits) || !w.TotalDebits.Equal(debits) {
		return apperr.Newf(apperr.CodeIntegrity,
			"wallet %d aggregates drifted from transaction log", w.ID)
	}
	if w.Balance.IsNegative() {
		return apperr.Newf(apperr.CodeIntegrity, "wallet %d balance is negative: %s", w.ID, w.Balance)
	}
	return nil
}
