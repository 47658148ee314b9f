package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TxnDirection string

const (
	TxnCredit TxnDirection = "credit"
	TxnDebit  TxnDirection = "debit"
)

type TxnStatus string

const (
	TxnPending   TxnStatus = "pending"
	TxnCompleted TxnStatus = "completed"
	TxnFailed    TxnStatus = "failed"
	TxnReversed  TxnStatus = "reversed"
)

type TxnCategory string

const (
	CategoryOrderPayment  TxnCategory = "order_payment"
	CategoryRefund        TxnCategory = "refund"
	CategoryCommission    TxnCategory = "commission"
	CategoryWithdrawal    TxnCategory = "withdrawal"
	CategoryBonus         TxnCategory = "bonus"
	CategoryReferralBonus TxnCategory = "referral_bonus"
	CategoryAdjustment    TxnCategory = "adjustment"
)

// TxnReference is the closed tagged variant linking a transaction to its
// originating entity. Exactly one id field is set, chosen by Category.
type TxnReference struct {
	OrderID    string `json:"order_id,omitempty"`    // order_payment, refund, bonus
	PayoutID   string `json:"payout_id,omitempty"`   // withdrawal
	ReferralID string `json:"referral_id,omitempty"` // commission, referral_bonus
	ReturnID   string `json:"return_id,omitempty"`   // refund
	AdjustedBy string `json:"adjusted_by,omitempty"` // adjustment (admin id)
}

// Transaction is an immutable ledger entry. A reversal is a new entry; a past
// entry is never mutated.
type Transaction struct {
	ID           string          `json:"id"` // uuid
	WalletID     int             `json:"wallet_id"`
	Owner        WalletOwner     `json:"owner"`
	Direction    TxnDirection    `json:"direction"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Category     TxnCategory     `json:"category"`
	Reference    TxnReference    `json:"reference"`
	Description  string          `json:"description,omitempty"`
	Status       TxnStatus       `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}
