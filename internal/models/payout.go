package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutRejected   PayoutStatus = "rejected"
	PayoutFailed     PayoutStatus = "failed"
)

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutPending:    {PayoutProcessing, PayoutCompleted, PayoutRejected, PayoutFailed},
	PayoutProcessing: {PayoutCompleted, PayoutRejected, PayoutFailed},
}

func (s PayoutStatus) CanTransition(to PayoutStatus) bool {
	for _, next := range payoutTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the payout has been resolved.
func (s PayoutStatus) Terminal() bool {
	return s == PayoutCompleted || s == PayoutRejected || s == PayoutFailed
}

type PayoutMethod string

const (
	PayoutBank PayoutMethod = "bank"
	PayoutUPI  PayoutMethod = "upi"
)

// PayoutDetails carries method-specific destination fields. Bank payouts use
// the account fields; UPI payouts use UPIID.
type PayoutDetails struct {
	AccountName   string `json:"account_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	IFSC          string `json:"ifsc,omitempty"`
	UPIID         string `json:"upi_id,omitempty"`
}

type Payout struct {
	ID          string          `json:"id"` // uuid
	Owner       WalletOwner     `json:"owner"`
	WalletID    int             `json:"wallet_id"`
	Amount      decimal.Decimal `json:"amount"`
	Method      PayoutMethod    `json:"method"`
	Details     PayoutDetails   `json:"details"`
	Status      PayoutStatus    `json:"status"`
	Reason      string          `json:"reason,omitempty"` // rejection/failure reason
	ProcessedBy string          `json:"processed_by,omitempty"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	ExternalRef string          `json:"external_ref,omitempty"` // rail transaction id
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
