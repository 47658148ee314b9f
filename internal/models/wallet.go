package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OwnerType string

const (
	OwnerUser       OwnerType = "user"
	OwnerInfluencer OwnerType = "influencer"
)

// WalletOwner identifies the (owner, ownerType) pair a wallet belongs to.
// Uniqueness of the pair is enforced by the storage layer.
type WalletOwner struct {
	ID   string    `json:"id"`
	Type OwnerType `json:"type"`
}

type Wallet struct {
	ID             int             `json:"id"`
	Owner          WalletOwner     `json:"owner"`
	Balance        decimal.Decimal `json:"balance"`
	PendingBalance decimal.Decimal `json:"pending_balance"`
	TotalEarned    decimal.Decimal `json:"total_earned"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
	TotalCredits   decimal.Decimal `json:"total_credits"`
	TotalDebits    decimal.Decimal `json:"total_debits"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// WalletSummary is the read shape served to owners.
type WalletSummary struct {
	Balance        decimal.Decimal `json:"balance"`
	PendingBalance decimal.Decimal `json:"pending_balance"`
	TotalEarned    decimal.Decimal `json:"total_earned"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
}
