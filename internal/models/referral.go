package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReferralStatus string

const (
	ReferralPending   ReferralStatus = "pending"
	ReferralConverted ReferralStatus = "converted"
	ReferralExpired   ReferralStatus = "expired"
)

type CommissionStatus string

const (
	CommissionPending   CommissionStatus = "pending"
	CommissionCredited  CommissionStatus = "credited"
	CommissionCancelled CommissionStatus = "cancelled"
)

// CommissionTier names must match the policy tier table keys.
type CommissionTier string

const (
	TierBronze   CommissionTier = "bronze"
	TierSilver   CommissionTier = "silver"
	TierGold     CommissionTier = "gold"
	TierPlatinum CommissionTier = "platinum"
	TierDiamond  CommissionTier = "diamond"
)

// ReferralCode is an admin-issued code tied to a referrer and their
// commission tier. Tiers are admin-assigned, not recomputed from sales.
type ReferralCode struct {
	Code   string         `json:"code"`
	Owner  WalletOwner    `json:"owner"`
	Tier   CommissionTier `json:"tier"`
	Active bool           `json:"active"`
}

// Referral links a referred user to a referrer. It converts at most once:
// OrderID is set exactly when Status becomes converted.
type Referral struct {
	ID               string           `json:"id"` // uuid
	Referrer         WalletOwner      `json:"referrer"`
	ReferredUserID   string           `json:"referred_user_id"`
	Code             string           `json:"code"`
	Status           ReferralStatus   `json:"status"`
	OrderID          string           `json:"order_id,omitempty"` // order number once converted
	CommissionAmount decimal.Decimal  `json:"commission_amount"`
	CommissionStatus CommissionStatus `json:"commission_status"`
	ConvertedAt      *time.Time       `json:"converted_at,omitempty"`
	CreditedAt       *time.Time       `json:"credited_at,omitempty"`
	ExpiresAt        time.Time        `json:"expires_at"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}
