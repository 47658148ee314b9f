// Package policy is the read-only policy store: commission tier tables,
// shipping/tax settings and eligibility windows. The core reads it; only
// administration mutates it, by shipping a new file and restarting.
package policy

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
)

// QualificationMode decides which orders earn a referrer commission.
type QualificationMode string

const (
	// QualifyFirstOrder credits commission on the referred user's first order only.
	QualifyFirstOrder QualificationMode = "first_order"
	// QualifyEveryOrder credits commission on every order (influencer programs).
	QualifyEveryOrder QualificationMode = "every_order"
)

type Policy struct {
	// TierRates maps tier name to commission percentage. Single source of
	// truth; nothing else may carry a copy of this table.
	TierRates map[models.CommissionTier]decimal.Decimal

	ReturnWindow   time.Duration
	ReferralExpiry time.Duration

	ShippingCharge        decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	TaxRatePercent        decimal.Decimal

	UserQualification       QualificationMode
	InfluencerQualification QualificationMode
}

// fileConfig is the yaml shape of the policy file. Rates and amounts are
// plain floats, durations are Go duration strings ("72h").
type fileConfig struct {
	TierRates               map[string]float64 `yaml:"tier_rates"`
	ReturnWindow            string             `yaml:"return_window"`
	ReferralExpiry          string             `yaml:"referral_expiry"`
	ShippingCharge          *float64           `yaml:"shipping_charge"`
	FreeShippingThreshold   *float64           `yaml:"free_shipping_threshold"`
	TaxRatePercent          *float64           `yaml:"tax_rate_percent"`
	UserQualification       string             `yaml:"user_qualification"`
	InfluencerQualification string             `yaml:"influencer_qualification"`
}

// Default returns the compiled-in policy, used when no file overrides it.
func Default() *Policy {
	return &Policy{
		TierRates: map[models.CommissionTier]decimal.Decimal{
			models.TierBronze:   decimal.NewFromFloat(5),
			models.TierSilver:   decimal.NewFromFloat(7.5),
			models.TierGold:     decimal.NewFromFloat(10),
			models.TierPlatinum: decimal.NewFromFloat(12.5),
			models.TierDiamond:  decimal.NewFromFloat(15),
		},
		ReturnWindow:            72 * time.Hour,
		ReferralExpiry:          30 * 24 * time.Hour,
		ShippingCharge:          decimal.NewFromInt(50),
		FreeShippingThreshold:   decimal.NewFromInt(1000),
		TaxRatePercent:          decimal.Zero,
		UserQualification:       QualifyFirstOrder,
		InfluencerQualification: QualifyEveryOrder,
	}
}

// Load reads the policy file at path, falling back to defaults for fields the
// file leaves unset. A missing path returns the defaults.
func Load(path string) (*Policy, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	if err := p.apply(&fc); err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Policy) apply(fc *fileConfig) error {
	if len(fc.TierRates) > 0 {
		rates := make(map[models.CommissionTier]decimal.Decimal, len(fc.TierRates))
		for tier, rate := range fc.TierRates {
			rates[models.CommissionTier(tier)] = decimal.NewFromFloat(rate)
		}
		p.TierRates = rates
	}
	if fc.ReturnWindow != "" {
		d, err := time.ParseDuration(fc.ReturnWindow)
		if err != nil {
			return fmt.Errorf("return_window: %w", err)
		}
		p.ReturnWindow = d
	}
	if fc.ReferralExpiry != "" {
		d, err := time.ParseDuration(fc.ReferralExpiry)
		if err != nil {
			return fmt.Errorf("referral_expiry: %w", err)
		}
		p.ReferralExpiry = d
	}
	if fc.ShippingCharge != nil {
		p.ShippingCharge = decimal.NewFromFloat(*fc.ShippingCharge)
	}
	if fc.FreeShippingThreshold != nil {
		p.FreeShippingThreshold = decimal.NewFromFloat(*fc.FreeShippingThreshold)
	}
	if fc.TaxRatePercent != nil {
		p.TaxRatePercent = decimal.NewFromFloat(*fc.TaxRatePercent)
	}
	if fc.UserQualification != "" {
		p.UserQualification = QualificationMode(fc.UserQualification)
	}
	if fc.InfluencerQualification != "" {
		p.InfluencerQualification = QualificationMode(fc.InfluencerQualification)
	}
	return nil
}

func (p *Policy) validate() error {
	for tier, rate := range p.TierRates {
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("tier %s: rate %s out of range", tier, rate)
		}
	}
	if p.ReturnWindow <= 0 {
		return fmt.Errorf("return window must be positive")
	}
	return nil
}

// CommissionRate returns the percentage for a tier. Unknown tiers earn zero
// rather than guessing; tier assignment is administrative.
func (p *Policy) CommissionRate(tier models.CommissionTier) decimal.Decimal {
	if rate, ok := p.TierRates[tier]; ok {
		return rate
	}
	return decimal.Zero
}

// Qualification returns the commission qualification mode for an owner type.
func (p *Policy) Qualification(t models.OwnerType) QualificationMode {
	if t == models.OwnerInfluencer {
		return p.InfluencerQualification
	}
	return p.UserQualification
}

// Shipping computes the shipping charge for an order subtotal after discount.
func (p *Policy) Shipping(amount decimal.Decimal) decimal.Decimal {
	if p.FreeShippingThreshold.IsPositive() && amount.GreaterThanOrEqual(p.FreeShippingThreshold) {
		return decimal.Zero
	}
	return p.ShippingCharge
}

// Tax computes the tax on an order amount.
func (p *Policy) Tax(amount decimal.Decimal) decimal.Decimal {
	if p.TaxRatePercent.IsZero() {
		return decimal.Zero
	}
	return amount.Mul(p.TaxRatePercent).Div(decimal.NewFromInt(100)).Round(2)
}
