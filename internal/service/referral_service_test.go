package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cheertaboi/order-fulfillment-core/internal/apperr"
	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
)

func silverCode(f *fixture, code, ownerID string, ownerType models.OwnerType) {
	f.referrals.addCode(models.ReferralCode{
		Code:   code,
		Owner:  models.WalletOwner{ID: ownerID, Type: ownerType},
		Tier:   models.TierSilver,
		Active: true,
	})
}

func TestRegisterSignup(t *testing.T) {
	f := newFixture()
	silverCode(f, "ASHA10", "referrer1", models.OwnerUser)

	ref, err := f.refSvc.RegisterSignup(context.Background(), "u1", "ASHA10")
	require.NoError(t, err)
	assert.Equal(t, models.ReferralPending, ref.Status)
	assert.Equal(t, "referrer1", ref.Referrer.ID)
	assert.Equal(t, f.clock.Now().UTC().Add(30*24*time.Hour), ref.ExpiresAt)
}

func TestRegisterSignupRejectsSelfReferral(t *testing.T) {
	f := newFixture()
	silverCode(f, "ASHA10", "u1", models.OwnerUser)

	_, err := f.refSvc.RegisterSignup(context.Background(), "u1", "ASHA10")
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestRegisterSignupRejectsSecondReferral(t *testing.T) {
	f := newFixture()
	silverCode(f, "ASHA10", "referrer1", models.OwnerUser)
	silverCode(f, "RAVI10", "referrer2", models.OwnerUser)

	_, err := f.refSvc.RegisterSignup(context.Background(), "u1", "ASHA10")
	require.NoError(t, err)
	_, err = f.refSvc.RegisterSignup(context.Background(), "u1", "RAVI10")
	assert.True(t, apperr.IsCode(err, apperr.CodeStateConflict))
}

func TestRegisterSignupUnknownCode(t *testing.T) {
	f := newFixture()
	_, err := f.refSvc.RegisterSignup(context.Background(), "u1", "NOPE")
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestAttributeFirstOrderHoldsCommission(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 600, 10)
	silverCode(f, "ASHA10", "referrer1", models.OwnerUser)
	_, err := f.refSvc.RegisterSignup(context.Background(), "u1", "ASHA10")
	require.NoError(t, err)

	order := placeBasicOrder(t, f, models.PaymentCOD)

	ref, err := f.referrals.GetByReferredUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.ReferralConverted, ref.Status)
	assert.Equal(t, order.Number, ref.OrderID)
	// silver is 7.5% of the 1200 order total
	assert.True(t, ref.CommissionAmount.Equal(decimal.NewFromInt(90)), "got %s", ref.CommissionAmount)
	assert.Equal(t, models.CommissionPending, ref.CommissionStatus)

	// held as pending, not spendable, and no ledger entry yet
	sum, err := f.ledger.Summary(context.Background(), models.WalletOwner{ID: "referrer1", Type: models.OwnerUser})
	require.NoError(t, err)
	assert.True(t, sum.PendingBalance.Equal(decimal.NewFromInt(90)))
	assert.True(t, sum.Balance.IsZero())
	assert.Empty(t, f.txns.byCategory(models.CategoryCommission))
}

func TestAttributeExpiredReferralEarnsNothing(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 600, 10)
	silverCode(f, "ASHA10", "referrer1", models.OwnerUser)
	_, err := f.refSvc.RegisterSignup(context.Background(), "u1", "ASHA10")
	require.NoError(t, err)

	f.clock.Advance(31 * 24 * time.Hour)
	placeBasicOrder(t, f, models.PaymentCOD)

	ref, err := f.referrals.GetByReferredUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.ReferralExpired, ref.Status)
	sum, err := f.ledger.Summary(context.Background(), models.WalletOwner{ID: "referrer1", Type: models.OwnerUser})
	require.NoError(t, err)
	assert.True(t, sum.PendingBalance.IsZero())
}

func TestAttributeFirstOrderOnlyForUserReferrers(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 600, 10)
	silverCode(f, "ASHA10", "referrer1", models.OwnerUser)
	_, err := f.refSvc.RegisterSignup(context.Background(), "u1", "ASHA10")
	require.NoError(t, err)

	// the referred user already has committed orders
	f.orders.priorOrders["u1"] = 2
	placeBasicOrder(t, f, models.PaymentCOD)

	ref, err := f.referrals.GetByReferredUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.ReferralExpired, ref.Status)
	assert.True(t, ref.CommissionAmount.IsZero())
}

func TestInfluencerEarnsOnEveryOrder(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 600, 10)
	f.referrals.addCode(models.ReferralCode{
		Code:   "STYLE",
		Owner:  models.WalletOwner{ID: "inf1", Type: models.OwnerInfluencer},
		Tier:   models.TierGold,
		Active: true,
	})
	_, err := f.refSvc.RegisterSignup(context.Background(), "u1", "STYLE")
	require.NoError(t, err)

	placeBasicOrder(t, f, models.PaymentCOD)
	f.orders.priorOrders["u1"] = 1
	placeBasicOrder(t, f, models.PaymentCOD)

	// gold is 10%: 120 held per 1200 order
	sum, err := f.ledger.Summary(context.Background(), models.WalletOwner{ID: "inf1", Type: models.OwnerInfluencer})
	require.NoError(t, err)
	assert.True(t, sum.PendingBalance.Equal(decimal.NewFromInt(240)), "got %s", sum.PendingBalance)
}

func TestCreditOnDeliverySettlesExactlyOnce(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 600, 10)
	silverCode(f, "ASHA10", "referrer1", models.OwnerUser)
	_, err := f.refSvc.RegisterSignup(context.Background(), "u1", "ASHA10")
	require.NoError(t, err)
	order := placeBasicOrder(t, f, models.PaymentCOD)

	advanceToDelivered(t, f, order.Number, false)

	owner := models.WalletOwner{ID: "referrer1", Type: models.OwnerUser}
	sum, err := f.ledger.Summary(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, sum.Balance.Equal(decimal.NewFromInt(90)))
	assert.True(t, sum.PendingBalance.IsZero())
	assert.True(t, sum.TotalEarned.Equal(decimal.NewFromInt(90)))
	require.Len(t, f.txns.byCategory(models.CategoryCommission), 1)

	// a second settle attempt is a no-op at the commission-status gate
	require.NoError(t, f.refSvc.CreditOnDelivery(context.Background(), nil, order.Number))
	assert.Len(t, f.txns.byCategory(models.CategoryCommission), 1)
	require.NoError(t, f.ledger.VerifyIntegrity(context.Background(), owner))
}

func TestVoidOnCancelReleasesPendingCommission(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 600, 10)
	silverCode(f, "ASHA10", "referrer1", models.OwnerUser)
	_, err := f.refSvc.RegisterSignup(context.Background(), "u1", "ASHA10")
	require.NoError(t, err)
	order := placeBasicOrder(t, f, models.PaymentCOD)

	_, err = f.orderSvc.Cancel(context.Background(), order.Number, "u1", "changed my mind", false)
	require.NoError(t, err)

	ref, err := f.referrals.GetByReferredUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.CommissionCancelled, ref.CommissionStatus)

	sum, err := f.ledger.Summary(context.Background(), models.WalletOwner{ID: "referrer1", Type: models.OwnerUser})
	require.NoError(t, err)
	assert.True(t, sum.PendingBalance.IsZero())
	assert.True(t, sum.Balance.IsZero())
	assert.Empty(t, f.txns.byCategory(models.CategoryCommission))
}

func TestExpireStale(t *testing.T) {
	f := newFixture()
	silverCode(f, "ASHA10", "referrer1", models.OwnerUser)
	_, err := f.refSvc.RegisterSignup(context.Background(), "u1", "ASHA10")
	require.NoError(t, err)

	n, err := f.refSvc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.clock.Advance(31 * 24 * time.Hour)
	n, err = f.refSvc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
