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

func placeBasicOrder(t *testing.T, f *fixture, method models.PaymentMethod) *models.Order {
	t.Helper()
	order, err := f.orderSvc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        "u1",
		Items:         []models.CartItem{{ProductID: "p1", Quantity: 2}},
		ShippingAddr:  testAddress(),
		PaymentMethod: method,
	})
	require.NoError(t, err)
	return order
}

func TestPlaceOrderFreezesSnapshotAndTotals(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 300, 10)

	order := placeBasicOrder(t, f, models.PaymentCOD)

	require.Len(t, order.Items, 1)
	assert.Equal(t, "product p1", order.Items[0].Name)
	assert.True(t, order.Items[0].Price.Equal(decimal.NewFromInt(300)))
	assert.True(t, order.Subtotal.Equal(decimal.NewFromInt(600)))
	// 600 < free shipping threshold, so the flat charge applies
	assert.True(t, order.ShippingCharge.Equal(decimal.NewFromInt(50)))
	assert.True(t, order.Total.Equal(decimal.NewFromInt(650)))
	assert.True(t, order.CheckTotals())
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, models.PaymentPending, order.PaymentStatus)

	// stock reserved
	assert.Equal(t, 8, f.catalog.stock("p1"))

	// later price changes never touch the stored order
	f.catalog.add(models.CatalogProduct{ID: "p1", Name: "product p1", Category: "shoes",
		Price: decimal.NewFromInt(999), Stock: 8, Active: true})
	stored, err := f.orderSvc.Get(context.Background(), order.Number)
	require.NoError(t, err)
	assert.True(t, stored.Items[0].Price.Equal(decimal.NewFromInt(300)))
}

func TestPlaceOrderFreeShippingAboveThreshold(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 600, 10)

	order := placeBasicOrder(t, f, models.PaymentCOD)
	assert.True(t, order.Subtotal.Equal(decimal.NewFromInt(1200)))
	assert.True(t, order.ShippingCharge.IsZero())
	assert.True(t, order.CheckTotals())
}

func TestPlaceOrderRejectsInsufficientStock(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 300, 1)

	_, err := f.orderSvc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        "u1",
		Items:         []models.CartItem{{ProductID: "p1", Quantity: 2}},
		ShippingAddr:  testAddress(),
		PaymentMethod: models.PaymentCOD,
	})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
	// nothing reserved on failure
	assert.Equal(t, 1, f.catalog.stock("p1"))
}

func TestPlaceOrderWithCouponConsumesUsage(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 500, 10)
	meta := percentCoupon(f, "SAVE20", 20, 0)

	order, err := f.orderSvc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        "u1",
		Items:         []models.CartItem{{ProductID: "p1", Quantity: 2}},
		ShippingAddr:  testAddress(),
		PaymentMethod: models.PaymentCOD,
		CouponCode:    "save20",
	})
	require.NoError(t, err)

	assert.True(t, order.Discount.Equal(decimal.NewFromInt(200)))
	// 1000 - 200 = 800 net, below free shipping
	assert.True(t, order.ShippingCharge.Equal(decimal.NewFromInt(50)))
	assert.True(t, order.Total.Equal(decimal.NewFromInt(850)))
	assert.True(t, order.CheckTotals())
	assert.Equal(t, 1, meta.UsedCount)
}

func TestPlaceOrderWalletPaymentDebitsAndConfirms(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 300, 10)
	owner := models.WalletOwner{ID: "u1", Type: models.OwnerUser}
	_, err := f.ledger.Credit(context.Background(), nil, owner, decimal.NewFromInt(1000),
		models.CategoryBonus, models.TxnReference{}, "")
	require.NoError(t, err)

	order := placeBasicOrder(t, f, models.PaymentWallet)

	assert.Equal(t, models.OrderConfirmed, order.Status)
	assert.Equal(t, models.PaymentPaid, order.PaymentStatus)

	sum, err := f.ledger.Summary(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, sum.Balance.Equal(decimal.NewFromInt(350)))
}

func TestPlaceOrderRejectsResubmittedIdempotencyKey(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 300, 10)
	owner := models.WalletOwner{ID: "u1", Type: models.OwnerUser}
	_, err := f.ledger.Credit(context.Background(), nil, owner, decimal.NewFromInt(2000),
		models.CategoryBonus, models.TxnReference{}, "")
	require.NoError(t, err)

	req := PlaceOrderRequest{
		UserID:         "u1",
		Items:          []models.CartItem{{ProductID: "p1", Quantity: 2}},
		ShippingAddr:   testAddress(),
		PaymentMethod:  models.PaymentWallet,
		IdempotencyKey: "chk-42",
	}
	first, err := f.orderSvc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	// double-clicked checkout: same key, rejected before any mutation
	_, err = f.orderSvc.PlaceOrder(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeStateConflict))

	sum, err := f.ledger.Summary(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, sum.Balance.Equal(decimal.NewFromInt(2000).Sub(first.Total)))
	assert.Equal(t, 8, f.catalog.stock("p1"))
	assert.Len(t, f.txns.byCategory(models.CategoryOrderPayment), 1)
}

func TestPlaceOrderWalletPaymentInsufficientFunds(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 300, 10)

	_, err := f.orderSvc.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:        "u1",
		Items:         []models.CartItem{{ProductID: "p1", Quantity: 2}},
		ShippingAddr:  testAddress(),
		PaymentMethod: models.PaymentWallet,
	})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInsufficientFunds))
}

func TestConfirmPaymentIdempotent(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 300, 10)
	order := placeBasicOrder(t, f, models.PaymentOnline)

	first, err := f.orderSvc.ConfirmPayment(context.Background(), order.Number, "pay_123", "sig")
	require.NoError(t, err)
	assert.Equal(t, models.OrderConfirmed, first.Status)
	assert.Equal(t, models.PaymentPaid, first.PaymentStatus)

	// gateway retry with the same payment id is a no-op
	again, err := f.orderSvc.ConfirmPayment(context.Background(), order.Number, "pay_123", "sig")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, again.PaymentStatus)

	// a different payment id against a paid order conflicts
	_, err = f.orderSvc.ConfirmPayment(context.Background(), order.Number, "pay_456", "sig")
	assert.True(t, apperr.IsCode(err, apperr.CodeStateConflict))
}

func TestConfirmPaymentRejectsBadSignature(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 300, 10)
	order := placeBasicOrder(t, f, models.PaymentOnline)

	f.orderSvc.verifier = stubVerifier{ok: false}
	_, err := f.orderSvc.ConfirmPayment(context.Background(), order.Number, "pay_123", "bad")
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestCancelPendingOrderRestocks(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 300, 10)
	order := placeBasicOrder(t, f, models.PaymentCOD)
	require.Equal(t, 8, f.catalog.stock("p1"))

	cancelled, err := f.orderSvc.Cancel(context.Background(), order.Number, "u1", "changed my mind", false)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)
	assert.Equal(t, 10, f.catalog.stock("p1"))
}

func TestCancelPaidOrderRefundsToWallet(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 300, 10)
	order := placeBasicOrder(t, f, models.PaymentOnline)
	_, err := f.orderSvc.ConfirmPayment(context.Background(), order.Number, "pay_123", "sig")
	require.NoError(t, err)

	cancelled, err := f.orderSvc.Cancel(context.Background(), order.Number, "u1", "wrong size", false)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, cancelled.PaymentStatus)

	sum, err := f.ledger.Summary(context.Background(), models.WalletOwner{ID: "u1", Type: models.OwnerUser})
	require.NoError(t, err)
	assert.True(t, sum.Balance.Equal(order.Total))
}

func TestCancelRejectedAfterShipping(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 300, 10)
	order := placeBasicOrder(t, f, models.PaymentCOD)

	advanceToDelivered(t, f, order.Number, false)

	_, err := f.orderSvc.Cancel(context.Background(), order.Number, "u1", "too late", false)
	assert.True(t, apperr.IsCode(err, apperr.CodeStateConflict))
}

func TestCancelForeignOrderHidden(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 300, 10)
	order := placeBasicOrder(t, f, models.PaymentCOD)

	_, err := f.orderSvc.Cancel(context.Background(), order.Number, "u2", "not mine", false)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))

	// admins may cancel on behalf of the user
	_, err = f.orderSvc.Cancel(context.Background(), order.Number, "ops", "fraud", true)
	assert.NoError(t, err)
}

// advanceToDelivered walks confirmed → processing → shipped → delivered.
func advanceToDelivered(t *testing.T, f *fixture, number string, stopAtShipped bool) {
	t.Helper()
	ctx := context.Background()
	_, err := f.orderSvc.ConfirmPayment(ctx, number, "pay_"+number, "sig")
	require.NoError(t, err)
	_, err = f.orderSvc.Advance(ctx, number, models.OrderProcessing, "")
	require.NoError(t, err)
	_, err = f.orderSvc.Advance(ctx, number, models.OrderShipped, "TRK-1")
	require.NoError(t, err)
	if stopAtShipped {
		return
	}
	_, err = f.orderSvc.Advance(ctx, number, models.OrderDelivered, "")
	require.NoError(t, err)
}

func TestAdvanceEnforcesTransitionTable(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 300, 10)
	order := placeBasicOrder(t, f, models.PaymentCOD)

	// pending cannot jump straight to shipped
	_, err := f.orderSvc.Advance(context.Background(), order.Number, models.OrderShipped, "TRK-1")
	assert.True(t, apperr.IsCode(err, apperr.CodeStateConflict))
}

func TestAdvanceShippedRequiresTracking(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 300, 10)
	order := placeBasicOrder(t, f, models.PaymentCOD)
	ctx := context.Background()

	_, err := f.orderSvc.ConfirmPayment(ctx, order.Number, "pay_1", "sig")
	require.NoError(t, err)
	_, err = f.orderSvc.Advance(ctx, order.Number, models.OrderProcessing, "")
	require.NoError(t, err)

	_, err = f.orderSvc.Advance(ctx, order.Number, models.OrderShipped, "")
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestAdvanceDeliveredRecordsTimestamp(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", "shoes", 300, 10)
	order := placeBasicOrder(t, f, models.PaymentCOD)

	start := f.clock.Now()
	f.clock.Advance(48 * time.Hour)
	advanceToDelivered(t, f, order.Number, false)

	stored, err := f.orderSvc.Get(context.Background(), order.Number)
	require.NoError(t, err)
	require.NotNil(t, stored.DeliveredAt)
	assert.Equal(t, start.Add(48*time.Hour).UTC(), *stored.DeliveredAt)

	// delivery is not repeatable
	_, err = f.orderSvc.Advance(context.Background(), order.Number, models.OrderDelivered, "")
	assert.True(t, apperr.IsCode(err, apperr.CodeStateConflict))
}
