// Package service implements the fulfillment core: coupon validation, the
// order state machine, referral commission, payouts and returns. Services
// depend on store interfaces so tests can swap in in-memory implementations.
package service

import (
	"context"
	"database/sql"

	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
)

// TxRunner executes a function inside one all-or-nothing unit of work.
// Operations that mutate more than one entity always go through it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// Notifier dispatches fire-and-forget notifications on state transitions.
// Failures are logged by implementations, never surfaced to the caller.
type Notifier interface {
	OrderEvent(order *models.Order, event string)
	ReturnEvent(ret *models.Return, event string)
	PayoutEvent(payout *models.Payout, event string)
}

// PaymentVerifier checks a payment gateway callback signature.
type PaymentVerifier interface {
	Verify(orderNumber, gatewayPaymentID, signature string) bool
}
