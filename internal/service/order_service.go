package service

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/order-fulfillment-core/internal/apperr"
	"github.com/Cheertaboi/order-fulfillment-core/internal/ledger"
	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
	"github.com/Cheertaboi/order-fulfillment-core/internal/policy"
)

// OrderStore is the persistence surface of the order engine.
type OrderStore interface {
	Create(ctx context.Context, tx *sql.Tx, o *models.Order) error
	GetByNumber(ctx context.Context, number string) (*models.Order, error)
	LockByNumber(ctx context.Context, tx *sql.Tx, number string) (*models.Order, error)
	SetPayment(ctx context.Context, tx *sql.Tx, orderID int, status models.PaymentStatus, paymentID string) error
	SetStatus(ctx context.Context, tx *sql.Tx, orderID int, status models.OrderStatus) error
	SetCancelled(ctx context.Context, tx *sql.Tx, orderID int, reason string) error
	SetShipped(ctx context.Context, tx *sql.Tx, orderID int, trackingID string) error
	SetDelivered(ctx context.Context, tx *sql.Tx, orderID int, at time.Time) error
	CountByUser(ctx context.Context, userID string) (int, error)
}

// CatalogStore answers price/stock lookups and moves stock under row locks.
type CatalogStore interface {
	LockForSale(ctx context.Context, tx *sql.Tx, ids []string) (map[string]models.CatalogProduct, error)
	AdjustStock(ctx context.Context, tx *sql.Tx, productID string, delta int) error
}

// EventStore claims idempotency keys for externally triggered transitions.
type EventStore interface {
	MarkProcessed(ctx context.Context, tx *sql.Tx, key, kind string) error
}

type OrderService struct {
	orders    OrderStore
	catalog   CatalogStore
	events    EventStore
	coupons   *CouponService
	referrals *ReferralService
	ledger    *ledger.Ledger
	run       TxRunner
	policy    *policy.Policy
	verifier  PaymentVerifier
	notifier  Notifier
	clock     clock.Clock
	log       *slog.Logger
}

type OrderServiceDeps struct {
	Orders    OrderStore
	Catalog   CatalogStore
	Events    EventStore
	Coupons   *CouponService
	Referrals *ReferralService
	Ledger    *ledger.Ledger
	Run       TxRunner
	Policy    *policy.Policy
	Verifier  PaymentVerifier
	Notifier  Notifier
	Clock     clock.Clock
	Log       *slog.Logger
}

func NewOrderService(d OrderServiceDeps) *OrderService {
	return &OrderService{
		orders:    d.Orders,
		catalog:   d.Catalog,
		events:    d.Events,
		coupons:   d.Coupons,
		referrals: d.Referrals,
		ledger:    d.Ledger,
		run:       d.Run,
		policy:    d.Policy,
		verifier:  d.Verifier,
		notifier:  d.Notifier,
		clock:     d.Clock,
		log:       d.Log,
	}
}

type PlaceOrderRequest struct {
	UserID        string               `json:"user_id"`
	Items         []models.CartItem    `json:"items"`
	ShippingAddr  models.Address       `json:"shipping_address"`
	BillingAddr   *models.Address      `json:"billing_address,omitempty"` // defaults to shipping
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	CouponCode    string               `json:"coupon_code,omitempty"`
	ReferralCode  string               `json:"referral_code,omitempty"`

	// IdempotencyKey is the client-chosen checkout key, taken from the
	// Idempotency-Key header. A resubmitted key is rejected before any stock,
	// coupon or wallet mutation.
	IdempotencyKey string `json:"-"`
}

func (r *PlaceOrderRequest) validate() error {
	if r.UserID == "" {
		return apperr.New(apperr.CodeValidation, "user id required")
	}
	if len(r.Items) == 0 {
		return apperr.New(apperr.CodeValidation, "order has no items")
	}
	for _, it := range r.Items {
		if it.ProductID == "" || it.Quantity <= 0 {
			return apperr.New(apperr.CodeValidation, "each item needs a product id and positive quantity")
		}
	}
	switch r.PaymentMethod {
	case models.PaymentCOD, models.PaymentOnline, models.PaymentWallet:
	default:
		return apperr.Newf(apperr.CodeValidation, "unknown payment method %q", r.PaymentMethod)
	}
	addr := r.ShippingAddr
	if addr.Name == "" || addr.Line1 == "" || addr.City == "" || addr.PostalCode == "" {
		return apperr.New(apperr.CodeValidation, "shipping address incomplete")
	}
	return nil
}

// PlaceOrder turns a checkout request into a persisted, priced order. Stock
// reservation, coupon usage increment, order insert, wallet debit and
// referral attribution all commit or roll back together. A resubmission with
// the same idempotency key is rejected before any of them run, so a
// double-clicked checkout debits and reserves nothing twice.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*models.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	order := &models.Order{
		Number:        newOrderNumber(now),
		UserID:        req.UserID,
		ShippingAddr:  req.ShippingAddr,
		BillingAddr:   req.ShippingAddr,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: models.PaymentPending,
		Status:        models.OrderPending,
		CouponCode:    models.NormalizeCouponCode(req.CouponCode),
		ReferralCode:  strings.TrimSpace(req.ReferralCode),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.BillingAddr != nil {
		order.BillingAddr = *req.BillingAddr
	}

	err := s.run.WithTx(ctx, func(tx *sql.Tx) error {
		if req.IdempotencyKey != "" {
			if err := s.events.MarkProcessed(ctx, tx, "checkout:"+req.IdempotencyKey, "place_order"); err != nil {
				return err
			}
		}

		ids := make([]string, 0, len(req.Items))
		for _, it := range req.Items {
			ids = append(ids, it.ProductID)
		}
		products, err := s.catalog.LockForSale(ctx, tx, ids)
		if err != nil {
			return err
		}

		subtotal := decimal.Zero
		applicability := make([]ApplicabilityItem, 0, len(req.Items))
		for _, it := range req.Items {
			p, ok := products[it.ProductID]
			if !ok || !p.Active {
				return apperr.Newf(apperr.CodeValidation, "product %s is not available", it.ProductID)
			}
			if p.Stock < it.Quantity {
				return apperr.Newf(apperr.CodeValidation,
					"insufficient stock for %s: have %d, want %d", it.ProductID, p.Stock, it.Quantity)
			}
			lineTotal := p.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
			order.Items = append(order.Items, models.OrderItem{
				ProductID: p.ID,
				Name:      p.Name,
				Image:     p.Image,
				Price:     p.Price,
				Quantity:  it.Quantity,
				Total:     lineTotal,
			})
			subtotal = subtotal.Add(lineTotal)
			applicability = append(applicability, ApplicabilityItem{ProductID: p.ID, Category: p.Category})
		}
		order.Subtotal = subtotal

		discount := decimal.Zero
		if order.CouponCode != "" {
			result, err := s.coupons.Validate(ctx, ValidateCouponRequest{
				Code:        order.CouponCode,
				UserID:      req.UserID,
				OrderAmount: subtotal,
				Items:       applicability,
			})
			if err != nil {
				return err
			}
			if err := s.coupons.ConsumeUsage(ctx, tx, result.Coupon.ID, result.Coupon.Code, req.UserID); err != nil {
				return err
			}
			discount = result.Discount
		}
		order.Discount = discount

		net := subtotal.Sub(discount)
		order.ShippingCharge = s.policy.Shipping(net)
		order.Tax = s.policy.Tax(net)
		order.Total = net.Add(order.ShippingCharge).Add(order.Tax)

		if req.PaymentMethod == models.PaymentWallet {
			_, err := s.ledger.Debit(ctx, tx,
				models.WalletOwner{ID: req.UserID, Type: models.OwnerUser},
				order.Total, models.CategoryOrderPayment,
				models.TxnReference{OrderID: order.Number},
				"payment for order "+order.Number,
			)
			if err != nil {
				return err
			}
			order.PaymentStatus = models.PaymentPaid
			order.Status = models.OrderConfirmed
		}

		if err := s.orders.Create(ctx, tx, order); err != nil {
			return err
		}
		for _, it := range order.Items {
			if err := s.catalog.AdjustStock(ctx, tx, it.ProductID, -it.Quantity); err != nil {
				return err
			}
		}

		if _, err := s.referrals.Attribute(ctx, tx, order); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order placed",
		"number", order.Number, "user", order.UserID, "total", order.Total.String())
	s.notifier.OrderEvent(order, "placed")
	return order, nil
}

// ConfirmPayment applies a gateway success callback. Idempotent: re-delivery
// of an already-applied confirmation returns the order unchanged, because
// gateways retry event delivery.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderNumber, gatewayPaymentID, signature string) (*models.Order, error) {
	if orderNumber == "" || gatewayPaymentID == "" {
		return nil, apperr.New(apperr.CodeValidation, "order number and payment id required")
	}
	if !s.verifier.Verify(orderNumber, gatewayPaymentID, signature) {
		return nil, apperr.New(apperr.CodeValidation, "invalid payment signature")
	}

	var confirmed *models.Order
	err := s.run.WithTx(ctx, func(tx *sql.Tx) error {
		order, err := s.orders.LockByNumber(ctx, tx, orderNumber)
		if err != nil {
			return err
		}
		if order == nil {
			return apperr.Newf(apperr.CodeNotFound, "order %s not found", orderNumber)
		}
		if order.PaymentStatus == models.PaymentPaid {
			if order.PaymentID == gatewayPaymentID {
				confirmed = order
				return nil
			}
			return apperr.Newf(apperr.CodeStateConflict,
				"order %s already paid with a different payment", orderNumber)
		}
		if order.Status != models.OrderPending && order.Status != models.OrderConfirmed {
			return apperr.Newf(apperr.CodeStateConflict,
				"order %s is %s and cannot accept payment", orderNumber, order.Status)
		}

		if err := s.events.MarkProcessed(ctx, tx, "payment:"+gatewayPaymentID, "payment_confirm"); err != nil {
			return err
		}
		if err := s.orders.SetPayment(ctx, tx, order.ID, models.PaymentPaid, gatewayPaymentID); err != nil {
			return err
		}
		order.PaymentStatus = models.PaymentPaid
		order.PaymentID = gatewayPaymentID
		if order.Status == models.OrderPending {
			if err := s.orders.SetStatus(ctx, tx, order.ID, models.OrderConfirmed); err != nil {
				return err
			}
			order.Status = models.OrderConfirmed
		}
		confirmed = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment confirmed", "number", orderNumber, "payment_id", gatewayPaymentID)
	s.notifier.OrderEvent(confirmed, "payment_confirmed")
	return confirmed, nil
}

// Cancel aborts an order from pending/confirmed. Reserved stock is released,
// pending commission voided, and captured payment refunded to the wallet as
// a compensating transaction.
func (s *OrderService) Cancel(ctx context.Context, orderNumber, requestedBy, reason string, asAdmin bool) (*models.Order, error) {
	if reason == "" {
		return nil, apperr.New(apperr.CodeValidation, "cancellation reason required")
	}

	full, err := s.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if full == nil {
		return nil, apperr.Newf(apperr.CodeNotFound, "order %s not found", orderNumber)
	}
	if !asAdmin && full.UserID != requestedBy {
		return nil, apperr.New(apperr.CodeNotFound, "order not found")
	}

	err = s.run.WithTx(ctx, func(tx *sql.Tx) error {
		order, err := s.orders.LockByNumber(ctx, tx, orderNumber)
		if err != nil {
			return err
		}
		if order == nil {
			return apperr.Newf(apperr.CodeNotFound, "order %s not found", orderNumber)
		}
		if !order.Status.CanTransition(models.OrderCancelled) {
			return apperr.Newf(apperr.CodeStateConflict,
				"order %s is %s and cannot be cancelled", orderNumber, order.Status)
		}

		if err := s.orders.SetCancelled(ctx, tx, order.ID, reason); err != nil {
			return err
		}
		for _, it := range full.Items {
			if err := s.catalog.AdjustStock(ctx, tx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		if err := s.referrals.VoidOnCancel(ctx, tx, orderNumber); err != nil {
			return err
		}

		if order.PaymentStatus == models.PaymentPaid {
			_, err := s.ledger.Credit(ctx, tx,
				models.WalletOwner{ID: order.UserID, Type: models.OwnerUser},
				order.Total, models.CategoryRefund,
				models.TxnReference{OrderID: orderNumber},
				"refund for cancelled order "+orderNumber,
			)
			if err != nil {
				return err
			}
			if err := s.orders.SetPayment(ctx, tx, order.ID, models.PaymentRefunded, order.PaymentID); err != nil {
				return err
			}
			full.PaymentStatus = models.PaymentRefunded
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	full.Status = models.OrderCancelled
	full.CancelReason = reason
	s.log.Info("order cancelled", "number", orderNumber, "reason", reason)
	s.notifier.OrderEvent(full, "cancelled")
	return full, nil
}

// Advance applies an admin/system fulfillment transition. Delivery records
// the timestamp that anchors the return window and settles pending
// commission; a repeated delivery event fails the legality check and settles
// nothing twice.
func (s *OrderService) Advance(ctx context.Context, orderNumber string, to models.OrderStatus, trackingID string) (*models.Order, error) {
	var advanced *models.Order
	err := s.run.WithTx(ctx, func(tx *sql.Tx) error {
		order, err := s.orders.LockByNumber(ctx, tx, orderNumber)
		if err != nil {
			return err
		}
		if order == nil {
			return apperr.Newf(apperr.CodeNotFound, "order %s not found", orderNumber)
		}
		if !order.Status.CanTransition(to) {
			return apperr.Newf(apperr.CodeStateConflict,
				"order %s cannot move from %s to %s", orderNumber, order.Status, to)
		}

		switch to {
		case models.OrderShipped:
			if trackingID == "" {
				return apperr.New(apperr.CodeValidation, "tracking id required to ship")
			}
			if err := s.orders.SetShipped(ctx, tx, order.ID, trackingID); err != nil {
				return err
			}
			order.TrackingID = trackingID
		case models.OrderDelivered:
			now := s.clock.Now().UTC()
			if err := s.orders.SetDelivered(ctx, tx, order.ID, now); err != nil {
				return err
			}
			order.DeliveredAt = &now
			if err := s.referrals.CreditOnDelivery(ctx, tx, orderNumber); err != nil {
				return err
			}
		default:
			if err := s.orders.SetStatus(ctx, tx, order.ID, to); err != nil {
				return err
			}
		}
		order.Status = to
		advanced = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order advanced", "number", orderNumber, "status", to)
	s.notifier.OrderEvent(advanced, string(to))
	return advanced, nil
}

// Get returns an order by its public number.
func (s *OrderService) Get(ctx context.Context, orderNumber string) (*models.Order, error) {
	order, err := s.orders.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperr.Newf(apperr.CodeNotFound, "order %s not found", orderNumber)
	}
	return order, nil
}

// newOrderNumber builds the human-readable unique order key.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "ORD-" + now.Format("20060102") + "-" + suffix
}
