package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
)

type OrderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

// Create persists the order and its item snapshots inside the caller's
// transaction. Fills o.ID and item ids.
func (r *OrderRepo) Create(ctx context.Context, tx *sql.Tx, o *models.Order) error {
	query := `
		INSERT INTO orders
		(number, user_id, subtotal, discount, shipping_charge, tax, total,
		 coupon_code, referral_code,
		 ship_name, ship_line1, ship_line2, ship_city, ship_state, ship_postal_code, ship_country, ship_phone,
		 bill_name, bill_line1, bill_line2, bill_city, bill_state, bill_postal_code, bill_country, bill_phone,
		 payment_method, payment_status, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,
		        $10,$11,$12,$13,$14,$15,$16,$17,
		        $18,$19,$20,$21,$22,$23,$24,$25,
		        $26,$27,$28,$29,$29)
		RETURNING id
	`
	err := tx.QueryRowContext(ctx, query,
		o.Number, o.UserID, o.Subtotal, o.Discount, o.ShippingCharge, o.Tax, o.Total,
		nullIfEmpty(o.CouponCode), nullIfEmpty(o.ReferralCode),
		o.ShippingAddr.Name, o.ShippingAddr.Line1, o.ShippingAddr.Line2, o.ShippingAddr.City,
		o.ShippingAddr.State, o.ShippingAddr.PostalCode, o.ShippingAddr.Country, o.ShippingAddr.Phone,
		o.BillingAddr.Name, o.BillingAddr.Line1, o.BillingAddr.Line2, o.BillingAddr.City,
		o.BillingAddr.State, o.BillingAddr.PostalCode, o.BillingAddr.Country, o.BillingAddr.Phone,
		o.PaymentMethod, o.PaymentStatus, o.Status, o.CreatedAt,
	).Scan(&o.ID)
	if err != nil {
		return err
	}

	itemStmt := `
		INSERT INTO order_items (order_id, product_id, name, image, price, quantity, total)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`
	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		if err := tx.QueryRowContext(ctx, itemStmt,
			o.ID, it.ProductID, it.Name, it.Image, it.Price, it.Quantity, it.Total,
		).Scan(&it.ID); err != nil {
			return err
		}
	}
	return nil
}

const orderColumns = `
	id, number, user_id, subtotal, discount, shipping_charge, tax, total,
	COALESCE(coupon_code, ''), COALESCE(referral_code, ''),
	ship_name, ship_line1, ship_line2, ship_city, ship_state, ship_postal_code, ship_country, ship_phone,
	bill_name, bill_line1, bill_line2, bill_city, bill_state, bill_postal_code, bill_country, bill_phone,
	payment_method, payment_status, COALESCE(payment_id, ''), status,
	COALESCE(cancel_reason, ''), COALESCE(tracking_id, ''), delivered_at, created_at, updated_at
`

func scanOrder(row *sql.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &o.Subtotal, &o.Discount, &o.ShippingCharge, &o.Tax, &o.Total,
		&o.CouponCode, &o.ReferralCode,
		&o.ShippingAddr.Name, &o.ShippingAddr.Line1, &o.ShippingAddr.Line2, &o.ShippingAddr.City,
		&o.ShippingAddr.State, &o.ShippingAddr.PostalCode, &o.ShippingAddr.Country, &o.ShippingAddr.Phone,
		&o.BillingAddr.Name, &o.BillingAddr.Line1, &o.BillingAddr.Line2, &o.BillingAddr.City,
		&o.BillingAddr.State, &o.BillingAddr.PostalCode, &o.BillingAddr.Country, &o.BillingAddr.Phone,
		&o.PaymentMethod, &o.PaymentStatus, &o.PaymentID, &o.Status,
		&o.CancelReason, &o.TrackingID, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepo) loadItems(ctx context.Context, o *models.Order) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, name, COALESCE(image, ''), price, quantity, total
		 FROM order_items WHERE order_id = $1 ORDER BY id`,
		o.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.Image, &it.Price, &it.Quantity, &it.Total); err != nil {
			return err
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

// GetByNumber returns the full order, or (nil, nil) when absent.
func (r *OrderRepo) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE number = $1`, number)
	o, err := scanOrder(row)
	if err != nil || o == nil {
		return o, err
	}
	return o, r.loadItems(ctx, o)
}

// LockByNumber loads and locks the order row inside tx. Items are not loaded.
func (r *OrderRepo) LockByNumber(ctx context.Context, tx *sql.Tx, number string) (*models.Order, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE number = $1 FOR UPDATE`, number)
	return scanOrder(row)
}

// SetPayment records a payment outcome.
func (r *OrderRepo) SetPayment(ctx context.Context, tx *sql.Tx, orderID int, status models.PaymentStatus, paymentID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET payment_status = $2, payment_id = $3, updated_at = NOW() WHERE id = $1`,
		orderID, status, nullIfEmpty(paymentID),
	)
	return err
}

// SetStatus writes a new order status. Legality is the service's job.
func (r *OrderRepo) SetStatus(ctx context.Context, tx *sql.Tx, orderID int, status models.OrderStatus) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`,
		orderID, status,
	)
	return err
}

func (r *OrderRepo) SetCancelled(ctx context.Context, tx *sql.Tx, orderID int, reason string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, cancel_reason = $3, updated_at = NOW() WHERE id = $1`,
		orderID, models.OrderCancelled, reason,
	)
	return err
}

func (r *OrderRepo) SetShipped(ctx context.Context, tx *sql.Tx, orderID int, trackingID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, tracking_id = $3, updated_at = NOW() WHERE id = $1`,
		orderID, models.OrderShipped, trackingID,
	)
	return err
}

func (r *OrderRepo) SetDelivered(ctx context.Context, tx *sql.Tx, orderID int, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, delivered_at = $3, updated_at = NOW() WHERE id = $1`,
		orderID, models.OrderDelivered, at,
	)
	return err
}

// CountByUser counts a user's orders that reached payment or fulfillment,
// used for first-order referral qualification.
func (r *OrderRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = $1 AND status <> $2`,
		userID, models.OrderCancelled,
	).Scan(&n)
	return n, err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
