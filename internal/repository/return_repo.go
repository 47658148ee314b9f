package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
)

type ReturnRepo struct {
	db *sql.DB
}

func NewReturnRepo(db *sql.DB) *ReturnRepo {
	return &ReturnRepo{db: db}
}

func (r *ReturnRepo) Create(ctx context.Context, tx *sql.Tx, ret *models.Return) error {
	query := `
		INSERT INTO returns
		(id, order_id, order_number, user_id, status, notes,
		 refund_method, refund_amount, refund_status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
	`
	_, err := tx.ExecContext(ctx, query,
		ret.ID, ret.OrderID, ret.OrderNumber, ret.UserID, ret.Status, ret.Notes,
		ret.RefundMethod, ret.RefundAmount, ret.RefundStatus, ret.CreatedAt,
	)
	if err != nil {
		return err
	}

	itemStmt := `
		INSERT INTO return_items (return_id, product_id, quantity, price, reason)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`
	for i := range ret.Items {
		it := &ret.Items[i]
		it.ReturnID = ret.ID
		if err := tx.QueryRowContext(ctx, itemStmt,
			ret.ID, it.ProductID, it.Quantity, it.Price, it.Reason,
		).Scan(&it.ID); err != nil {
			return err
		}
	}
	return nil
}

const returnColumns = `
	id, order_id, order_number, user_id, status, COALESCE(notes, ''),
	refund_method, refund_amount, refund_status, created_at, updated_at
`

func scanReturn(row *sql.Row) (*models.Return, error) {
	var ret models.Return
	err := row.Scan(
		&ret.ID, &ret.OrderID, &ret.OrderNumber, &ret.UserID, &ret.Status, &ret.Notes,
		&ret.RefundMethod, &ret.RefundAmount, &ret.RefundStatus, &ret.CreatedAt, &ret.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ret, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *ReturnRepo) loadItems(ctx context.Context, q querier, ret *models.Return) error {
	rows, err := q.QueryContext(ctx,
		`SELECT id, return_id, product_id, quantity, price, reason
		 FROM return_items WHERE return_id = $1 ORDER BY id`,
		ret.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it models.ReturnItem
		if err := rows.Scan(&it.ID, &it.ReturnID, &it.ProductID, &it.Quantity, &it.Price, &it.Reason); err != nil {
			return err
		}
		ret.Items = append(ret.Items, it)
	}
	return rows.Err()
}

func (r *ReturnRepo) Get(ctx context.Context, id string) (*models.Return, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+returnColumns+` FROM returns WHERE id = $1`, id)
	ret, err := scanReturn(row)
	if err != nil || ret == nil {
		return ret, err
	}
	return ret, r.loadItems(ctx, r.db, ret)
}

// Lock loads the full return, items included, FOR UPDATE for a state
// transition. Refund completion restocks from these items.
func (r *ReturnRepo) Lock(ctx context.Context, tx *sql.Tx, id string) (*models.Return, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+returnColumns+` FROM returns WHERE id = $1 FOR UPDATE`, id)
	ret, err := scanReturn(row)
	if err != nil || ret == nil {
		return ret, err
	}
	return ret, r.loadItems(ctx, tx, ret)
}

func (r *ReturnRepo) Update(ctx context.Context, tx *sql.Tx, ret *models.Return) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE returns
		SET status = $2, notes = $3, refund_method = $4, refund_amount = $5,
		    refund_status = $6, updated_at = NOW()
		WHERE id = $1
	`,
		ret.ID, ret.Status, ret.Notes, ret.RefundMethod, ret.RefundAmount, ret.RefundStatus,
	)
	return err
}

// HasOpenForOrder reports whether an unresolved return already exists for an
// order. One open return per order at a time. Runs inside the caller's
// transaction; the order row lock held by the caller serializes racing
// requests for the same order.
func (r *ReturnRepo) HasOpenForOrder(ctx context.Context, tx *sql.Tx, orderID int) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM returns
		WHERE order_id = $1 AND status NOT IN ($2, $3, $4)
	`,
		orderID, models.ReturnRefundCompleted, models.ReturnRejected, models.ReturnCancelled,
	).Scan(&n)
	return n > 0, err
}
