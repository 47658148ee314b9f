package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
)

// CatalogRepo answers price/stock lookups at order time. The catalog itself
// is owned elsewhere; the core only reads product rows and moves stock.
type CatalogRepo struct {
	db *sql.DB
}

func NewCatalogRepo(db *sql.DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

// LockForSale locks the product rows for the given ids and returns their
// current snapshot. Row locks serialize two orders racing for the last unit.
func (r *CatalogRepo) LockForSale(ctx context.Context, tx *sql.Tx, ids []string) (map[string]models.CatalogProduct, error) {
	query := `
		SELECT id, name, category, image, price, stock, active
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`
	rows, err := tx.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]models.CatalogProduct, len(ids))
	for rows.Next() {
		var p models.CatalogProduct
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Image, &p.Price, &p.Stock, &p.Active); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// AdjustStock moves a product's stock by delta (negative to reserve,
// positive to release). Caller must hold the row lock.
func (r *CatalogRepo) AdjustStock(ctx context.Context, tx *sql.Tx, productID string, delta int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id = $1`,
		productID, delta,
	)
	return err
}
