package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/Cheertaboi/order-fulfillment-core/internal/apperr"
)

// EventRepo records processed idempotency keys for externally triggered
// transitions (payment callbacks, courier webhooks).
type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

const uniqueViolation = "23505"

// MarkProcessed claims an idempotency key inside the caller's transaction.
// A duplicate key returns a state-conflict error and, because the insert runs
// in the same transaction as the mutation it guards, the duplicate delivery
// applies nothing.
func (r *EventRepo) MarkProcessed(ctx context.Context, tx *sql.Tx, key, kind string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO processed_events (event_key, kind, processed_at) VALUES ($1, $2, NOW())`,
		key, kind,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return apperr.Newf(apperr.CodeStateConflict, "event %s already processed", key)
		}
		return err
	}
	return nil
}
