package service

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/order-fulfillment-core/internal/apperr"
	"github.com/Cheertaboi/order-fulfillment-core/internal/ledger"
	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
	"github.com/Cheertaboi/order-fulfillment-core/internal/policy"
)

// ReturnStore is the persistence surface of the return workflow. Lock returns
// the full aggregate, items included.
type ReturnStore interface {
	Create(ctx context.Context, tx *sql.Tx, ret *models.Return) error
	Get(ctx context.Context, id string) (*models.Return, error)
	Lock(ctx context.Context, tx *sql.Tx, id string) (*models.Return, error)
	Update(ctx context.Context, tx *sql.Tx, ret *models.Return) error
	HasOpenForOrder(ctx context.Context, tx *sql.Tx, orderID int) (bool, error)
}

type ReturnService struct {
	returns  ReturnStore
	orders   OrderStore
	catalog  CatalogStore
	ledger   *ledger.Ledger
	run      TxRunner
	policy   *policy.Policy
	notifier Notifier
	clock    clock.Clock
	log      *slog.Logger
}

func NewReturnService(returns ReturnStore, orders OrderStore, catalog CatalogStore, led *ledger.Ledger, run TxRunner, pol *policy.Policy, notifier Notifier, clk clock.Clock, log *slog.Logger) *ReturnService {
	return &ReturnService{
		returns:  returns,
		orders:   orders,
		catalog:  catalog,
		ledger:   led,
		run:      run,
		policy:   pol,
		notifier: notifier,
		clock:    clk,
		log:      log,
	}
}

type RequestReturnItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

type RequestReturnInput struct {
	OrderNumber  string              `json:"order_number"`
	UserID       string              `json:"user_id"`
	Items        []RequestReturnItem `json:"items"`
	Notes        string              `json:"notes,omitempty"`
	RefundMethod models.RefundMethod `json:"refund_method"`
}

// Request opens a return for a delivered order within the eligibility window,
// measured wall-clock from the recorded delivery timestamp. Eligibility, the
// one-open-return guard and the insert all run under the order row lock, so
// two racing requests for the same order cannot both open a return.
func (s *ReturnService) Request(ctx context.Context, in RequestReturnInput) (*models.Return, error) {
	if len(in.Items) == 0 {
		return nil, apperr.New(apperr.CodeValidation, "return has no items")
	}
	switch in.RefundMethod {
	case models.RefundToWallet, models.RefundToGateway, models.RefundToBank:
	default:
		return nil, apperr.Newf(apperr.CodeValidation, "unknown refund method %q", in.RefundMethod)
	}

	var ret *models.Return
	err := s.run.WithTx(ctx, func(tx *sql.Tx) error {
		order, err := s.orders.LockByNumber(ctx, tx, in.OrderNumber)
		if err != nil {
			return err
		}
		if order == nil || order.UserID != in.UserID {
			return apperr.Newf(apperr.CodeNotFound, "order %s not found", in.OrderNumber)
		}
		if order.Status != models.OrderDelivered || order.DeliveredAt == nil {
			return apperr.Newf(apperr.CodeStateConflict,
				"order %s is %s; only delivered orders can be returned", order.Number, order.Status)
		}
		deadline := order.DeliveredAt.Add(s.policy.ReturnWindow)
		if s.clock.Now().After(deadline) {
			return apperr.Newf(apperr.CodeStateConflict,
				"return window of %s has expired for order %s", s.policy.ReturnWindow, order.Number)
		}

		open, err := s.returns.HasOpenForOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if open {
			return apperr.Newf(apperr.CodeStateConflict, "order %s already has an open return", order.Number)
		}

		ordered := make(map[string]models.OrderItem, len(order.Items))
		for _, it := range order.Items {
			ordered[it.ProductID] = it
		}

		now := s.clock.Now().UTC()
		ret = &models.Return{
			ID:           uuid.NewString(),
			OrderID:      order.ID,
			OrderNumber:  order.Number,
			UserID:       order.UserID,
			Status:       models.ReturnPending,
			Notes:        in.Notes,
			RefundMethod: in.RefundMethod,
			RefundStatus: models.RefundPendingStatus,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		refund := decimal.Zero
		for _, it := range in.Items {
			snap, ok := ordered[it.ProductID]
			if !ok {
				return apperr.Newf(apperr.CodeValidation, "product %s is not on order %s", it.ProductID, order.Number)
			}
			if it.Quantity <= 0 || it.Quantity > snap.Quantity {
				return apperr.Newf(apperr.CodeValidation,
					"invalid return quantity %d for %s (ordered %d)", it.Quantity, it.ProductID, snap.Quantity)
			}
			if it.Reason == "" {
				return apperr.Newf(apperr.CodeValidation, "return reason required for %s", it.ProductID)
			}
			// Refund is priced from the order snapshot, never the live catalog.
			lineRefund := snap.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
			refund = refund.Add(lineRefund)
			ret.Items = append(ret.Items, models.ReturnItem{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				Price:     snap.Price,
				Reason:    it.Reason,
			})
		}
		ret.RefundAmount = refund

		return s.returns.Create(ctx, tx, ret)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("return requested",
		"return_id", ret.ID, "order", ret.OrderNumber, "refund", ret.RefundAmount.String())
	s.notifier.ReturnEvent(ret, "requested")
	return ret, nil
}

// Advance moves a return through its state machine. Reaching refund_completed
// performs exactly one wallet credit for wallet refunds; the ledger's
// reference guard rejects a second attempt for the same return.
func (s *ReturnService) Advance(ctx context.Context, returnID string, to models.ReturnStatus, notes string) (*models.Return, error) {
	var advanced *models.Return
	err := s.run.WithTx(ctx, func(tx *sql.Tx) error {
		ret, err := s.returns.Lock(ctx, tx, returnID)
		if err != nil {
			return err
		}
		if ret == nil {
			return apperr.Newf(apperr.CodeNotFound, "return %s not found", returnID)
		}
		if !ret.Status.CanTransition(to) {
			return apperr.Newf(apperr.CodeStateConflict,
				"return %s cannot move from %s to %s", ret.ID, ret.Status, to)
		}

		ret.Status = to
		if notes != "" {
			ret.Notes = notes
		}
		ret.UpdatedAt = s.clock.Now().UTC()

		if to == models.ReturnRefundCompleted {
			if err := s.completeRefund(ctx, tx, ret); err != nil {
				return err
			}
		}

		if err := s.returns.Update(ctx, tx, ret); err != nil {
			return err
		}
		advanced = ret
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("return advanced", "return_id", returnID, "status", to)
	s.notifier.ReturnEvent(advanced, string(to))
	return advanced, nil
}

// completeRefund settles the fixed refund amount, marks the order returned
// and restocks the received items.
func (s *ReturnService) completeRefund(ctx context.Context, tx *sql.Tx, ret *models.Return) error {
	// A return always carries at least one item. An empty slice here means the
	// store handed back a partially loaded aggregate; refunding without
	// restocking would drift inventory, so stop instead.
	if len(ret.Items) == 0 {
		return apperr.Newf(apperr.CodeIntegrity, "return %s has no items loaded", ret.ID)
	}
	if ret.RefundMethod == models.RefundToWallet {
		_, err := s.ledger.Credit(ctx, tx,
			models.WalletOwner{ID: ret.UserID, Type: models.OwnerUser},
			ret.RefundAmount, models.CategoryRefund,
			models.TxnReference{ReturnID: ret.ID, OrderID: ret.OrderNumber},
			"refund for return on order "+ret.OrderNumber,
		)
		if err != nil {
			return err
		}
	}
	// Gateway and bank refunds settle on an external rail; the return record
	// itself is the audit trail for those.
	ret.RefundStatus = models.RefundCompletedStatus

	order, err := s.orders.LockByNumber(ctx, tx, ret.OrderNumber)
	if err != nil {
		return err
	}
	if order != nil && order.Status.CanTransition(models.OrderReturned) {
		if err := s.orders.SetStatus(ctx, tx, order.ID, models.OrderReturned); err != nil {
			return err
		}
	}
	for _, it := range ret.Items {
		if err := s.catalog.AdjustStock(ctx, tx, it.ProductID, it.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a return request by id.
func (s *ReturnService) Get(ctx context.Context, id string) (*models.Return, error) {
	ret, err := s.returns.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, apperr.Newf(apperr.CodeNotFound, "return %s not found", id)
	}
	return ret, nil
}
