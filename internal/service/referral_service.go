package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/order-fulfillment-core/internal/apperr"
	"github.com/Cheertaboi/order-fulfillment-core/internal/ledger"
	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
	"github.com/Cheertaboi/order-fulfillment-core/internal/policy"
)

// ReferralStore is the persistence surface for referral attribution.
type ReferralStore interface {
	Create(ctx context.Context, ref *models.Referral) error
	LockPendingByReferredUser(ctx context.Context, tx *sql.Tx, userID string) (*models.Referral, error)
	LockByOrder(ctx context.Context, tx *sql.Tx, orderNumber string) (*models.Referral, error)
	GetByReferredUser(ctx context.Context, userID string) (*models.Referral, error)
	Update(ctx context.Context, tx *sql.Tx, ref *models.Referral) error
	ResolveCode(ctx context.Context, code string) (*models.ReferralCode, error)
	ExpireBefore(ctx context.Context, now time.Time) (int, error)
}

// OrderCounter reports how many orders a user placed before the one being
// attributed. The real implementation reads committed state, so the in-flight
// order is not counted.
type OrderCounter interface {
	CountByUser(ctx context.Context, userID string) (int, error)
}

type ReferralService struct {
	store  ReferralStore
	orders OrderCounter
	ledger *ledger.Ledger
	policy *policy.Policy
	clock  clock.Clock
	log    *slog.Logger
}

func NewReferralService(store ReferralStore, orders OrderCounter, led *ledger.Ledger, pol *policy.Policy, clk clock.Clock, log *slog.Logger) *ReferralService {
	return &ReferralService{
		store:  store,
		orders: orders,
		ledger: led,
		policy: pol,
		clock:  clk,
		log:    log,
	}
}

// RegisterSignup records a signup-with-code referral in pending state.
func (s *ReferralService) RegisterSignup(ctx context.Context, userID, code string) (*models.Referral, error) {
	rc, err := s.store.ResolveCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if rc == nil || !rc.Active {
		return nil, apperr.New(apperr.CodeNotFound, "referral code not found or inactive")
	}
	if rc.Owner.Type == models.OwnerUser && rc.Owner.ID == userID {
		return nil, apperr.New(apperr.CodeValidation, "cannot use your own referral code")
	}
	existing, err := s.store.GetByReferredUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.New(apperr.CodeStateConflict, "user already has a referral")
	}

	now := s.clock.Now().UTC()
	ref := &models.Referral{
		ID:               uuid.NewString(),
		Referrer:         rc.Owner,
		ReferredUserID:   userID,
		Code:             rc.Code,
		Status:           models.ReferralPending,
		CommissionAmount: decimal.Zero,
		CommissionStatus: models.CommissionPending,
		ExpiresAt:        now.Add(s.policy.ReferralExpiry),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.Create(ctx, ref); err != nil {
		return nil, err
	}
	return ref, nil
}

// Attribute links a freshly placed order to its referral, computing the
// commission at the referrer's current tier rate and holding it as pending.
// Runs inside the order-placement transaction; a nil return with no error
// means the order earns no commission.
func (s *ReferralService) Attribute(ctx context.Context, tx *sql.Tx, order *models.Order) (*models.Referral, error) {
	ref, err := s.store.LockPendingByReferredUser(ctx, tx, order.UserID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()

	if ref == nil {
		return s.attributeOngoing(ctx, tx, order, now)
	}

	if now.After(ref.ExpiresAt) {
		ref.Status = models.ReferralExpired
		ref.UpdatedAt = now
		if err := s.store.Update(ctx, tx, ref); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if s.policy.Qualification(ref.Referrer.Type) == policy.QualifyFirstOrder {
		prior, err := s.orders.CountByUser(ctx, order.UserID)
		if err != nil {
			return nil, err
		}
		if prior > 0 {
			// The qualifying window has passed; this referral can never convert.
			ref.Status = models.ReferralExpired
			ref.UpdatedAt = now
			if err := s.store.Update(ctx, tx, ref); err != nil {
				return nil, err
			}
			return nil, nil
		}
	}

	amount, err := s.commission(ctx, ref.Code, order.Total)
	if err != nil {
		return nil, err
	}

	ref.Status = models.ReferralConverted
	ref.OrderID = order.Number
	ref.CommissionAmount = amount
	ref.CommissionStatus = models.CommissionPending
	ref.ConvertedAt = &now
	ref.UpdatedAt = now
	if err := s.store.Update(ctx, tx, ref); err != nil {
		return nil, err
	}
	if amount.IsPositive() {
		if err := s.ledger.HoldPending(ctx, tx, ref.Referrer, amount); err != nil {
			return nil, err
		}
	}
	s.log.Info("referral converted",
		"referral_id", ref.ID, "order", order.Number, "commission", amount.String())
	return ref, nil
}

// attributeOngoing handles influencer programs that earn on every order: a
// past converted referral spawns a fresh commission record for this order.
func (s *ReferralService) attributeOngoing(ctx context.Context, tx *sql.Tx, order *models.Order, now time.Time) (*models.Referral, error) {
	last, err := s.store.GetByReferredUser(ctx, order.UserID)
	if err != nil {
		return nil, err
	}
	if last == nil || last.Status != models.ReferralConverted {
		return nil, nil
	}
	if s.policy.Qualification(last.Referrer.Type) != policy.QualifyEveryOrder {
		return nil, nil
	}

	amount, err := s.commission(ctx, last.Code, order.Total)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, nil
	}

	ref := &models.Referral{
		ID:               uuid.NewString(),
		Referrer:         last.Referrer,
		ReferredUserID:   order.UserID,
		Code:             last.Code,
		Status:           models.ReferralConverted,
		OrderID:          order.Number,
		CommissionAmount: amount,
		CommissionStatus: models.CommissionPending,
		ConvertedAt:      &now,
		ExpiresAt:        now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.Create(ctx, ref); err != nil {
		return nil, err
	}
	if err := s.ledger.HoldPending(ctx, tx, ref.Referrer, amount); err != nil {
		return nil, err
	}
	return ref, nil
}

// commission computes the amount at the referrer's current tier rate, looked
// up in the policy store at order time.
func (s *ReferralService) commission(ctx context.Context, code string, orderTotal decimal.Decimal) (decimal.Decimal, error) {
	rc, err := s.store.ResolveCode(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}
	if rc == nil {
		return decimal.Zero, nil
	}
	rate := s.policy.CommissionRate(rc.Tier)
	return orderTotal.Mul(rate).Div(decimal.NewFromInt(100)).Round(2), nil
}

// CreditOnDelivery settles the order's pending commission: exactly one
// commission transaction per referral, enforced here by commission status and
// again by the ledger's reference guard.
func (s *ReferralService) CreditOnDelivery(ctx context.Context, tx *sql.Tx, orderNumber string) error {
	ref, err := s.store.LockByOrder(ctx, tx, orderNumber)
	if err != nil {
		return err
	}
	if ref == nil || ref.CommissionStatus != models.CommissionPending || !ref.CommissionAmount.IsPositive() {
		return nil
	}

	_, err = s.ledger.SettlePending(ctx, tx, ref.Referrer, ref.CommissionAmount,
		models.CategoryCommission,
		models.TxnReference{ReferralID: ref.ID},
		"commission for order "+orderNumber,
	)
	if err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	ref.CommissionStatus = models.CommissionCredited
	ref.CreditedAt = &now
	ref.UpdatedAt = now
	return s.store.Update(ctx, tx, ref)
}

// VoidOnCancel cancels a pending commission with no ledger effect; no
// transaction was ever created for it.
func (s *ReferralService) VoidOnCancel(ctx context.Context, tx *sql.Tx, orderNumber string) error {
	ref, err := s.store.LockByOrder(ctx, tx, orderNumber)
	if err != nil {
		return err
	}
	if ref == nil || ref.CommissionStatus != models.CommissionPending {
		return nil
	}

	if ref.CommissionAmount.IsPositive() {
		if err := s.ledger.ReleasePending(ctx, tx, ref.Referrer, ref.CommissionAmount); err != nil {
			return err
		}
	}
	ref.CommissionStatus = models.CommissionCancelled
	ref.UpdatedAt = s.clock.Now().UTC()
	return s.store.Update(ctx, tx, ref)
}

// ExpireStale moves unconverted referrals past their window to expired.
func (s *ReferralService) ExpireStale(ctx context.Context) (int, error) {
	return s.store.ExpireBefore(ctx, s.clock.Now().UTC())
}
