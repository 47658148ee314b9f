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
)

// PayoutStore is the persistence surface of the payout processor.
type PayoutStore interface {
	Create(ctx context.Context, tx *sql.Tx, p *models.Payout) error
	Get(ctx context.Context, id string) (*models.Payout, error)
	Lock(ctx context.Context, tx *sql.Tx, id string) (*models.Payout, error)
	Update(ctx context.Context, tx *sql.Tx, p *models.Payout) error
	ReservedAmount(ctx context.Context, tx *sql.Tx, walletID int) (decimal.Decimal, error)
}

// PayoutWalletStore locks wallets during payout admission.
type PayoutWalletStore interface {
	LockOrCreate(ctx context.Context, tx *sql.Tx, owner models.WalletOwner) (*models.Wallet, error)
}

type PayoutService struct {
	payouts  PayoutStore
	wallets  PayoutWalletStore
	ledger   *ledger.Ledger
	run      TxRunner
	notifier Notifier
	clock    clock.Clock
	log      *slog.Logger
}

func NewPayoutService(payouts PayoutStore, wallets PayoutWalletStore, led *ledger.Ledger, run TxRunner, notifier Notifier, clk clock.Clock, log *slog.Logger) *PayoutService {
	return &PayoutService{
		payouts:  payouts,
		wallets:  wallets,
		ledger:   led,
		run:      run,
		notifier: notifier,
		clock:    clk,
		log:      log,
	}
}

type RequestPayoutInput struct {
	Owner   models.WalletOwner   `json:"owner"`
	Amount  decimal.Decimal      `json:"amount"`
	Method  models.PayoutMethod  `json:"method"`
	Details models.PayoutDetails `json:"details"`
}

func (in *RequestPayoutInput) validate() error {
	if in.Owner.ID == "" {
		return apperr.New(apperr.CodeValidation, "owner required")
	}
	if !in.Amount.IsPositive() {
		return apperr.New(apperr.CodeValidation, "payout amount must be positive")
	}
	switch in.Method {
	case models.PayoutBank:
		if in.Details.AccountName == "" || in.Details.AccountNumber == "" || in.Details.IFSC == "" {
			return apperr.New(apperr.CodeValidation, "bank payouts need account name, number and IFSC")
		}
	case models.PayoutUPI:
		if in.Details.UPIID == "" {
			return apperr.New(apperr.CodeValidation, "upi payouts need a upi id")
		}
	default:
		return apperr.Newf(apperr.CodeValidation, "unknown payout method %q", in.Method)
	}
	return nil
}

// Request admits a withdrawal against the wallet's available balance. The
// amount is reserved, not debited: the debit happens only on completion, so a
// later rejection has nothing to unwind.
func (s *PayoutService) Request(ctx context.Context, in RequestPayoutInput) (*models.Payout, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	payout := &models.Payout{
		ID:        uuid.NewString(),
		Owner:     in.Owner,
		Amount:    in.Amount,
		Method:    in.Method,
		Details:   in.Details,
		Status:    models.PayoutPending,
		CreatedAt: s.clock.Now().UTC(),
	}

	err := s.run.WithTx(ctx, func(tx *sql.Tx) error {
		w, err := s.wallets.LockOrCreate(ctx, tx, in.Owner)
		if err != nil {
			return err
		}
		reserved, err := s.payouts.ReservedAmount(ctx, tx, w.ID)
		if err != nil {
			return err
		}
		available := w.Balance.Sub(reserved)
		if in.Amount.GreaterThan(available) {
			return apperr.InsufficientFunds(available, in.Amount)
		}
		payout.WalletID = w.ID
		return s.payouts.Create(ctx, tx, payout)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payout requested",
		"payout_id", payout.ID, "owner", payout.Owner.ID, "amount", payout.Amount.String())
	s.notifier.PayoutEvent(payout, "requested")
	return payout, nil
}

// PayoutDecision is an operator's resolution of a payout request.
type PayoutDecision string

const (
	DecisionApprove  PayoutDecision = "approve"  // pending → processing
	DecisionComplete PayoutDecision = "complete" // → completed, debits the wallet
	DecisionReject   PayoutDecision = "reject"   // → rejected, no ledger effect
	DecisionFail     PayoutDecision = "fail"     // → failed, no ledger effect
)

type ResolvePayoutInput struct {
	PayoutID    string         `json:"payout_id"`
	Decision    PayoutDecision `json:"decision"`
	ResolvedBy  string         `json:"resolved_by"`
	ExternalRef string         `json:"external_ref,omitempty"` // required for complete
	Reason      string         `json:"reason,omitempty"`       // required for reject/fail
}

// Resolve advances a payout through its approval state machine. Completion
// debits exactly the requested amount once; a duplicate resolution fails as a
// state conflict with no second debit.
func (s *PayoutService) Resolve(ctx context.Context, in ResolvePayoutInput) (*models.Payout, error) {
	target, err := decisionTarget(in)
	if err != nil {
		return nil, err
	}

	var resolved *models.Payout
	err = s.run.WithTx(ctx, func(tx *sql.Tx) error {
		p, err := s.payouts.Lock(ctx, tx, in.PayoutID)
		if err != nil {
			return err
		}
		if p == nil {
			return apperr.Newf(apperr.CodeNotFound, "payout %s not found", in.PayoutID)
		}
		if !p.Status.CanTransition(target) {
			return apperr.Newf(apperr.CodeStateConflict,
				"payout %s is %s and cannot move to %s", p.ID, p.Status, target)
		}

		now := s.clock.Now().UTC()
		p.Status = target
		p.ProcessedBy = in.ResolvedBy
		p.ProcessedAt = &now

		switch target {
		case models.PayoutCompleted:
			p.ExternalRef = in.ExternalRef
			_, err := s.ledger.Debit(ctx, tx, p.Owner, p.Amount,
				models.CategoryWithdrawal,
				models.TxnReference{PayoutID: p.ID},
				"withdrawal "+p.ID,
			)
			if err != nil {
				return err
			}
		case models.PayoutRejected, models.PayoutFailed:
			p.Reason = in.Reason
		}

		if err := s.payouts.Update(ctx, tx, p); err != nil {
			return err
		}
		resolved = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payout resolved",
		"payout_id", resolved.ID, "decision", in.Decision, "status", resolved.Status)
	s.notifier.PayoutEvent(resolved, string(resolved.Status))
	return resolved, nil
}

func decisionTarget(in ResolvePayoutInput) (models.PayoutStatus, error) {
	switch in.Decision {
	case DecisionApprove:
		return models.PayoutProcessing, nil
	case DecisionComplete:
		if in.ExternalRef == "" {
			return "", apperr.New(apperr.CodeValidation, "external transaction reference required to complete")
		}
		return models.PayoutCompleted, nil
	case DecisionReject:
		if in.Reason == "" {
			return "", apperr.New(apperr.CodeValidation, "rejection reason required")
		}
		return models.PayoutRejected, nil
	case DecisionFail:
		if in.Reason == "" {
			return "", apperr.New(apperr.CodeValidation, "failure reason required")
		}
		return models.PayoutFailed, nil
	}
	return "", apperr.Newf(apperr.CodeValidation, "unknown decision %q", in.Decision)
}

// Get returns a payout by id.
func (s *PayoutService) Get(ctx context.Context, id string) (*models.Payout, error) {
	p, err := s.payouts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.Newf(apperr.CodeNotFound, "payout %s not found", id)
	}
	return p, nil
}
