package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReturnStatus string

const (
	ReturnPending         ReturnStatus = "pending"
	ReturnApproved        ReturnStatus = "approved"
	ReturnPickupScheduled ReturnStatus = "pickup_scheduled"
	ReturnPickedUp        ReturnStatus = "picked_up"
	ReturnReceived        ReturnStatus = "received"
	ReturnInspecting      ReturnStatus = "inspecting"
	ReturnRefundInitiated ReturnStatus = "refund_initiated"
	ReturnRefundCompleted ReturnStatus = "refund_completed"
	ReturnRejected        ReturnStatus = "rejected"
	ReturnCancelled       ReturnStatus = "cancelled"
)

var returnTransitions = map[ReturnStatus][]ReturnStatus{
	ReturnPending:         {ReturnApproved, ReturnRejected, ReturnCancelled},
	ReturnApproved:        {ReturnPickupScheduled, ReturnCancelled},
	ReturnPickupScheduled: {ReturnPickedUp, ReturnCancelled},
	ReturnPickedUp:        {ReturnReceived},
	ReturnReceived:        {ReturnInspecting},
	ReturnInspecting:      {ReturnRefundInitiated, ReturnRejected},
	ReturnRefundInitiated: {ReturnRefundCompleted},
}

func (s ReturnStatus) CanTransition(to ReturnStatus) bool {
	for _, next := range returnTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type RefundMethod string

const (
	RefundToWallet  RefundMethod = "wallet"
	RefundToGateway RefundMethod = "original_payment"
	RefundToBank    RefundMethod = "bank_transfer"
)

type RefundStatus string

const (
	RefundPendingStatus   RefundStatus = "pending"
	RefundCompletedStatus RefundStatus = "completed"
)

type ReturnItem struct {
	ID        int             `json:"id"`
	ReturnID  string          `json:"return_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"` // per-unit, from the order snapshot
	Reason    string          `json:"reason"`
}

type Return struct {
	ID           string          `json:"id"` // uuid
	OrderID      int             `json:"order_id"`
	OrderNumber  string          `json:"order_number"`
	UserID       string          `json:"user_id"`
	Items        []ReturnItem    `json:"items"`
	Status       ReturnStatus    `json:"status"`
	Notes        string          `json:"notes,omitempty"`
	RefundMethod RefundMethod    `json:"refund_method"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	RefundStatus RefundStatus    `json:"refund_status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
