package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/order-fulfillment-core/internal/apperr"
	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
	"github.com/Cheertaboi/order-fulfillment-core/internal/service"
)

type RequestPayoutBody struct {
	OwnerType string               `json:"owner_type"`
	Amount    decimal.Decimal      `json:"amount"`
	Method    string               `json:"method"`
	Details   models.PayoutDetails `json:"details"`
}

type ResolvePayoutBody struct {
	Decision    string `json:"decision"`
	ExternalRef string `json:"external_ref,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type PayoutHandler struct {
	payouts *service.PayoutService
}

func NewPayoutHandler(payouts *service.PayoutService) *PayoutHandler {
	return &PayoutHandler{payouts: payouts}
}

// RequestPayout handles POST /payouts
func (h *PayoutHandler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	var body RequestPayoutBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "invalid request body"))
		return
	}

	ownerType := models.OwnerType(body.OwnerType)
	if ownerType == "" {
		ownerType = models.OwnerUser
	}

	payout, err := h.payouts.Request(r.Context(), service.RequestPayoutInput{
		Owner:   models.WalletOwner{ID: userID(r), Type: ownerType},
		Amount:  body.Amount,
		Method:  models.PayoutMethod(body.Method),
		Details: body.Details,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payout)
}

// ResolvePayout handles POST /payouts/{id}/resolve (admin only).
func (h *PayoutHandler) ResolvePayout(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "admin only"})
		return
	}

	var body ResolvePayoutBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "invalid request body"))
		return
	}

	payout, err := h.payouts.Resolve(r.Context(), service.ResolvePayoutInput{
		PayoutID:    chi.URLParam(r, "id"),
		Decision:    service.PayoutDecision(body.Decision),
		ResolvedBy:  userID(r),
		ExternalRef: body.ExternalRef,
		Reason:      body.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

// GetPayout handles GET /payouts/{id}
func (h *PayoutHandler) GetPayout(w http.ResponseWriter, r *http.Request) {
	payout, err := h.payouts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if payout.Owner.ID != userID(r) && !isAdmin(r) {
		writeError(w, apperr.New(apperr.CodeNotFound, "payout not found"))
		return
	}
	writeJSON(w, http.StatusOK, payout)
}
