package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Cheertaboi/order-fulfillment-core/internal/apperr"
	"github.com/Cheertaboi/order-fulfillment-core/internal/service"
)

type SignupBody struct {
	ReferralCode string `json:"referralCode"`
}

type ReferralHandler struct {
	referrals *service.ReferralService
}

func NewReferralHandler(referrals *service.ReferralService) *ReferralHandler {
	return &ReferralHandler{referrals: referrals}
}

// RegisterSignup handles POST /referrals/signup
func (h *ReferralHandler) RegisterSignup(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, apperr.New(apperr.CodeValidation, "missing user identity"))
		return
	}

	var body SignupBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "invalid request body"))
		return
	}
	if body.ReferralCode == "" {
		writeError(w, apperr.New(apperr.CodeValidation, "referralCode is required"))
		return
	}

	ref, err := h.referrals.RegisterSignup(r.Context(), uid, body.ReferralCode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}
