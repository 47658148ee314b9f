package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Cheertaboi/order-fulfillment-core/internal/apperr"
	"github.com/Cheertaboi/order-fulfillment-core/internal/ledger"
	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
)

type WalletHandler struct {
	ledger *ledger.Ledger
}

func NewWalletHandler(led *ledger.Ledger) *WalletHandler {
	return &WalletHandler{ledger: led}
}

func ownerFromRequest(r *http.Request) (models.WalletOwner, bool) {
	owner := models.WalletOwner{
		ID:   chi.URLParam(r, "ownerID"),
		Type: models.OwnerType(chi.URLParam(r, "ownerType")),
	}
	if owner.Type != models.OwnerUser && owner.Type != models.OwnerInfluencer {
		return owner, false
	}
	// Owners can only read their own wallet; admins can read any.
	if owner.ID != userID(r) && !isAdmin(r) {
		return owner, false
	}
	return owner, true
}

// GetSummary handles GET /wallets/{ownerType}/{ownerID}
func (h *WalletHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromRequest(r)
	if !ok {
		writeError(w, apperr.New(apperr.CodeNotFound, "wallet not found"))
		return
	}

	summary, err := h.ledger.Summary(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListTransactions handles GET /wallets/{ownerType}/{ownerID}/transactions
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFromRequest(r)
	if !ok {
		writeError(w, apperr.New(apperr.CodeNotFound, "wallet not found"))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	txns, err := h.ledger.Transactions(r.Context(), owner, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if txns == nil {
		txns = []models.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}
