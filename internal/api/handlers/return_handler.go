package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Cheertaboi/order-fulfillment-core/internal/apperr"
	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
	"github.com/Cheertaboi/order-fulfillment-core/internal/service"
)

type AdvanceReturnBody struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

type ReturnHandler struct {
	returns *service.ReturnService
}

func NewReturnHandler(returns *service.ReturnService) *ReturnHandler {
	return &ReturnHandler{returns: returns}
}

// RequestReturn handles POST /returns
func (h *ReturnHandler) RequestReturn(w http.ResponseWriter, r *http.Request) {
	var in service.RequestReturnInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "invalid request body"))
		return
	}
	in.UserID = userID(r)

	ret, err := h.returns.Request(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ret)
}

// AdvanceReturn handles POST /returns/{id}/advance (admin/system only).
func (h *ReturnHandler) AdvanceReturn(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "admin only"})
		return
	}

	var body AdvanceReturnBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "invalid request body"))
		return
	}

	ret, err := h.returns.Advance(r.Context(), chi.URLParam(r, "id"),
		models.ReturnStatus(body.Status), body.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ret)
}

// GetReturn handles GET /returns/{id}
func (h *ReturnHandler) GetReturn(w http.ResponseWriter, r *http.Request) {
	ret, err := h.returns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if ret.UserID != userID(r) && !isAdmin(r) {
		writeError(w, apperr.New(apperr.CodeNotFound, "return not found"))
		return
	}
	writeJSON(w, http.StatusOK, ret)
}
