package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Cheertaboi/order-fulfillment-core/internal/apperr"
	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
	"github.com/Cheertaboi/order-fulfillment-core/internal/service"
)

type ConfirmPaymentBody struct {
	OrderNumber      string `json:"order_number"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

type CancelOrderBody struct {
	Reason string `json:"reason"`
}

type AdvanceOrderBody struct {
	Status     string `json:"status"`
	TrackingID string `json:"tracking_id,omitempty"`
}

type OrderHandler struct {
	orders *service.OrderService
}

func NewOrderHandler(orders *service.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// PlaceOrder handles POST /orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req service.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "invalid request body"))
		return
	}
	req.UserID = userID(r)
	req.IdempotencyKey = r.Header.Get("Idempotency-Key")

	order, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// ConfirmPayment handles POST /orders/payment/confirm. Gateways retry
// callback delivery; replays return the order unchanged.
func (h *OrderHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var body ConfirmPaymentBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "invalid request body"))
		return
	}

	order, err := h.orders.ConfirmPayment(r.Context(), body.OrderNumber, body.GatewayPaymentID, body.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// GetOrder handles GET /orders/{number}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, err)
		return
	}
	if order.UserID != userID(r) && !isAdmin(r) {
		writeError(w, apperr.New(apperr.CodeNotFound, "order not found"))
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// CancelOrder handles POST /orders/{number}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var body CancelOrderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "invalid request body"))
		return
	}

	order, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "number"), userID(r), body.Reason, isAdmin(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// AdvanceOrder handles POST /orders/{number}/status (admin/system only).
func (h *OrderHandler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "admin only"})
		return
	}

	var body AdvanceOrderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "invalid request body"))
		return
	}

	order, err := h.orders.Advance(r.Context(), chi.URLParam(r, "number"),
		models.OrderStatus(body.Status), body.TrackingID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}
