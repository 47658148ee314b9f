package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Cheertaboi/order-fulfillment-core/internal/apperr"
	"github.com/Cheertaboi/order-fulfillment-core/internal/models"
	"github.com/Cheertaboi/order-fulfillment-core/internal/service"
)

// --- Request / Response DTOs ---

type ValidateCouponBody struct {
	Code        string          `json:"code"`
	OrderAmount decimal.Decimal `json:"order_amount"`
	Items       []struct {
		ProductID string `json:"product_id"`
		Category  string `json:"category"`
	} `json:"items,omitempty"`
}

type CreateCouponBody struct {
	Code                 string          `json:"code"`
	DiscountType         string          `json:"discount_type"`
	DiscountValue        decimal.Decimal `json:"discount_value"`
	MinOrderAmount       decimal.Decimal `json:"min_order_amount"`
	MaxDiscount          decimal.Decimal `json:"max_discount"`
	UsageLimit           int             `json:"usage_limit"`
	PerUserLimit         int             `json:"per_user_limit"`
	StartDate            string          `json:"start_date"` // RFC3339
	EndDate              string          `json:"end_date"`   // RFC3339
	ApplicableProducts   []string        `json:"applicable_products,omitempty"`
	ApplicableCategories []string        `json:"applicable_categories,omitempty"`
	ExcludedProducts     []string        `json:"excluded_products,omitempty"`
	ExcludedCategories   []string        `json:"excluded_categories,omitempty"`
}

type CouponHandler struct {
	coupons *service.CouponService
}

func NewCouponHandler(coupons *service.CouponService) *CouponHandler {
	return &CouponHandler{coupons: coupons}
}

// ValidateCoupon handles POST /coupons/validate
func (h *CouponHandler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var body ValidateCouponBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "invalid request body"))
		return
	}

	req := service.ValidateCouponRequest{
		Code:        body.Code,
		UserID:      userID(r),
		OrderAmount: body.OrderAmount,
	}
	for _, it := range body.Items {
		req.Items = append(req.Items, service.ApplicabilityItem{
			ProductID: it.ProductID,
			Category:  it.Category,
		})
	}

	result, err := h.coupons.Validate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CreateCoupon handles POST /admin/coupons
func (h *CouponHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "admin only"})
		return
	}

	var body CreateCouponBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "invalid request body"))
		return
	}
	start, err := time.Parse(time.RFC3339, body.StartDate)
	if err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "invalid start_date; use RFC3339"))
		return
	}
	end, err := time.Parse(time.RFC3339, body.EndDate)
	if err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "invalid end_date; use RFC3339"))
		return
	}

	meta := &models.CouponMeta{
		Coupon: models.Coupon{
			Code:           body.Code,
			DiscountType:   models.DiscountType(body.DiscountType),
			DiscountValue:  body.DiscountValue,
			MinOrderAmount: body.MinOrderAmount,
			MaxDiscount:    body.MaxDiscount,
			UsageLimit:     body.UsageLimit,
			PerUserLimit:   body.PerUserLimit,
			StartDate:      start,
			EndDate:        end,
			Active:         true,
		},
		ApplicableProducts:   body.ApplicableProducts,
		ApplicableCategories: body.ApplicableCategories,
		ExcludedProducts:     body.ExcludedProducts,
		ExcludedCategories:   body.ExcludedCategories,
	}

	id, err := h.coupons.Create(r.Context(), meta)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":   "coupon created",
		"coupon_id": id,
	})
}
