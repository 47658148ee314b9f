package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Cheertaboi/order-fulfillment-core/internal/api/handlers"
	"github.com/Cheertaboi/order-fulfillment-core/internal/api/middleware"
	"github.com/Cheertaboi/order-fulfillment-core/internal/ledger"
	"github.com/Cheertaboi/order-fulfillment-core/internal/service"
)

// Services bundles everything the HTTP layer exposes.
type Services struct {
	Coupons   *service.CouponService
	Orders    *service.OrderService
	Referrals *service.ReferralService
	Payouts   *service.PayoutService
	Returns   *service.ReturnService
	Ledger    *ledger.Ledger
}

// NewRouter builds the HTTP router for the fulfillment service
func NewRouter(svc Services, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger(log))

	couponHandler := handlers.NewCouponHandler(svc.Coupons)
	orderHandler := handlers.NewOrderHandler(svc.Orders)
	referralHandler := handlers.NewReferralHandler(svc.Referrals)
	payoutHandler := handlers.NewPayoutHandler(svc.Payouts)
	returnHandler := handlers.NewReturnHandler(svc.Returns)
	walletHandler := handlers.NewWalletHandler(svc.Ledger)

	r.Route("/coupons", func(r chi.Router) {
		r.Post("/validate", couponHandler.ValidateCoupon)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", orderHandler.PlaceOrder)
		r.Post("/payment/confirm", orderHandler.ConfirmPayment)
		r.Get("/{number}", orderHandler.GetOrder)
		r.Post("/{number}/cancel", orderHandler.CancelOrder)
		r.Post("/{number}/status", orderHandler.AdvanceOrder)
	})

	r.Route("/referrals", func(r chi.Router) {
		r.Post("/signup", referralHandler.RegisterSignup)
	})

	r.Route("/payouts", func(r chi.Router) {
		r.Post("/", payoutHandler.RequestPayout)
		r.Get("/{id}", payoutHandler.GetPayout)
		r.Post("/{id}/resolve", payoutHandler.ResolvePayout)
	})

	r.Route("/returns", func(r chi.Router) {
		r.Post("/", returnHandler.RequestReturn)
		r.Get("/{id}", returnHandler.GetReturn)
		r.Post("/{id}/advance", returnHandler.AdvanceReturn)
	})

	r.Route("/wallets", func(r chi.Router) {
		r.Get("/{ownerType}/{ownerID}", walletHandler.GetSummary)
		r.Get("/{ownerType}/{ownerID}/transactions", walletHandler.ListTransactions)
	})

	// Admin endpoints
	r.Route("/admin", func(r chi.Router) {
		r.Post("/coupons", couponHandler.CreateCoupon)
	})

	// health
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
