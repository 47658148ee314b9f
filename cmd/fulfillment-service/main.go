package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/juju/clock"

	"github.com/Cheertaboi/order-fulfillment-core/internal/api"
	"github.com/Cheertaboi/order-fulfillment-core/internal/gateway"
	"github.com/Cheertaboi/order-fulfillment-core/internal/ledger"
	"github.com/Cheertaboi/order-fulfillment-core/internal/notify"
	"github.com/Cheertaboi/order-fulfillment-core/internal/policy"
	"github.com/Cheertaboi/order-fulfillment-core/internal/repository"
	"github.com/Cheertaboi/order-fulfillment-core/internal/service"
	"github.com/Cheertaboi/order-fulfillment-core/pkg/db"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// load DB config from env
	cfg, _ := db.LoadPostgresConfig()

	conn, err := db.NewPostgresConnection(cfg)
	if err != nil {
		log.Error("db connect", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	pol := policy.Default()
	if path := os.Getenv("POLICY_PATH"); path != "" {
		pol, err = policy.Load(path)
		if err != nil {
			log.Error("load policy", "path", path, "error", err)
			os.Exit(1)
		}
	}

	secret := os.Getenv("GATEWAY_WEBHOOK_SECRET")
	if secret == "" {
		log.Error("GATEWAY_WEBHOOK_SECRET is not set")
		os.Exit(1)
	}

	clk := clock.WallClock
	run := db.NewRunner(conn)
	notifier := notify.NewLogNotifier(log)

	walletRepo := repository.NewWalletRepo(conn)
	txnRepo := repository.NewTransactionRepo(conn)
	led := ledger.New(walletRepo, txnRepo, clk, log)

	couponSvc := service.NewCouponService(repository.NewCouponRepo(conn), run, clk)
	orderRepo := repository.NewOrderRepo(conn)
	referralSvc := service.NewReferralService(repository.NewReferralRepo(conn), orderRepo, led, pol, clk, log)
	orderSvc := service.NewOrderService(service.OrderServiceDeps{
		Orders:    orderRepo,
		Catalog:   repository.NewCatalogRepo(conn),
		Events:    repository.NewEventRepo(conn),
		Coupons:   couponSvc,
		Referrals: referralSvc,
		Ledger:    led,
		Run:       run,
		Policy:    pol,
		Verifier:  gateway.NewSigner(secret),
		Notifier:  notifier,
		Clock:     clk,
		Log:       log,
	})
	payoutSvc := service.NewPayoutService(repository.NewPayoutRepo(conn), walletRepo, led, run, notifier, clk, log)
	returnSvc := service.NewReturnService(repository.NewReturnRepo(conn), orderRepo, repository.NewCatalogRepo(conn), led, run, pol, notifier, clk, log)

	handler := api.NewRouter(api.Services{
		Coupons:   couponSvc,
		Orders:    orderSvc,
		Referrals: referralSvc,
		Payouts:   payoutSvc,
		Returns:   returnSvc,
		Ledger:    led,
	}, log)

	srv := &http.Server{
		Addr:         ":8080",
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// graceful shutdown
	idleConnsClosed := make(chan struct{})
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		<-c
		// we received an interrupt signal, shut down.
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("HTTP server shutdown", "error", err)
		}
		close(idleConnsClosed)
	}()

	log.Info("starting fulfillment-service", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("listen", "error", err)
		os.Exit(1)
	}

	<-idleConnsClosed
	log.Info("server stopped")
}
