package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/es-saga-course/internal/app"
	"github.com/example/es-saga-course/internal/command"
	"github.com/example/es-saga-course/internal/config"
	"github.com/example/es-saga-course/internal/domain/order"
	"github.com/example/es-saga-course/internal/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("[Demo] invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	log := logger.Setup(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("[Demo] failed to wire application", slog.Any("error", err))
		os.Exit(1)
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux(a),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("[Demo] serving metrics", slog.String("addr", cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("[Demo] metrics server failed", slog.Any("error", err))
		}
	}()

	if err := run(ctx, a, log); err != nil {
		log.Error("[Demo] scenario failed", slog.Any("error", err))
		shutdown(srv, log)
		os.Exit(1)
	}

	log.Info("[Demo] all scenarios finished, metrics stay up until interrupted")
	<-ctx.Done()
	shutdown(srv, log)
}

func metricsMux(a *app.App) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func shutdown(srv *http.Server, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("[Demo] metrics server shutdown", slog.Any("error", err))
	}
}

func run(ctx context.Context, a *app.App, log *slog.Logger) error {
	suffix := time.Now().UTC().Format("150405")
	if err := accountScenario(ctx, a, log, "acc-"+suffix); err != nil {
		return fmt.Errorf("account scenario: %w", err)
	}
	if err := claimScenario(ctx, a, log, "clm-"+suffix); err != nil {
		return fmt.Errorf("claim scenario: %w", err)
	}
	if err := checkoutScenario(ctx, a, log, "prod-"+suffix, "ord-"+suffix); err != nil {
		return fmt.Errorf("checkout scenario: %w", err)
	}
	return nil
}

// accountScenario deposits past the snapshot threshold and reloads.
func accountScenario(ctx context.Context, a *app.App, log *slog.Logger, id string) error {
	h := a.Commands
	if _, err := h.OpenAccount(ctx, command.OpenAccount{AccountID: id, Owner: "demo", InitialBalance: 10000}); err != nil {
		return err
	}
	for i := 0; i < 4; i++ {
		if _, err := h.Deposit(ctx, command.Deposit{AccountID: id, Amount: 1000}); err != nil {
			return err
		}
	}
	for _, amount := range []int64{2000, 3000} {
		if _, err := h.Deposit(ctx, command.Deposit{AccountID: id, Amount: amount}); err != nil {
			return err
		}
	}

	acc, err := h.LoadAccount(ctx, id)
	if err != nil {
		return err
	}
	log.Info("[Demo] account reloaded",
		slog.String("account", id),
		slog.Int64("balance", acc.Balance),
		slog.Int("version", acc.GetVersion()),
		slog.Int("snapshot_version", acc.SnapshotVersion()),
	)
	return nil
}

func claimScenario(ctx context.Context, a *app.App, log *slog.Logger, id string) error {
	h := a.Commands
	if _, err := h.FileClaim(ctx, command.FileClaim{ClaimID: id, PolicyID: "pol-demo", Category: "AUTO", Amount: 200000, Coverage: 500000}); err != nil {
		return err
	}
	if _, err := h.InvestigateClaim(ctx, command.InvestigateClaim{ClaimID: id, Risk: "LOW"}); err != nil {
		return err
	}
	if _, err := h.AssessClaim(ctx, command.AssessClaim{ClaimID: id, Amount: 180000}); err != nil {
		return err
	}
	if _, err := h.ApproveClaim(ctx, command.ApproveClaim{ClaimID: id}); err != nil {
		return err
	}
	c, err := h.PayClaim(ctx, command.PayClaim{ClaimID: id, Reference: "PAY-001"})
	if err != nil {
		return err
	}

	attrs := []any{slog.String("claim", id), slog.String("status", string(c.Status))}
	if dash, ok := a.Queries.GetClaim(ctx, id); ok {
		attrs = append(attrs, slog.Int64("approved_amount", dash.ApprovedAmount), slog.Int("timeline", len(dash.Timeline)))
	}
	log.Info("[Demo] claim paid", attrs...)
	return nil
}

// checkoutScenario prices the order at the payment limit so the payment step
// fails and the reservation is compensated.
func checkoutScenario(ctx context.Context, a *app.App, log *slog.Logger, productID, orderID string) error {
	h := a.Commands
	if _, err := h.AddStock(ctx, command.AddStock{ProductID: productID, Quantity: 5}); err != nil {
		return err
	}
	if _, err := h.PlaceOrder(ctx, command.PlaceOrder{
		OrderID:    orderID,
		CustomerID: "cust-demo",
		Items:      []order.OrderItem{{ProductID: productID, Quantity: 2, UnitPrice: a.Config.PaymentLimit}},
	}); err != nil {
		return err
	}

	sagaLog, sagaErr := h.Checkout(ctx, command.Checkout{OrderID: orderID})
	if sagaLog == nil {
		return sagaErr
	}
	for _, step := range sagaLog.Steps {
		log.Info("[Demo] saga step", slog.String("step", step.Name), slog.String("status", string(step.Status)), slog.String("error", step.Error))
	}

	inv, err := h.LoadInventory(ctx, productID)
	if err != nil {
		return err
	}
	o, err := h.LoadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	log.Info("[Demo] checkout finished",
		slog.String("saga_status", string(sagaLog.Status)),
		slog.Int("available_stock", inv.AvailableStock()),
		slog.String("order_status", string(o.Status)),
	)
	return nil
}
