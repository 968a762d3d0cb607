package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/es-saga-course/internal/domain/aggregate"
	"github.com/example/es-saga-course/internal/domain/order"
	"github.com/example/es-saga-course/internal/saga"
)

const (
	SagaCheckout = "checkout"

	StepReserveInventory = "reserve-inventory"
	StepProcessPayment   = "process-payment"
)

// Saga context keys.
const (
	ctxOrderID   = "order_id"
	ctxAmount    = "amount"
	ctxReserved  = "reserved_products"
	ctxPaymentID = "payment_id"
)

var ErrNoSagaOrchestrator = errors.New("no saga orchestrator configured")

// Checkout reserves stock for every order item and then charges the order
// total. When payment fails the reservations are released and the order goes
// back to the status it had before reservation.
func (h *Handler) Checkout(ctx context.Context, cmd Checkout) (*saga.Log, error) {
	if h.sagas == nil {
		return nil, ErrNoSagaOrchestrator
	}
	o, err := h.LoadOrder(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !o.CanTransitionTo(order.StatusInventoryReserved) {
		h.metrics.CommandRejected("Checkout")
		return nil, aggregate.Reject(o, "Checkout", fmt.Errorf("%w: status is %s", order.ErrInvalidStatus, o.Status))
	}

	steps := []saga.Step{
		h.reserveInventoryStep(o.Items),
		h.processPaymentStep(),
	}
	return h.sagas.Run(ctx, SagaCheckout, steps, map[string]any{
		ctxOrderID: o.ID,
		ctxAmount:  o.Total,
	})
}

type reservation struct {
	productID string
	quantity  int
}

func (h *Handler) reserveInventoryStep(items []order.OrderItem) saga.Step {
	var held []reservation

	release := func(ctx context.Context, orderID string) error {
		var errs []error
		for i := len(held) - 1; i >= 0; i-- {
			r := held[i]
			if _, err := h.ReleaseStock(ctx, ReleaseStock{ProductID: r.productID, OrderID: orderID, Quantity: r.quantity}); err != nil {
				errs = append(errs, fmt.Errorf("release %s: %w", r.productID, err))
				continue
			}
			held = held[:i]
		}
		return errors.Join(errs...)
	}

	return saga.NewStep(StepReserveInventory,
		func(ctx context.Context, sc *saga.Context) error {
			orderID := sc.String(ctxOrderID)
			// The orchestrator only compensates completed steps, so a failure
			// here undoes its own reservations.
			undo := func(cause error) error {
				if relErr := release(context.WithoutCancel(ctx), orderID); relErr != nil {
					h.log.Error("failed to release partial reservation",
						slog.String("order_id", orderID), slog.Any("error", relErr))
					return &saga.UndoError{Err: cause, Undo: relErr}
				}
				sc.Delete(ctxReserved)
				return cause
			}

			var products []string
			for _, item := range items {
				_, err := h.ReserveStock(ctx, ReserveStock{ProductID: item.ProductID, OrderID: orderID, Quantity: item.Quantity})
				if err != nil {
					return undo(fmt.Errorf("reserve %s: %w", item.ProductID, err))
				}
				held = append(held, reservation{productID: item.ProductID, quantity: item.Quantity})
				products = append(products, item.ProductID)
				sc.Set(ctxReserved, products)
			}
			if err := h.markReserved(ctx, orderID); err != nil {
				return undo(err)
			}
			return nil
		},
		func(ctx context.Context, sc *saga.Context) error {
			orderID := sc.String(ctxOrderID)
			if err := release(ctx, orderID); err != nil {
				return err
			}
			sc.Delete(ctxReserved)
			return h.revertReservation(ctx, orderID)
		},
	)
}

func (h *Handler) processPaymentStep() saga.Step {
	return saga.NewStep(StepProcessPayment,
		func(ctx context.Context, sc *saga.Context) error {
			if h.payments == nil {
				return errors.New("no payment gateway configured")
			}
			orderID := sc.String(ctxOrderID)
			amount, _ := sc.Int64(ctxAmount)

			paymentID, err := h.payments.Charge(ctx, orderID, amount)
			if err != nil {
				return err
			}
			sc.Set(ctxPaymentID, paymentID)

			if err := h.markPaid(ctx, orderID, paymentID); err != nil {
				if refundErr := h.payments.Refund(context.WithoutCancel(ctx), paymentID); refundErr != nil {
					h.log.Error("failed to refund charge after order update failed",
						slog.String("order_id", orderID), slog.String("payment_id", paymentID), slog.Any("error", refundErr))
					return &saga.UndoError{Err: err, Undo: fmt.Errorf("refund %s: %w", paymentID, refundErr)}
				}
				sc.Delete(ctxPaymentID)
				return err
			}
			return nil
		},
		func(ctx context.Context, sc *saga.Context) error {
			paymentID := sc.String(ctxPaymentID)
			if paymentID == "" {
				return nil
			}
			if err := h.payments.Refund(ctx, paymentID); err != nil {
				return err
			}
			sc.Delete(ctxPaymentID)
			return nil
		},
	)
}
