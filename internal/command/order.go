package command

import (
	"context"

	"github.com/google/uuid"

	"github.com/example/es-saga-course/internal/domain/aggregate"
	"github.com/example/es-saga-course/internal/domain/inventory"
	"github.com/example/es-saga-course/internal/domain/order"
)

// AddStock creates the product's inventory stream on first use.
func (h *Handler) AddStock(ctx context.Context, cmd AddStock) (*inventory.Inventory, error) {
	return execute(ctx, h, "AddStock", cmd.ProductID, createIfMissing, inventory.New, func(inv *inventory.Inventory) error {
		return inv.AddStock(cmd.ProductID, cmd.Quantity)
	})
}

func (h *Handler) ReserveStock(ctx context.Context, cmd ReserveStock) (*inventory.Inventory, error) {
	return execute(ctx, h, "ReserveStock", cmd.ProductID, mustExist, inventory.New, func(inv *inventory.Inventory) error {
		return inv.Reserve(cmd.OrderID, cmd.Quantity)
	})
}

func (h *Handler) ReleaseStock(ctx context.Context, cmd ReleaseStock) (*inventory.Inventory, error) {
	return execute(ctx, h, "ReleaseStock", cmd.ProductID, mustExist, inventory.New, func(inv *inventory.Inventory) error {
		return inv.Release(cmd.OrderID, cmd.Quantity)
	})
}

func (h *Handler) LoadInventory(ctx context.Context, productID string) (*inventory.Inventory, error) {
	return aggregate.Load(ctx, h.eventStore, productID, inventory.New, h.log)
}

func (h *Handler) PlaceOrder(ctx context.Context, cmd PlaceOrder) (*order.Order, error) {
	id := cmd.OrderID
	if id == "" {
		id = "ord-" + uuid.New().String()
	}
	return execute(ctx, h, "PlaceOrder", id, mustCreate, order.New, func(o *order.Order) error {
		return o.Place(id, cmd.CustomerID, cmd.Items)
	})
}

func (h *Handler) CancelOrder(ctx context.Context, cmd CancelOrder) (*order.Order, error) {
	return execute(ctx, h, "CancelOrder", cmd.OrderID, mustExist, order.New, func(o *order.Order) error {
		return o.Cancel(cmd.Reason)
	})
}

func (h *Handler) LoadOrder(ctx context.Context, orderID string) (*order.Order, error) {
	return aggregate.Load(ctx, h.eventStore, orderID, order.New, h.log)
}

func (h *Handler) markReserved(ctx context.Context, orderID string) error {
	_, err := execute(ctx, h, "MarkOrderReserved", orderID, mustExist, order.New, func(o *order.Order) error {
		return o.MarkReserved()
	})
	return err
}

func (h *Handler) revertReservation(ctx context.Context, orderID string) error {
	_, err := execute(ctx, h, "RevertOrderReservation", orderID, mustExist, order.New, func(o *order.Order) error {
		return o.RevertReservation()
	})
	return err
}

func (h *Handler) markPaid(ctx context.Context, orderID, paymentID string) error {
	_, err := execute(ctx, h, "MarkOrderPaid", orderID, mustExist, order.New, func(o *order.Order) error {
		return o.MarkPaid(paymentID)
	})
	return err
}
