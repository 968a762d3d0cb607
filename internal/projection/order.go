package projection

import (
	"context"
	"fmt"

	"github.com/example/es-saga-course/internal/domain/inventory"
	"github.com/example/es-saga-course/internal/domain/order"
	"github.com/example/es-saga-course/internal/infrastructure/store"
	"github.com/example/es-saga-course/internal/readmodel"
)

type OrderDashboardProjector struct {
	readStore store.ReadStoreInterface
}

func NewOrderDashboardProjector(readStore store.ReadStoreInterface) *OrderDashboardProjector {
	return &OrderDashboardProjector{readStore: readStore}
}

func (p *OrderDashboardProjector) Name() string { return "order-dashboard" }

func (p *OrderDashboardProjector) Project(ctx context.Context, event store.Event) error {
	if event.AggregateType != order.AggregateType {
		return nil
	}

	if event.EventType == order.EventOrderPlaced {
		var e order.OrderPlaced
		if err := event.Decode(&e); err != nil {
			return err
		}
		items := make([]readmodel.OrderItemReadModel, len(e.Items))
		for i, item := range e.Items {
			items[i] = readmodel.OrderItemReadModel{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
			}
		}
		doc := &readmodel.OrderDashboard{
			ID:         e.OrderID,
			CustomerID: e.CustomerID,
			Items:      items,
			Total:      e.Total,
			Status:     string(order.StatusPending),
			CreatedAt:  e.PlacedAt,
			UpdatedAt:  e.PlacedAt,
		}
		doc.Advance(event.Version, event.EventType, fmt.Sprintf("placed, total %d", e.Total), e.PlacedAt)
		return insertOnce(ctx, p.readStore, readmodel.CollectionOrders, e.OrderID, doc)
	}

	return updateDashboard(ctx, p.readStore, readmodel.CollectionOrders, event, func(d *readmodel.OrderDashboard) error {
		if err := checkVersion(event.AggregateID, d.LastProjectedVersion, event.Version); err != nil {
			return err
		}
		summary, err := applyOrderEvent(d, event)
		if err != nil {
			return err
		}
		d.UpdatedAt = event.Timestamp
		d.Advance(event.Version, event.EventType, summary, event.Timestamp)
		return nil
	})
}

func applyOrderEvent(d *readmodel.OrderDashboard, event store.Event) (string, error) {
	switch event.EventType {
	case order.EventOrderInventoryReserved:
		d.Status = string(order.StatusInventoryReserved)
		return "inventory reserved", nil
	case order.EventOrderReservationReverted:
		var e order.OrderReservationReverted
		if err := event.Decode(&e); err != nil {
			return "", err
		}
		d.Status = string(e.RestoredStatus)
		return "reservation reverted", nil
	case order.EventOrderPaid:
		var e order.OrderPaid
		if err := event.Decode(&e); err != nil {
			return "", err
		}
		d.PaymentID = e.PaymentID
		d.Status = string(order.StatusPaid)
		return "paid with " + e.PaymentID, nil
	case order.EventOrderCancelled:
		var e order.OrderCancelled
		if err := event.Decode(&e); err != nil {
			return "", err
		}
		d.CancelReason = e.Reason
		d.Status = string(order.StatusCancelled)
		return "cancelled: " + e.Reason, nil
	}
	return event.EventType, nil
}

// InventoryProjector keeps the stock view per product.
type InventoryProjector struct {
	readStore store.ReadStoreInterface
}

func NewInventoryProjector(readStore store.ReadStoreInterface) *InventoryProjector {
	return &InventoryProjector{readStore: readStore}
}

func (p *InventoryProjector) Name() string { return "inventory" }

func (p *InventoryProjector) Project(ctx context.Context, event store.Event) error {
	if event.AggregateType != inventory.AggregateType {
		return nil
	}

	newDoc := func() *readmodel.InventoryReadModel {
		return &readmodel.InventoryReadModel{ProductID: event.AggregateID}
	}
	return store.UpsertDocument(ctx, p.readStore, readmodel.CollectionInventory, event.AggregateID, newDoc, func(inv *readmodel.InventoryReadModel) error {
		if err := checkVersion(event.AggregateID, inv.LastProjectedVersion, event.Version); err != nil {
			return err
		}
		switch event.EventType {
		case inventory.EventStockAdded:
			var e inventory.StockAdded
			if err := event.Decode(&e); err != nil {
				return err
			}
			inv.TotalStock += e.Quantity
		case inventory.EventStockReserved:
			var e inventory.StockReserved
			if err := event.Decode(&e); err != nil {
				return err
			}
			inv.ReservedStock += e.Quantity
		case inventory.EventStockReleased:
			var e inventory.StockReleased
			if err := event.Decode(&e); err != nil {
				return err
			}
			inv.ReservedStock -= e.Quantity
		}
		inv.AvailableStock = inv.TotalStock - inv.ReservedStock
		inv.LastProjectedVersion = event.Version
		return nil
	})
}
