package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/es-saga-course/internal/domain/aggregate"
	"github.com/example/es-saga-course/internal/infrastructure/store"
)

const AggregateType = "Inventory"

var (
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrMissingOrder       = errors.New("order id is required")
	ErrReleaseExceedsHeld = errors.New("release exceeds reserved quantity")
)

// Inventory tracks stock of one product. Reserved units stay in TotalStock
// until they are released.
type Inventory struct {
	aggregate.Base
	ProductID     string         `json:"product_id"`
	TotalStock    int            `json:"total_stock"`
	ReservedStock int            `json:"reserved_stock"`
	Reservations  map[string]int `json:"reservations"` // order id -> reserved units
	UpdatedAt     time.Time      `json:"updated_at"`
}

func New() *Inventory { return &Inventory{} }

func (i *Inventory) GetID() string         { return i.ProductID }
func (i *Inventory) AggregateType() string { return AggregateType }

func (i *Inventory) AvailableStock() int {
	return i.TotalStock - i.ReservedStock
}

// ReservedFor returns the units held for an order.
func (i *Inventory) ReservedFor(orderID string) int {
	return i.Reservations[orderID]
}

// =============================================================================
// Commands
// =============================================================================

// AddStock also creates the inventory stream on first use.
func (i *Inventory) AddStock(productID string, quantity int) error {
	if quantity <= 0 {
		return aggregate.Reject(i, "AddStock", fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity))
	}
	event := StockAdded{ProductID: productID, Quantity: quantity, AddedAt: time.Now().UTC()}
	if i.Version == 0 {
		return aggregate.RecordNew(i, productID, EventStockAdded, event)
	}
	event.ProductID = i.ProductID
	return aggregate.Record(i, EventStockAdded, event)
}

func (i *Inventory) Reserve(orderID string, quantity int) error {
	if orderID == "" {
		return aggregate.Reject(i, "Reserve", ErrMissingOrder)
	}
	if quantity <= 0 {
		return aggregate.Reject(i, "Reserve", fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity))
	}
	if quantity > i.AvailableStock() {
		return aggregate.Reject(i, "Reserve", fmt.Errorf("%w: available %d, requested %d", ErrInsufficientStock, i.AvailableStock(), quantity))
	}
	return aggregate.Record(i, EventStockReserved, StockReserved{
		ProductID:  i.ProductID,
		OrderID:    orderID,
		Quantity:   quantity,
		ReservedAt: time.Now().UTC(),
	})
}

func (i *Inventory) Release(orderID string, quantity int) error {
	if quantity <= 0 {
		return aggregate.Reject(i, "Release", fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity))
	}
	if held := i.ReservedFor(orderID); quantity > held {
		return aggregate.Reject(i, "Release", fmt.Errorf("%w: order %s holds %d, release %d", ErrReleaseExceedsHeld, orderID, held, quantity))
	}
	return aggregate.Record(i, EventStockReleased, StockReleased{
		ProductID:  i.ProductID,
		OrderID:    orderID,
		Quantity:   quantity,
		ReleasedAt: time.Now().UTC(),
	})
}

// =============================================================================
// Event application
// =============================================================================

// ApplyEvent applies a single event to the inventory state (implements aggregate.Aggregate)
func (i *Inventory) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventStockAdded:
		var data StockAdded
		if err := event.Decode(&data); err != nil {
			return err
		}
		i.ProductID = data.ProductID
		i.TotalStock += data.Quantity
		if i.Reservations == nil {
			i.Reservations = make(map[string]int)
		}
		i.UpdatedAt = data.AddedAt
	case EventStockReserved:
		var data StockReserved
		if err := event.Decode(&data); err != nil {
			return err
		}
		i.ReservedStock += data.Quantity
		if i.Reservations == nil {
			i.Reservations = make(map[string]int)
		}
		i.Reservations[data.OrderID] += data.Quantity
		i.UpdatedAt = data.ReservedAt
	case EventStockReleased:
		var data StockReleased
		if err := event.Decode(&data); err != nil {
			return err
		}
		i.ReservedStock -= data.Quantity
		i.Reservations[data.OrderID] -= data.Quantity
		if i.Reservations[data.OrderID] <= 0 {
			delete(i.Reservations, data.OrderID)
		}
		i.UpdatedAt = data.ReleasedAt
	default:
		return fmt.Errorf("%w: %s", aggregate.ErrUnknownEventType, event.EventType)
	}
	return nil
}
