package order

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/example/es-saga-course/internal/domain/aggregate"
	"github.com/example/es-saga-course/internal/infrastructure/store"
)

const AggregateType = "Order"

type Status string

const (
	StatusPending           Status = "PENDING"
	StatusInventoryReserved Status = "INVENTORY_RESERVED"
	StatusPaid              Status = "PAID"
	StatusCancelled         Status = "CANCELLED"
)

var (
	ErrAlreadyPlaced    = errors.New("order already placed")
	ErrEmptyOrder       = errors.New("order must have at least one item")
	ErrInvalidItem      = errors.New("order item needs a product, positive quantity and non-negative price")
	ErrMissingCustomer  = errors.New("customer is required")
	ErrMissingPayment   = errors.New("payment id is required")
	ErrInvalidStatus    = errors.New("invalid order status transition")
	ErrOrderAlreadyPaid = errors.New("order is already paid")
	ErrOrderCancelled   = errors.New("order is already cancelled")
	ErrNotReserved      = errors.New("order inventory is not reserved")
)

// validTransitions defines allowed state transitions. INVENTORY_RESERVED back to
// PENDING is the reservation revert.
var validTransitions = map[Status][]Status{
	StatusPending:           {StatusInventoryReserved, StatusCancelled},
	StatusInventoryReserved: {StatusPaid, StatusCancelled, StatusPending},
	StatusPaid:              {}, // terminal state
	StatusCancelled:         {}, // terminal state
}

type Order struct {
	aggregate.Base
	ID                string      `json:"id"`
	CustomerID        string      `json:"customer_id"`
	Items             []OrderItem `json:"items"`
	Total             int64       `json:"total"`
	Status            Status      `json:"status"`
	PreReservedStatus Status      `json:"pre_reserved_status,omitempty"`
	PaymentID         string      `json:"payment_id,omitempty"`
	CancelReason      string      `json:"cancel_reason,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

func New() *Order { return &Order{} }

func (o *Order) GetID() string         { return o.ID }
func (o *Order) AggregateType() string { return AggregateType }

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	return slices.Contains(validTransitions[o.Status], target)
}

// transitionError returns an appropriate error for an invalid transition
func (o *Order) transitionError(command string, target Status) error {
	var err error
	switch {
	case o.Status == StatusCancelled:
		err = ErrOrderCancelled
	case o.Status == StatusPaid:
		err = ErrOrderAlreadyPaid
	case target == StatusPaid || target == StatusPending:
		err = fmt.Errorf("%w: status is %s", ErrNotReserved, o.Status)
	default:
		err = fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.Status, target)
	}
	return aggregate.Reject(o, command, err)
}

// =============================================================================
// Commands
// =============================================================================

func (o *Order) Place(id, customerID string, items []OrderItem) error {
	if o.Version > 0 {
		return aggregate.Reject(o, "Place", ErrAlreadyPlaced)
	}
	if customerID == "" {
		return aggregate.Reject(o, "Place", ErrMissingCustomer)
	}
	if len(items) == 0 {
		return aggregate.Reject(o, "Place", ErrEmptyOrder)
	}
	var total int64
	for _, item := range items {
		if item.ProductID == "" || item.Quantity <= 0 || item.UnitPrice < 0 {
			return aggregate.Reject(o, "Place", fmt.Errorf("%w: %+v", ErrInvalidItem, item))
		}
		total += int64(item.Quantity) * item.UnitPrice
	}
	return aggregate.RecordNew(o, id, EventOrderPlaced, OrderPlaced{
		OrderID:    id,
		CustomerID: customerID,
		Items:      slices.Clone(items),
		Total:      total,
		PlacedAt:   time.Now().UTC(),
	})
}

func (o *Order) MarkReserved() error {
	if !o.CanTransitionTo(StatusInventoryReserved) {
		return o.transitionError("MarkReserved", StatusInventoryReserved)
	}
	return aggregate.Record(o, EventOrderInventoryReserved, OrderInventoryReserved{
		OrderID:        o.ID,
		PreviousStatus: o.Status,
		ReservedAt:     time.Now().UTC(),
	})
}

// RevertReservation restores the status the order had before MarkReserved.
func (o *Order) RevertReservation() error {
	if o.Status != StatusInventoryReserved {
		return o.transitionError("RevertReservation", StatusPending)
	}
	restored := o.PreReservedStatus
	if restored == "" {
		restored = StatusPending
	}
	return aggregate.Record(o, EventOrderReservationReverted, OrderReservationReverted{
		OrderID:        o.ID,
		RestoredStatus: restored,
		RevertedAt:     time.Now().UTC(),
	})
}

func (o *Order) MarkPaid(paymentID string) error {
	if !o.CanTransitionTo(StatusPaid) {
		return o.transitionError("MarkPaid", StatusPaid)
	}
	if paymentID == "" {
		return aggregate.Reject(o, "MarkPaid", ErrMissingPayment)
	}
	return aggregate.Record(o, EventOrderPaid, OrderPaid{
		OrderID:   o.ID,
		PaymentID: paymentID,
		Amount:    o.Total,
		PaidAt:    time.Now().UTC(),
	})
}

func (o *Order) Cancel(reason string) error {
	if !o.CanTransitionTo(StatusCancelled) {
		return o.transitionError("Cancel", StatusCancelled)
	}
	return aggregate.Record(o, EventOrderCancelled, OrderCancelled{
		OrderID:     o.ID,
		Reason:      reason,
		CancelledAt: time.Now().UTC(),
	})
}

// =============================================================================
// Event application
// =============================================================================

// ApplyEvent applies a single event to the order state (implements aggregate.Aggregate)
func (o *Order) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventOrderPlaced:
		var data OrderPlaced
		if err := event.Decode(&data); err != nil {
			return err
		}
		o.ID = data.OrderID
		o.CustomerID = data.CustomerID
		o.Items = data.Items
		o.Total = data.Total
		o.Status = StatusPending
		o.CreatedAt = data.PlacedAt
		o.UpdatedAt = data.PlacedAt
	case EventOrderInventoryReserved:
		var data OrderInventoryReserved
		if err := event.Decode(&data); err != nil {
			return err
		}
		o.PreReservedStatus = data.PreviousStatus
		o.Status = StatusInventoryReserved
		o.UpdatedAt = data.ReservedAt
	case EventOrderReservationReverted:
		var data OrderReservationReverted
		if err := event.Decode(&data); err != nil {
			return err
		}
		o.Status = data.RestoredStatus
		o.PreReservedStatus = ""
		o.UpdatedAt = data.RevertedAt
	case EventOrderPaid:
		var data OrderPaid
		if err := event.Decode(&data); err != nil {
			return err
		}
		o.PaymentID = data.PaymentID
		o.Status = StatusPaid
		o.UpdatedAt = data.PaidAt
	case EventOrderCancelled:
		var data OrderCancelled
		if err := event.Decode(&data); err != nil {
			return err
		}
		o.CancelReason = data.Reason
		o.Status = StatusCancelled
		o.UpdatedAt = data.CancelledAt
	default:
		return fmt.Errorf("%w: %s", aggregate.ErrUnknownEventType, event.EventType)
	}
	return nil
}
