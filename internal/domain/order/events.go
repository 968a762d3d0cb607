package order

import "time"

const (
	EventOrderPlaced              = "OrderPlaced"
	EventOrderInventoryReserved   = "OrderInventoryReserved"
	EventOrderReservationReverted = "OrderReservationReverted"
	EventOrderPaid                = "OrderPaid"
	EventOrderCancelled           = "OrderCancelled"
)

type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type OrderPlaced struct {
	OrderID    string      `json:"order_id"`
	CustomerID string      `json:"customer_id"`
	Items      []OrderItem `json:"items"`
	Total      int64       `json:"total"`
	PlacedAt   time.Time   `json:"placed_at"`
}

type OrderInventoryReserved struct {
	OrderID        string    `json:"order_id"`
	PreviousStatus Status    `json:"previous_status"`
	ReservedAt     time.Time `json:"reserved_at"`
}

type OrderReservationReverted struct {
	OrderID        string    `json:"order_id"`
	RestoredStatus Status    `json:"restored_status"`
	RevertedAt     time.Time `json:"reverted_at"`
}

type OrderPaid struct {
	OrderID   string    `json:"order_id"`
	PaymentID string    `json:"payment_id"`
	Amount    int64     `json:"amount"`
	PaidAt    time.Time `json:"paid_at"`
}

type OrderCancelled struct {
	OrderID     string    `json:"order_id"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}
