package readmodel

import "time"

// Read model collections.
const (
	CollectionAccounts        = "account_dashboards"
	CollectionClaims          = "claim_dashboards"
	CollectionOrders          = "order_dashboards"
	CollectionInventory       = "inventory"
	CollectionClaimStatistics = "claim_statistics"
)

// TimelineEntry is one projected event on a dashboard.
type TimelineEntry struct {
	Version   int       `json:"version"`
	EventType string    `json:"event_type"`
	Summary   string    `json:"summary"`
	At        time.Time `json:"at"`
}

// Tracking is embedded by every per-aggregate read model. Events are applied
// strictly in stream order, so LastProjectedVersion is also the number of
// events reflected in the document.
type Tracking struct {
	Timeline             []TimelineEntry `json:"timeline"`
	LastProjectedVersion int             `json:"last_projected_version"`
}

// Advance appends a timeline entry and moves the projected version forward.
func (t *Tracking) Advance(version int, eventType, summary string, at time.Time) {
	t.Timeline = append(t.Timeline, TimelineEntry{
		Version:   version,
		EventType: eventType,
		Summary:   summary,
		At:        at,
	})
	t.LastProjectedVersion = version
}

// AccountDashboard is the read model for bank accounts
type AccountDashboard struct {
	ID             string    `json:"id"`
	Owner          string    `json:"owner"`
	Balance        int64     `json:"balance"`
	Status         string    `json:"status"`
	TotalDeposited int64     `json:"total_deposited"`
	TotalWithdrawn int64     `json:"total_withdrawn"`
	OpenedAt       time.Time `json:"opened_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Tracking
}

// ClaimDashboard is the read model for insurance claims
type ClaimDashboard struct {
	ID               string    `json:"id"`
	PolicyID         string    `json:"policy_id"`
	Category         string    `json:"category"`
	Status           string    `json:"status"`
	Risk             string    `json:"risk,omitempty"`
	ClaimedAmount    int64     `json:"claimed_amount"`
	CoverageLimit    int64     `json:"coverage_limit"`
	AssessedAmount   int64     `json:"assessed_amount"`
	ApprovedAmount   int64     `json:"approved_amount"`
	PaidAmount       int64     `json:"paid_amount"`
	PaymentReference string    `json:"payment_reference,omitempty"`
	RejectionReason  string    `json:"rejection_reason,omitempty"`
	FiledAt          time.Time `json:"filed_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Tracking
}

// OrderItemReadModel represents an item in an order
type OrderItemReadModel struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// OrderDashboard is the read model for orders
type OrderDashboard struct {
	ID           string               `json:"id"`
	CustomerID   string               `json:"customer_id"`
	Items        []OrderItemReadModel `json:"items"`
	Total        int64                `json:"total"`
	Status       string               `json:"status"`
	PaymentID    string               `json:"payment_id,omitempty"`
	CancelReason string               `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	Tracking
}

// InventoryReadModel is the read model for inventory
type InventoryReadModel struct {
	ProductID            string `json:"product_id"`
	TotalStock           int    `json:"total_stock"`
	ReservedStock        int    `json:"reserved_stock"`
	AvailableStock       int    `json:"available_stock"`
	LastProjectedVersion int    `json:"last_projected_version"`
}

// ClaimStatistics aggregates claims per category. AppliedVersions holds the
// last version seen for each claim in the category; every claim event moves
// it forward by one, counted or not.
type ClaimStatistics struct {
	Category        string         `json:"category"`
	FiledCount      int            `json:"filed_count"`
	ApprovedCount   int            `json:"approved_count"`
	RejectedCount   int            `json:"rejected_count"`
	PaidCount       int            `json:"paid_count"`
	TotalClaimed    int64          `json:"total_claimed"`
	TotalApproved   int64          `json:"total_approved"`
	TotalPaid       int64          `json:"total_paid"`
	AppliedVersions map[string]int `json:"applied_versions"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
