package command

import "github.com/example/es-saga-course/internal/domain/order"

// Account Commands
type OpenAccount struct {
	AccountID      string `json:"account_id"` // generated when empty
	Owner          string `json:"owner"`
	InitialBalance int64  `json:"initial_balance"`
}

type Deposit struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
}

type Withdraw struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
}

type CloseAccount struct {
	AccountID string `json:"account_id"`
	Reason    string `json:"reason"`
}

type TransferMoney struct {
	TransferID    string `json:"transfer_id"` // generated when empty
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	Amount        int64  `json:"amount"`
}

// Claim Commands
type FileClaim struct {
	ClaimID  string `json:"claim_id"` // generated when empty
	PolicyID string `json:"policy_id"`
	Category string `json:"category"`
	Amount   int64  `json:"amount"`
	Coverage int64  `json:"coverage"`
}

type InvestigateClaim struct {
	ClaimID string `json:"claim_id"`
	Risk    string `json:"risk"`
}

type AssessClaim struct {
	ClaimID string `json:"claim_id"`
	Amount  int64  `json:"amount"`
}

type ApproveClaim struct {
	ClaimID string `json:"claim_id"`
}

type RejectClaim struct {
	ClaimID string `json:"claim_id"`
	Reason  string `json:"reason"`
}

type PayClaim struct {
	ClaimID   string `json:"claim_id"`
	Reference string `json:"reference"`
}

// Inventory Commands
type AddStock struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type ReserveStock struct {
	ProductID string `json:"product_id"`
	OrderID   string `json:"order_id"`
	Quantity  int    `json:"quantity"`
}

type ReleaseStock struct {
	ProductID string `json:"product_id"`
	OrderID   string `json:"order_id"`
	Quantity  int    `json:"quantity"`
}

// Order Commands
type PlaceOrder struct {
	OrderID    string            `json:"order_id"` // generated when empty
	CustomerID string            `json:"customer_id"`
	Items      []order.OrderItem `json:"items"`
}

type CancelOrder struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type Checkout struct {
	OrderID string `json:"order_id"`
}
