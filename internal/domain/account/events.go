package account

import "time"

const (
	EventAccountOpened    = "AccountOpened"
	EventMoneyDeposited   = "MoneyDeposited"
	EventMoneyWithdrawn   = "MoneyWithdrawn"
	EventTransferSent     = "TransferSent"
	EventTransferReceived = "TransferReceived"
	EventTransferReversed = "TransferReversed"
	EventTransferSettled  = "TransferSettled"
	EventAccountClosed    = "AccountClosed"
)

type AccountOpened struct {
	AccountID      string    `json:"account_id"`
	Owner          string    `json:"owner"`
	InitialBalance int64     `json:"initial_balance"`
	OpenedAt       time.Time `json:"opened_at"`
}

// MoneyDeposited and MoneyWithdrawn carry the resulting balance so read models
// need not recompute it.
type MoneyDeposited struct {
	AccountID   string    `json:"account_id"`
	Amount      int64     `json:"amount"`
	Balance     int64     `json:"balance"`
	DepositedAt time.Time `json:"deposited_at"`
}

type MoneyWithdrawn struct {
	AccountID   string    `json:"account_id"`
	Amount      int64     `json:"amount"`
	Balance     int64     `json:"balance"`
	WithdrawnAt time.Time `json:"withdrawn_at"`
}

type TransferSent struct {
	AccountID   string    `json:"account_id"`
	TransferID  string    `json:"transfer_id"`
	ToAccountID string    `json:"to_account_id"`
	Amount      int64     `json:"amount"`
	Balance     int64     `json:"balance"`
	SentAt      time.Time `json:"sent_at"`
}

type TransferReceived struct {
	AccountID     string    `json:"account_id"`
	TransferID    string    `json:"transfer_id"`
	FromAccountID string    `json:"from_account_id"`
	Amount        int64     `json:"amount"`
	Balance       int64     `json:"balance"`
	ReceivedAt    time.Time `json:"received_at"`
}

// TransferReversed credits a sent transfer back to its source account.
type TransferReversed struct {
	AccountID  string    `json:"account_id"`
	TransferID string    `json:"transfer_id"`
	Amount     int64     `json:"amount"`
	Balance    int64     `json:"balance"`
	ReversedAt time.Time `json:"reversed_at"`
}

// TransferSettled marks a sent transfer as delivered; it can no longer be
// reversed.
type TransferSettled struct {
	AccountID  string    `json:"account_id"`
	TransferID string    `json:"transfer_id"`
	SettledAt  time.Time `json:"settled_at"`
}

type AccountClosed struct {
	AccountID string    `json:"account_id"`
	Reason    string    `json:"reason"`
	ClosedAt  time.Time `json:"closed_at"`
}
