package account

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/es-saga-course/internal/domain/aggregate"
	"github.com/example/es-saga-course/internal/infrastructure/store"
)

const AggregateType = "Account"

type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusClosed Status = "CLOSED"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountClosed     = errors.New("account is closed")
	ErrAlreadyOpened     = errors.New("account already opened")
	ErrMissingOwner      = errors.New("owner is required")
	ErrNonZeroBalance    = errors.New("account balance must be zero to close")
	ErrSameAccount       = errors.New("cannot transfer to the same account")
	ErrUnknownTransfer   = errors.New("transfer was not sent from this account")
)

// Account is a bank account. Balance never goes below zero.
type Account struct {
	aggregate.Base
	ID        string           `json:"id"`
	Owner     string           `json:"owner"`
	Balance   int64            `json:"balance"`
	Status    Status           `json:"status"`
	Transfers map[string]int64 `json:"transfers"` // sent transfer id -> amount, until reversed or settled
	OpenedAt  time.Time        `json:"opened_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func New() *Account { return &Account{} }

func (a *Account) GetID() string         { return a.ID }
func (a *Account) AggregateType() string { return AggregateType }

// =============================================================================
// Commands
// =============================================================================

func (a *Account) Open(id, owner string, initialBalance int64) error {
	if a.Version > 0 {
		return aggregate.Reject(a, "Open", ErrAlreadyOpened)
	}
	if owner == "" {
		return aggregate.Reject(a, "Open", ErrMissingOwner)
	}
	if initialBalance < 0 {
		return aggregate.Reject(a, "Open", fmt.Errorf("%w: initial balance %d", ErrInvalidAmount, initialBalance))
	}
	return aggregate.RecordNew(a, id, EventAccountOpened, AccountOpened{
		AccountID:      id,
		Owner:          owner,
		InitialBalance: initialBalance,
		OpenedAt:       time.Now().UTC(),
	})
}

func (a *Account) Deposit(amount int64) error {
	if err := a.checkActive(amount); err != nil {
		return aggregate.Reject(a, "Deposit", err)
	}
	return aggregate.Record(a, EventMoneyDeposited, MoneyDeposited{
		AccountID:   a.ID,
		Amount:      amount,
		Balance:     a.Balance + amount,
		DepositedAt: time.Now().UTC(),
	})
}

func (a *Account) Withdraw(amount int64) error {
	if err := a.checkDebit(amount); err != nil {
		return aggregate.Reject(a, "Withdraw", err)
	}
	return aggregate.Record(a, EventMoneyWithdrawn, MoneyWithdrawn{
		AccountID:   a.ID,
		Amount:      amount,
		Balance:     a.Balance - amount,
		WithdrawnAt: time.Now().UTC(),
	})
}

// TransferOut debits the source side of a transfer.
func (a *Account) TransferOut(transferID, toAccountID string, amount int64) error {
	if toAccountID == a.ID {
		return aggregate.Reject(a, "TransferOut", ErrSameAccount)
	}
	if err := a.checkDebit(amount); err != nil {
		return aggregate.Reject(a, "TransferOut", err)
	}
	return aggregate.Record(a, EventTransferSent, TransferSent{
		AccountID:   a.ID,
		TransferID:  transferID,
		ToAccountID: toAccountID,
		Amount:      amount,
		Balance:     a.Balance - amount,
		SentAt:      time.Now().UTC(),
	})
}

// TransferIn credits the target side of a transfer.
func (a *Account) TransferIn(transferID, fromAccountID string, amount int64) error {
	if fromAccountID == a.ID {
		return aggregate.Reject(a, "TransferIn", ErrSameAccount)
	}
	if err := a.checkActive(amount); err != nil {
		return aggregate.Reject(a, "TransferIn", err)
	}
	return aggregate.Record(a, EventTransferReceived, TransferReceived{
		AccountID:     a.ID,
		TransferID:    transferID,
		FromAccountID: fromAccountID,
		Amount:        amount,
		Balance:       a.Balance + amount,
		ReceivedAt:    time.Now().UTC(),
	})
}

// ReverseTransfer credits back a transfer this account sent. A transfer can be
// reversed once.
func (a *Account) ReverseTransfer(transferID string) error {
	amount, ok := a.Transfers[transferID]
	if !ok {
		return aggregate.Reject(a, "ReverseTransfer", fmt.Errorf("%w: %s", ErrUnknownTransfer, transferID))
	}
	if err := a.checkActive(amount); err != nil {
		return aggregate.Reject(a, "ReverseTransfer", err)
	}
	return aggregate.Record(a, EventTransferReversed, TransferReversed{
		AccountID:  a.ID,
		TransferID: transferID,
		Amount:     amount,
		Balance:    a.Balance + amount,
		ReversedAt: time.Now().UTC(),
	})
}

// SettleTransfer drops a delivered transfer from the reversible set.
func (a *Account) SettleTransfer(transferID string) error {
	if _, ok := a.Transfers[transferID]; !ok {
		return aggregate.Reject(a, "SettleTransfer", fmt.Errorf("%w: %s", ErrUnknownTransfer, transferID))
	}
	return aggregate.Record(a, EventTransferSettled, TransferSettled{
		AccountID:  a.ID,
		TransferID: transferID,
		SettledAt:  time.Now().UTC(),
	})
}

func (a *Account) Close(reason string) error {
	if a.Status == StatusClosed {
		return aggregate.Reject(a, "Close", ErrAccountClosed)
	}
	if a.Balance != 0 {
		return aggregate.Reject(a, "Close", fmt.Errorf("%w: balance %d", ErrNonZeroBalance, a.Balance))
	}
	return aggregate.Record(a, EventAccountClosed, AccountClosed{
		AccountID: a.ID,
		Reason:    reason,
		ClosedAt:  time.Now().UTC(),
	})
}

func (a *Account) checkActive(amount int64) error {
	if a.Status == StatusClosed {
		return ErrAccountClosed
	}
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	return nil
}

func (a *Account) checkDebit(amount int64) error {
	if err := a.checkActive(amount); err != nil {
		return err
	}
	if amount > a.Balance {
		return fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientFunds, a.Balance, amount)
	}
	return nil
}

// =============================================================================
// Event application
// =============================================================================

// ApplyEvent applies a single event to the account state (implements aggregate.Aggregate)
func (a *Account) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventAccountOpened:
		var data AccountOpened
		if err := event.Decode(&data); err != nil {
			return err
		}
		a.ID = data.AccountID
		a.Owner = data.Owner
		a.Balance = data.InitialBalance
		a.Status = StatusActive
		a.Transfers = make(map[string]int64)
		a.OpenedAt = data.OpenedAt
		a.UpdatedAt = data.OpenedAt
	case EventMoneyDeposited:
		var data MoneyDeposited
		if err := event.Decode(&data); err != nil {
			return err
		}
		a.Balance += data.Amount
		a.UpdatedAt = data.DepositedAt
	case EventMoneyWithdrawn:
		var data MoneyWithdrawn
		if err := event.Decode(&data); err != nil {
			return err
		}
		a.Balance -= data.Amount
		a.UpdatedAt = data.WithdrawnAt
	case EventTransferSent:
		var data TransferSent
		if err := event.Decode(&data); err != nil {
			return err
		}
		a.Balance -= data.Amount
		if a.Transfers == nil {
			a.Transfers = make(map[string]int64)
		}
		a.Transfers[data.TransferID] = data.Amount
		a.UpdatedAt = data.SentAt
	case EventTransferReceived:
		var data TransferReceived
		if err := event.Decode(&data); err != nil {
			return err
		}
		a.Balance += data.Amount
		a.UpdatedAt = data.ReceivedAt
	case EventTransferReversed:
		var data TransferReversed
		if err := event.Decode(&data); err != nil {
			return err
		}
		a.Balance += data.Amount
		delete(a.Transfers, data.TransferID)
		a.UpdatedAt = data.ReversedAt
	case EventTransferSettled:
		var data TransferSettled
		if err := event.Decode(&data); err != nil {
			return err
		}
		delete(a.Transfers, data.TransferID)
		a.UpdatedAt = data.SettledAt
	case EventAccountClosed:
		var data AccountClosed
		if err := event.Decode(&data); err != nil {
			return err
		}
		a.Status = StatusClosed
		a.UpdatedAt = data.ClosedAt
	default:
		return fmt.Errorf("%w: %s", aggregate.ErrUnknownEventType, event.EventType)
	}
	return nil
}
