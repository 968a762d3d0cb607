package command

import (
	"context"

	"github.com/google/uuid"

	"github.com/example/es-saga-course/internal/domain/account"
	"github.com/example/es-saga-course/internal/domain/aggregate"
)

func (h *Handler) OpenAccount(ctx context.Context, cmd OpenAccount) (*account.Account, error) {
	id := cmd.AccountID
	if id == "" {
		id = "acc-" + uuid.New().String()
	}
	return execute(ctx, h, "OpenAccount", id, mustCreate, account.New, func(a *account.Account) error {
		return a.Open(id, cmd.Owner, cmd.InitialBalance)
	})
}

func (h *Handler) Deposit(ctx context.Context, cmd Deposit) (*account.Account, error) {
	return execute(ctx, h, "Deposit", cmd.AccountID, mustExist, account.New, func(a *account.Account) error {
		return a.Deposit(cmd.Amount)
	})
}

func (h *Handler) Withdraw(ctx context.Context, cmd Withdraw) (*account.Account, error) {
	return execute(ctx, h, "Withdraw", cmd.AccountID, mustExist, account.New, func(a *account.Account) error {
		return a.Withdraw(cmd.Amount)
	})
}

func (h *Handler) CloseAccount(ctx context.Context, cmd CloseAccount) (*account.Account, error) {
	return execute(ctx, h, "CloseAccount", cmd.AccountID, mustExist, account.New, func(a *account.Account) error {
		return a.Close(cmd.Reason)
	})
}

// LoadAccount rebuilds the current account state from the event store.
func (h *Handler) LoadAccount(ctx context.Context, accountID string) (*account.Account, error) {
	return aggregate.Load(ctx, h.eventStore, accountID, account.New, h.log)
}

func (h *Handler) transferOut(ctx context.Context, cmd TransferMoney) error {
	_, err := execute(ctx, h, "TransferOut", cmd.FromAccountID, mustExist, account.New, func(a *account.Account) error {
		return a.TransferOut(cmd.TransferID, cmd.ToAccountID, cmd.Amount)
	})
	return err
}

func (h *Handler) transferIn(ctx context.Context, cmd TransferMoney) error {
	_, err := execute(ctx, h, "TransferIn", cmd.ToAccountID, mustExist, account.New, func(a *account.Account) error {
		return a.TransferIn(cmd.TransferID, cmd.FromAccountID, cmd.Amount)
	})
	return err
}

func (h *Handler) settleTransfer(ctx context.Context, cmd TransferMoney) error {
	_, err := execute(ctx, h, "SettleTransfer", cmd.FromAccountID, mustExist, account.New, func(a *account.Account) error {
		return a.SettleTransfer(cmd.TransferID)
	})
	return err
}

func (h *Handler) reverseTransfer(ctx context.Context, cmd TransferMoney) error {
	_, err := execute(ctx, h, "ReverseTransfer", cmd.FromAccountID, mustExist, account.New, func(a *account.Account) error {
		return a.ReverseTransfer(cmd.TransferID)
	})
	return err
}
