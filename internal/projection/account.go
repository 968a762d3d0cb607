package projection

import (
	"context"
	"fmt"

	"github.com/example/es-saga-course/internal/domain/account"
	"github.com/example/es-saga-course/internal/infrastructure/store"
	"github.com/example/es-saga-course/internal/readmodel"
)

type AccountDashboardProjector struct {
	readStore store.ReadStoreInterface
}

func NewAccountDashboardProjector(readStore store.ReadStoreInterface) *AccountDashboardProjector {
	return &AccountDashboardProjector{readStore: readStore}
}

func (p *AccountDashboardProjector) Name() string { return "account-dashboard" }

func (p *AccountDashboardProjector) Project(ctx context.Context, event store.Event) error {
	if event.AggregateType != account.AggregateType {
		return nil
	}

	if event.EventType == account.EventAccountOpened {
		var e account.AccountOpened
		if err := event.Decode(&e); err != nil {
			return err
		}
		doc := &readmodel.AccountDashboard{
			ID:        e.AccountID,
			Owner:     e.Owner,
			Balance:   e.InitialBalance,
			Status:    string(account.StatusActive),
			OpenedAt:  e.OpenedAt,
			UpdatedAt: e.OpenedAt,
		}
		doc.Advance(event.Version, event.EventType, fmt.Sprintf("opened with %d", e.InitialBalance), e.OpenedAt)
		return insertOnce(ctx, p.readStore, readmodel.CollectionAccounts, e.AccountID, doc)
	}

	return updateDashboard(ctx, p.readStore, readmodel.CollectionAccounts, event, func(d *readmodel.AccountDashboard) error {
		if err := checkVersion(event.AggregateID, d.LastProjectedVersion, event.Version); err != nil {
			return err
		}
		summary, err := applyAccountEvent(d, event)
		if err != nil {
			return err
		}
		d.UpdatedAt = event.Timestamp
		d.Advance(event.Version, event.EventType, summary, event.Timestamp)
		return nil
	})
}

func applyAccountEvent(d *readmodel.AccountDashboard, event store.Event) (string, error) {
	switch event.EventType {
	case account.EventMoneyDeposited:
		var e account.MoneyDeposited
		if err := event.Decode(&e); err != nil {
			return "", err
		}
		d.Balance = e.Balance
		d.TotalDeposited += e.Amount
		return fmt.Sprintf("deposited %d", e.Amount), nil
	case account.EventMoneyWithdrawn:
		var e account.MoneyWithdrawn
		if err := event.Decode(&e); err != nil {
			return "", err
		}
		d.Balance = e.Balance
		d.TotalWithdrawn += e.Amount
		return fmt.Sprintf("withdrew %d", e.Amount), nil
	case account.EventTransferSent:
		var e account.TransferSent
		if err := event.Decode(&e); err != nil {
			return "", err
		}
		d.Balance = e.Balance
		d.TotalWithdrawn += e.Amount
		return fmt.Sprintf("sent %d to %s", e.Amount, e.ToAccountID), nil
	case account.EventTransferReceived:
		var e account.TransferReceived
		if err := event.Decode(&e); err != nil {
			return "", err
		}
		d.Balance = e.Balance
		d.TotalDeposited += e.Amount
		return fmt.Sprintf("received %d from %s", e.Amount, e.FromAccountID), nil
	case account.EventTransferReversed:
		var e account.TransferReversed
		if err := event.Decode(&e); err != nil {
			return "", err
		}
		d.Balance = e.Balance
		d.TotalWithdrawn -= e.Amount
		return fmt.Sprintf("transfer %s reversed", e.TransferID), nil
	case account.EventTransferSettled:
		var e account.TransferSettled
		if err := event.Decode(&e); err != nil {
			return "", err
		}
		return fmt.Sprintf("transfer %s settled", e.TransferID), nil
	case account.EventAccountClosed:
		var e account.AccountClosed
		if err := event.Decode(&e); err != nil {
			return "", err
		}
		d.Status = string(account.StatusClosed)
		return "closed: " + e.Reason, nil
	}
	return event.EventType, nil
}
