package command

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/example/es-saga-course/internal/saga"
)

const (
	SagaTransfer = "transfer"

	StepWithdrawSource = "withdraw-source"
	StepDepositTarget  = "deposit-target"
)

// TransferMoney moves funds between two accounts. Each account is its own
// stream, so the move runs as a saga: if the deposit fails the withdrawal is
// reversed.
func (h *Handler) TransferMoney(ctx context.Context, cmd TransferMoney) (*saga.Log, error) {
	if h.sagas == nil {
		return nil, ErrNoSagaOrchestrator
	}
	if cmd.TransferID == "" {
		cmd.TransferID = "trf-" + uuid.New().String()
	}

	steps := []saga.Step{
		saga.NewStep(StepWithdrawSource,
			func(ctx context.Context, _ *saga.Context) error { return h.transferOut(ctx, cmd) },
			func(ctx context.Context, _ *saga.Context) error { return h.reverseTransfer(ctx, cmd) },
		),
		saga.NewStep(StepDepositTarget,
			func(ctx context.Context, _ *saga.Context) error { return h.transferIn(ctx, cmd) },
			nil,
		),
	}
	sagaLog, err := h.sagas.Run(ctx, SagaTransfer, steps, map[string]any{
		"transfer_id":     cmd.TransferID,
		"from_account_id": cmd.FromAccountID,
		"to_account_id":   cmd.ToAccountID,
		"amount":          cmd.Amount,
	})
	if err != nil || sagaLog.Status != saga.StatusCompleted {
		return sagaLog, err
	}

	// The transfer can no longer be compensated, so the source account stops
	// tracking it. A failure here only leaves the entry behind.
	if err := h.settleTransfer(context.WithoutCancel(ctx), cmd); err != nil {
		h.log.Warn("failed to settle transfer",
			slog.String("transfer_id", cmd.TransferID),
			slog.String("account_id", cmd.FromAccountID),
			slog.Any("error", err),
		)
	}
	return sagaLog, nil
}
