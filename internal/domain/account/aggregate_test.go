package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/es-saga-course/internal/domain/aggregate"
)

func openAccount(t *testing.T, balance int64) *Account {
	t.Helper()
	a := New()
	require.NoError(t, a.Open("acc-1", "alice", balance))
	return a
}

// ============================================
// Command Tests
// ============================================

func TestAccount_Open(t *testing.T) {
	a := openAccount(t, 10000)

	assert.Equal(t, "acc-1", a.ID)
	assert.Equal(t, "alice", a.Owner)
	assert.Equal(t, int64(10000), a.Balance)
	assert.Equal(t, StatusActive, a.Status)
	assert.Equal(t, 1, a.GetVersion())

	events := a.Uncommitted()
	require.Len(t, events, 1)
	assert.Equal(t, EventAccountOpened, events[0].EventType)
	assert.Equal(t, AggregateType, events[0].AggregateType)
}

func TestAccount_DepositsAndWithdrawals(t *testing.T) {
	a := openAccount(t, 10000)
	for i := 0; i < 4; i++ {
		require.NoError(t, a.Deposit(1000))
	}
	assert.Equal(t, int64(14000), a.Balance)
	assert.Equal(t, 5, a.GetVersion())

	require.NoError(t, a.Withdraw(4000))
	assert.Equal(t, int64(10000), a.Balance)

	var withdrawn MoneyWithdrawn
	events := a.Uncommitted()
	require.NoError(t, events[len(events)-1].Decode(&withdrawn))
	assert.Equal(t, int64(10000), withdrawn.Balance)
}

func TestAccount_RejectedCommands(t *testing.T) {
	tests := []struct {
		name    string
		run     func(a *Account) error
		wantErr error
	}{
		{"overdraw", func(a *Account) error { return a.Withdraw(101) }, ErrInsufficientFunds},
		{"zero deposit", func(a *Account) error { return a.Deposit(0) }, ErrInvalidAmount},
		{"negative withdraw", func(a *Account) error { return a.Withdraw(-1) }, ErrInvalidAmount},
		{"reopen", func(a *Account) error { return a.Open("acc-1", "bob", 0) }, ErrAlreadyOpened},
		{"transfer to self", func(a *Account) error { return a.TransferOut("t-1", "acc-1", 10) }, ErrSameAccount},
		{"transfer too much", func(a *Account) error { return a.TransferOut("t-1", "acc-2", 500) }, ErrInsufficientFunds},
		{"reverse unknown", func(a *Account) error { return a.ReverseTransfer("t-404") }, ErrUnknownTransfer},
		{"close with balance", func(a *Account) error { return a.Close("done") }, ErrNonZeroBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := openAccount(t, 100)
			a.ClearUncommitted()

			err := tt.run(a)

			var dse *aggregate.DomainStateError
			require.ErrorAs(t, err, &dse)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, int64(100), a.Balance)
			assert.Equal(t, 1, a.GetVersion())
			assert.Empty(t, a.Uncommitted())
		})
	}
}

func TestAccount_OpenValidation(t *testing.T) {
	assert.ErrorIs(t, New().Open("acc-1", "", 0), ErrMissingOwner)
	assert.ErrorIs(t, New().Open("acc-1", "alice", -1), ErrInvalidAmount)
}

func TestAccount_ClosedAccountRejectsEverything(t *testing.T) {
	a := openAccount(t, 0)
	require.NoError(t, a.Close("customer request"))
	assert.Equal(t, StatusClosed, a.Status)

	assert.ErrorIs(t, a.Deposit(10), ErrAccountClosed)
	assert.ErrorIs(t, a.TransferIn("t-1", "acc-2", 10), ErrAccountClosed)
	assert.ErrorIs(t, a.Close("again"), ErrAccountClosed)
}

func TestAccount_TransferAndReverse(t *testing.T) {
	a := openAccount(t, 500)
	require.NoError(t, a.TransferOut("t-1", "acc-2", 200))
	assert.Equal(t, int64(300), a.Balance)
	assert.Equal(t, int64(200), a.Transfers["t-1"])

	require.NoError(t, a.ReverseTransfer("t-1"))
	assert.Equal(t, int64(500), a.Balance)
	assert.NotContains(t, a.Transfers, "t-1")

	assert.ErrorIs(t, a.ReverseTransfer("t-1"), ErrUnknownTransfer, "a transfer reverses once")

	b := New()
	require.NoError(t, b.Open("acc-2", "bob", 0))
	require.NoError(t, b.TransferIn("t-1", "acc-1", 200))
	assert.Equal(t, int64(200), b.Balance)
}

func TestAccount_SettledTransferCannotBeReversed(t *testing.T) {
	a := openAccount(t, 500)
	require.NoError(t, a.TransferOut("t-1", "acc-2", 200))
	require.NoError(t, a.SettleTransfer("t-1"))

	assert.Empty(t, a.Transfers)
	assert.Equal(t, int64(300), a.Balance)
	assert.ErrorIs(t, a.ReverseTransfer("t-1"), ErrUnknownTransfer)
	assert.ErrorIs(t, a.SettleTransfer("t-1"), ErrUnknownTransfer)

	replayed, err := aggregate.ReplayFrom(a.Uncommitted(), New)
	require.NoError(t, err)
	assert.Empty(t, replayed.Transfers)
}

// ============================================
// Replay Tests
// ============================================

func TestAccount_ReplayMatchesLiveState(t *testing.T) {
	a := openAccount(t, 10000)
	require.NoError(t, a.Deposit(1000))
	require.NoError(t, a.Withdraw(500))
	require.NoError(t, a.TransferOut("t-1", "acc-2", 2500))
	require.NoError(t, a.TransferIn("t-2", "acc-3", 700))
	require.NoError(t, a.ReverseTransfer("t-1"))

	replayed, err := aggregate.ReplayFrom(a.Uncommitted(), New)
	require.NoError(t, err)

	assert.Equal(t, a.Balance, replayed.Balance)
	assert.Equal(t, a.GetVersion(), replayed.GetVersion())
	assert.Equal(t, a.Transfers, replayed.Transfers)
	assert.Equal(t, a.UpdatedAt, replayed.UpdatedAt)
	assert.Equal(t, int64(10700), replayed.Balance)
}
