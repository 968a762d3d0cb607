package projection

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/es-saga-course/internal/domain/account"
	"github.com/example/es-saga-course/internal/domain/claim"
	"github.com/example/es-saga-course/internal/domain/inventory"
	"github.com/example/es-saga-course/internal/domain/order"
	"github.com/example/es-saga-course/internal/infrastructure/store"
	"github.com/example/es-saga-course/internal/infrastructure/store/mocks"
	"github.com/example/es-saga-course/internal/readmodel"
)

func newTestDispatcher(rs store.ReadStoreInterface) *Dispatcher {
	return NewDispatcher(nil, nil,
		NewAccountDashboardProjector(rs),
		NewClaimDashboardProjector(rs),
		NewOrderDashboardProjector(rs),
		NewInventoryProjector(rs),
		NewClaimStatisticsProjector(rs),
	)
}

func paidClaimEvents(t *testing.T, id, category string) []store.Event {
	t.Helper()
	c := claim.New()
	require.NoError(t, c.File(id, "pol-1", category, 200000, 500000))
	require.NoError(t, c.Investigate(claim.RiskLow))
	require.NoError(t, c.Assess(180000))
	require.NoError(t, c.Approve())
	require.NoError(t, c.Pay("PAY-001"))
	return c.Uncommitted()
}

func getDoc[T any](t *testing.T, rs store.ReadStoreInterface, collection, id string) *T {
	t.Helper()
	doc, ok, err := store.GetDocument[T](context.Background(), rs, collection, id)
	require.NoError(t, err)
	require.True(t, ok, "%s/%s not found", collection, id)
	return doc
}

// ============================================
// Claim Dashboard Tests
// ============================================

func TestClaimDashboard_FullLifecycle(t *testing.T) {
	rs := store.NewReadStore()
	d := newTestDispatcher(rs)

	require.NoError(t, d.ProjectAll(context.Background(), paidClaimEvents(t, "clm-1", "AUTO")))

	dash := getDoc[readmodel.ClaimDashboard](t, rs, readmodel.CollectionClaims, "clm-1")
	assert.Equal(t, string(claim.StatusPaid), dash.Status)
	assert.Equal(t, int64(200000), dash.ClaimedAmount)
	assert.Equal(t, int64(180000), dash.AssessedAmount)
	assert.Equal(t, int64(180000), dash.ApprovedAmount)
	assert.Equal(t, int64(180000), dash.PaidAmount)
	assert.Equal(t, "PAY-001", dash.PaymentReference)
	assert.Equal(t, "LOW", dash.Risk)
	assert.Equal(t, 5, dash.LastProjectedVersion)
	require.Len(t, dash.Timeline, 5)
	for i, entry := range dash.Timeline {
		assert.Equal(t, i+1, entry.Version)
	}
}

func TestClaimDashboard_RedeliveryIsIgnored(t *testing.T) {
	ctx := context.Background()
	rs := store.NewReadStore()
	d := newTestDispatcher(rs)
	events := paidClaimEvents(t, "clm-1", "AUTO")

	require.NoError(t, d.ProjectAll(ctx, events))
	require.NoError(t, d.ProjectAll(ctx, events))
	require.NoError(t, d.Project(ctx, events[2]))

	dash := getDoc[readmodel.ClaimDashboard](t, rs, readmodel.CollectionClaims, "clm-1")
	assert.Len(t, dash.Timeline, 5)
	assert.Equal(t, string(claim.StatusPaid), dash.Status)
}

func TestClaimDashboard_UpdateWithoutCreationFails(t *testing.T) {
	rs := store.NewReadStore()
	events := paidClaimEvents(t, "clm-1", "AUTO")

	err := NewClaimDashboardProjector(rs).Project(context.Background(), events[1])
	assert.ErrorIs(t, err, store.ErrDocumentNotFound)
	assert.ErrorIs(t, err, ErrVersionGap)
}

// ============================================
// Statistics Tests
// ============================================

func TestClaimStatistics_GroupsByCategory(t *testing.T) {
	ctx := context.Background()
	rs := store.NewReadStore()
	d := newTestDispatcher(rs)

	require.NoError(t, d.ProjectAll(ctx, paidClaimEvents(t, "clm-1", "AUTO")))
	require.NoError(t, d.ProjectAll(ctx, paidClaimEvents(t, "clm-2", "AUTO")))

	rejected := claim.New()
	require.NoError(t, rejected.File("clm-3", "pol-2", "HOME", 50000, 100000))
	require.NoError(t, rejected.Reject("not covered"))
	require.NoError(t, d.ProjectAll(ctx, rejected.Uncommitted()))

	auto := getDoc[readmodel.ClaimStatistics](t, rs, readmodel.CollectionClaimStatistics, "AUTO")
	assert.Equal(t, 2, auto.FiledCount)
	assert.Equal(t, 2, auto.ApprovedCount)
	assert.Equal(t, 2, auto.PaidCount)
	assert.Zero(t, auto.RejectedCount)
	assert.Equal(t, int64(400000), auto.TotalClaimed)
	assert.Equal(t, int64(360000), auto.TotalApproved)
	assert.Equal(t, int64(360000), auto.TotalPaid)

	home := getDoc[readmodel.ClaimStatistics](t, rs, readmodel.CollectionClaimStatistics, "HOME")
	assert.Equal(t, 1, home.FiledCount)
	assert.Equal(t, 1, home.RejectedCount)
	assert.Equal(t, int64(50000), home.TotalClaimed)
}

func TestClaimStatistics_RedeliveryDoesNotDoubleCount(t *testing.T) {
	ctx := context.Background()
	rs := store.NewReadStore()
	p := NewClaimStatisticsProjector(rs)
	events := paidClaimEvents(t, "clm-1", "AUTO")

	for _, e := range events {
		require.NoError(t, p.Project(ctx, e))
		require.NoError(t, p.Project(ctx, e))
	}

	stats := getDoc[readmodel.ClaimStatistics](t, rs, readmodel.CollectionClaimStatistics, "AUTO")
	assert.Equal(t, 1, stats.FiledCount)
	assert.Equal(t, 1, stats.PaidCount)
	assert.Equal(t, int64(180000), stats.TotalPaid)
	assert.Equal(t, 5, stats.AppliedVersions["clm-1"])
}

// ============================================
// Account and Order Dashboard Tests
// ============================================

func TestAccountDashboard_TracksBalanceAndTotals(t *testing.T) {
	rs := store.NewReadStore()
	d := newTestDispatcher(rs)

	a := account.New()
	require.NoError(t, a.Open("acc-1", "alice", 10000))
	require.NoError(t, a.Deposit(2000))
	require.NoError(t, a.Withdraw(500))
	require.NoError(t, a.TransferOut("t-1", "acc-2", 1500))
	require.NoError(t, d.ProjectAll(context.Background(), a.Uncommitted()))

	dash := getDoc[readmodel.AccountDashboard](t, rs, readmodel.CollectionAccounts, "acc-1")
	assert.Equal(t, int64(10000), dash.Balance)
	assert.Equal(t, int64(2000), dash.TotalDeposited)
	assert.Equal(t, int64(2000), dash.TotalWithdrawn)
	assert.Equal(t, "alice", dash.Owner)
	assert.Equal(t, 4, dash.LastProjectedVersion)
	assert.Len(t, dash.Timeline, 4)
}

func TestOrderDashboard_ReservationRevert(t *testing.T) {
	rs := store.NewReadStore()
	d := newTestDispatcher(rs)

	o := order.New()
	require.NoError(t, o.Place("ord-1", "cust-1", []order.OrderItem{{ProductID: "prod-1", Quantity: 2, UnitPrice: 500}}))
	require.NoError(t, o.MarkReserved())
	require.NoError(t, o.RevertReservation())
	require.NoError(t, d.ProjectAll(context.Background(), o.Uncommitted()))

	dash := getDoc[readmodel.OrderDashboard](t, rs, readmodel.CollectionOrders, "ord-1")
	assert.Equal(t, string(order.StatusPending), dash.Status)
	assert.Equal(t, int64(1000), dash.Total)
	require.Len(t, dash.Items, 1)
	assert.Equal(t, []string{order.EventOrderPlaced, order.EventOrderInventoryReserved, order.EventOrderReservationReverted},
		[]string{dash.Timeline[0].EventType, dash.Timeline[1].EventType, dash.Timeline[2].EventType})
}

func TestInventoryProjector(t *testing.T) {
	ctx := context.Background()
	rs := store.NewReadStore()
	d := newTestDispatcher(rs)

	inv := inventory.New()
	require.NoError(t, inv.AddStock("prod-1", 5))
	require.NoError(t, inv.Reserve("ord-1", 2))
	events := inv.Uncommitted()
	require.NoError(t, d.ProjectAll(ctx, events))
	require.NoError(t, d.ProjectAll(ctx, events))

	view := getDoc[readmodel.InventoryReadModel](t, rs, readmodel.CollectionInventory, "prod-1")
	assert.Equal(t, 5, view.TotalStock)
	assert.Equal(t, 2, view.ReservedStock)
	assert.Equal(t, 3, view.AvailableStock)
}

// ============================================
// Dispatcher Tests
// ============================================

func TestDispatcher_KeepsGoingAfterAFailure(t *testing.T) {
	rs := mocks.NewMockReadStore()
	rs.MutateErr = errors.New("read store down")
	d := newTestDispatcher(rs)

	events := paidClaimEvents(t, "clm-1", "AUTO")
	err := d.Project(context.Background(), events[0])

	require.Error(t, err)
	assert.ErrorContains(t, err, "claim-dashboard")
	assert.ErrorContains(t, err, "claim-statistics")
	assert.Len(t, rs.MutateCalls, 2)
}

func TestDispatcher_HandleEvent(t *testing.T) {
	rs := store.NewReadStore()
	d := newTestDispatcher(rs)
	events := paidClaimEvents(t, "clm-1", "AUTO")

	value, err := json.Marshal(events[0])
	require.NoError(t, err)
	require.NoError(t, d.HandleEvent(context.Background(), []byte("clm-1"), value))

	dash := getDoc[readmodel.ClaimDashboard](t, rs, readmodel.CollectionClaims, "clm-1")
	assert.Equal(t, string(claim.StatusFiled), dash.Status)

	assert.Error(t, d.HandleEvent(context.Background(), []byte("bad"), []byte("{")))
}

func TestRebuild_FromEventLog(t *testing.T) {
	ctx := context.Background()
	es := mocks.NewMockEventStore()
	events := paidClaimEvents(t, "clm-1", "AUTO")
	_, err := es.Append(ctx, "clm-1", 0, events)
	require.NoError(t, err)

	rs := store.NewReadStore()
	d := newTestDispatcher(rs)

	require.NoError(t, d.Project(ctx, events[0]))
	require.NoError(t, Rebuild(ctx, es, d, "clm-1"))
	require.NoError(t, Rebuild(ctx, es, d, "clm-1"))

	dash := getDoc[readmodel.ClaimDashboard](t, rs, readmodel.CollectionClaims, "clm-1")
	assert.Equal(t, string(claim.StatusPaid), dash.Status)
	assert.Len(t, dash.Timeline, 5)

	stats := getDoc[readmodel.ClaimStatistics](t, rs, readmodel.CollectionClaimStatistics, "AUTO")
	assert.Equal(t, 1, stats.FiledCount)
}

func TestProjector_RefusesEventAfterGap(t *testing.T) {
	ctx := context.Background()
	rs := store.NewReadStore()
	d := newTestDispatcher(rs)
	events := paidClaimEvents(t, "clm-1", "AUTO")

	require.NoError(t, d.ProjectAll(ctx, events[:2]))

	err := d.Project(ctx, events[3])
	require.ErrorIs(t, err, ErrVersionGap)
	assert.ErrorContains(t, err, "claim-dashboard")
	assert.ErrorContains(t, err, "claim-statistics")

	dash := getDoc[readmodel.ClaimDashboard](t, rs, readmodel.CollectionClaims, "clm-1")
	assert.Equal(t, 2, dash.LastProjectedVersion)
	assert.Zero(t, dash.ApprovedAmount)

	stats := getDoc[readmodel.ClaimStatistics](t, rs, readmodel.CollectionClaimStatistics, "AUTO")
	assert.Equal(t, 2, stats.AppliedVersions["clm-1"])
	assert.Zero(t, stats.ApprovedCount)
}

func TestRebuild_RecoversMissedEvent(t *testing.T) {
	ctx := context.Background()
	es := mocks.NewMockEventStore()
	events := paidClaimEvents(t, "clm-1", "AUTO")
	_, err := es.Append(ctx, "clm-1", 0, events)
	require.NoError(t, err)

	rs := mocks.NewMockReadStore()
	d := newTestDispatcher(rs)

	require.NoError(t, d.ProjectAll(ctx, events[:3]))

	rs.MutateErr = errors.New("read store down")
	require.Error(t, d.Project(ctx, events[3]))
	rs.MutateErr = nil

	require.ErrorIs(t, d.Project(ctx, events[4]), ErrVersionGap)

	require.NoError(t, Rebuild(ctx, es, d, "clm-1"))

	dash := getDoc[readmodel.ClaimDashboard](t, rs, readmodel.CollectionClaims, "clm-1")
	assert.Equal(t, string(claim.StatusPaid), dash.Status)
	assert.Equal(t, int64(180000), dash.ApprovedAmount)
	assert.Equal(t, 5, dash.LastProjectedVersion)
	require.Len(t, dash.Timeline, 5)
	for i, entry := range dash.Timeline {
		assert.Equal(t, i+1, entry.Version)
	}

	stats := getDoc[readmodel.ClaimStatistics](t, rs, readmodel.CollectionClaimStatistics, "AUTO")
	assert.Equal(t, 1, stats.FiledCount)
	assert.Equal(t, 1, stats.ApprovedCount)
	assert.Equal(t, int64(180000), stats.TotalApproved)
	assert.Equal(t, 1, stats.PaidCount)
	assert.Equal(t, 5, stats.AppliedVersions["clm-1"])
}

func TestInventoryProjector_RefusesGap(t *testing.T) {
	ctx := context.Background()
	rs := store.NewReadStore()
	p := NewInventoryProjector(rs)

	inv := inventory.New()
	require.NoError(t, inv.AddStock("prod-1", 5))
	require.NoError(t, inv.Reserve("ord-1", 2))
	require.NoError(t, inv.Release("ord-1", 2))
	events := inv.Uncommitted()

	require.NoError(t, p.Project(ctx, events[0]))
	require.ErrorIs(t, p.Project(ctx, events[2]), ErrVersionGap)
	require.NoError(t, p.Project(ctx, events[1]))
	require.NoError(t, p.Project(ctx, events[2]))

	view := getDoc[readmodel.InventoryReadModel](t, rs, readmodel.CollectionInventory, "prod-1")
	assert.Equal(t, 5, view.AvailableStock)
	assert.Equal(t, 3, view.LastProjectedVersion)
}

func TestRebuildTypes_ProjectsEveryStream(t *testing.T) {
	ctx := context.Background()
	es := store.NewEventStore(nil, nil)
	for _, id := range []string{"clm-1", "clm-2"} {
		_, err := es.Append(ctx, id, 0, paidClaimEvents(t, id, "AUTO"))
		require.NoError(t, err)
	}
	a := account.New()
	require.NoError(t, a.Open("acc-1", "alice", 500))
	_, err := es.Append(ctx, "acc-1", 0, a.Uncommitted())
	require.NoError(t, err)

	rs := store.NewReadStore()
	d := newTestDispatcher(rs)

	require.NoError(t, RebuildTypes(ctx, es, d, claim.AggregateType))

	stats := getDoc[readmodel.ClaimStatistics](t, rs, readmodel.CollectionClaimStatistics, "AUTO")
	assert.Equal(t, 2, stats.PaidCount)
	assert.Equal(t, int64(360000), stats.TotalPaid)

	_, ok, err := store.GetDocument[readmodel.AccountDashboard](ctx, rs, readmodel.CollectionAccounts, "acc-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRebuildTypes_ReportsLoadFailure(t *testing.T) {
	es := mocks.NewMockEventStore()
	es.LoadErr = errors.New("connection reset")

	err := RebuildTypes(context.Background(), es, newTestDispatcher(store.NewReadStore()), claim.AggregateType)
	assert.ErrorContains(t, err, "connection reset")
}
