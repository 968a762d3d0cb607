package projection

import (
	"context"

	"github.com/example/es-saga-course/internal/domain/claim"
	"github.com/example/es-saga-course/internal/infrastructure/store"
	"github.com/example/es-saga-course/internal/readmodel"
)

// ClaimStatisticsProjector maintains per-category counters and sums. Every claim
// event passes through it, including the ones that change no counter, so the
// per-claim cursor in AppliedVersions stays contiguous.
type ClaimStatisticsProjector struct {
	readStore store.ReadStoreInterface
}

func NewClaimStatisticsProjector(readStore store.ReadStoreInterface) *ClaimStatisticsProjector {
	return &ClaimStatisticsProjector{readStore: readStore}
}

func (p *ClaimStatisticsProjector) Name() string { return "claim-statistics" }

func (p *ClaimStatisticsProjector) Project(ctx context.Context, event store.Event) error {
	if event.AggregateType != claim.AggregateType {
		return nil
	}

	var (
		category string
		apply    func(s *readmodel.ClaimStatistics)
	)
	switch event.EventType {
	case claim.EventClaimFiled:
		var e claim.ClaimFiled
		if err := event.Decode(&e); err != nil {
			return err
		}
		category = e.Category
		apply = func(s *readmodel.ClaimStatistics) {
			s.FiledCount++
			s.TotalClaimed += e.ClaimedAmount
		}
	case claim.EventClaimInvestigationStarted:
		var e claim.ClaimInvestigationStarted
		if err := event.Decode(&e); err != nil {
			return err
		}
		category = e.Category
		apply = func(*readmodel.ClaimStatistics) {}
	case claim.EventClaimAssessed:
		var e claim.ClaimAssessed
		if err := event.Decode(&e); err != nil {
			return err
		}
		category = e.Category
		apply = func(*readmodel.ClaimStatistics) {}
	case claim.EventClaimApproved:
		var e claim.ClaimApproved
		if err := event.Decode(&e); err != nil {
			return err
		}
		category = e.Category
		apply = func(s *readmodel.ClaimStatistics) {
			s.ApprovedCount++
			s.TotalApproved += e.ApprovedAmount
		}
	case claim.EventClaimRejected:
		var e claim.ClaimRejected
		if err := event.Decode(&e); err != nil {
			return err
		}
		category = e.Category
		apply = func(s *readmodel.ClaimStatistics) { s.RejectedCount++ }
	case claim.EventClaimPaid:
		var e claim.ClaimPaid
		if err := event.Decode(&e); err != nil {
			return err
		}
		category = e.Category
		apply = func(s *readmodel.ClaimStatistics) {
			s.PaidCount++
			s.TotalPaid += e.Amount
		}
	default:
		return nil
	}

	newDoc := func() *readmodel.ClaimStatistics {
		return &readmodel.ClaimStatistics{Category: category, AppliedVersions: map[string]int{}}
	}
	return store.UpsertDocument(ctx, p.readStore, readmodel.CollectionClaimStatistics, category, newDoc, func(s *readmodel.ClaimStatistics) error {
		if s.AppliedVersions == nil {
			s.AppliedVersions = map[string]int{}
		}
		if err := checkVersion(event.AggregateID, s.AppliedVersions[event.AggregateID], event.Version); err != nil {
			return err
		}
		apply(s)
		s.AppliedVersions[event.AggregateID] = event.Version
		s.UpdatedAt = event.Timestamp
		return nil
	})
}
