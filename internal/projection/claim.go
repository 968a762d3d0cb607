package projection

import (
	"context"
	"fmt"

	"github.com/example/es-saga-course/internal/domain/claim"
	"github.com/example/es-saga-course/internal/infrastructure/store"
	"github.com/example/es-saga-course/internal/readmodel"
)

type ClaimDashboardProjector struct {
	readStore store.ReadStoreInterface
}

func NewClaimDashboardProjector(readStore store.ReadStoreInterface) *ClaimDashboardProjector {
	return &ClaimDashboardProjector{readStore: readStore}
}

func (p *ClaimDashboardProjector) Name() string { return "claim-dashboard" }

func (p *ClaimDashboardProjector) Project(ctx context.Context, event store.Event) error {
	if event.AggregateType != claim.AggregateType {
		return nil
	}

	if event.EventType == claim.EventClaimFiled {
		var e claim.ClaimFiled
		if err := event.Decode(&e); err != nil {
			return err
		}
		doc := &readmodel.ClaimDashboard{
			ID:            e.ClaimID,
			PolicyID:      e.PolicyID,
			Category:      e.Category,
			Status:        string(claim.StatusFiled),
			ClaimedAmount: e.ClaimedAmount,
			CoverageLimit: e.CoverageLimit,
			FiledAt:       e.FiledAt,
			UpdatedAt:     e.FiledAt,
		}
		doc.Advance(event.Version, event.EventType, fmt.Sprintf("filed for %d", e.ClaimedAmount), e.FiledAt)
		return insertOnce(ctx, p.readStore, readmodel.CollectionClaims, e.ClaimID, doc)
	}

	return updateDashboard(ctx, p.readStore, readmodel.CollectionClaims, event, func(d *readmodel.ClaimDashboard) error {
		if err := checkVersion(event.AggregateID, d.LastProjectedVersion, event.Version); err != nil {
			return err
		}
		summary, err := applyClaimEvent(d, event)
		if err != nil {
			return err
		}
		d.UpdatedAt = event.Timestamp
		d.Advance(event.Version, event.EventType, summary, event.Timestamp)
		return nil
	})
}

func applyClaimEvent(d *readmodel.ClaimDashboard, event store.Event) (string, error) {
	switch event.EventType {
	case claim.EventClaimInvestigationStarted:
		var e claim.ClaimInvestigationStarted
		if err := event.Decode(&e); err != nil {
			return "", err
		}
		d.Risk = string(e.Risk)
		d.Status = string(claim.StatusUnderInvestigation)
		return "investigation started, risk " + string(e.Risk), nil
	case claim.EventClaimAssessed:
		var e claim.ClaimAssessed
		if err := event.Decode(&e); err != nil {
			return "", err
		}
		d.AssessedAmount = e.AssessedAmount
		d.Status = string(claim.StatusAssessed)
		return fmt.Sprintf("assessed at %d", e.AssessedAmount), nil
	case claim.EventClaimApproved:
		var e claim.ClaimApproved
		if err := event.Decode(&e); err != nil {
			return "", err
		}
		d.ApprovedAmount = e.ApprovedAmount
		d.Status = string(claim.StatusApproved)
		return fmt.Sprintf("approved for %d", e.ApprovedAmount), nil
	case claim.EventClaimRejected:
		var e claim.ClaimRejected
		if err := event.Decode(&e); err != nil {
			return "", err
		}
		d.RejectionReason = e.Reason
		d.Status = string(claim.StatusRejected)
		return "rejected: " + e.Reason, nil
	case claim.EventClaimPaid:
		var e claim.ClaimPaid
		if err := event.Decode(&e); err != nil {
			return "", err
		}
		d.PaidAmount = e.Amount
		d.PaymentReference = e.Reference
		d.Status = string(claim.StatusPaid)
		return fmt.Sprintf("paid %d (%s)", e.Amount, e.Reference), nil
	}
	return event.EventType, nil
}
