package command

import (
	"context"

	"github.com/google/uuid"

	"github.com/example/es-saga-course/internal/domain/aggregate"
	"github.com/example/es-saga-course/internal/domain/claim"
)

func (h *Handler) FileClaim(ctx context.Context, cmd FileClaim) (*claim.Claim, error) {
	id := cmd.ClaimID
	if id == "" {
		id = "clm-" + uuid.New().String()
	}
	return execute(ctx, h, "FileClaim", id, mustCreate, claim.New, func(c *claim.Claim) error {
		return c.File(id, cmd.PolicyID, cmd.Category, cmd.Amount, cmd.Coverage)
	})
}

func (h *Handler) InvestigateClaim(ctx context.Context, cmd InvestigateClaim) (*claim.Claim, error) {
	return execute(ctx, h, "InvestigateClaim", cmd.ClaimID, mustExist, claim.New, func(c *claim.Claim) error {
		return c.Investigate(claim.Risk(cmd.Risk))
	})
}

func (h *Handler) AssessClaim(ctx context.Context, cmd AssessClaim) (*claim.Claim, error) {
	return execute(ctx, h, "AssessClaim", cmd.ClaimID, mustExist, claim.New, func(c *claim.Claim) error {
		return c.Assess(cmd.Amount)
	})
}

func (h *Handler) ApproveClaim(ctx context.Context, cmd ApproveClaim) (*claim.Claim, error) {
	return execute(ctx, h, "ApproveClaim", cmd.ClaimID, mustExist, claim.New, func(c *claim.Claim) error {
		return c.Approve()
	})
}

func (h *Handler) RejectClaim(ctx context.Context, cmd RejectClaim) (*claim.Claim, error) {
	return execute(ctx, h, "RejectClaim", cmd.ClaimID, mustExist, claim.New, func(c *claim.Claim) error {
		return c.Reject(cmd.Reason)
	})
}

func (h *Handler) PayClaim(ctx context.Context, cmd PayClaim) (*claim.Claim, error) {
	return execute(ctx, h, "PayClaim", cmd.ClaimID, mustExist, claim.New, func(c *claim.Claim) error {
		return c.Pay(cmd.Reference)
	})
}

func (h *Handler) LoadClaim(ctx context.Context, claimID string) (*claim.Claim, error) {
	return aggregate.Load(ctx, h.eventStore, claimID, claim.New, h.log)
}
