package claim

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/example/es-saga-course/internal/domain/aggregate"
	"github.com/example/es-saga-course/internal/infrastructure/store"
)

const AggregateType = "Claim"

type Status string

const (
	StatusFiled              Status = "FILED"
	StatusUnderInvestigation Status = "UNDER_INVESTIGATION"
	StatusAssessed           Status = "ASSESSED"
	StatusApproved           Status = "APPROVED"
	StatusRejected           Status = "REJECTED"
	StatusPaid               Status = "PAID"
)

type Risk string

const (
	RiskLow    Risk = "LOW"
	RiskMedium Risk = "MEDIUM"
	RiskHigh   Risk = "HIGH"
)

func (r Risk) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

var (
	ErrAlreadyFiled           = errors.New("claim already filed")
	ErrInvalidClaim           = errors.New("policy and category are required")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrExceedsCoverage        = errors.New("claimed amount exceeds coverage")
	ErrAssessmentExceedsClaim = errors.New("assessed amount exceeds claimed amount")
	ErrInvalidRisk            = errors.New("invalid risk level")
	ErrMissingReference       = errors.New("payment reference is required")
	ErrInvalidTransition      = errors.New("invalid claim status transition")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusFiled:              {StatusUnderInvestigation, StatusRejected},
	StatusUnderInvestigation: {StatusAssessed, StatusRejected},
	StatusAssessed:           {StatusApproved, StatusRejected},
	StatusApproved:           {StatusPaid},
	StatusRejected:           {}, // terminal state
	StatusPaid:               {}, // terminal state
}

// Claim is an insurance claim moving through investigation, assessment and
// settlement.
type Claim struct {
	aggregate.Base
	ID               string    `json:"id"`
	PolicyID         string    `json:"policy_id"`
	Category         string    `json:"category"`
	ClaimedAmount    int64     `json:"claimed_amount"`
	CoverageLimit    int64     `json:"coverage_limit"`
	Risk             Risk      `json:"risk,omitempty"`
	AssessedAmount   int64     `json:"assessed_amount"`
	ApprovedAmount   int64     `json:"approved_amount"`
	PaidAmount       int64     `json:"paid_amount"`
	PaymentReference string    `json:"payment_reference,omitempty"`
	RejectionReason  string    `json:"rejection_reason,omitempty"`
	Status           Status    `json:"status"`
	FiledAt          time.Time `json:"filed_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func New() *Claim { return &Claim{} }

func (c *Claim) GetID() string         { return c.ID }
func (c *Claim) AggregateType() string { return AggregateType }

// CanTransitionTo checks if the claim can transition to the target status
func (c *Claim) CanTransitionTo(target Status) bool {
	return slices.Contains(validTransitions[c.Status], target)
}

func (c *Claim) transition(command string, target Status) error {
	if !c.CanTransitionTo(target) {
		return aggregate.Reject(c, command, fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, c.Status, target))
	}
	return nil
}

// =============================================================================
// Commands
// =============================================================================

func (c *Claim) File(id, policyID, category string, amount, coverage int64) error {
	if c.Version > 0 {
		return aggregate.Reject(c, "File", ErrAlreadyFiled)
	}
	switch {
	case policyID == "" || category == "":
		return aggregate.Reject(c, "File", ErrInvalidClaim)
	case amount <= 0 || coverage <= 0:
		return aggregate.Reject(c, "File", fmt.Errorf("%w: amount %d, coverage %d", ErrInvalidAmount, amount, coverage))
	case amount > coverage:
		return aggregate.Reject(c, "File", fmt.Errorf("%w: %d > %d", ErrExceedsCoverage, amount, coverage))
	}
	return aggregate.RecordNew(c, id, EventClaimFiled, ClaimFiled{
		ClaimID:       id,
		PolicyID:      policyID,
		Category:      category,
		ClaimedAmount: amount,
		CoverageLimit: coverage,
		FiledAt:       time.Now().UTC(),
	})
}

func (c *Claim) Investigate(risk Risk) error {
	if err := c.transition("Investigate", StatusUnderInvestigation); err != nil {
		return err
	}
	if !risk.Valid() {
		return aggregate.Reject(c, "Investigate", fmt.Errorf("%w: %q", ErrInvalidRisk, risk))
	}
	return aggregate.Record(c, EventClaimInvestigationStarted, ClaimInvestigationStarted{
		ClaimID:   c.ID,
		Category:  c.Category,
		Risk:      risk,
		StartedAt: time.Now().UTC(),
	})
}

func (c *Claim) Assess(amount int64) error {
	if err := c.transition("Assess", StatusAssessed); err != nil {
		return err
	}
	if amount <= 0 {
		return aggregate.Reject(c, "Assess", fmt.Errorf("%w: %d", ErrInvalidAmount, amount))
	}
	if amount > c.ClaimedAmount {
		return aggregate.Reject(c, "Assess", fmt.Errorf("%w: %d > %d", ErrAssessmentExceedsClaim, amount, c.ClaimedAmount))
	}
	return aggregate.Record(c, EventClaimAssessed, ClaimAssessed{
		ClaimID:        c.ID,
		Category:       c.Category,
		AssessedAmount: amount,
		AssessedAt:     time.Now().UTC(),
	})
}

// Approve settles on the assessed amount.
func (c *Claim) Approve() error {
	if err := c.transition("Approve", StatusApproved); err != nil {
		return err
	}
	return aggregate.Record(c, EventClaimApproved, ClaimApproved{
		ClaimID:        c.ID,
		Category:       c.Category,
		ApprovedAmount: c.AssessedAmount,
		ApprovedAt:     time.Now().UTC(),
	})
}

func (c *Claim) Reject(reason string) error {
	if err := c.transition("Reject", StatusRejected); err != nil {
		return err
	}
	return aggregate.Record(c, EventClaimRejected, ClaimRejected{
		ClaimID:    c.ID,
		Category:   c.Category,
		Reason:     reason,
		RejectedAt: time.Now().UTC(),
	})
}

func (c *Claim) Pay(reference string) error {
	if err := c.transition("Pay", StatusPaid); err != nil {
		return err
	}
	if reference == "" {
		return aggregate.Reject(c, "Pay", ErrMissingReference)
	}
	return aggregate.Record(c, EventClaimPaid, ClaimPaid{
		ClaimID:   c.ID,
		Category:  c.Category,
		Amount:    c.ApprovedAmount,
		Reference: reference,
		PaidAt:    time.Now().UTC(),
	})
}

// =============================================================================
// Event application
// =============================================================================

// ApplyEvent applies a single event to the claim state (implements aggregate.Aggregate)
func (c *Claim) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventClaimFiled:
		var data ClaimFiled
		if err := event.Decode(&data); err != nil {
			return err
		}
		c.ID = data.ClaimID
		c.PolicyID = data.PolicyID
		c.Category = data.Category
		c.ClaimedAmount = data.ClaimedAmount
		c.CoverageLimit = data.CoverageLimit
		c.Status = StatusFiled
		c.FiledAt = data.FiledAt
		c.UpdatedAt = data.FiledAt
	case EventClaimInvestigationStarted:
		var data ClaimInvestigationStarted
		if err := event.Decode(&data); err != nil {
			return err
		}
		c.Risk = data.Risk
		c.Status = StatusUnderInvestigation
		c.UpdatedAt = data.StartedAt
	case EventClaimAssessed:
		var data ClaimAssessed
		if err := event.Decode(&data); err != nil {
			return err
		}
		c.AssessedAmount = data.AssessedAmount
		c.Status = StatusAssessed
		c.UpdatedAt = data.AssessedAt
	case EventClaimApproved:
		var data ClaimApproved
		if err := event.Decode(&data); err != nil {
			return err
		}
		c.ApprovedAmount = data.ApprovedAmount
		c.Status = StatusApproved
		c.UpdatedAt = data.ApprovedAt
	case EventClaimRejected:
		var data ClaimRejected
		if err := event.Decode(&data); err != nil {
			return err
		}
		c.RejectionReason = data.Reason
		c.Status = StatusRejected
		c.UpdatedAt = data.RejectedAt
	case EventClaimPaid:
		var data ClaimPaid
		if err := event.Decode(&data); err != nil {
			return err
		}
		c.PaidAmount = data.Amount
		c.PaymentReference = data.Reference
		c.Status = StatusPaid
		c.UpdatedAt = data.PaidAt
	default:
		return fmt.Errorf("%w: %s", aggregate.ErrUnknownEventType, event.EventType)
	}
	return nil
}
