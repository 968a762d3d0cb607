package claim

import "time"

const (
	EventClaimFiled                = "ClaimFiled"
	EventClaimInvestigationStarted = "ClaimInvestigationStarted"
	EventClaimAssessed             = "ClaimAssessed"
	EventClaimApproved             = "ClaimApproved"
	EventClaimRejected             = "ClaimRejected"
	EventClaimPaid                 = "ClaimPaid"
)

type ClaimFiled struct {
	ClaimID       string    `json:"claim_id"`
	PolicyID      string    `json:"policy_id"`
	Category      string    `json:"category"`
	ClaimedAmount int64     `json:"claimed_amount"`
	CoverageLimit int64     `json:"coverage_limit"`
	FiledAt       time.Time `json:"filed_at"`
}

type ClaimInvestigationStarted struct {
	ClaimID   string    `json:"claim_id"`
	Category  string    `json:"category"`
	Risk      Risk      `json:"risk"`
	StartedAt time.Time `json:"started_at"`
}

type ClaimAssessed struct {
	ClaimID        string    `json:"claim_id"`
	Category       string    `json:"category"`
	AssessedAmount int64     `json:"assessed_amount"`
	AssessedAt     time.Time `json:"assessed_at"`
}

type ClaimApproved struct {
	ClaimID        string    `json:"claim_id"`
	Category       string    `json:"category"`
	ApprovedAmount int64     `json:"approved_amount"`
	ApprovedAt     time.Time `json:"approved_at"`
}

type ClaimRejected struct {
	ClaimID    string    `json:"claim_id"`
	Category   string    `json:"category"`
	Reason     string    `json:"reason"`
	RejectedAt time.Time `json:"rejected_at"`
}

type ClaimPaid struct {
	ClaimID   string    `json:"claim_id"`
	Category  string    `json:"category"`
	Amount    int64     `json:"amount"`
	Reference string    `json:"reference"`
	PaidAt    time.Time `json:"paid_at"`
}
