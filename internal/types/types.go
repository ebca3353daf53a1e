// Package types provides common type definitions for the crowdsale engine.
package types

// SaleStage represents where a sale currently sits in its lifecycle
type SaleStage string

const (
	// StagePending represents a sale that has been created but whose
	// start time has not been reached yet
	StagePending SaleStage = "pending"
	// StageActive represents a sale inside its [startTime, endTime) window
	StageActive SaleStage = "active"
	// StageEnded represents a sale past its end time or sold out,
	// but not yet finalized
	StageEnded SaleStage = "ended"
	// StageFinalized represents a sale whose finalized flag has been set
	StageFinalized SaleStage = "finalized"
)

// RejectionCode identifies why a purchase attempt was rejected.
// These codes are stable and surfaced verbatim to callers.
type RejectionCode string

const (
	// RejectNoWeiSent fires on a zero payment amount
	RejectNoWeiSent RejectionCode = "NoWeiSent"
	// RejectNotInitialized fires when the sale setup is incomplete
	RejectNotInitialized RejectionCode = "CrowdsaleNotInitialized"
	// RejectCrowdsaleFinished fires when the sale is finalized, past its
	// end time, or sold out
	RejectCrowdsaleFinished RejectionCode = "CrowdsaleFinished"
	// RejectBeforeStartTime fires on purchases ahead of the start time
	RejectBeforeStartTime RejectionCode = "BeforeStartTime"
	// RejectUnderMinCap fires when a first contribution computes to fewer
	// units than the applicable minimum
	RejectUnderMinCap RejectionCode = "UnderMinCap"
	// RejectSpendAmountExceeded fires when a whitelisted buyer has no
	// remaining allowance
	RejectSpendAmountExceeded RejectionCode = "SpendAmountExceeded"
	// RejectInvalidPurchaseAmount fires when a nonzero payment resolves to
	// zero units after clipping
	RejectInvalidPurchaseAmount RejectionCode = "InvalidPurchaseAmount"
)

// FinishCause distinguishes the three conditions that collapse into the
// CrowdsaleFinished rejection
type FinishCause string

const (
	// FinishCauseFinalized means the finalized flag was set
	FinishCauseFinalized FinishCause = "finalized"
	// FinishCausePastEndTime means the sale window has elapsed
	FinishCausePastEndTime FinishCause = "past_end_time"
	// FinishCauseSoldOut means tokensSold reached the sell cap
	FinishCauseSoldOut FinishCause = "sold_out"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
