package domain

import "time"

// ActionType values written by the engine. Generation attempts carry the
// route as a suffix, e.g. "api_request_seedream".
const (
	ActionGeneration      = "api_request"
	ActionGenerationError = "api_request_error"
	ActionCreditApproved  = "credit_request_approved"
	ActionCreditAdjusted  = "credit_adjusted"
)

// ActionRecord is an immutable append-only log entry. Written once per
// completed or failed generation attempt (and for credit events); never
// updated or deleted.
type ActionRecord struct {
	ID           int64
	UserID       int64
	ActionType   string
	RequestData  []byte
	ResponseData []byte
	CreditsSpent float64
	Route        Route
	CreatedAt    time.Time
}
