package domain

import "time"

// CreditRequestStatus enumerates the top-up request lifecycle.
type CreditRequestStatus string

const (
	CreditRequestPending  CreditRequestStatus = "pending"
	CreditRequestApproved CreditRequestStatus = "approved"
	CreditRequestRejected CreditRequestStatus = "rejected"
)

// CreditRequest is a user's request for a fixed top-up amount. An operator
// approves or rejects it; a resolved request cannot be resolved again.
type CreditRequest struct {
	ID          int64
	UserID      int64
	Amount      float64
	Status      CreditRequestStatus
	CreatedAt   time.Time
	ProcessedAt *time.Time
}
