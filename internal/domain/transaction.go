// Package domain defines the core interfaces and types for SentinelStream.
package domain

import (
	"time"
)

// DefaultAccountID is used when an evaluation request carries no account
// identifier. All unattributed transactions share one velocity history.
const DefaultAccountID = "global"

// Transaction represents a financial transaction to be evaluated.
// Immutable once created.
type Transaction struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	Amount    float64   `json:"amount"`
	Location  string    `json:"location"`
	Merchant  string    `json:"merchant"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

// EvaluationRequest is the inbound payload for transaction evaluation.
// Amount is a pointer so a missing field is distinguishable from zero.
type EvaluationRequest struct {
	TransactionID string     `json:"transaction_id"`
	AccountID     string     `json:"account_id,omitempty"`
	Amount        *float64   `json:"amount"`
	Location      string     `json:"location"`
	Merchant      string     `json:"merchant"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
}

// Validate checks the request shape. It returns a *ValidationError
// naming the first offending field.
func (r *EvaluationRequest) Validate() error {
	if r.TransactionID == "" {
		return &ValidationError{Field: "transaction_id", Message: "is required"}
	}
	if r.Amount == nil {
		return &ValidationError{Field: "amount", Message: "is required"}
	}
	if *r.Amount < 0 {
		return &ValidationError{Field: "amount", Message: "must be non-negative"}
	}
	if r.Location == "" {
		return &ValidationError{Field: "location", Message: "is required"}
	}
	if r.Merchant == "" {
		return &ValidationError{Field: "merchant", Message: "is required"}
	}
	return nil
}

// ToTransaction converts a validated request to a Transaction domain object,
// assigning the ingestion timestamp when none was supplied.
func (r *EvaluationRequest) ToTransaction() *Transaction {
	now := time.Now().UTC()

	ts := now
	if r.Timestamp != nil {
		ts = r.Timestamp.UTC()
	}

	accountID := r.AccountID
	if accountID == "" {
		accountID = DefaultAccountID
	}

	return &Transaction{
		ID:        r.TransactionID,
		AccountID: accountID,
		Amount:    *r.Amount,
		Location:  r.Location,
		Merchant:  r.Merchant,
		Timestamp: ts,
		CreatedAt: now,
	}
}
