package domain

import (
	"time"
)

// Classification is the accept/review/reject decision for a transaction.
type Classification string

const (
	ClassApprove Classification = "approve"
	ClassReview  Classification = "review"
	ClassReject  Classification = "reject"
)

// RiskLevel is a coarse label derived from the score, kept for
// dashboards and alert readability.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskLevelForScore maps a risk score to its level band.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= 80:
		return RiskCritical
	case score >= 50:
		return RiskHigh
	case score >= 20:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Outcome is the evaluation result for a transaction. Created exactly once
// per transaction, never mutated, persisted alongside the transaction.
type Outcome struct {
	TransactionID  string         `json:"transaction_id"`
	Score          float64        `json:"score"`
	Classification Classification `json:"classification"`
	RiskLevel      RiskLevel      `json:"risk_level"`
	TriggeredRules []string       `json:"triggered_rules"`
	EvaluatedAt    time.Time      `json:"evaluated_at"`
}

// VelocityFacts holds the trailing-window aggregates for an account.
// Derived per evaluation, never persisted. Count and CumulativeAmount
// cover prior transactions in (WindowEnd-Window, WindowEnd], excluding
// the transaction currently under evaluation.
type VelocityFacts struct {
	AccountID        string        `json:"accountId"`
	Window           time.Duration `json:"window"`
	Count            int           `json:"count"`
	CumulativeAmount float64       `json:"cumulativeAmount"`
	WindowEnd        time.Time     `json:"windowEnd"`
}
