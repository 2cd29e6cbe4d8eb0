package domain

import (
	"time"
)

// RuleKind enumerates the closed set of rule predicates. Adding a kind is a
// code change in the rules engine, not dynamic dispatch.
type RuleKind string

const (
	KindAmountThreshold    RuleKind = "amount-threshold"
	KindLocationMembership RuleKind = "location-membership"
	KindMerchantMembership RuleKind = "merchant-membership"
	KindVelocityCount      RuleKind = "velocity-count-threshold"
	KindVelocityAmount     RuleKind = "velocity-amount-threshold"
)

// Rule is one configured rule: a named predicate with a threshold and the
// weight it contributes to the score when triggered. Membership kinds take
// their sets from the enclosing Snapshot and ignore Threshold.
type Rule struct {
	Name      string   `json:"name"`
	Kind      RuleKind `json:"kind"`
	Threshold float64  `json:"threshold,omitempty"`
	Weight    float64  `json:"weight"`
}

// Snapshot is an immutable, validated configuration snapshot. Evaluations
// read a snapshot handle and never observe partial mutation; reload replaces
// the whole snapshot atomically.
type Snapshot struct {
	HighRiskLocations map[string]struct{} `json:"-"`
	RiskyMerchants    map[string]struct{} `json:"-"`

	// Rules in declared order. Triggered-rule output preserves this order.
	Rules []Rule `json:"rules"`

	// VelocityWindow is the trailing window for velocity facts.
	// Zero disables velocity aggregation.
	VelocityWindow time.Duration `json:"velocityWindow"`

	ReviewThreshold float64 `json:"reviewThreshold"`
	RejectThreshold float64 `json:"rejectThreshold"`

	// MaxScore clamps the summed score after aggregation. Zero means uncapped.
	MaxScore float64 `json:"maxScore"`

	LoadedAt time.Time `json:"loadedAt"`
}

// Classify maps a score to its classification using the snapshot thresholds.
// Boundaries are inclusive: score == RejectThreshold rejects.
func (s *Snapshot) Classify(score float64) Classification {
	switch {
	case score >= s.RejectThreshold:
		return ClassReject
	case score >= s.ReviewThreshold:
		return ClassReview
	default:
		return ClassApprove
	}
}
