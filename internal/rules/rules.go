// Package rules implements the rule evaluation engine: a closed set of
// predicate kinds scored against a transaction and its velocity facts.
package rules

import (
	"github.com/ganga0312/sentinelstream/internal/domain"
)

// Engine evaluates the rules of a configuration snapshot. It is stateless;
// the same inputs always produce the same score, which is what makes
// evaluation retries safe.
type Engine struct{}

// NewEngine creates a new rule evaluation engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate applies every rule in the snapshot, in declared order, and
// returns the summed weight of triggered rules plus their names. All
// triggering rules contribute independently. When the snapshot carries a
// max score it is clamped after summation, never mid-sum.
func (e *Engine) Evaluate(tx *domain.Transaction, facts *domain.VelocityFacts, snap *domain.Snapshot) (float64, []string) {
	var score float64
	var triggered []string

	for _, rule := range snap.Rules {
		if !triggers(rule, tx, facts, snap) {
			continue
		}
		score += rule.Weight
		triggered = append(triggered, rule.Name)
	}

	if snap.MaxScore > 0 && score > snap.MaxScore {
		score = snap.MaxScore
	}

	return score, triggered
}

// triggers decides a single rule predicate. Velocity kinds never trigger
// without facts (an evaluation run with velocity disabled).
func triggers(rule domain.Rule, tx *domain.Transaction, facts *domain.VelocityFacts, snap *domain.Snapshot) bool {
	switch rule.Kind {
	case domain.KindAmountThreshold:
		return tx.Amount >= rule.Threshold

	case domain.KindLocationMembership:
		_, ok := snap.HighRiskLocations[tx.Location]
		return ok

	case domain.KindMerchantMembership:
		_, ok := snap.RiskyMerchants[tx.Merchant]
		return ok

	case domain.KindVelocityCount:
		return facts != nil && float64(facts.Count) >= rule.Threshold

	case domain.KindVelocityAmount:
		return facts != nil && facts.CumulativeAmount >= rule.Threshold

	default:
		return false
	}
}
