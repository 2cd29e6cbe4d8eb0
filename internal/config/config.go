// Package config loads, validates, and atomically swaps risk configuration
// snapshots.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ganga0312/sentinelstream/internal/domain"
)

// Document is the external risk configuration format.
type Document struct {
	HighRiskLocations []string           `json:"high_risk_locations"`
	RiskyMerchants    []string           `json:"risky_merchants"`
	AmountThresholds  map[string]float64 `json:"amount_thresholds"`
	VelocityRules     VelocityDocument   `json:"velocity_rules"`
	RiskWeights       map[string]float64 `json:"risk_weights"`
	ReviewThreshold   *float64           `json:"review_threshold"`
	RejectThreshold   *float64           `json:"reject_threshold"`
	MaxScore          *float64           `json:"max_score,omitempty"`
}

// VelocityDocument configures the trailing-window velocity rules.
type VelocityDocument struct {
	WindowSeconds   int     `json:"window_seconds"`
	MaxTransactions int     `json:"max_transactions"`
	MaxAmount       float64 `json:"max_amount"`
}

// Rule names derived from the document. Weights in risk_weights are keyed by
// these names; amount rules use "amount_" plus the threshold key.
const (
	RuleLocation       = "location"
	RuleMerchant       = "merchant"
	RuleVelocityCount  = "velocity_count"
	RuleVelocityAmount = "velocity_amount"

	amountRulePrefix = "amount_"
)

// Load parses and validates a configuration document and builds an immutable
// snapshot. Returns a *domain.ConfigError naming the offending field.
func Load(data []byte) (*domain.Snapshot, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &domain.ConfigError{Field: "document", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return build(&doc)
}

// LoadFile reads and loads a configuration document from disk.
func LoadFile(path string) (*domain.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigError{Field: "document", Message: fmt.Sprintf("read %s: %v", path, err)}
	}
	return Load(data)
}

func build(doc *Document) (*domain.Snapshot, error) {
	if err := validate(doc); err != nil {
		return nil, err
	}

	snap := &domain.Snapshot{
		HighRiskLocations: toSet(doc.HighRiskLocations),
		RiskyMerchants:    toSet(doc.RiskyMerchants),
		VelocityWindow:    time.Duration(doc.VelocityRules.WindowSeconds) * time.Second,
		ReviewThreshold:   *doc.ReviewThreshold,
		RejectThreshold:   *doc.RejectThreshold,
		LoadedAt:          time.Now().UTC(),
	}
	if doc.MaxScore != nil {
		snap.MaxScore = *doc.MaxScore
	}
	snap.Rules = deriveRules(doc)

	return snap, nil
}

func validate(doc *Document) error {
	if len(doc.HighRiskLocations) == 0 {
		return &domain.ConfigError{Field: "high_risk_locations", Message: "must be a non-empty set"}
	}
	if len(doc.RiskyMerchants) == 0 {
		return &domain.ConfigError{Field: "risky_merchants", Message: "must be a non-empty set"}
	}
	for name, threshold := range doc.AmountThresholds {
		if threshold < 0 {
			return &domain.ConfigError{
				Field:   "amount_thresholds." + name,
				Message: "must be non-negative",
			}
		}
	}
	for name, weight := range doc.RiskWeights {
		if weight < 0 {
			return &domain.ConfigError{
				Field:   "risk_weights." + name,
				Message: "must be non-negative",
			}
		}
	}

	v := doc.VelocityRules
	if v.MaxTransactions < 0 {
		return &domain.ConfigError{Field: "velocity_rules.max_transactions", Message: "must be non-negative"}
	}
	if v.MaxAmount < 0 {
		return &domain.ConfigError{Field: "velocity_rules.max_amount", Message: "must be non-negative"}
	}
	if (v.MaxTransactions > 0 || v.MaxAmount > 0) && v.WindowSeconds <= 0 {
		return &domain.ConfigError{Field: "velocity_rules.window_seconds", Message: "must be a positive duration"}
	}

	if doc.ReviewThreshold == nil {
		return &domain.ConfigError{Field: "review_threshold", Message: "is required"}
	}
	if doc.RejectThreshold == nil {
		return &domain.ConfigError{Field: "reject_threshold", Message: "is required"}
	}
	if *doc.ReviewThreshold < 0 {
		return &domain.ConfigError{Field: "review_threshold", Message: "must be non-negative"}
	}
	if *doc.RejectThreshold < *doc.ReviewThreshold {
		return &domain.ConfigError{Field: "reject_threshold", Message: "must be >= review_threshold"}
	}
	if doc.MaxScore != nil && *doc.MaxScore < 0 {
		return &domain.ConfigError{Field: "max_score", Message: "must be non-negative"}
	}

	return nil
}

// deriveRules builds the ordered rule list: amount rules by descending
// threshold (ties broken by name), then location, merchant, and the velocity
// rules. The order is deterministic so triggered-rule output is auditable.
func deriveRules(doc *Document) []domain.Rule {
	rules := make([]domain.Rule, 0, len(doc.AmountThresholds)+4)

	amountKeys := make([]string, 0, len(doc.AmountThresholds))
	for k := range doc.AmountThresholds {
		amountKeys = append(amountKeys, k)
	}
	sort.Slice(amountKeys, func(i, j int) bool {
		ti, tj := doc.AmountThresholds[amountKeys[i]], doc.AmountThresholds[amountKeys[j]]
		if ti != tj {
			return ti > tj
		}
		return amountKeys[i] < amountKeys[j]
	})
	for _, k := range amountKeys {
		name := amountRulePrefix + k
		rules = append(rules, domain.Rule{
			Name:      name,
			Kind:      domain.KindAmountThreshold,
			Threshold: doc.AmountThresholds[k],
			Weight:    doc.RiskWeights[name],
		})
	}

	rules = append(rules, domain.Rule{
		Name:   RuleLocation,
		Kind:   domain.KindLocationMembership,
		Weight: doc.RiskWeights[RuleLocation],
	})
	rules = append(rules, domain.Rule{
		Name:   RuleMerchant,
		Kind:   domain.KindMerchantMembership,
		Weight: doc.RiskWeights[RuleMerchant],
	})

	if doc.VelocityRules.MaxTransactions > 0 {
		rules = append(rules, domain.Rule{
			Name:      RuleVelocityCount,
			Kind:      domain.KindVelocityCount,
			Threshold: float64(doc.VelocityRules.MaxTransactions),
			Weight:    doc.RiskWeights[RuleVelocityCount],
		})
	}
	if doc.VelocityRules.MaxAmount > 0 {
		rules = append(rules, domain.Rule{
			Name:      RuleVelocityAmount,
			Kind:      domain.KindVelocityAmount,
			Threshold: doc.VelocityRules.MaxAmount,
			Weight:    doc.RiskWeights[RuleVelocityAmount],
		})
	}

	return rules
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// Default returns the built-in configuration snapshot, used when no document
// is supplied.
func Default() *domain.Snapshot {
	snap, err := build(&Document{
		HighRiskLocations: []string{"HighRiskCountry", "Unknown"},
		RiskyMerchants:    []string{"GamblingSite", "CryptoExchange"},
		AmountThresholds:  map[string]float64{"low": 1000, "medium": 5000, "high": 10000},
		VelocityRules: VelocityDocument{
			WindowSeconds:   3600,
			MaxTransactions: 3,
			MaxAmount:       20000,
		},
		RiskWeights: map[string]float64{
			"amount_high":      50,
			"amount_medium":    30,
			"amount_low":       10,
			RuleLocation:       40,
			RuleMerchant:       30,
			RuleVelocityCount:  60,
			RuleVelocityAmount: 50,
		},
		ReviewThreshold: ptr(50.0),
		RejectThreshold: ptr(80.0),
		MaxScore:        ptr(100.0),
	})
	if err != nil {
		panic(fmt.Sprintf("invalid default config: %v", err))
	}
	return snap
}

func ptr(v float64) *float64 { return &v }

// Store holds the active snapshot behind an atomic pointer. Readers always
// obtain a complete snapshot; reload swaps the pointer wholesale.
type Store struct {
	snap atomic.Pointer[domain.Snapshot]
}

// NewStore creates a store with the given initial snapshot.
func NewStore(initial *domain.Snapshot) *Store {
	s := &Store{}
	s.snap.Store(initial)
	return s
}

// Current returns the active snapshot. Non-blocking.
func (s *Store) Current() *domain.Snapshot {
	return s.snap.Load()
}

// Reload validates the document and atomically installs the new snapshot.
// On error the previous snapshot remains active.
func (s *Store) Reload(data []byte) error {
	snap, err := Load(data)
	if err != nil {
		return err
	}
	s.snap.Store(snap)
	return nil
}
