// Package matcher scores bank transactions against accounting documents.
//
// Scoring is a pure function of a (transaction, document) pair, the owning
// client's active learned patterns and an immutable ScoringConfig. Each
// component that contributes to the score adds a stable reason tag, so a
// caller can always explain why a pair scored the way it did:
//   - Amount proximity: exact, within 1%, within 5%
//   - Date proximity: same day, within 2 days, within 5 days
//   - Tax ID found in the description and equal to the issuer's tax ID
//   - Reference contained in the folio (or the reverse)
//   - Issuer name prefix found in the description
//   - Learned-pattern boost (first matching pattern only)
//
// The component sum is accumulated in decimal arithmetic so tier boundaries
// such as 0.40 + 0.30 classify exactly, and it is capped at 1.0.
//
// Example usage:
//
//	cfg := matcher.DefaultScoringConfig()
//	result := matcher.Score(cfg, tx, doc, patterns)
//	state := cfg.Classify(result.Confidence)
package matcher

import (
	"fmt"

	"golang-reconciliation-engine/internal/models"

	"github.com/shopspring/decimal"
)

// AmountRule holds the amount-proximity tiers. Tolerances are fractions of
// the document total.
type AmountRule struct {
	ExactWeight    float64 `json:"exact_weight" mapstructure:"exact_weight"`
	TightWeight    float64 `json:"tight_weight" mapstructure:"tight_weight"`
	TightTolerance float64 `json:"tight_tolerance" mapstructure:"tight_tolerance"`
	LooseWeight    float64 `json:"loose_weight" mapstructure:"loose_weight"`
	LooseTolerance float64 `json:"loose_tolerance" mapstructure:"loose_tolerance"`
}

// DateRule holds the date-proximity tiers in calendar days
type DateRule struct {
	ExactWeight float64 `json:"exact_weight" mapstructure:"exact_weight"`
	NearWeight  float64 `json:"near_weight" mapstructure:"near_weight"`
	NearDays    int     `json:"near_days" mapstructure:"near_days"`
	FarWeight   float64 `json:"far_weight" mapstructure:"far_weight"`
	FarDays     int     `json:"far_days" mapstructure:"far_days"`
}

// ScoringConfig holds every weight and threshold used by scoring, suggestion,
// batch classification and pattern learning. A config is treated as
// immutable once handed to a service; use Clone to derive variants.
//
// Use the provided factory functions for common scenarios:
//   - DefaultScoringConfig(): the production weights
//   - StrictScoringConfig(): higher classification thresholds
//   - RelaxedScoringConfig(): lower thresholds and more suggestions
type ScoringConfig struct {
	Amount AmountRule `json:"amount" mapstructure:"amount"`
	Date   DateRule   `json:"date" mapstructure:"date"`

	TaxIDWeight        float64 `json:"tax_id_weight" mapstructure:"tax_id_weight"`
	ReferenceWeight    float64 `json:"reference_weight" mapstructure:"reference_weight"`
	CounterpartyWeight float64 `json:"counterparty_weight" mapstructure:"counterparty_weight"`

	// CounterpartyPrefixLen is how many leading characters of the issuer name
	// must appear in the description
	CounterpartyPrefixLen int `json:"counterparty_prefix_len" mapstructure:"counterparty_prefix_len"`

	// MatchThreshold and PartialThreshold classify the best score of a batch run
	MatchThreshold   float64 `json:"match_threshold" mapstructure:"match_threshold"`
	PartialThreshold float64 `json:"partial_threshold" mapstructure:"partial_threshold"`

	// SuggestionFloor is exclusive: candidates must score strictly above it
	SuggestionFloor float64 `json:"suggestion_floor" mapstructure:"suggestion_floor"`
	SuggestionLimit int     `json:"suggestion_limit" mapstructure:"suggestion_limit"`

	// PatternBoost is the boost given to newly learned patterns
	PatternBoost         float64 `json:"pattern_boost" mapstructure:"pattern_boost"`
	MinFingerprintLength int     `json:"min_fingerprint_length" mapstructure:"min_fingerprint_length"`
}

// DefaultScoringConfig returns the production weights and thresholds
func DefaultScoringConfig() *ScoringConfig {
	return &ScoringConfig{
		Amount: AmountRule{
			ExactWeight:    0.40,
			TightWeight:    0.35,
			TightTolerance: 0.01,
			LooseWeight:    0.20,
			LooseTolerance: 0.05,
		},
		Date: DateRule{
			ExactWeight: 0.30,
			NearWeight:  0.25,
			NearDays:    2,
			FarWeight:   0.15,
			FarDays:     5,
		},
		TaxIDWeight:           0.20,
		ReferenceWeight:       0.10,
		CounterpartyWeight:    0.05,
		CounterpartyPrefixLen: 10,
		MatchThreshold:        0.70,
		PartialThreshold:      0.50,
		SuggestionFloor:       0.30,
		SuggestionLimit:       3,
		PatternBoost:          0.10,
		MinFingerprintLength:  5,
	}
}

// StrictScoringConfig raises the classification thresholds so only strong
// evidence auto-matches
func StrictScoringConfig() *ScoringConfig {
	cfg := DefaultScoringConfig()
	cfg.MatchThreshold = 0.80
	cfg.PartialThreshold = 0.60
	cfg.SuggestionFloor = 0.40
	return cfg
}

// RelaxedScoringConfig lowers the thresholds for exploratory runs
func RelaxedScoringConfig() *ScoringConfig {
	cfg := DefaultScoringConfig()
	cfg.MatchThreshold = 0.60
	cfg.PartialThreshold = 0.40
	cfg.SuggestionFloor = 0.20
	cfg.SuggestionLimit = 5
	return cfg
}

// Validate checks that weights and thresholds are coherent
func (c *ScoringConfig) Validate() error {
	weights := map[string]float64{
		"amount.exact_weight": c.Amount.ExactWeight,
		"amount.tight_weight": c.Amount.TightWeight,
		"amount.loose_weight": c.Amount.LooseWeight,
		"date.exact_weight":   c.Date.ExactWeight,
		"date.near_weight":    c.Date.NearWeight,
		"date.far_weight":     c.Date.FarWeight,
		"tax_id_weight":       c.TaxIDWeight,
		"reference_weight":    c.ReferenceWeight,
		"counterparty_weight": c.CounterpartyWeight,
		"pattern_boost":       c.PatternBoost,
		"match_threshold":     c.MatchThreshold,
		"partial_threshold":   c.PartialThreshold,
		"suggestion_floor":    c.SuggestionFloor,
	}
	for name, w := range weights {
		if w < 0 || w > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %.2f", name, w)
		}
	}

	if c.Amount.TightTolerance < 0 || c.Amount.TightTolerance > c.Amount.LooseTolerance {
		return fmt.Errorf("amount tolerances must satisfy 0 <= tight (%.4f) <= loose (%.4f)",
			c.Amount.TightTolerance, c.Amount.LooseTolerance)
	}
	if c.Amount.ExactWeight < c.Amount.TightWeight || c.Amount.TightWeight < c.Amount.LooseWeight {
		return fmt.Errorf("amount weights must not increase as the tier widens")
	}
	if c.Date.NearDays < 0 || c.Date.NearDays > c.Date.FarDays {
		return fmt.Errorf("date windows must satisfy 0 <= near (%d) <= far (%d)", c.Date.NearDays, c.Date.FarDays)
	}
	if c.Date.ExactWeight < c.Date.NearWeight || c.Date.NearWeight < c.Date.FarWeight {
		return fmt.Errorf("date weights must not increase as the window widens")
	}
	if c.PartialThreshold > c.MatchThreshold {
		return fmt.Errorf("partial threshold (%.2f) cannot exceed match threshold (%.2f)",
			c.PartialThreshold, c.MatchThreshold)
	}
	if c.SuggestionLimit <= 0 {
		return fmt.Errorf("suggestion limit must be positive, got %d", c.SuggestionLimit)
	}
	if c.CounterpartyPrefixLen <= 0 {
		return fmt.Errorf("counterparty prefix length must be positive, got %d", c.CounterpartyPrefixLen)
	}
	if c.MinFingerprintLength < 0 {
		return fmt.Errorf("min fingerprint length cannot be negative")
	}

	return nil
}

// Clone returns a deep copy of the configuration
func (c *ScoringConfig) Clone() *ScoringConfig {
	clone := *c
	return &clone
}

// Classify maps a batch confidence to its reconciliation outcome
func (c *ScoringConfig) Classify(confidence float64) models.ReconciliationState {
	score := decimal.NewFromFloat(confidence)
	switch {
	case score.GreaterThanOrEqual(decimal.NewFromFloat(c.MatchThreshold)):
		return models.StateMatched
	case score.GreaterThanOrEqual(decimal.NewFromFloat(c.PartialThreshold)):
		return models.StatePartial
	default:
		return models.StateUnmatched
	}
}

func (c *ScoringConfig) String() string {
	return fmt.Sprintf("ScoringConfig{Match: %.2f, Partial: %.2f, SuggestionFloor: %.2f, SuggestionLimit: %d, "+
		"Amount: %.2f/%.2f/%.2f, Date: %.2f/%.2f/%.2f, TaxID: %.2f, Reference: %.2f, Counterparty: %.2f}",
		c.MatchThreshold, c.PartialThreshold, c.SuggestionFloor, c.SuggestionLimit,
		c.Amount.ExactWeight, c.Amount.TightWeight, c.Amount.LooseWeight,
		c.Date.ExactWeight, c.Date.NearWeight, c.Date.FarWeight,
		c.TaxIDWeight, c.ReferenceWeight, c.CounterpartyWeight)
}
