package matcher

import (
	"sort"
	"strings"

	"golang-reconciliation-engine/internal/models"

	"github.com/shopspring/decimal"
)

// Reason tags, in evaluation order
const (
	ReasonExactAmount    = "exact amount"
	ReasonAmountWithin1  = "amount within 1%"
	ReasonAmountWithin5  = "amount within 5%"
	ReasonDateExact      = "date exact"
	ReasonDateNear       = "date within 2 days"
	ReasonDateFar        = "date within 5 days"
	ReasonTaxIDMatch     = "tax-id match"
	ReasonReferenceMatch = "reference match"
	ReasonCounterparty   = "counterparty name"
	ReasonLearnedPattern = "learned pattern"
)

var maxConfidence = decimal.NewFromInt(1)

// ScoreResult is the outcome of scoring one transaction against one document
type ScoreResult struct {
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
	AmountDiff int64    `json:"amount_diff"`
	DayDiff    int      `json:"day_diff"`
}

// Candidate pairs a document with its score for a given transaction
type Candidate struct {
	Document *models.Document
	*ScoreResult
}

// scoreBuilder accumulates weighted components and their reason tags
type scoreBuilder struct {
	sum     decimal.Decimal
	reasons []string
}

func (b *scoreBuilder) add(weight float64, reason string) {
	if weight <= 0 {
		return
	}
	b.sum = b.sum.Add(decimal.NewFromFloat(weight))
	b.reasons = append(b.reasons, reason)
}

// Score computes the match confidence and reasons for a (transaction,
// document) pair. It is deterministic and performs no I/O. Inactive patterns
// are ignored; only the first matching active pattern contributes.
func Score(cfg *ScoringConfig, tx *models.Transaction, doc *models.Document, patterns []*models.LearnedPattern) *ScoreResult {
	b := &scoreBuilder{sum: decimal.Zero, reasons: make([]string, 0, 6)}

	amountDiff := amountDifference(tx, doc)
	dayDiff := models.DaysBetween(tx.Date, doc.IssueDate)

	scoreAmount(cfg, b, amountDiff, doc.AbsAmount())
	scoreDate(cfg, b, dayDiff)

	if taxIDMatches(tx, doc) {
		b.add(cfg.TaxIDWeight, ReasonTaxIDMatch)
	}
	if referenceMatches(tx, doc) {
		b.add(cfg.ReferenceWeight, ReasonReferenceMatch)
	}
	if counterpartyMatches(tx, doc, cfg.CounterpartyPrefixLen) {
		b.add(cfg.CounterpartyWeight, ReasonCounterparty)
	}
	if p := firstMatchingPattern(tx, patterns); p != nil {
		b.add(p.ScoreBoost, ReasonLearnedPattern)
	}

	confidence, _ := decimal.Min(b.sum, maxConfidence).Float64()

	return &ScoreResult{
		Confidence: confidence,
		Reasons:    b.reasons,
		AmountDiff: amountDiff,
		DayDiff:    dayDiff,
	}
}

// amountDifference is | |tx| - |doc| | in minor units
func amountDifference(tx *models.Transaction, doc *models.Document) int64 {
	return models.AbsAmount(tx.AbsAmount() - doc.AbsAmount())
}

func scoreAmount(cfg *ScoringConfig, b *scoreBuilder, diff, docAbs int64) {
	if diff == 0 {
		b.add(cfg.Amount.ExactWeight, ReasonExactAmount)
		return
	}

	pct := decimal.NewFromInt(1)
	if docAbs != 0 {
		pct = decimal.NewFromInt(diff).Div(decimal.NewFromInt(docAbs))
	}

	switch {
	case pct.LessThanOrEqual(decimal.NewFromFloat(cfg.Amount.TightTolerance)):
		b.add(cfg.Amount.TightWeight, ReasonAmountWithin1)
	case pct.LessThanOrEqual(decimal.NewFromFloat(cfg.Amount.LooseTolerance)):
		b.add(cfg.Amount.LooseWeight, ReasonAmountWithin5)
	}
}

func scoreDate(cfg *ScoringConfig, b *scoreBuilder, days int) {
	switch {
	case days == 0:
		b.add(cfg.Date.ExactWeight, ReasonDateExact)
	case days <= cfg.Date.NearDays:
		b.add(cfg.Date.NearWeight, ReasonDateNear)
	case days <= cfg.Date.FarDays:
		b.add(cfg.Date.FarWeight, ReasonDateFar)
	}
}

func taxIDMatches(tx *models.Transaction, doc *models.Document) bool {
	issuer := NormalizeTaxID(doc.IssuerTaxID)
	if issuer == "" {
		return false
	}
	token := ExtractTaxID(tx.Description)
	if token == "" {
		token = ExtractTaxID(tx.NormalizedDescription)
	}
	return token != "" && NormalizeTaxID(token) == issuer
}

func referenceMatches(tx *models.Transaction, doc *models.Document) bool {
	ref := strings.ToUpper(strings.TrimSpace(tx.Reference))
	folio := strings.ToUpper(strings.TrimSpace(doc.Folio))
	if ref == "" || folio == "" {
		return false
	}
	return strings.Contains(folio, ref) || strings.Contains(ref, folio)
}

func counterpartyMatches(tx *models.Transaction, doc *models.Document, prefixLen int) bool {
	name := strings.ToUpper(strings.TrimSpace(doc.IssuerName))
	if name == "" {
		return false
	}
	prefix := prefixRunes(name, prefixLen)
	return strings.Contains(strings.ToUpper(tx.Description), prefix) ||
		strings.Contains(strings.ToUpper(tx.NormalizedDescription), prefix)
}

func firstMatchingPattern(tx *models.Transaction, patterns []*models.LearnedPattern) *models.LearnedPattern {
	text := strings.ToUpper(tx.MatchText())
	for _, p := range patterns {
		if p == nil || !p.Active || p.Fingerprint == "" {
			continue
		}
		if strings.Contains(text, p.Fingerprint) {
			return p
		}
	}
	return nil
}

// RankCandidates scores tx against every document not rejected by skip and
// returns the candidates ordered by confidence, highest first. Equal scores
// keep the input document order.
func RankCandidates(cfg *ScoringConfig, tx *models.Transaction, docs []*models.Document,
	patterns []*models.LearnedPattern, skip func(*models.Document) bool) []Candidate {
	candidates := make([]Candidate, 0, len(docs))
	for _, doc := range docs {
		if skip != nil && skip(doc) {
			continue
		}
		candidates = append(candidates, Candidate{Document: doc, ScoreResult: Score(cfg, tx, doc, patterns)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	return candidates
}

// BestCandidate returns the highest-scoring document for tx, the earliest
// document winning ties. ok is false when no document is eligible.
func BestCandidate(cfg *ScoringConfig, tx *models.Transaction, docs []*models.Document,
	patterns []*models.LearnedPattern, skip func(*models.Document) bool) (best Candidate, ok bool) {
	for _, doc := range docs {
		if skip != nil && skip(doc) {
			continue
		}
		result := Score(cfg, tx, doc, patterns)
		if !ok || result.Confidence > best.Confidence {
			best = Candidate{Document: doc, ScoreResult: result}
			ok = true
		}
	}
	return best, ok
}
