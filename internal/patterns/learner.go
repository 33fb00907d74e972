// Package patterns learns per-client description fingerprints from manual
// confirmations and serves the active ones to the scoring path.
package patterns

import (
	"context"
	"time"
	"unicode/utf8"

	"golang-reconciliation-engine/internal/matcher"
	"golang-reconciliation-engine/internal/models"
	"golang-reconciliation-engine/internal/store"
	"golang-reconciliation-engine/pkg/logger"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Learner records a fingerprint each time a user confirms a match
type Learner struct {
	minLength int
	boost     float64
	logger    logger.Logger
	now       func() time.Time
}

// NewLearner builds a learner using the fingerprint length floor and boost of cfg
func NewLearner(cfg *matcher.ScoringConfig) *Learner {
	return &Learner{
		minLength: cfg.MinFingerprintLength,
		boost:     cfg.PatternBoost,
		logger:    logger.GetGlobalLogger().WithComponent("learner"),
		now:       time.Now,
	}
}

// Learn upserts the pattern for txn's fingerprint inside the caller's unit of
// work. A fingerprint too short to be a useful signal is skipped and Learn
// returns nil, nil.
func (l *Learner) Learn(ctx context.Context, q store.Tx, txn *models.Transaction, doc *models.Document) (*models.LearnedPattern, error) {
	fp := matcher.Fingerprint(txn.MatchText())
	log := l.logger.WithFields(logger.Fields{
		"client_id":      txn.ClientID,
		"transaction_id": txn.ID,
		"fingerprint":    fp,
	})

	if utf8.RuneCountInString(fp) < l.minLength {
		log.Debug("Fingerprint too short, skipping pattern learning")
		return nil, nil
	}

	now := l.now().UTC()
	existing, err := q.FindActivePattern(ctx, txn.ClientID, fp)
	switch {
	case err == nil:
		existing.TimesApplied++
		existing.LastApplied = &now
		if err := q.UpdatePattern(ctx, existing); err != nil {
			return nil, err
		}
		log.WithField("times_applied", existing.TimesApplied).Debug("Reinforced learned pattern")
		return existing, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	pattern := &models.LearnedPattern{
		ID:           uuid.NewString(),
		ClientID:     txn.ClientID,
		Fingerprint:  fp,
		Category:     txn.Category,
		TimesApplied: 1,
		ScoreBoost:   l.boost,
		Active:       true,
		LastApplied:  &now,
		CreatedAt:    now,
	}
	if doc != nil {
		pattern.CounterpartyTaxID = doc.IssuerTaxID
		pattern.DocumentType = doc.DocumentType
	}

	if err := q.InsertPattern(ctx, pattern); err != nil {
		return nil, err
	}
	log.WithField("pattern_id", pattern.ID).Info("Learned new pattern")
	return pattern, nil
}
