package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang-reconciliation-engine/internal/matcher"
	"golang-reconciliation-engine/internal/models"
	"golang-reconciliation-engine/internal/store"
	apperrors "golang-reconciliation-engine/pkg/errors"
	"golang-reconciliation-engine/pkg/logger"
)

const periodLayout = "2006-01"

// ReconcileSummary counts the outcomes of one batch run
type ReconcileSummary struct {
	ClientID  string        `json:"client_id" yaml:"client_id"`
	Period    string        `json:"period,omitempty" yaml:"period,omitempty"`
	Total     int           `json:"total" yaml:"total"`
	Matched   int           `json:"matched" yaml:"matched"`
	Partial   int           `json:"partial" yaml:"partial"`
	Unmatched int           `json:"unmatched" yaml:"unmatched"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

func (s *ReconcileSummary) String() string {
	return fmt.Sprintf("Reconcile{client: %s, period: %q, total: %d, matched: %d, partial: %d, unmatched: %d}",
		s.ClientID, s.Period, s.Total, s.Matched, s.Partial, s.Unmatched)
}

// MatchRate is the fraction of processed transactions that matched
func (s *ReconcileSummary) MatchRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Matched) / float64(s.Total)
}

// ValidatePeriod checks an optional YYYY-MM period filter
func ValidatePeriod(period string) error {
	if period == "" {
		return nil
	}
	if _, err := time.Parse(periodLayout, period); err != nil {
		return apperrors.ValidationError(apperrors.CodeInvalidDate, "period", period, err).
			WithSuggestion("use the YYYY-MM format, e.g. 2024-03")
	}
	return nil
}

// Reconcile runs the batch matching pass for a client's pending transactions,
// optionally restricted to one YYYY-MM period.
//
// Transactions are processed largest absolute amount first; each is scored
// against every document not yet consumed, and the best candidate decides its
// classification. A matched document is consumed for the rest of the run.
// One match record is written per transaction whatever the outcome. The run
// is a single unit of work and is retried from scratch if a concurrent writer
// modifies a transaction or document it touched.
func (s *ReconciliationService) Reconcile(ctx context.Context, clientID, period string) (*ReconcileSummary, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, apperrors.ValidationError(apperrors.CodeMissingClient, "client_id", clientID, nil)
	}
	if err := ValidatePeriod(period); err != nil {
		return nil, err
	}

	log := s.logger.WithClient(clientID).WithField("period", period)
	start := time.Now()

	var summary *ReconcileSummary
	err := withConflictRetry(ctx, s.retry, "reconcile", log, func(ctx context.Context) error {
		return s.store.RunInTx(ctx, func(q store.Tx) error {
			var err error
			summary, err = s.reconcile(ctx, q, clientID, period)
			return err
		})
	})
	if err != nil {
		log.WithError(err).Error("Reconciliation failed")
		return nil, translate("reconcile", err)
	}

	summary.Duration = time.Since(start)
	log.WithFields(logger.Fields{
		"total":     summary.Total,
		"matched":   summary.Matched,
		"partial":   summary.Partial,
		"unmatched": summary.Unmatched,
		"duration":  summary.Duration.String(),
	}).Info("Reconciliation completed")
	return summary, nil
}

func (s *ReconciliationService) reconcile(ctx context.Context, q store.Tx, clientID, period string) (*ReconcileSummary, error) {
	summary := &ReconcileSummary{ClientID: clientID, Period: period}

	txs, err := q.ListTransactions(ctx, store.TransactionFilter{
		ClientID: clientID,
		States:   []models.ReconciliationState{models.StatePending, ""},
		Period:   period,
	})
	if err != nil {
		return nil, err
	}
	docs, err := q.ListDocuments(ctx, store.DocumentFilter{ClientID: clientID})
	if err != nil {
		return nil, err
	}
	consumed, err := q.MatchedDocumentIDs(ctx, clientID)
	if err != nil {
		return nil, err
	}
	active, err := q.ActivePatterns(ctx, clientID)
	if err != nil {
		return nil, err
	}
	s.cache.Put(clientID, active)

	s.logger.WithFields(logger.Fields{
		"client_id":        clientID,
		"transactions":     len(txs),
		"documents":        len(docs),
		"consumed":         len(consumed),
		"learned_patterns": len(active),
	}).Debug("Loaded reconciliation inputs")

	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "reconcile " + clientID,
		Total:     int64(len(txs)),
		Logger:    s.logger,
	})

	isConsumed := func(d *models.Document) bool { return consumed[d.ID] }
	now := s.now().UTC()

	queue := matcher.NewAmountQueue(txs)
	for tx := queue.Pop(); tx != nil; tx = queue.Pop() {
		if err := ctx.Err(); err != nil {
			progress.CompleteWithError(err)
			return nil, err
		}

		record := &models.MatchRecord{
			ID:            s.newID(),
			TransactionID: tx.ID,
			ClientID:      clientID,
			State:         models.StateUnmatched,
			Reasons:       []string{},
			Period:        models.PeriodOf(tx.Date),
			Method:        models.MethodAuto,
			CreatedAt:     now,
		}

		best, ok := matcher.BestCandidate(s.config, tx, docs, active, isConsumed)
		if ok {
			record.DocumentID = best.Document.ID
			record.Confidence = best.Confidence
			record.Reasons = best.Reasons
			record.AmountDiff = best.AmountDiff
			record.DayDiff = best.DayDiff
			record.State = s.config.Classify(best.Confidence)
		}

		if record.State == models.StateMatched {
			if err := q.TouchDocument(ctx, best.Document); err != nil {
				progress.CompleteWithError(err)
				return nil, err
			}
			consumed[best.Document.ID] = true
			tx.MatchedDocumentID = best.Document.ID
		}

		tx.ReconciliationState = record.State
		if err := q.UpdateTransaction(ctx, tx); err != nil {
			progress.CompleteWithError(err)
			return nil, err
		}
		if err := q.InsertMatchRecord(ctx, record); err != nil {
			progress.CompleteWithError(err)
			return nil, err
		}

		summary.Total++
		switch record.State {
		case models.StateMatched:
			summary.Matched++
		case models.StatePartial:
			summary.Partial++
		default:
			summary.Unmatched++
		}
		progress.Record(string(record.State))
	}

	progress.Complete()
	return summary, nil
}
