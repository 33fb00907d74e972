// Package reconciler implements the reconciliation operations: candidate
// suggestion, the batch matching run, and the manual confirm, undo and reject
// actions.
//
// Every public operation runs as a single unit of work against the record
// store, so callers never observe partial state.
package reconciler

import (
	"context"
	"strings"
	"time"

	"golang-reconciliation-engine/internal/matcher"
	"golang-reconciliation-engine/internal/models"
	"golang-reconciliation-engine/internal/patterns"
	"golang-reconciliation-engine/internal/store"
	apperrors "golang-reconciliation-engine/pkg/errors"
	"golang-reconciliation-engine/pkg/logger"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ReconciliationService coordinates scoring, persistence and pattern learning
type ReconciliationService struct {
	store   store.Store
	config  *matcher.ScoringConfig
	learner *patterns.Learner
	cache   *patterns.Cache
	retry   RetryOptions
	logger  logger.Logger
	now     func() time.Time
	newID   func() string
}

// Option customizes a ReconciliationService
type Option func(*ReconciliationService)

// WithPatternCache shares a pattern cache between services
func WithPatternCache(c *patterns.Cache) Option {
	return func(s *ReconciliationService) { s.cache = c }
}

// WithRetryOptions overrides the conflict retry policy of the batch run
func WithRetryOptions(o RetryOptions) Option {
	return func(s *ReconciliationService) { s.retry = o }
}

// WithClock overrides the time source used for record timestamps
func WithClock(now func() time.Time) Option {
	return func(s *ReconciliationService) { s.now = now }
}

// NewReconciliationService creates a service over st. A nil cfg selects
// matcher.DefaultScoringConfig.
func NewReconciliationService(st store.Store, cfg *matcher.ScoringConfig, opts ...Option) (*ReconciliationService, error) {
	if st == nil {
		return nil, apperrors.ValidationError(apperrors.CodeMissingField, "store", nil, nil)
	}
	if cfg == nil {
		cfg = matcher.DefaultScoringConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &ReconciliationService{
		store:  st,
		config: cfg.Clone(),
		retry:  DefaultRetryOptions(),
		logger: logger.GetGlobalLogger().WithComponent("reconciler"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = patterns.NewCache(patterns.DefaultCacheTTL)
	}
	s.learner = patterns.NewLearner(s.config)
	return s, nil
}

// Config returns a copy of the scoring configuration in use
func (s *ReconciliationService) Config() *matcher.ScoringConfig {
	return s.config.Clone()
}

// Suggestion is a ranked candidate document for a transaction
type Suggestion struct {
	Document   *models.Document `json:"document" yaml:"document"`
	Confidence float64          `json:"confidence" yaml:"confidence"`
	Reasons    []string         `json:"reasons" yaml:"reasons"`
	AmountDiff int64            `json:"amount_diff" yaml:"amount_diff"`
	DayDiff    int              `json:"day_diff" yaml:"day_diff"`
}

// Suggest returns up to SuggestionLimit candidate documents for a transaction
// whose confidence exceeds SuggestionFloor, best first. Documents already
// bound to a matched record are never suggested.
func (s *ReconciliationService) Suggest(ctx context.Context, transactionID string) ([]*Suggestion, error) {
	var suggestions []*Suggestion

	err := s.store.RunInTx(ctx, func(q store.Tx) error {
		tx, err := q.GetTransaction(ctx, transactionID)
		if err != nil {
			return notFound(err, "transaction", transactionID)
		}

		docs, err := q.ListDocuments(ctx, store.DocumentFilter{ClientID: tx.ClientID})
		if err != nil {
			return err
		}
		consumed, err := q.MatchedDocumentIDs(ctx, tx.ClientID)
		if err != nil {
			return err
		}
		active, err := s.cache.Active(ctx, q, tx.ClientID)
		if err != nil {
			return err
		}

		ranked := matcher.RankCandidates(s.config, tx, docs, active, func(d *models.Document) bool {
			return consumed[d.ID]
		})

		suggestions = make([]*Suggestion, 0, s.config.SuggestionLimit)
		for _, c := range ranked {
			if c.Confidence <= s.config.SuggestionFloor || len(suggestions) == s.config.SuggestionLimit {
				break
			}
			suggestions = append(suggestions, &Suggestion{
				Document:   c.Document,
				Confidence: c.Confidence,
				Reasons:    c.Reasons,
				AmountDiff: c.AmountDiff,
				DayDiff:    c.DayDiff,
			})
		}
		return nil
	})
	if err != nil {
		return nil, translate("suggest", err)
	}

	s.logger.WithFields(logger.Fields{
		"transaction_id": transactionID,
		"suggestions":    len(suggestions),
	}).Debug("Computed suggestions")
	return suggestions, nil
}

// ConfirmRequest is a user's manual binding of a transaction to a document
type ConfirmRequest struct {
	TransactionID string
	DocumentID    string
	UserID        string
	Notes         string
}

// Validate checks that both IDs are present
func (r *ConfirmRequest) Validate() error {
	if strings.TrimSpace(r.TransactionID) == "" {
		return apperrors.ValidationError(apperrors.CodeMissingField, "transaction_id", r.TransactionID, nil)
	}
	if strings.TrimSpace(r.DocumentID) == "" {
		return apperrors.ValidationError(apperrors.CodeMissingField, "document_id", r.DocumentID, nil)
	}
	return nil
}

// Confirm binds a transaction to a document with full confidence, overriding
// any automatic classification, and teaches the pattern learner. The
// transaction's latest match record is updated in place, or created when
// there is none.
func (s *ReconciliationService) Confirm(ctx context.Context, req ConfirmRequest) (*models.MatchRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		record   *models.MatchRecord
		clientID string
	)
	err := s.store.RunInTx(ctx, func(q store.Tx) error {
		tx, err := q.GetTransaction(ctx, req.TransactionID)
		if err != nil {
			return notFound(err, "transaction", req.TransactionID)
		}
		if strings.TrimSpace(tx.ClientID) == "" {
			return apperrors.NotFoundError("transaction", req.TransactionID).
				WithContext("reason", "transaction has no owning client").
				WithSuggestion("assign the transaction to a client before confirming")
		}
		doc, err := q.GetDocument(ctx, req.DocumentID)
		if err != nil {
			return notFound(err, "document", req.DocumentID)
		}
		// documents of other clients are reported as missing
		if doc.ClientID != tx.ClientID {
			return apperrors.NotFoundError("document", req.DocumentID).
				WithContext("client_id", tx.ClientID)
		}
		clientID = tx.ClientID

		log := s.logger.WithFields(logger.Fields{
			"transaction_id": tx.ID,
			"document_id":    doc.ID,
			"user_id":        req.UserID,
		})

		consumed, err := q.MatchedDocumentIDs(ctx, tx.ClientID)
		if err != nil {
			return err
		}
		if consumed[doc.ID] && tx.MatchedDocumentID != doc.ID {
			log.Warn("Confirming a document that is already bound to another matched record")
		}

		now := s.now().UTC()
		score := matcher.Score(s.config, tx, doc, nil)

		record, err = q.LatestMatchRecord(ctx, tx.ID)
		existing := err == nil
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if !existing {
			record = &models.MatchRecord{
				ID:            s.newID(),
				TransactionID: tx.ID,
				ClientID:      tx.ClientID,
				CreatedAt:     now,
			}
		}

		record.DocumentID = doc.ID
		record.Confidence = 1.0
		record.State = models.StateMatched
		record.AmountDiff = score.AmountDiff
		record.DayDiff = score.DayDiff
		record.Reasons = score.Reasons
		record.Period = models.PeriodOf(tx.Date)
		record.Method = models.MethodManual
		record.ConfirmedBy = req.UserID
		record.ConfirmedAt = &now
		if req.Notes != "" {
			record.Notes = req.Notes
		}

		if existing {
			err = q.UpdateMatchRecord(ctx, record)
		} else {
			err = q.InsertMatchRecord(ctx, record)
		}
		if err != nil {
			return err
		}

		tx.ReconciliationState = models.StateMatched
		tx.MatchedDocumentID = doc.ID
		if err := q.UpdateTransaction(ctx, tx); err != nil {
			return err
		}

		if _, err := s.learner.Learn(ctx, q, tx, doc); err != nil {
			return err
		}

		log.WithField("match_record_id", record.ID).Info("Match confirmed")
		return nil
	})
	if err != nil {
		return nil, translate("confirm", err)
	}

	s.cache.Invalidate(clientID)
	return record, nil
}

// Undo removes a match record and returns its transaction to pending.
// Learned patterns are kept.
func (s *ReconciliationService) Undo(ctx context.Context, matchRecordID string) error {
	err := s.store.RunInTx(ctx, func(q store.Tx) error {
		record, err := q.GetMatchRecord(ctx, matchRecordID)
		if err != nil {
			return notFound(err, "match record", matchRecordID)
		}
		tx, err := q.GetTransaction(ctx, record.TransactionID)
		if err != nil {
			return notFound(err, "transaction", record.TransactionID)
		}

		tx.ReconciliationState = models.StatePending
		tx.MatchedDocumentID = ""
		if err := q.UpdateTransaction(ctx, tx); err != nil {
			return err
		}
		if err := q.DeleteMatchRecord(ctx, record.ID); err != nil {
			return err
		}

		s.logger.WithFields(logger.Fields{
			"match_record_id": record.ID,
			"transaction_id":  tx.ID,
		}).Info("Match undone")
		return nil
	})
	return translate("undo", err)
}

// Reject marks a transaction unmatched. Its latest match record, if any, is
// kept with the unmatched state and the rejection notes.
func (s *ReconciliationService) Reject(ctx context.Context, transactionID, notes string) error {
	err := s.store.RunInTx(ctx, func(q store.Tx) error {
		tx, err := q.GetTransaction(ctx, transactionID)
		if err != nil {
			return notFound(err, "transaction", transactionID)
		}

		tx.ReconciliationState = models.StateUnmatched
		tx.MatchedDocumentID = ""
		if err := q.UpdateTransaction(ctx, tx); err != nil {
			return err
		}

		record, err := q.LatestMatchRecord(ctx, tx.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		default:
			record.State = models.StateUnmatched
			if notes != "" {
				record.Notes = notes
			}
			if err := q.UpdateMatchRecord(ctx, record); err != nil {
				return err
			}
		}

		s.logger.WithField("transaction_id", tx.ID).Info("Transaction rejected")
		return nil
	})
	return translate("reject", err)
}

// ListMatchRecords returns a client's match records, optionally for one period
func (s *ReconciliationService) ListMatchRecords(ctx context.Context, clientID, period string) ([]*models.MatchRecord, error) {
	var out []*models.MatchRecord
	err := s.store.RunInTx(ctx, func(q store.Tx) error {
		var err error
		out, err = q.ListMatchRecords(ctx, store.MatchFilter{ClientID: clientID, Period: period})
		return err
	})
	return out, translate("list match records", err)
}

// ListPatterns returns every learned pattern of a client, active or not
func (s *ReconciliationService) ListPatterns(ctx context.Context, clientID string) ([]*models.LearnedPattern, error) {
	var out []*models.LearnedPattern
	err := s.store.RunInTx(ctx, func(q store.Tx) error {
		var err error
		out, err = q.ListPatterns(ctx, clientID)
		return err
	})
	return out, translate("list patterns", err)
}

// notFound converts a store miss into a typed not-found error for entity
func notFound(err error, entity, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NotFoundError(entity, id)
	}
	return err
}

// translate maps store sentinels onto the application error taxonomy
func translate(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrConflict) {
		return apperrors.ConflictError(operation, err)
	}
	if _, ok := apperrors.AsReconcilerError(err); ok {
		return err
	}
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.Wrap(err, apperrors.CategoryNotFound, apperrors.CodeEntityNotFound, operation)
	}
	return apperrors.InternalError(operation, err)
}
