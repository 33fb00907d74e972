package reconciler

import (
	"context"

	"golang-reconciliation-engine/internal/models"
	"golang-reconciliation-engine/internal/store"
	"golang-reconciliation-engine/pkg/logger"
)

// ImportResult counts what an import wrote. Records whose ID already exists
// are skipped, so importing the same file twice is harmless.
type ImportResult struct {
	Inserted int
	Skipped  int
}

// ImportTransactions stores parsed bank transactions in one unit of work
func (s *ReconciliationService) ImportTransactions(ctx context.Context, txs []*models.Transaction) (*ImportResult, error) {
	result := &ImportResult{}
	err := s.store.RunInTx(ctx, func(q store.Tx) error {
		result.Inserted, result.Skipped = 0, 0
		for _, tx := range txs {
			if err := tx.Validate(); err != nil {
				return err
			}
			if tx.ReconciliationState == "" {
				tx.ReconciliationState = models.StatePending
			}
			ok, err := q.InsertTransaction(ctx, tx)
			if err != nil {
				return err
			}
			if ok {
				result.Inserted++
			} else {
				result.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return nil, translate("import_transactions", err)
	}

	s.logger.WithFields(logger.Fields{
		"inserted": result.Inserted,
		"skipped":  result.Skipped,
	}).Info("Imported transactions")
	return result, nil
}

// ImportDocuments stores parsed tax documents in one unit of work
func (s *ReconciliationService) ImportDocuments(ctx context.Context, docs []*models.Document) (*ImportResult, error) {
	result := &ImportResult{}
	err := s.store.RunInTx(ctx, func(q store.Tx) error {
		result.Inserted, result.Skipped = 0, 0
		for _, d := range docs {
			if err := d.Validate(); err != nil {
				return err
			}
			ok, err := q.InsertDocument(ctx, d)
			if err != nil {
				return err
			}
			if ok {
				result.Inserted++
			} else {
				result.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return nil, translate("import_documents", err)
	}

	s.logger.WithFields(logger.Fields{
		"inserted": result.Inserted,
		"skipped":  result.Skipped,
	}).Info("Imported documents")
	return result, nil
}
