package parsers

import (
	"context"
	"fmt"
	"io"

	"golang-reconciliation-engine/internal/models"
	apperrors "golang-reconciliation-engine/pkg/errors"
	"golang-reconciliation-engine/pkg/logger"
)

// TransactionParser reads bank movements from CSV exports
type TransactionParser struct {
	*BaseParser
	config *CSVConfig
	logger logger.Logger
}

// NewTransactionParser creates a TransactionParser. A nil config selects
// DefaultCSVConfig.
func NewTransactionParser(config *CSVConfig) (*TransactionParser, error) {
	if config == nil {
		config = DefaultCSVConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "csv_config", config, err).
			WithSuggestion("Check the delimiter and column alias settings")
	}

	return &TransactionParser{
		BaseParser: NewBaseParser(config.parseConfig()),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("transaction_parser"),
	}, nil
}

func (tp *TransactionParser) requiredColumns() map[string][]string {
	required := map[string][]string{
		FieldID:          tp.config.ColumnNames(FieldID),
		FieldDate:        tp.config.ColumnNames(FieldDate),
		FieldDescription: tp.config.ColumnNames(FieldDescription),
		FieldAmount:      tp.config.ColumnNames(FieldAmount),
	}
	if tp.config.ClientID == "" {
		required[FieldClientID] = tp.config.ColumnNames(FieldClientID)
	}
	return required
}

// ParseFile parses a transaction CSV file
func (tp *TransactionParser) ParseFile(ctx context.Context, filePath string) ([]*models.Transaction, *ParseStats, error) {
	file, err := tp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	txs, stats, err := tp.Parse(ctx, file)
	if err != nil {
		if rerr, ok := apperrors.AsReconcilerError(err); ok {
			return nil, stats, rerr.WithContext("file", filePath)
		}
		return nil, stats, err
	}
	tp.logStats(filePath, stats)
	return txs, stats, nil
}

// Parse reads transactions from r. Every returned transaction is pending,
// carries a normalized description and passes Validate.
func (tp *TransactionParser) Parse(ctx context.Context, r io.Reader) ([]*models.Transaction, *ParseStats, error) {
	seen := make(map[string]int)
	return parseRows(tp.BaseParser, ctx, r, tp.requiredColumns(),
		func(record []string, pc *ParseContext) (*models.Transaction, *ParseError) {
			tx, perr := tp.buildTransaction(record, pc)
			if perr != nil {
				return nil, perr
			}
			if first, dup := seen[tx.ID]; dup {
				return nil, &ParseError{Line: pc.LineNumber, Field: FieldID, Value: tx.ID,
					Message: fmt.Sprintf("duplicate id, first seen on line %d", first)}
			}
			seen[tx.ID] = pc.LineNumber
			return tx, nil
		})
}

func (tp *TransactionParser) buildTransaction(record []string, pc *ParseContext) (*models.Transaction, *ParseError) {
	field := func(name string) string {
		return tp.Field(record, pc, tp.config.ColumnNames(name)...)
	}

	id := field(FieldID)
	if id == "" {
		return nil, &ParseError{Line: pc.LineNumber, Field: FieldID, Message: "value is required"}
	}

	clientID := field(FieldClientID)
	if clientID == "" {
		clientID = tp.config.ClientID
	}

	rawDate := field(FieldDate)
	date, err := models.ParseDate(rawDate)
	if err != nil {
		return nil, &ParseError{Line: pc.LineNumber, Field: FieldDate, Value: rawDate, Message: "invalid date", Err: err}
	}

	rawAmount := field(FieldAmount)
	amount, err := models.ParseAmount(rawAmount)
	if err != nil {
		return nil, &ParseError{Line: pc.LineNumber, Field: FieldAmount, Value: rawAmount, Message: "invalid amount", Err: err}
	}

	description := field(FieldDescription)
	tx := &models.Transaction{
		ID:                    id,
		ClientID:              clientID,
		Date:                  date,
		Description:           description,
		NormalizedDescription: models.NormalizeDescription(description),
		Reference:             field(FieldReference),
		Amount:                amount,
		Category:              field(FieldCategory),
		ReconciliationState:   models.StatePending,
	}
	if err := tx.Validate(); err != nil {
		return nil, &ParseError{Line: pc.LineNumber, Field: "transaction", Value: id, Message: "invalid transaction", Err: err}
	}
	return tx, nil
}
