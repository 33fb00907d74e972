package parsers

import (
	"context"
	"fmt"
	"io"

	"golang-reconciliation-engine/internal/models"
	apperrors "golang-reconciliation-engine/pkg/errors"
	"golang-reconciliation-engine/pkg/logger"
)

// DocumentParser reads invoices and receipts from CSV exports
type DocumentParser struct {
	*BaseParser
	config *CSVConfig
	logger logger.Logger
}

// NewDocumentParser creates a DocumentParser. A nil config selects
// DefaultCSVConfig.
func NewDocumentParser(config *CSVConfig) (*DocumentParser, error) {
	if config == nil {
		config = DefaultCSVConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "csv_config", config, err).
			WithSuggestion("Check the delimiter and column alias settings")
	}

	return &DocumentParser{
		BaseParser: NewBaseParser(config.parseConfig()),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("document_parser"),
	}, nil
}

func (dp *DocumentParser) requiredColumns() map[string][]string {
	required := map[string][]string{
		FieldID:          dp.config.ColumnNames(FieldID),
		FieldIssueDate:   dp.config.ColumnNames(FieldIssueDate),
		FieldTotalAmount: dp.config.ColumnNames(FieldTotalAmount),
	}
	if dp.config.ClientID == "" {
		required[FieldClientID] = dp.config.ColumnNames(FieldClientID)
	}
	return required
}

// ParseFile parses a document CSV file
func (dp *DocumentParser) ParseFile(ctx context.Context, filePath string) ([]*models.Document, *ParseStats, error) {
	file, err := dp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	docs, stats, err := dp.Parse(ctx, file)
	if err != nil {
		if rerr, ok := apperrors.AsReconcilerError(err); ok {
			return nil, stats, rerr.WithContext("file", filePath)
		}
		return nil, stats, err
	}
	dp.logStats(filePath, stats)
	return docs, stats, nil
}

// Parse reads documents from r
func (dp *DocumentParser) Parse(ctx context.Context, r io.Reader) ([]*models.Document, *ParseStats, error) {
	seen := make(map[string]int)
	return parseRows(dp.BaseParser, ctx, r, dp.requiredColumns(),
		func(record []string, pc *ParseContext) (*models.Document, *ParseError) {
			doc, perr := dp.buildDocument(record, pc)
			if perr != nil {
				return nil, perr
			}
			if first, dup := seen[doc.ID]; dup {
				return nil, &ParseError{Line: pc.LineNumber, Field: FieldID, Value: doc.ID,
					Message: fmt.Sprintf("duplicate id, first seen on line %d", first)}
			}
			seen[doc.ID] = pc.LineNumber
			return doc, nil
		})
}

func (dp *DocumentParser) buildDocument(record []string, pc *ParseContext) (*models.Document, *ParseError) {
	field := func(name string) string {
		return dp.Field(record, pc, dp.config.ColumnNames(name)...)
	}

	id := field(FieldID)
	if id == "" {
		return nil, &ParseError{Line: pc.LineNumber, Field: FieldID, Message: "value is required"}
	}

	clientID := field(FieldClientID)
	if clientID == "" {
		clientID = dp.config.ClientID
	}

	rawDate := field(FieldIssueDate)
	issued, err := models.ParseDate(rawDate)
	if err != nil {
		return nil, &ParseError{Line: pc.LineNumber, Field: FieldIssueDate, Value: rawDate, Message: "invalid date", Err: err}
	}

	rawTotal := field(FieldTotalAmount)
	total, err := models.ParseAmount(rawTotal)
	if err != nil {
		return nil, &ParseError{Line: pc.LineNumber, Field: FieldTotalAmount, Value: rawTotal, Message: "invalid amount", Err: err}
	}

	doc := &models.Document{
		ID:           id,
		ClientID:     clientID,
		IssueDate:    issued,
		TotalAmount:  total,
		IssuerTaxID:  field(FieldIssuerTaxID),
		IssuerName:   field(FieldIssuerName),
		Folio:        field(FieldFolio),
		DocumentType: field(FieldDocumentType),
	}
	if err := doc.Validate(); err != nil {
		return nil, &ParseError{Line: pc.LineNumber, Field: "document", Value: id, Message: "invalid document", Err: err}
	}
	return doc, nil
}
