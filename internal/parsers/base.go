// Package parsers imports bank transactions and accounting documents from
// CSV exports and OFX bank statements.
//
// CSV files are read through BaseParser, which resolves columns by name
// (case-insensitively, with per-field aliases), skips blank rows and records
// a line-numbered ParseError for every row it has to reject. A bad row never
// aborts the import; the caller decides what to do with ParseStats.
//
// Example usage:
//
//	parser, err := NewTransactionParser(&CSVConfig{ClientID: "client-1"})
//	txs, stats, err := parser.ParseFile(ctx, "movements.csv")
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	apperrors "golang-reconciliation-engine/pkg/errors"
	"golang-reconciliation-engine/pkg/logger"
)

// ParseError describes one rejected row
type ParseError struct {
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d (%s=%q): %s: %v", e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("line %d (%s=%q): %s", e.Line, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseConfig holds the CSV dialect settings
type ParseConfig struct {
	HasHeader        bool
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int
	ValidateEncoding bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     1 << 16,
		ValidateEncoding: true,
	}
}

// BaseParser provides the CSV plumbing shared by the record parsers
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a BaseParser. A nil config selects DefaultParseConfig.
func NewBaseParser(config *ParseConfig) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}
	return &BaseParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("csv_parser"),
	}
}

// ParseContext holds state while a file is being read
type ParseContext struct {
	LineNumber int
	Headers    []string
	HeaderMap  map[string]int
	ctx        context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

// Err returns the cancellation error of the underlying context, if any
func (pc *ParseContext) Err() error {
	return pc.ctx.Err()
}

// ColumnIndex returns the index of the first of names present in the header,
// compared case-insensitively, or -1.
func (pc *ParseContext) ColumnIndex(names ...string) int {
	for _, name := range names {
		if index, ok := pc.HeaderMap[strings.ToLower(strings.TrimSpace(name))]; ok {
			return index
		}
	}
	return -1
}

// OpenFile opens a CSV file, checking its encoding first when configured
func (bp *BaseParser) OpenFile(filePath string) (*os.File, error) {
	file, err := os.Open(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open import file")
		if os.IsNotExist(err) {
			return nil, apperrors.FileError(apperrors.CodeFileNotFound, filePath, err)
		}
		if os.IsPermission(err) {
			return nil, apperrors.FileError(apperrors.CodeFilePermission, filePath, err)
		}
		return nil, apperrors.FileError(apperrors.CodeInvalidFormat, filePath, err)
	}

	if bp.config.ValidateEncoding {
		if err := bp.validateEncoding(file, filePath); err != nil {
			file.Close()
			return nil, err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, apperrors.FileError(apperrors.CodeInvalidFormat, filePath, err)
		}
	}
	return file, nil
}

// NewReader wraps r in a csv.Reader configured for the dialect
func (bp *BaseParser) NewReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comma = bp.config.Delimiter
	reader.Comment = bp.config.Comment
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	return reader
}

// validateEncoding checks the first lines of the file are valid UTF-8
func (bp *BaseParser) validateEncoding(file *os.File, filePath string) error {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() && line < 100 {
		line++
		if !utf8.Valid(scanner.Bytes()) {
			return apperrors.ParseError(apperrors.CodeInvalidFormat, filePath, line, "encoding", "",
				fmt.Errorf("invalid UTF-8 encoding")).
				WithSuggestion("Save the file in UTF-8 encoding and try again")
		}
	}
	if err := scanner.Err(); err != nil {
		return apperrors.FileError(apperrors.CodeInvalidFormat, filePath, err)
	}
	return nil
}

// ReadHeaders reads the header row and checks every required field resolves
// to a column. Each required entry lists a field's accepted names.
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, pc *ParseContext, required map[string][]string) error {
	if !bp.config.HasHeader {
		return apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "has_header", false,
			fmt.Errorf("columns are resolved by name, a header row is required"))
	}

	headers, err := reader.Read()
	if err == io.EOF {
		return apperrors.ValidationError(apperrors.CodeMissingField, "file_content", "empty", nil).
			WithSuggestion("Ensure the file contains a header row and data rows")
	}
	if err != nil {
		return apperrors.ParseError(apperrors.CodeInvalidFormat, "", 1, "headers", "", err)
	}

	pc.LineNumber, _ = reader.FieldPos(0)
	pc.Headers = make([]string, len(headers))
	pc.HeaderMap = make(map[string]int, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		pc.Headers[i] = h
		if _, dup := pc.HeaderMap[strings.ToLower(h)]; !dup {
			pc.HeaderMap[strings.ToLower(h)] = i
		}
	}

	var missing []string
	for field, names := range required {
		if pc.ColumnIndex(names...) == -1 {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		bp.logger.WithFields(logger.Fields{
			"missing_columns":   missing,
			"available_headers": pc.Headers,
		}).Error("Required columns are missing")
		return apperrors.ParseError(apperrors.CodeMissingColumn, "", pc.LineNumber,
			strings.Join(missing, ", "), "", nil).
			WithSuggestion("Ensure the CSV file contains these columns: " + strings.Join(missing, ", "))
	}
	return nil
}

// ReadRecord returns the next non-blank record, or io.EOF
func (bp *BaseParser) ReadRecord(reader *csv.Reader, pc *ParseContext) ([]string, error) {
	for {
		if err := pc.Err(); err != nil {
			return nil, err
		}

		record, err := reader.Read()
		if err != nil {
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				pc.LineNumber = csvErr.StartLine
			}
			return nil, err
		}
		pc.LineNumber, _ = reader.FieldPos(0)

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		if bp.config.MaxFieldSize > 0 {
			for i, field := range record {
				if len(field) > bp.config.MaxFieldSize {
					return nil, &ParseError{
						Line:    pc.LineNumber,
						Field:   columnName(pc, i),
						Value:   field[:32] + "...",
						Message: fmt.Sprintf("field exceeds %d bytes", bp.config.MaxFieldSize),
					}
				}
			}
		}
		return record, nil
	}
}

// Field returns the trimmed value of the first of names present in the
// header. A column absent from the header or the record yields "".
func (bp *BaseParser) Field(record []string, pc *ParseContext, names ...string) string {
	index := pc.ColumnIndex(names...)
	if index < 0 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func columnName(pc *ParseContext, index int) string {
	if index < len(pc.Headers) {
		return pc.Headers[index]
	}
	return fmt.Sprintf("column_%d", index)
}

// ParseStats holds statistics about one import
type ParseStats struct {
	TotalLines    int
	RecordsParsed int
	RecordsValid  int
	ErrorCount    int
	Errors        []*ParseError
}

// NewParseStats creates a new ParseStats instance
func NewParseStats() *ParseStats {
	return &ParseStats{Errors: make([]*ParseError, 0)}
}

// AddError records a rejected row
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if any row was rejected
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.ErrorCount)
}

// SampleErrors returns up to max rendered errors for logging
func (ps *ParseStats) SampleErrors(max int) []string {
	limit := len(ps.Errors)
	if max > 0 && max < limit {
		limit = max
	}
	samples := make([]string, 0, limit)
	for _, err := range ps.Errors[:limit] {
		samples = append(samples, err.Error())
	}
	return samples
}

// rowBuilder converts one CSV record into a value, or reports why it cannot
type rowBuilder[T any] func(record []string, pc *ParseContext) (T, *ParseError)

// parseRows drives a full CSV read. Rows that fail to build are recorded in
// the returned stats and skipped; only header and I/O problems abort.
func parseRows[T any](bp *BaseParser, ctx context.Context, r io.Reader, required map[string][]string, build rowBuilder[T]) ([]T, *ParseStats, error) {
	reader := bp.NewReader(r)
	pc := NewParseContext(ctx)
	stats := NewParseStats()

	if err := bp.ReadHeaders(reader, pc, required); err != nil {
		return nil, stats, err
	}

	var out []T
	for {
		record, err := bp.ReadRecord(reader, pc)
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctxErr := pc.Err(); ctxErr != nil {
				return out, stats, ctxErr
			}
			var rowErr *ParseError
			if !errors.As(err, &rowErr) {
				rowErr = &ParseError{Line: pc.LineNumber, Field: "record", Message: "malformed row", Err: err}
			}
			stats.AddError(rowErr)
			continue
		}

		stats.RecordsParsed++
		value, rowErr := build(record, pc)
		if rowErr != nil {
			stats.AddError(rowErr)
			continue
		}
		out = append(out, value)
		stats.RecordsValid++
	}

	stats.TotalLines = pc.LineNumber
	return out, stats, nil
}

// logStats reports the outcome of an import
func (bp *BaseParser) logStats(source string, stats *ParseStats) {
	log := bp.logger.WithFields(logger.Fields{
		"source":         source,
		"total_lines":    stats.TotalLines,
		"records_parsed": stats.RecordsParsed,
		"records_valid":  stats.RecordsValid,
		"error_count":    stats.ErrorCount,
	})
	log.Info("Import parsing completed")
	if stats.HasErrors() {
		log.WithField("sample_errors", stats.SampleErrors(3)).Warn("Rows were rejected during parsing")
	}
}
