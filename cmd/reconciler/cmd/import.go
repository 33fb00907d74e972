package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"golang-reconciliation-engine/internal/models"
	"golang-reconciliation-engine/internal/parsers"
	"golang-reconciliation-engine/internal/reporter"
	apperrors "golang-reconciliation-engine/pkg/errors"

	"github.com/spf13/cobra"
)

// maxReportedRowErrors caps the rejected rows echoed in an import report
const maxReportedRowErrors = 10

func importCmd(s *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import bank transactions or tax documents",
		Long: `Import reads a file into the record store. Rows whose ID is already stored
are skipped, so re-importing a file is safe. Rows that cannot be parsed are
reported and left out unless --strict is given.`,
	}

	pf := cmd.PersistentFlags()
	pf.String("client", "", "client assigned to rows without a client_id column")
	pf.String("delimiter", ",", "CSV field delimiter: comma, semicolon, tab or pipe")
	pf.StringToString("column", nil, "map a field to a differently named header, e.g. --column amount=monto")
	pf.Bool("strict", false, "fail the import if any row is rejected")

	cmd.AddCommand(importTransactionsCmd(s), importDocumentsCmd(s))
	return cmd
}

func importTransactionsCmd(s *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transactions <file>",
		Short: "Import bank transactions from CSV or OFX",
		Example: `  reconciler import transactions bank.csv --client acme
  reconciler import transactions cartola.csv --delimiter semicolon --column amount=monto
  reconciler import transactions statement.qfx --client acme`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			ctx := cmd.Context()

			format, _ := cmd.Flags().GetString("format")
			format = resolveImportFormat(format, path)

			var (
				txs   []*models.Transaction
				stats *parsers.ParseStats
				err   error
			)
			switch format {
			case "csv":
				cfg, cerr := csvConfigFromFlags(cmd)
				if cerr != nil {
					return cerr
				}
				p, perr := parsers.NewTransactionParser(cfg)
				if perr != nil {
					return perr
				}
				txs, stats, err = p.ParseFile(ctx, path)
			case "ofx":
				client, _ := cmd.Flags().GetString("client")
				p, perr := parsers.NewOFXParser(client)
				if perr != nil {
					return perr
				}
				txs, stats, err = p.ParseFile(ctx, path)
			default:
				return apperrors.ValidationError(apperrors.CodeInvalidValue, "format", format, nil).
					WithSuggestion("use csv or ofx")
			}
			if err != nil {
				return err
			}
			if err := checkStrict(cmd, path, stats); err != nil {
				return err
			}

			st, err := s.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			svc, err := s.reconciliationService(st)
			if err != nil {
				return err
			}

			result, err := svc.ImportTransactions(ctx, txs)
			if err != nil {
				return err
			}
			return s.emit(cmd, func(rg *reporter.ReportGenerator, w io.Writer) error {
				return rg.Import(w, importReport("transactions", path, stats, result.Inserted, result.Skipped))
			})
		},
	}
	cmd.Flags().String("format", "", "input format: csv or ofx (default: from the file extension)")
	return cmd
}

func importDocumentsCmd(s *cliState) *cobra.Command {
	return &cobra.Command{
		Use:     "documents <file>",
		Short:   "Import tax documents from CSV",
		Example: `  reconciler import documents invoices.csv --client acme`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			ctx := cmd.Context()

			cfg, err := csvConfigFromFlags(cmd)
			if err != nil {
				return err
			}
			p, err := parsers.NewDocumentParser(cfg)
			if err != nil {
				return err
			}
			docs, stats, err := p.ParseFile(ctx, path)
			if err != nil {
				return err
			}
			if err := checkStrict(cmd, path, stats); err != nil {
				return err
			}

			st, err := s.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			svc, err := s.reconciliationService(st)
			if err != nil {
				return err
			}

			result, err := svc.ImportDocuments(ctx, docs)
			if err != nil {
				return err
			}
			return s.emit(cmd, func(rg *reporter.ReportGenerator, w io.Writer) error {
				return rg.Import(w, importReport("documents", path, stats, result.Inserted, result.Skipped))
			})
		},
	}
}

// resolveImportFormat falls back to the file extension when no format is given
func resolveImportFormat(format, path string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "" {
		return format
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ofx", ".qfx":
		return "ofx"
	}
	return "csv"
}

func csvConfigFromFlags(cmd *cobra.Command) (*parsers.CSVConfig, error) {
	flags := cmd.Flags()
	client, _ := flags.GetString("client")
	delimiter, _ := flags.GetString("delimiter")
	columns, _ := flags.GetStringToString("column")

	r, err := parsers.ParseDelimiter(delimiter)
	if err != nil {
		return nil, apperrors.ValidationError(apperrors.CodeInvalidValue, "delimiter", delimiter, err).
			WithSuggestion("use comma, semicolon, tab or pipe")
	}

	cfg := parsers.DefaultCSVConfig()
	cfg.ClientID = client
	cfg.Delimiter = r
	for field, column := range columns {
		cfg.ColumnAliases[strings.ToLower(strings.TrimSpace(field))] = strings.TrimSpace(column)
	}
	return cfg, nil
}

// checkStrict fails a --strict import that rejected rows, listing the
// rejected rows on the command's error stream
func checkStrict(cmd *cobra.Command, path string, stats *parsers.ParseStats) error {
	strict, _ := cmd.Flags().GetBool("strict")
	if !strict || !stats.HasErrors() {
		return nil
	}

	collector := apperrors.NewRowErrorCollector(0, true)
	for _, pe := range stats.Errors {
		collector.Add(rowError(path, pe))
	}
	fmt.Fprintln(cmd.ErrOrStderr(), apperrors.FormatRowErrors(collector.Errors()))

	summary := collector.Summary()
	first := collector.Errors()[0].ReconcilerError
	return first.
		WithContext("rejected_rows", summary.Total).
		WithSuggestion(fmt.Sprintf("fix the %d rejected rows or import without --strict", summary.Total))
}

// rowError converts a rejected CSV row into a located application error
func rowError(path string, pe *parsers.ParseError) *apperrors.RowError {
	switch {
	case pe.Field == parsers.FieldAmount || pe.Field == parsers.FieldTotalAmount:
		return apperrors.InvalidAmountError(path, pe.Line, pe.Field, pe.Value)
	case pe.Field == parsers.FieldDate || pe.Field == parsers.FieldIssueDate:
		return apperrors.InvalidDateError(path, pe.Line, pe.Field, pe.Value)
	case pe.Value == "" && pe.Err == nil:
		return apperrors.EmptyValueError(path, pe.Line, pe.Field)
	}
	return apperrors.NewRowError(apperrors.CodeInvalidData, &apperrors.RowLocation{
		File: path, Line: pe.Line, Column: pe.Field, Value: pe.Value,
	}, pe.Message, pe.Err)
}

func importReport(kind, path string, stats *parsers.ParseStats, inserted, skipped int) *reporter.ImportReport {
	return &reporter.ImportReport{
		Kind:     kind,
		Source:   path,
		Parsed:   stats.RecordsParsed,
		Inserted: inserted,
		Skipped:  skipped,
		Rejected: stats.ErrorCount,
		Errors:   stats.SampleErrors(maxReportedRowErrors),
	}
}
