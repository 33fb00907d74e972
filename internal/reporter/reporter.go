// Package reporter renders reconciliation and anomaly results for people and
// for other programs.
//
// Supported output formats:
//   - Console: aligned tables for terminal display
//   - JSON: structured data for programmatic consumption
//   - YAML: structured data for configuration-style tooling
//   - CSV: rows for spreadsheet applications
//
// Example usage:
//
//	rg, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = rg.ReconcileSummary(os.Stdout, summary)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"golang-reconciliation-engine/internal/anomaly"
	"golang-reconciliation-engine/internal/models"
	"golang-reconciliation-engine/internal/reconciler"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatYAML, FormatCSV:
		return true
	default:
		return false
	}
}

// ParseOutputFormat parses a format name case-insensitively
func ParseOutputFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", fmt.Errorf("invalid output format: %s (use console, json, yaml or csv)", s)
	}
	return f, nil
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" yaml:"format"`

	// UseColors styles console headings and severities
	UseColors bool `json:"use_colors" yaml:"use_colors"`
	// MaxItems caps console tables, 0 means no limit
	MaxItems int `json:"max_items" yaml:"max_items"`

	CSVDelimiter rune `json:"csv_delimiter" yaml:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" yaml:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:       FormatConsole,
		UseColors:    true,
		CSVDelimiter: ',',
		CSVHeaders:   true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxItems < 0 {
		return fmt.Errorf("max items cannot be negative, got %d", c.MaxItems)
	}
	if c.Format == FormatCSV && c.CSVDelimiter == 0 {
		return fmt.Errorf("csv delimiter cannot be empty")
	}
	return nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	highStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	mediumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// ReportGenerator renders results in the configured format
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator. A nil config selects
// DefaultReportConfig.
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// Config returns the active configuration
func (rg *ReportGenerator) Config() *ReportConfig {
	return rg.config
}

// table is the console and CSV rendition of a result
type table struct {
	title  string
	header []string
	rows   [][]string
	footer []string
}

// render writes payload as JSON or YAML, or t as a console or CSV table
func (rg *ReportGenerator) render(w io.Writer, payload interface{}, t *table) error {
	switch rg.config.Format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(payload)
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(payload); err != nil {
			return err
		}
		return encoder.Close()
	case FormatCSV:
		return rg.writeCSV(w, t)
	default:
		return rg.writeConsole(w, t)
	}
}

func (rg *ReportGenerator) writeCSV(w io.Writer, t *table) error {
	writer := csv.NewWriter(w)
	writer.Comma = rg.config.CSVDelimiter
	if rg.config.CSVHeaders {
		if err := writer.Write(t.header); err != nil {
			return err
		}
	}
	if err := writer.WriteAll(t.rows); err != nil {
		return err
	}
	return writer.Error()
}

func (rg *ReportGenerator) writeConsole(w io.Writer, t *table) error {
	if _, err := fmt.Fprintln(w, rg.style(titleStyle, t.title)); err != nil {
		return err
	}

	rows := t.rows
	truncated := 0
	if rg.config.MaxItems > 0 && len(rows) > rg.config.MaxItems {
		truncated = len(rows) - rg.config.MaxItems
		rows = rows[:rg.config.MaxItems]
	}

	if len(rows) == 0 {
		if _, err := fmt.Fprintln(w, "  (none)"); err != nil {
			return err
		}
	} else if err := rg.writeTable(w, t.header, rows, truncated); err != nil {
		return err
	}

	for _, line := range t.footer {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// writeTable aligns header and rows into columns; truncated rows are only counted
func (rg *ReportGenerator) writeTable(w io.Writer, columns []string, rows [][]string, truncated int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := make([]string, len(columns))
	rule := make([]string, len(columns))
	for i, h := range columns {
		header[i] = rg.style(headerStyle, h)
		rule[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	fmt.Fprintln(tw, strings.Join(rule, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if truncated > 0 {
		if _, err := fmt.Fprintf(w, "  ... %d more\n", truncated); err != nil {
			return err
		}
	}
	return nil
}

func (rg *ReportGenerator) style(s lipgloss.Style, text string) string {
	if !rg.config.UseColors {
		return text
	}
	return s.Render(text)
}

func (rg *ReportGenerator) severity(s models.Severity) string {
	switch s {
	case models.SeverityHigh:
		return rg.style(highStyle, string(s))
	case models.SeverityMedium:
		return rg.style(mediumStyle, string(s))
	}
	return string(s)
}

// ReconcileSummary renders the outcome of a batch run
func (rg *ReportGenerator) ReconcileSummary(w io.Writer, s *reconciler.ReconcileSummary) error {
	period := s.Period
	if period == "" {
		period = "all"
	}
	t := &table{
		title:  fmt.Sprintf("Reconciliation %s (%s)", s.ClientID, period),
		header: []string{"Metric", "Value"},
		rows: [][]string{
			{"client_id", s.ClientID},
			{"period", period},
			{"total", strconv.Itoa(s.Total)},
			{"matched", strconv.Itoa(s.Matched)},
			{"partial", strconv.Itoa(s.Partial)},
			{"unmatched", strconv.Itoa(s.Unmatched)},
			{"match_rate", percentage(s.MatchRate())},
			{"duration", s.Duration.String()},
		},
	}
	return rg.render(w, s, t)
}

// Suggestions renders the ranked candidate documents for a transaction
func (rg *ReportGenerator) Suggestions(w io.Writer, transactionID string, suggestions []*reconciler.Suggestion) error {
	t := &table{
		title:  fmt.Sprintf("Suggestions for %s", transactionID),
		header: []string{"Rank", "Document", "Folio", "Issuer", "Total", "Issued", "Confidence", "Amount Diff", "Day Diff", "Reasons"},
	}
	for i, s := range suggestions {
		t.rows = append(t.rows, []string{
			strconv.Itoa(i + 1),
			s.Document.ID,
			s.Document.Folio,
			s.Document.IssuerName,
			models.FormatAmount(s.Document.TotalAmount),
			models.FormatDate(s.Document.IssueDate),
			confidence(s.Confidence),
			models.FormatAmount(s.AmountDiff),
			strconv.Itoa(s.DayDiff),
			strings.Join(s.Reasons, "; "),
		})
	}
	payload := struct {
		TransactionID string                  `json:"transaction_id" yaml:"transaction_id"`
		Suggestions   []*reconciler.Suggestion `json:"suggestions" yaml:"suggestions"`
	}{transactionID, nonNil(suggestions)}
	return rg.render(w, payload, t)
}

// MatchRecords renders match records
func (rg *ReportGenerator) MatchRecords(w io.Writer, records []*models.MatchRecord) error {
	t := &table{
		title:  "Match records",
		header: []string{"ID", "Transaction", "Document", "State", "Confidence", "Method", "Period", "Confirmed By", "Reasons"},
	}
	for _, r := range records {
		t.rows = append(t.rows, []string{
			r.ID,
			r.TransactionID,
			r.DocumentID,
			string(r.State),
			confidence(r.Confidence),
			string(r.Method),
			r.Period,
			r.ConfirmedBy,
			strings.Join(r.Reasons, "; "),
		})
	}
	return rg.render(w, nonNil(records), t)
}

// MatchRecord renders a single match record, such as a confirmation
func (rg *ReportGenerator) MatchRecord(w io.Writer, record *models.MatchRecord) error {
	if rg.config.Format == FormatJSON || rg.config.Format == FormatYAML {
		return rg.render(w, record, nil)
	}
	return rg.MatchRecords(w, []*models.MatchRecord{record})
}

// Detection renders the outcome of an anomaly detection pass
func (rg *ReportGenerator) Detection(w io.Writer, result *anomaly.DetectionResult) error {
	t := rg.alertTable(fmt.Sprintf("Anomaly detection %s", result.ClientID), result.Alerts)
	t.footer = []string{fmt.Sprintf("%d transactions analyzed, %d alerts created",
		result.TransactionsAnalyzed, result.AlertsCreated)}
	return rg.render(w, result, t)
}

// Alerts renders alerts
func (rg *ReportGenerator) Alerts(w io.Writer, alerts []*models.Alert) error {
	return rg.render(w, nonNil(alerts), rg.alertTable("Alerts", alerts))
}

// Alert renders a single alert, such as the result of a review
func (rg *ReportGenerator) Alert(w io.Writer, alert *models.Alert) error {
	if rg.config.Format == FormatJSON || rg.config.Format == FormatYAML {
		return rg.render(w, alert, nil)
	}
	return rg.Alerts(w, []*models.Alert{alert})
}

func (rg *ReportGenerator) alertTable(title string, alerts []*models.Alert) *table {
	t := &table{
		title:  title,
		header: []string{"ID", "Kind", "Severity", "State", "Transaction", "Detected", "Reference", "Title"},
	}
	for _, a := range alerts {
		t.rows = append(t.rows, []string{
			a.ID,
			string(a.Kind),
			rg.severity(a.Severity),
			string(a.State),
			a.TransactionID,
			optionalAmount(a.DetectedAmount),
			optionalAmount(a.ReferenceAmount),
			a.Title,
		})
	}
	return t
}

// Patterns renders a client's learned patterns
func (rg *ReportGenerator) Patterns(w io.Writer, patterns []*models.LearnedPattern) error {
	t := &table{
		title:  "Learned patterns",
		header: []string{"ID", "Fingerprint", "Tax ID", "Document Type", "Applied", "Boost", "Active", "Last Applied"},
	}
	for _, p := range patterns {
		last := "never"
		if p.LastApplied != nil {
			last = models.FormatDate(*p.LastApplied)
		}
		t.rows = append(t.rows, []string{
			p.ID,
			p.Fingerprint,
			p.CounterpartyTaxID,
			p.DocumentType,
			strconv.Itoa(p.TimesApplied),
			confidence(p.ScoreBoost),
			strconv.FormatBool(p.Active),
			last,
		})
	}
	return rg.render(w, nonNil(patterns), t)
}

// ImportReport summarizes one file import
type ImportReport struct {
	Kind     string   `json:"kind" yaml:"kind"`
	Source   string   `json:"source" yaml:"source"`
	Parsed   int      `json:"parsed" yaml:"parsed"`
	Inserted int      `json:"inserted" yaml:"inserted"`
	Skipped  int      `json:"skipped" yaml:"skipped"`
	Rejected int      `json:"rejected" yaml:"rejected"`
	Errors   []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Import renders an import summary
func (rg *ReportGenerator) Import(w io.Writer, r *ImportReport) error {
	t := &table{
		title:  fmt.Sprintf("Imported %s from %s", r.Kind, r.Source),
		header: []string{"Metric", "Value"},
		rows: [][]string{
			{"parsed", strconv.Itoa(r.Parsed)},
			{"inserted", strconv.Itoa(r.Inserted)},
			{"skipped", strconv.Itoa(r.Skipped)},
			{"rejected", strconv.Itoa(r.Rejected)},
		},
		footer: r.Errors,
	}
	return rg.render(w, r, t)
}

func percentage(rate float64) string {
	return strconv.FormatFloat(rate*100, 'f', 1, 64) + "%"
}

func confidence(c float64) string {
	return strconv.FormatFloat(c, 'f', 2, 64)
}

func optionalAmount(amount *int64) string {
	if amount == nil {
		return ""
	}
	return models.FormatAmount(*amount)
}

// nonNil keeps empty results rendering as [] rather than null
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
