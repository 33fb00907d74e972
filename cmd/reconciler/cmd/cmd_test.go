package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang-reconciliation-engine/internal/models"
	"golang-reconciliation-engine/internal/reconciler"
	"golang-reconciliation-engine/internal/reporter"
	apperrors "golang-reconciliation-engine/pkg/errors"
)

const transactionsCSV = `id,date,description,amount
tx-1,2024-03-01,PAGO ZETA LTDA,-450.00
tx-2,2024-03-05,CARGO BANCO,-10.00
tx-3,2024-03-06,CARGO BANCO,-10.00
`

const documentsCSV = `id,issue_date,total_amount,issuer_name,folio
doc-1,2024-03-01,450.00,ZETA LTDA,F-100
`

type cliEnv struct {
	t   *testing.T
	dir string
	db  string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	return &cliEnv{t: t, dir: dir, db: filepath.Join(dir, "cli.db")}
}

func (e *cliEnv) file(name, content string) string {
	e.t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		e.t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

// run executes the command line against the environment's database and
// returns what it wrote to stdout
func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--db", e.db, "--env-file="))
	err := root.Execute()
	return out.String(), err
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	if err != nil {
		e.t.Fatalf("%s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func (e *cliEnv) mustRunJSON(v interface{}, args ...string) {
	e.t.Helper()
	out := e.mustRun(append(args, "--output-format", "json")...)
	if err := json.Unmarshal([]byte(out), v); err != nil {
		e.t.Fatalf("decoding %s output: %v\n%s", args[0], err, out)
	}
}

func (e *cliEnv) seed() {
	e.t.Helper()
	txFile := e.file("bank.csv", transactionsCSV)
	docFile := e.file("invoices.csv", documentsCSV)
	e.mustRun("import", "transactions", txFile, "--client", "acme")
	e.mustRun("import", "documents", docFile, "--client", "acme")
}

func TestImportIsIdempotent(t *testing.T) {
	env := newCLIEnv(t)
	txFile := env.file("bank.csv", transactionsCSV)

	var first reporter.ImportReport
	env.mustRunJSON(&first, "import", "transactions", txFile, "--client", "acme")
	if first.Parsed != 3 || first.Inserted != 3 || first.Skipped != 0 {
		t.Errorf("unexpected first import: %+v", first)
	}

	var second reporter.ImportReport
	env.mustRunJSON(&second, "import", "transactions", txFile, "--client", "acme")
	if second.Inserted != 0 || second.Skipped != 3 {
		t.Errorf("re-import should skip every row: %+v", second)
	}
}

func TestImportColumnMappingAndDelimiter(t *testing.T) {
	env := newCLIEnv(t)
	path := env.file("cartola.csv", "trx_id;fecha;glosa;cargo\nm-1;01/03/2024;PAGO ARRIENDO;-1200.00\n")

	var report reporter.ImportReport
	env.mustRunJSON(&report, "import", "transactions", path,
		"--client", "acme", "--delimiter", "semicolon", "--column", "amount=cargo")
	if report.Inserted != 1 || report.Rejected != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestImportRejectedRows(t *testing.T) {
	env := newCLIEnv(t)
	path := env.file("bank.csv", transactionsCSV+"tx-4,2024-03-07,BROKEN,not-a-number\n")

	var report reporter.ImportReport
	env.mustRunJSON(&report, "import", "transactions", path, "--client", "acme")
	if report.Inserted != 3 || report.Rejected != 1 || len(report.Errors) != 1 {
		t.Errorf("unexpected lenient report: %+v", report)
	}

	strictEnv := newCLIEnv(t)
	strictPath := strictEnv.file("bank.csv", transactionsCSV+"tx-4,2024-03-07,BROKEN,not-a-number\n")
	_, err := strictEnv.run("import", "transactions", strictPath, "--client", "acme", "--strict")
	if !apperrors.HasCategory(err, apperrors.CategoryParse) {
		t.Fatalf("expected parse error, got %v", err)
	}

	var summary reconciler.ReconcileSummary
	strictEnv.mustRunJSON(&summary, "reconcile", "--client", "acme")
	if summary.Total != 0 {
		t.Errorf("a strict import with rejected rows should store nothing, reconciled %d", summary.Total)
	}
}

func TestImportErrors(t *testing.T) {
	env := newCLIEnv(t)
	path := env.file("bank.csv", transactionsCSV)

	tests := []struct {
		name     string
		args     []string
		category apperrors.ErrorCategory
	}{
		{"missing file", []string{"import", "transactions", filepath.Join(env.dir, "nope.csv"), "--client", "acme"}, apperrors.CategoryFile},
		{"bad delimiter", []string{"import", "transactions", path, "--delimiter", "colon"}, apperrors.CategoryValidation},
		{"unknown format", []string{"import", "transactions", path, "--format", "xls"}, apperrors.CategoryValidation},
		{"unknown column field", []string{"import", "documents", path, "--column", "color=red"}, apperrors.CategoryConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(tt.args...)
			if !apperrors.HasCategory(err, tt.category) {
				t.Errorf("expected %s error, got %v", tt.category, err)
			}
		})
	}
}

func TestReconcileConfirmUndo(t *testing.T) {
	env := newCLIEnv(t)
	env.seed()

	if _, err := env.run("reconcile", "--client", "acme", "--period", "03-2024"); !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error for a malformed period, got %v", err)
	}

	var summary reconciler.ReconcileSummary
	env.mustRunJSON(&summary, "reconcile", "--client", "acme", "--period", "2024-03")
	if summary.Total != 3 || summary.Matched != 1 || summary.Unmatched != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	var records []*models.MatchRecord
	env.mustRunJSON(&records, "matches", "--client", "acme")
	var matchID string
	for _, r := range records {
		if r.TransactionID == "tx-1" {
			matchID = r.ID
			if r.DocumentID != "doc-1" || r.State != models.StateMatched {
				t.Errorf("unexpected record for tx-1: %+v", r)
			}
		}
	}
	if matchID == "" {
		t.Fatalf("no match record for tx-1 in %d records", len(records))
	}

	out := env.mustRun("undo", matchID)
	if !strings.Contains(out, "undone") {
		t.Errorf("unexpected undo output: %q", out)
	}
	if _, err := env.run("undo", matchID); !apperrors.IsNotFound(err) {
		t.Errorf("undoing twice should be not found, got %v", err)
	}

	var record models.MatchRecord
	env.mustRunJSON(&record, "confirm", "tx-1", "doc-1", "--user", "ana", "--notes", "checked")
	if record.Method != models.MethodManual || record.Confidence != 1 || record.ConfirmedBy != "ana" {
		t.Errorf("unexpected confirmation: %+v", record)
	}

	var learned []*models.LearnedPattern
	env.mustRunJSON(&learned, "patterns", "list", "--client", "acme")
	if len(learned) == 0 {
		t.Error("confirming a match should learn a pattern")
	}
}

func TestSuggestAndReject(t *testing.T) {
	env := newCLIEnv(t)
	env.seed()

	var result struct {
		TransactionID string                   `json:"transaction_id"`
		Suggestions   []*reconciler.Suggestion `json:"suggestions"`
	}
	env.mustRunJSON(&result, "suggest", "tx-1")
	if len(result.Suggestions) != 1 || result.Suggestions[0].Document.ID != "doc-1" {
		t.Errorf("unexpected suggestions: %+v", result)
	}

	out := env.mustRun("suggest", "tx-2", "--output-format", "json")
	if !strings.Contains(out, `"suggestions": []`) {
		t.Errorf("expected an empty list:\n%s", out)
	}

	if _, err := env.run("suggest", "tx-404"); !apperrors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	out = env.mustRun("reject", "tx-2", "--notes", "bank fee")
	if !strings.Contains(out, "rejected") {
		t.Errorf("unexpected reject output: %q", out)
	}
}

func TestDetectAndReviewAlerts(t *testing.T) {
	env := newCLIEnv(t)
	env.seed()

	var result struct {
		TransactionsAnalyzed int             `json:"transactions_analyzed"`
		AlertsCreated        int             `json:"alerts_created"`
		Alerts               []*models.Alert `json:"alerts"`
	}
	env.mustRunJSON(&result, "detect", "--client", "acme")
	if result.TransactionsAnalyzed != 3 || result.AlertsCreated != 1 {
		t.Fatalf("unexpected detection: %+v", result)
	}
	alert := result.Alerts[0]
	if alert.Kind != models.AlertPossibleDuplicate || alert.TransactionID != "tx-3" {
		t.Errorf("unexpected alert: %+v", alert)
	}

	again := env.mustRun("detect", "--client", "acme")
	if !strings.Contains(again, "3 transactions analyzed, 0 alerts created") {
		t.Errorf("a repeat run should still report its counts:\n%s", again)
	}

	var open []*models.Alert
	env.mustRunJSON(&open, "alerts", "list", "--client", "acme", "--state", "open")
	if len(open) != 1 {
		t.Errorf("expected 1 open alert, got %d", len(open))
	}

	var reviewed models.Alert
	env.mustRunJSON(&reviewed, "alerts", "review", alert.ID, "--state", "resolved")
	if reviewed.State != models.AlertResolved {
		t.Errorf("expected resolved, got %s", reviewed.State)
	}

	_, err := env.run("alerts", "review", alert.ID, "--state", "open")
	var rerr *apperrors.ReconcilerError
	if !errors.As(err, &rerr) || rerr.Category != apperrors.CategoryInvalidState {
		t.Errorf("reopening a resolved alert should be an invalid state error, got %v", err)
	}

	if _, err := env.run("alerts", "list", "--client", "acme", "--state", "bogus"); !apperrors.IsValidation(err) {
		t.Errorf("expected validation error for an unknown state, got %v", err)
	}
}

func TestMigrateStatus(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun("migrate", "--status")
	if !strings.Contains(out, "schema version 0") {
		t.Errorf("fresh database should be at version 0: %q", out)
	}

	out = env.mustRun("migrate")
	if !strings.Contains(out, "-> ") {
		t.Errorf("unexpected migrate output: %q", out)
	}
	out = env.mustRun("migrate", "--status")
	if strings.Contains(out, "schema version 0") {
		t.Errorf("migrated database still at version 0: %q", out)
	}
}

func TestOutputFile(t *testing.T) {
	env := newCLIEnv(t)
	env.seed()

	path := filepath.Join(env.dir, "run.csv")
	if out := env.mustRun("reconcile", "--client", "acme", "-f", "csv", "-o", path); out != "" {
		t.Errorf("nothing should reach stdout when writing to a file: %q", out)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	if !strings.Contains(string(data), "matched") {
		t.Errorf("unexpected report:\n%s", data)
	}
}

func TestInvalidConfiguration(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("matches", "--client", "acme", "--preset", "aggressive")
	if !apperrors.HasCategory(err, apperrors.CategoryConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}

	_, err = env.run("matches", "--client", "acme", "-f", "xml")
	if !apperrors.HasCategory(err, apperrors.CategoryConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestResolveImportFormat(t *testing.T) {
	tests := []struct {
		format, path, want string
	}{
		{"", "bank.csv", "csv"},
		{"", "statement.OFX", "ofx"},
		{"", "statement.qfx", "ofx"},
		{"CSV", "statement.ofx", "csv"},
		{"", "export", "csv"},
	}
	for _, tt := range tests {
		if got := resolveImportFormat(tt.format, tt.path); got != tt.want {
			t.Errorf("resolveImportFormat(%q, %q) = %q, want %q", tt.format, tt.path, got, tt.want)
		}
	}
}

func TestCLIErrorHandler(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     int
		contains []string
	}{
		{"nil", nil, 0, nil},
		{
			"validation",
			apperrors.ValidationError(apperrors.CodeInvalidValue, "period", "03-2024", nil).
				WithSuggestion("use the YYYY-MM format"),
			3,
			[]string{"Suggestion: use the YYYY-MM format", "Validation error help"},
		},
		{"not found", apperrors.NotFoundError("transaction", "tx-9"), 5, []string{"Lookup help"}},
		{"configuration", apperrors.ConfigurationError(apperrors.CodeInvalidConfig, "scoring.preset", "x", nil), 4, []string{"Configuration error help"}},
		{"missing file", fmt.Errorf("open: %w", os.ErrNotExist), 2, []string{"File not found"}},
		{"generic", errors.New("boom"), 1, []string{"Error: boom"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			code := NewCLIErrorHandler(&out, false).HandleError(tt.err)
			if code != tt.code {
				t.Errorf("exit code = %d, want %d", code, tt.code)
			}
			for _, want := range tt.contains {
				if !strings.Contains(out.String(), want) {
					t.Errorf("output missing %q:\n%s", want, out.String())
				}
			}
		})
	}
}
