package errors

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RowLocation pinpoints a rejected input row
type RowLocation struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   string `json:"column,omitempty"`
	Value    string `json:"value,omitempty"`
	Expected string `json:"expected,omitempty"`
}

// RowError is a parse failure tied to one row of an import file
type RowError struct {
	*ReconcilerError
	Location    *RowLocation `json:"location"`
	Recoverable bool         `json:"recoverable"`
}

func (e *RowError) Error() string {
	if e.Location == nil {
		return e.ReconcilerError.Error()
	}
	location := fmt.Sprintf("at %s", filepath.Base(e.Location.File))
	if e.Location.Line > 0 {
		location += fmt.Sprintf(":%d", e.Location.Line)
	}
	if e.Location.Column != "" {
		location += fmt.Sprintf(" column '%s'", e.Location.Column)
	}
	return e.ReconcilerError.Error() + " " + location
}

// Detail renders a multi-line description for console output
func (e *RowError) Detail() string {
	lines := []string{fmt.Sprintf("ERROR: %s", e.Message)}
	if loc := e.Location; loc != nil {
		lines = append(lines, fmt.Sprintf("  → File: %s", loc.File))
		if loc.Line > 0 {
			lines = append(lines, fmt.Sprintf("  → Line: %d", loc.Line))
		}
		if loc.Column != "" {
			lines = append(lines, fmt.Sprintf("  → Column: %s", loc.Column))
		}
		if loc.Value != "" {
			lines = append(lines, fmt.Sprintf("  → Value: '%s'", loc.Value))
		}
		if loc.Expected != "" {
			lines = append(lines, fmt.Sprintf("  → Expected: %s", loc.Expected))
		}
	}
	if e.Suggestion != "" {
		lines = append(lines, fmt.Sprintf("  → Suggestion: %s", e.Suggestion))
	}
	return strings.Join(lines, "\n")
}

// NewRowError creates a recoverable row error
func NewRowError(code ErrorCode, loc *RowLocation, message string, cause error) *RowError {
	base := newOrWrap(cause, CategoryParse, code, message)
	if loc != nil {
		base.WithContext("file", loc.File).
			WithContext("line", loc.Line).
			WithContext("column", loc.Column).
			WithContext("value", loc.Value)
	}
	return &RowError{ReconcilerError: base, Location: loc, Recoverable: true}
}

// InvalidAmountError reports an unparseable amount cell
func InvalidAmountError(file string, line int, column, value string) *RowError {
	err := NewRowError(CodeInvalidAmount, &RowLocation{
		File: file, Line: line, Column: column, Value: value, Expected: "decimal number",
	}, "invalid amount format", nil)
	err.WithSuggestion("remove currency symbols and use decimal format, e.g. 1250.50")
	return err
}

// InvalidDateError reports an unparseable date cell
func InvalidDateError(file string, line int, column, value string) *RowError {
	err := NewRowError(CodeInvalidDate, &RowLocation{
		File: file, Line: line, Column: column, Value: value, Expected: "date in YYYY-MM-DD format",
	}, "invalid date format", nil)
	err.WithSuggestion("use YYYY-MM-DD")
	return err
}

// EmptyValueError reports a required cell left blank
func EmptyValueError(file string, line int, column string) *RowError {
	err := NewRowError(CodeMissingField, &RowLocation{
		File: file, Line: line, Column: column, Expected: "non-empty value",
	}, "required field is empty", nil)
	err.WithSuggestion("provide a value for this required field")
	return err
}

// RowErrorCollector accumulates row errors up to a limit
type RowErrorCollector struct {
	errors          []*RowError
	maxErrors       int
	continueOnError bool
}

func NewRowErrorCollector(maxErrors int, continueOnError bool) *RowErrorCollector {
	return &RowErrorCollector{maxErrors: maxErrors, continueOnError: continueOnError}
}

// Add records err and reports whether parsing should go on
func (c *RowErrorCollector) Add(err *RowError) bool {
	if err == nil {
		return true
	}
	c.errors = append(c.errors, err)
	if c.maxErrors > 0 && len(c.errors) >= c.maxErrors {
		return false
	}
	return c.continueOnError && err.Recoverable
}

func (c *RowErrorCollector) HasErrors() bool {
	return len(c.errors) > 0
}

func (c *RowErrorCollector) Errors() []*RowError {
	return c.errors
}

// Summary folds the collected row errors into an ErrorSummary
func (c *RowErrorCollector) Summary() *ErrorSummary {
	base := make([]*ReconcilerError, len(c.errors))
	for i, err := range c.errors {
		base[i] = err.ReconcilerError
	}
	return NewErrorSummary(base)
}

// FormatRowErrors formats row errors for a terminal, grouped by file
func FormatRowErrors(errs []*RowError) string {
	switch len(errs) {
	case 0:
		return "No parse errors"
	case 1:
		return errs[0].Detail()
	}

	lines := []string{fmt.Sprintf("Found %d parse errors:", len(errs))}
	byFile := make(map[string][]*RowError)
	var files []string
	for _, err := range errs {
		file := "unknown"
		if err.Location != nil {
			file = filepath.Base(err.Location.File)
		}
		if _, seen := byFile[file]; !seen {
			files = append(files, file)
		}
		byFile[file] = append(byFile[file], err)
	}

	const maxDetailed = 3
	for _, file := range files {
		fileErrs := byFile[file]
		lines = append(lines, "", fmt.Sprintf("File: %s (%d errors)", file, len(fileErrs)))
		for i, err := range fileErrs {
			if i == maxDetailed {
				lines = append(lines, "", fmt.Sprintf("... and %d more errors in this file", len(fileErrs)-maxDetailed))
				break
			}
			lines = append(lines, "", err.Detail())
		}
	}
	return strings.Join(lines, "\n")
}
