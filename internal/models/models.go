package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "golang-reconciliation-engine/pkg/errors"
)

// ReconciliationState is the reconciliation outcome of a transaction or match record
type ReconciliationState string

const (
	StatePending   ReconciliationState = "pending"
	StateMatched   ReconciliationState = "matched"
	StatePartial   ReconciliationState = "partial"
	StateUnmatched ReconciliationState = "unmatched"
	StateManual    ReconciliationState = "manual"
)

func (s ReconciliationState) String() string {
	return string(s)
}

// IsValid checks if the state is one of the known states. The empty state is
// accepted on transactions only, see Transaction.IsReconcilable.
func (s ReconciliationState) IsValid() bool {
	switch s {
	case StatePending, StateMatched, StatePartial, StateUnmatched, StateManual:
		return true
	}
	return false
}

// ParseReconciliationState parses a state name case-insensitively
func ParseReconciliationState(s string) (ReconciliationState, error) {
	state := ReconciliationState(strings.ToLower(strings.TrimSpace(s)))
	if !state.IsValid() {
		return "", apperrors.ValidationError(apperrors.CodeInvalidValue, "state", s, nil)
	}
	return state, nil
}

// Transaction is a bank-account movement owned by a client
type Transaction struct {
	ID                    string              `json:"id" yaml:"id"`
	ClientID              string              `json:"client_id" yaml:"client_id"`
	Date                  time.Time           `json:"date" yaml:"date"`
	Description           string              `json:"description" yaml:"description"`
	NormalizedDescription string              `json:"normalized_description,omitempty" yaml:"normalized_description,omitempty"`
	Reference             string              `json:"reference,omitempty" yaml:"reference,omitempty"`
	Amount                int64               `json:"amount" yaml:"amount"`
	Category              string              `json:"category,omitempty" yaml:"category,omitempty"`
	ReconciliationState   ReconciliationState `json:"reconciliation_state" yaml:"reconciliation_state"`
	MatchedDocumentID     string              `json:"matched_document_id,omitempty" yaml:"matched_document_id,omitempty"`
	Version               int64               `json:"version" yaml:"version"`
}

// Validate performs basic validation on the Transaction
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return apperrors.ValidationError(apperrors.CodeMissingField, "id", t.ID, nil)
	}
	if strings.TrimSpace(t.ClientID) == "" {
		return apperrors.ValidationError(apperrors.CodeMissingField, "client_id", t.ClientID, nil)
	}
	if t.Date.IsZero() {
		return apperrors.ValidationError(apperrors.CodeInvalidDate, "date", t.Date, nil)
	}
	if t.ReconciliationState != "" && !t.ReconciliationState.IsValid() {
		return apperrors.ValidationError(apperrors.CodeInvalidValue, "reconciliation_state", t.ReconciliationState, nil)
	}
	return nil
}

// AbsAmount returns the unsigned amount in minor units
func (t *Transaction) AbsAmount() int64 {
	return AbsAmount(t.Amount)
}

// IsReconcilable reports whether the batch engine should pick the transaction up
func (t *Transaction) IsReconcilable() bool {
	return t.ReconciliationState == "" || t.ReconciliationState == StatePending
}

// CounterpartyKey is the grouping key for per-counterparty statistics
func (t *Transaction) CounterpartyKey() string {
	if t.NormalizedDescription != "" {
		return t.NormalizedDescription
	}
	return strings.ToUpper(strings.TrimSpace(t.Description))
}

// MatchText is the description used for fingerprinting and pattern lookups
func (t *Transaction) MatchText() string {
	if t.NormalizedDescription != "" {
		return t.NormalizedDescription
	}
	return t.Description
}

func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Client: %s, Amount: %s, Date: %s, State: %s}",
		t.ID, t.ClientID, FormatAmount(t.Amount), FormatDate(t.Date), t.ReconciliationState)
}

// MarshalJSON renders the date as a calendar date
func (t *Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	return json.Marshal(&struct {
		Date string `json:"date"`
		*Alias
	}{
		Date:  FormatDate(t.Date),
		Alias: (*Alias)(t),
	})
}

// Document is an accounting document (invoice, receipt) issued to or by a client
type Document struct {
	ID           string    `json:"id" yaml:"id"`
	ClientID     string    `json:"client_id" yaml:"client_id"`
	IssueDate    time.Time `json:"issue_date" yaml:"issue_date"`
	TotalAmount  int64     `json:"total_amount" yaml:"total_amount"`
	IssuerTaxID  string    `json:"issuer_tax_id" yaml:"issuer_tax_id"`
	IssuerName   string    `json:"issuer_name,omitempty" yaml:"issuer_name,omitempty"`
	Folio        string    `json:"folio,omitempty" yaml:"folio,omitempty"`
	DocumentType string    `json:"document_type,omitempty" yaml:"document_type,omitempty"`
	Version      int64     `json:"version" yaml:"version"`
}

// Validate performs basic validation on the Document
func (d *Document) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return apperrors.ValidationError(apperrors.CodeMissingField, "id", d.ID, nil)
	}
	if strings.TrimSpace(d.ClientID) == "" {
		return apperrors.ValidationError(apperrors.CodeMissingField, "client_id", d.ClientID, nil)
	}
	if d.IssueDate.IsZero() {
		return apperrors.ValidationError(apperrors.CodeInvalidDate, "issue_date", d.IssueDate, nil)
	}
	return nil
}

// AbsAmount returns the unsigned total in minor units
func (d *Document) AbsAmount() int64 {
	return AbsAmount(d.TotalAmount)
}

func (d *Document) String() string {
	return fmt.Sprintf("Document{ID: %s, Client: %s, Folio: %s, Total: %s, Issued: %s}",
		d.ID, d.ClientID, d.Folio, FormatAmount(d.TotalAmount), FormatDate(d.IssueDate))
}

// MarshalJSON renders the issue date as a calendar date
func (d *Document) MarshalJSON() ([]byte, error) {
	type Alias Document
	return json.Marshal(&struct {
		IssueDate string `json:"issue_date"`
		*Alias
	}{
		IssueDate: FormatDate(d.IssueDate),
		Alias:     (*Alias)(d),
	})
}
