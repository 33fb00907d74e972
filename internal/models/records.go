package models

import (
	"fmt"
	"strings"
	"time"

	apperrors "golang-reconciliation-engine/pkg/errors"
)

// MatchMethod records how a match record was produced
type MatchMethod string

const (
	MethodAuto   MatchMethod = "auto"
	MethodManual MatchMethod = "manual"
)

// MatchRecord is the authoritative reconciliation outcome for one transaction
type MatchRecord struct {
	ID            string              `json:"id" yaml:"id"`
	TransactionID string              `json:"transaction_id" yaml:"transaction_id"`
	DocumentID    string              `json:"document_id,omitempty" yaml:"document_id,omitempty"`
	ClientID      string              `json:"client_id" yaml:"client_id"`
	Confidence    float64             `json:"confidence" yaml:"confidence"`
	State         ReconciliationState `json:"state" yaml:"state"`
	AmountDiff    int64               `json:"amount_diff" yaml:"amount_diff"`
	DayDiff       int                 `json:"day_diff" yaml:"day_diff"`
	Reasons       []string            `json:"reasons" yaml:"reasons"`
	Period        string              `json:"period,omitempty" yaml:"period,omitempty"`
	Method        MatchMethod         `json:"method" yaml:"method"`
	ConfirmedBy   string              `json:"confirmed_by,omitempty" yaml:"confirmed_by,omitempty"`
	ConfirmedAt   *time.Time          `json:"confirmed_at,omitempty" yaml:"confirmed_at,omitempty"`
	Notes         string              `json:"notes,omitempty" yaml:"notes,omitempty"`
	CreatedAt     time.Time           `json:"created_at" yaml:"created_at"`
}

// Validate checks the record's invariants
func (m *MatchRecord) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return apperrors.ValidationError(apperrors.CodeMissingField, "id", m.ID, nil)
	}
	if strings.TrimSpace(m.TransactionID) == "" {
		return apperrors.ValidationError(apperrors.CodeMissingField, "transaction_id", m.TransactionID, nil)
	}
	if !m.State.IsValid() {
		return apperrors.ValidationError(apperrors.CodeInvalidValue, "state", m.State, nil)
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return apperrors.ValidationError(apperrors.CodeOutOfRange, "confidence", m.Confidence, nil)
	}
	if m.State == StateMatched && m.DocumentID == "" {
		return apperrors.ValidationError(apperrors.CodeMissingField, "document_id", m.DocumentID, nil).
			WithSuggestion("a matched record must reference a document")
	}
	if m.Method == MethodManual && m.State == StateMatched && m.Confidence != 1.0 {
		return apperrors.ValidationError(apperrors.CodeOutOfRange, "confidence", m.Confidence, nil).
			WithSuggestion("manual confirmations carry confidence 1.0")
	}
	return nil
}

// LearnedPattern is a per-client fingerprint learned from manual confirmations
type LearnedPattern struct {
	ID                string     `json:"id" yaml:"id"`
	ClientID          string     `json:"client_id" yaml:"client_id"`
	Fingerprint       string     `json:"fingerprint" yaml:"fingerprint"`
	CounterpartyTaxID string     `json:"counterparty_tax_id,omitempty" yaml:"counterparty_tax_id,omitempty"`
	Category          string     `json:"category,omitempty" yaml:"category,omitempty"`
	DocumentType      string     `json:"document_type,omitempty" yaml:"document_type,omitempty"`
	TimesApplied      int        `json:"times_applied" yaml:"times_applied"`
	ScoreBoost        float64    `json:"score_boost" yaml:"score_boost"`
	Active            bool       `json:"active" yaml:"active"`
	LastApplied       *time.Time `json:"last_applied,omitempty" yaml:"last_applied,omitempty"`
	CreatedAt         time.Time  `json:"created_at" yaml:"created_at"`
}

// AlertKind classifies an anomaly alert
type AlertKind string

const (
	AlertUnusualAmount        AlertKind = "unusualAmount"
	AlertNewCounterparty      AlertKind = "newCounterparty"
	AlertPossibleDuplicate    AlertKind = "possibleDuplicate"
	AlertDifferentPattern     AlertKind = "differentPattern"
	AlertReconciliationFailed AlertKind = "reconciliationFailed"
)

func (k AlertKind) IsValid() bool {
	switch k {
	case AlertUnusualAmount, AlertNewCounterparty, AlertPossibleDuplicate,
		AlertDifferentPattern, AlertReconciliationFailed:
		return true
	}
	return false
}

// Severity ranks alerts for review
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

func (s Severity) IsValid() bool {
	return s == SeverityHigh || s == SeverityMedium || s == SeverityLow
}

// AlertState tracks human review of an alert
type AlertState string

const (
	AlertOpen      AlertState = "open"
	AlertReviewed  AlertState = "reviewed"
	AlertDismissed AlertState = "dismissed"
	AlertResolved  AlertState = "resolved"
)

func (s AlertState) IsValid() bool {
	switch s {
	case AlertOpen, AlertReviewed, AlertDismissed, AlertResolved:
		return true
	}
	return false
}

// ParseAlertState parses a review state name
func ParseAlertState(s string) (AlertState, error) {
	state := AlertState(strings.ToLower(strings.TrimSpace(s)))
	if !state.IsValid() {
		return "", apperrors.ValidationError(apperrors.CodeInvalidValue, "state", s, nil).
			WithSuggestion("use one of open, reviewed, dismissed, resolved")
	}
	return state, nil
}

// Alert is a flagged anomaly awaiting human review
type Alert struct {
	ID              string     `json:"id" yaml:"id"`
	ClientID        string     `json:"client_id" yaml:"client_id"`
	Kind            AlertKind  `json:"kind" yaml:"kind"`
	Severity        Severity   `json:"severity" yaml:"severity"`
	Title           string     `json:"title" yaml:"title"`
	Description     string     `json:"description" yaml:"description"`
	State           AlertState `json:"state" yaml:"state"`
	ReferenceAmount *int64     `json:"reference_amount,omitempty" yaml:"reference_amount,omitempty"`
	DetectedAmount  *int64     `json:"detected_amount,omitempty" yaml:"detected_amount,omitempty"`
	TransactionID   string     `json:"transaction_id,omitempty" yaml:"transaction_id,omitempty"`
	DocumentID      string     `json:"document_id,omitempty" yaml:"document_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at" yaml:"created_at"`
}

// Validate checks the alert's enumerations
func (a *Alert) Validate() error {
	if !a.Kind.IsValid() {
		return apperrors.ValidationError(apperrors.CodeInvalidValue, "kind", a.Kind, nil)
	}
	if !a.Severity.IsValid() {
		return apperrors.ValidationError(apperrors.CodeInvalidValue, "severity", a.Severity, nil)
	}
	if !a.State.IsValid() {
		return apperrors.ValidationError(apperrors.CodeInvalidValue, "state", a.State, nil)
	}
	return nil
}

func (a *Alert) String() string {
	return fmt.Sprintf("Alert{%s %s %s: %s}", a.ID, a.Kind, a.Severity, a.Title)
}
