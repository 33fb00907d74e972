package dto

import (
	"golang-reconciliation-engine/internal/models"
	"golang-reconciliation-engine/internal/reconciler"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// SuggestionListResponse is returned when listing candidate documents.
type SuggestionListResponse struct {
	TransactionID string                   `json:"transaction_id"`
	Suggestions   []*reconciler.Suggestion `json:"suggestions"`
}

// ReconcileResponse is returned by a batch reconciliation run.
type ReconcileResponse struct {
	ClientID   string  `json:"client_id"`
	Period     string  `json:"period,omitempty"`
	Total      int     `json:"total"`
	Matched    int     `json:"matched"`
	Partial    int     `json:"partial"`
	Unmatched  int     `json:"unmatched"`
	MatchRate  float64 `json:"match_rate"`
	DurationMS int64   `json:"duration_ms"`
}

// NewReconcileResponse converts a batch summary.
func NewReconcileResponse(s *reconciler.ReconcileSummary) ReconcileResponse {
	return ReconcileResponse{
		ClientID:   s.ClientID,
		Period:     s.Period,
		Total:      s.Total,
		Matched:    s.Matched,
		Partial:    s.Partial,
		Unmatched:  s.Unmatched,
		MatchRate:  s.MatchRate(),
		DurationMS: s.Duration.Milliseconds(),
	}
}

// MatchListResponse is returned when listing match records.
type MatchListResponse struct {
	Matches    []*models.MatchRecord `json:"matches"`
	TotalCount int                   `json:"total_count"`
}

// AlertListResponse is returned when listing alerts.
type AlertListResponse struct {
	Alerts     []*models.Alert `json:"alerts"`
	TotalCount int             `json:"total_count"`
}

// PatternListResponse is returned when listing learned patterns.
type PatternListResponse struct {
	Patterns   []*models.LearnedPattern `json:"patterns"`
	TotalCount int                      `json:"total_count"`
}
