package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"golang-reconciliation-engine/internal/anomaly"
	"golang-reconciliation-engine/internal/api/dto"
	"golang-reconciliation-engine/internal/models"
	"golang-reconciliation-engine/internal/reconciler"
	"golang-reconciliation-engine/pkg/logger"
)

// Reconciler is the slice of the reconciliation service the API exposes
type Reconciler interface {
	Suggest(ctx context.Context, transactionID string) ([]*reconciler.Suggestion, error)
	Reconcile(ctx context.Context, clientID, period string) (*reconciler.ReconcileSummary, error)
	Confirm(ctx context.Context, req reconciler.ConfirmRequest) (*models.MatchRecord, error)
	Reject(ctx context.Context, transactionID, notes string) error
	Undo(ctx context.Context, matchRecordID string) error
	ListMatchRecords(ctx context.Context, clientID, period string) ([]*models.MatchRecord, error)
	ListPatterns(ctx context.Context, clientID string) ([]*models.LearnedPattern, error)
}

// AlertService is the slice of the anomaly detector the API exposes
type AlertService interface {
	Detect(ctx context.Context, clientID string) (*anomaly.DetectionResult, error)
	ListAlerts(ctx context.Context, clientID string, state models.AlertState) ([]*models.Alert, error)
	UpdateAlertState(ctx context.Context, alertID string, state models.AlertState) (*models.Alert, error)
}

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// Base provides shared functionality for all handlers.
type Base struct {
	logger logger.Logger
}

// NewBase creates a base handler logging under component.
func NewBase(component string) *Base {
	return &Base{logger: logger.GetGlobalLogger().WithComponent(component)}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	b.WriteJSON(w, status, err)
}

// Fail maps err onto a status code and writes it. Server-side failures are logged.
func (b *Base) Fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := dto.FromError(err)
	if status >= http.StatusInternalServerError {
		b.logger.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
	}
	b.WriteError(w, status, body)
}

// DecodeJSON reads a JSON body into v. An empty body is accepted when
// optional is true.
func (b *Base) DecodeJSON(r *http.Request, v interface{}, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}
