package handlers

import (
	"net/http"

	"golang-reconciliation-engine/internal/api/dto"
	"golang-reconciliation-engine/internal/models"
	"golang-reconciliation-engine/internal/reconciler"
	"golang-reconciliation-engine/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// ReconciliationHandler serves suggestions, batch runs and manual decisions.
type ReconciliationHandler struct {
	*Base
	service Reconciler
}

// NewReconciliationHandler creates a new reconciliation handler.
func NewReconciliationHandler(service Reconciler) *ReconciliationHandler {
	return &ReconciliationHandler{Base: NewBase("api_reconciliation"), service: service}
}

// Suggestions handles GET /api/transactions/{id}/suggestions.
func (h *ReconciliationHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	suggestions, err := h.service.Suggest(r.Context(), id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if suggestions == nil {
		suggestions = []*reconciler.Suggestion{}
	}
	h.WriteJSON(w, http.StatusOK, dto.SuggestionListResponse{TransactionID: id, Suggestions: suggestions})
}

// Reconcile handles POST /api/clients/{clientID}/reconcile?period=YYYY-MM.
func (h *ReconciliationHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	period := r.URL.Query().Get("period")

	summary, err := h.service.Reconcile(r.Context(), clientID, period)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.logger.WithClient(clientID).WithFields(logger.Fields{
		"period":  period,
		"matched": summary.Matched,
	}).Info("Reconciliation requested over API")
	h.WriteJSON(w, http.StatusOK, dto.NewReconcileResponse(summary))
}

// Confirm handles POST /api/transactions/{id}/confirm.
func (h *ReconciliationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var body dto.ConfirmRequest
	if err := h.DecodeJSON(r, &body, false); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body: "+err.Error()))
		return
	}

	record, err := h.service.Confirm(r.Context(), reconciler.ConfirmRequest{
		TransactionID: chi.URLParam(r, "id"),
		DocumentID:    body.DocumentID,
		UserID:        body.UserID,
		Notes:         body.Notes,
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, record)
}

// Reject handles POST /api/transactions/{id}/reject.
func (h *ReconciliationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var body dto.RejectRequest
	if err := h.DecodeJSON(r, &body, true); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body: "+err.Error()))
		return
	}
	if err := h.service.Reject(r.Context(), chi.URLParam(r, "id"), body.Notes); err != nil {
		h.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Undo handles DELETE /api/matches/{id}.
func (h *ReconciliationHandler) Undo(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Undo(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMatches handles GET /api/clients/{clientID}/matches?period=YYYY-MM.
func (h *ReconciliationHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListMatchRecords(r.Context(), chi.URLParam(r, "clientID"), r.URL.Query().Get("period"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if records == nil {
		records = []*models.MatchRecord{}
	}
	h.WriteJSON(w, http.StatusOK, dto.MatchListResponse{Matches: records, TotalCount: len(records)})
}

// ListPatterns handles GET /api/clients/{clientID}/patterns.
func (h *ReconciliationHandler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := h.service.ListPatterns(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if patterns == nil {
		patterns = []*models.LearnedPattern{}
	}
	h.WriteJSON(w, http.StatusOK, dto.PatternListResponse{Patterns: patterns, TotalCount: len(patterns)})
}
