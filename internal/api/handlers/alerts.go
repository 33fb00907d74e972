package handlers

import (
	"net/http"

	"golang-reconciliation-engine/internal/api/dto"
	"golang-reconciliation-engine/internal/models"

	"github.com/go-chi/chi/v5"
)

// AlertsHandler serves anomaly detection and alert review.
type AlertsHandler struct {
	*Base
	service AlertService
}

// NewAlertsHandler creates a new alerts handler.
func NewAlertsHandler(service AlertService) *AlertsHandler {
	return &AlertsHandler{Base: NewBase("api_alerts"), service: service}
}

// Detect handles POST /api/clients/{clientID}/detect.
func (h *AlertsHandler) Detect(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Detect(r.Context(), chi.URLParam(r, "clientID"))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if result.Alerts == nil {
		result.Alerts = []*models.Alert{}
	}
	h.WriteJSON(w, http.StatusOK, result)
}

// List handles GET /api/clients/{clientID}/alerts?state=open.
func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	var state models.AlertState
	if raw := r.URL.Query().Get("state"); raw != "" {
		parsed, err := models.ParseAlertState(raw)
		if err != nil {
			h.Fail(w, r, err)
			return
		}
		state = parsed
	}

	alerts, err := h.service.ListAlerts(r.Context(), chi.URLParam(r, "clientID"), state)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}
	h.WriteJSON(w, http.StatusOK, dto.AlertListResponse{Alerts: alerts, TotalCount: len(alerts)})
}

// Update handles PATCH /api/alerts/{id}.
func (h *AlertsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body dto.AlertUpdateRequest
	if err := h.DecodeJSON(r, &body, false); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body: "+err.Error()))
		return
	}
	state, err := models.ParseAlertState(body.State)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	alert, err := h.service.UpdateAlertState(r.Context(), chi.URLParam(r, "id"), state)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, alert)
}
