package anomaly

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang-reconciliation-engine/internal/models"
	"golang-reconciliation-engine/internal/store"
	apperrors "golang-reconciliation-engine/pkg/errors"
	"golang-reconciliation-engine/pkg/logger"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Detector runs the anomaly rules over a client's full transaction history
type Detector struct {
	store  store.Store
	config *Config
	logger logger.Logger
	now    func() time.Time
	newID  func() string
}

// NewDetector creates a detector. A nil cfg selects DefaultConfig.
func NewDetector(st store.Store, cfg *Config) (*Detector, error) {
	if st == nil {
		return nil, apperrors.ValidationError(apperrors.CodeMissingField, "store", nil, nil)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := *cfg
	return &Detector{
		store:  st,
		config: &c,
		logger: logger.GetGlobalLogger().WithComponent("anomaly"),
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

// DetectionResult summarizes one detection pass
type DetectionResult struct {
	ClientID             string          `json:"client_id" yaml:"client_id"`
	TransactionsAnalyzed int             `json:"transactions_analyzed" yaml:"transactions_analyzed"`
	AlertsCreated        int             `json:"alerts_created" yaml:"alerts_created"`
	Alerts               []*models.Alert `json:"alerts,omitempty" yaml:"alerts,omitempty"`
}

// Detect applies the unusual-amount and possible-duplicate rules. An alert is
// only created when no open alert of the same kind exists for the same
// transaction, so repeated runs over unchanged data create nothing new.
func (d *Detector) Detect(ctx context.Context, clientID string) (*DetectionResult, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, apperrors.ValidationError(apperrors.CodeMissingClient, "client_id", clientID, nil)
	}

	var result *DetectionResult
	err := d.store.RunInTx(ctx, func(q store.Tx) error {
		txs, err := q.ListTransactions(ctx, store.TransactionFilter{ClientID: clientID})
		if err != nil {
			return err
		}

		result = &DetectionResult{ClientID: clientID, TransactionsAnalyzed: len(txs)}
		now := d.now().UTC()

		candidates := d.unusualAmounts(txs)
		candidates = append(candidates, d.possibleDuplicates(txs)...)

		for _, alert := range candidates {
			exists, err := q.HasOpenAlert(ctx, clientID, alert.Kind, alert.TransactionID)
			if err != nil {
				return err
			}
			if exists {
				continue
			}

			alert.ID = d.newID()
			alert.ClientID = clientID
			alert.State = models.AlertOpen
			alert.CreatedAt = now
			if err := q.InsertAlert(ctx, alert); err != nil {
				return err
			}
			result.Alerts = append(result.Alerts, alert)
		}
		result.AlertsCreated = len(result.Alerts)
		return nil
	})
	if err != nil {
		return nil, translate("detect", err)
	}

	d.logger.WithClient(clientID).WithFields(logger.Fields{
		"transactions_analyzed": result.TransactionsAnalyzed,
		"alerts_created":        result.AlertsCreated,
	}).Info("Anomaly detection completed")
	return result, nil
}

// unusualAmounts groups transactions by counterparty and flags members whose
// absolute amount exceeds UnusualFactor times the group average. The average
// includes the transaction under test.
func (d *Detector) unusualAmounts(txs []*models.Transaction) []*models.Alert {
	var keys []string
	groups := make(map[string][]*models.Transaction)
	for _, tx := range txs {
		key := tx.CounterpartyKey()
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], tx)
	}

	unusual := decimal.NewFromInt(d.config.UnusualFactor)
	high := decimal.NewFromInt(d.config.HighFactor)

	var alerts []*models.Alert
	for _, key := range keys {
		group := groups[key]
		if len(group) < d.config.AverageGroupSize {
			continue
		}

		total := decimal.Zero
		for _, tx := range group {
			total = total.Add(decimal.NewFromInt(tx.AbsAmount()))
		}
		avg := total.Div(decimal.NewFromInt(int64(len(group))))

		if len(group) < d.config.TestGroupSize || avg.IsZero() {
			continue
		}

		for _, tx := range group {
			amount := decimal.NewFromInt(tx.AbsAmount())
			if !amount.GreaterThan(avg.Mul(unusual)) {
				continue
			}

			severity := models.SeverityMedium
			if amount.GreaterThan(avg.Mul(high)) {
				severity = models.SeverityHigh
			}

			reference := avg.Round(0).IntPart()
			detected := tx.AbsAmount()
			alerts = append(alerts, &models.Alert{
				Kind:     models.AlertUnusualAmount,
				Severity: severity,
				Title:    fmt.Sprintf("Unusual amount for %s", key),
				Description: fmt.Sprintf("Amount %s is %sx the average %s of %d transactions",
					models.FormatAmount(detected), amount.Div(avg).StringFixed(1),
					models.FormatAmount(reference), len(group)),
				ReferenceAmount: &reference,
				DetectedAmount:  &detected,
				TransactionID:   tx.ID,
			})
		}
	}
	return alerts
}

// possibleDuplicates flags the later of two transactions with the same
// absolute amount and description dated within the duplicate window.
func (d *Detector) possibleDuplicates(txs []*models.Transaction) []*models.Alert {
	sorted := make([]*models.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].ID < sorted[j].ID
	})

	var alerts []*models.Alert
	for i := 0; i < len(sorted); i++ {
		a := sorted[i]
		for j := i + 1; j < len(sorted); j++ {
			b := sorted[j]
			gap := models.DaysBetween(a.Date, b.Date)
			if gap > d.config.DuplicateWindowDays {
				break
			}
			if a.AbsAmount() != b.AbsAmount() || a.Description != b.Description || a.ID == b.ID {
				continue
			}

			reference := a.AbsAmount()
			detected := b.AbsAmount()
			alerts = append(alerts, &models.Alert{
				Kind:     models.AlertPossibleDuplicate,
				Severity: models.SeverityMedium,
				Title:    fmt.Sprintf("Possible duplicate of %s", a.ID),
				Description: fmt.Sprintf("%q for %s repeats %d days after transaction %s",
					b.Description, models.FormatAmount(detected), gap, a.ID),
				ReferenceAmount: &reference,
				DetectedAmount:  &detected,
				TransactionID:   b.ID,
			})
		}
	}
	return alerts
}

// allowedTransitions lists the review states reachable from each state
var allowedTransitions = map[models.AlertState][]models.AlertState{
	models.AlertOpen:     {models.AlertReviewed, models.AlertDismissed, models.AlertResolved},
	models.AlertReviewed: {models.AlertDismissed, models.AlertResolved, models.AlertOpen},
}

func canTransition(from, to models.AlertState) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ListAlerts returns a client's alerts, optionally only those in state
func (d *Detector) ListAlerts(ctx context.Context, clientID string, state models.AlertState) ([]*models.Alert, error) {
	var out []*models.Alert
	err := d.store.RunInTx(ctx, func(q store.Tx) error {
		var err error
		out, err = q.ListAlerts(ctx, store.AlertFilter{ClientID: clientID, State: state})
		return err
	})
	return out, translate("list alerts", err)
}

// UpdateAlertState records a review decision on an alert. Dismissed and
// resolved alerts are final.
func (d *Detector) UpdateAlertState(ctx context.Context, alertID string, state models.AlertState) (*models.Alert, error) {
	if !state.IsValid() {
		return nil, apperrors.ValidationError(apperrors.CodeInvalidValue, "state", state, nil)
	}

	var alert *models.Alert
	err := d.store.RunInTx(ctx, func(q store.Tx) error {
		var err error
		alert, err = q.GetAlert(ctx, alertID)
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFoundError("alert", alertID)
		}
		if err != nil {
			return err
		}

		if !canTransition(alert.State, state) {
			return apperrors.InvalidStateError(apperrors.CodeInvalidTransition, "alert", alertID,
				fmt.Sprintf("cannot move from %s to %s", alert.State, state))
		}

		alert.State = state
		return q.UpdateAlert(ctx, alert)
	})
	if err != nil {
		return nil, translate("update alert", err)
	}

	d.logger.WithFields(logger.Fields{"alert_id": alertID, "state": state}).Info("Alert state updated")
	return alert, nil
}

func translate(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.WrapIfNeeded(err, apperrors.CategoryNotFound, apperrors.CodeEntityNotFound, operation)
	}
	return apperrors.WrapIfNeeded(err, apperrors.CategoryStorage, apperrors.CodeQueryFailed, operation+" failed")
}
