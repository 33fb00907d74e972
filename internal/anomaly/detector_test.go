package anomaly

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"golang-reconciliation-engine/internal/models"
	"golang-reconciliation-engine/internal/store"
	apperrors "golang-reconciliation-engine/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClient = "client-1"

func newTestDetector(t *testing.T) (*Detector, *store.SQLiteStore) {
	t.Helper()
	st, err := store.OpenAndMigrate(context.Background(), filepath.Join(t.TempDir(), "anomaly.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	d, err := NewDetector(st, nil)
	require.NoError(t, err)
	d.now = func() time.Time { return time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC) }
	return d, st
}

func seed(t *testing.T, st store.Store, txs ...*models.Transaction) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.RunInTx(ctx, func(q store.Tx) error {
		for _, tx := range txs {
			if _, err := q.InsertTransaction(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	}))
}

func txn(id string, amount int64, date, description string) *models.Transaction {
	return &models.Transaction{
		ID:                    id,
		ClientID:              testClient,
		Date:                  models.MustDate(date),
		Description:           description,
		NormalizedDescription: models.NormalizeDescription(description),
		Amount:                amount,
	}
}

// group builds same-counterparty transactions spaced a week apart so the
// duplicate rule never fires
func group(description string, amounts ...int64) []*models.Transaction {
	start := models.MustDate("2024-01-01")
	out := make([]*models.Transaction, len(amounts))
	for i, a := range amounts {
		out[i] = txn(fmt.Sprintf("tx-%02d", i), a, models.FormatDate(start.AddDate(0, 0, 7*i)), description)
	}
	return out
}

func TestUnusualAmountIncludesTestedTransactionInAverage(t *testing.T) {
	tests := []struct {
		name     string
		amounts  []int64
		flagged  string
		severity models.Severity
	}{
		{"500 against avg 200 is not flagged", []int64{-10000, -10000, -10000, -50000}, "", ""},
		{"1500 against avg 450 is medium", []int64{-10000, -10000, -10000, -150000}, "tx-03", models.SeverityMedium},
		{"10000 against avg 1090 is high", []int64{
			-10000, -10000, -10000, -10000, -10000, -10000, -10000, -10000, -10000, -1000000,
		}, "tx-09", models.SeverityHigh},
		{"two members are never tested", []int64{-10000, -1000000}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, st := newTestDetector(t)
			seed(t, st, group("PAGO PROVEEDOR ALFA", tt.amounts...)...)

			result, err := d.Detect(context.Background(), testClient)
			require.NoError(t, err)
			assert.Equal(t, len(tt.amounts), result.TransactionsAnalyzed)

			if tt.flagged == "" {
				assert.Zero(t, result.AlertsCreated)
				return
			}
			require.Equal(t, 1, result.AlertsCreated)
			alert := result.Alerts[0]
			assert.Equal(t, models.AlertUnusualAmount, alert.Kind)
			assert.Equal(t, tt.flagged, alert.TransactionID)
			assert.Equal(t, tt.severity, alert.Severity)
			assert.Equal(t, models.AlertOpen, alert.State)
			require.NotNil(t, alert.DetectedAmount)
			assert.Equal(t, -tt.amounts[len(tt.amounts)-1], *alert.DetectedAmount)
		})
	}
}

func TestUnusualAmountGroupsByCounterparty(t *testing.T) {
	d, st := newTestDetector(t)
	txs := group("PAGO PROVEEDOR ALFA", -10000, -10000, -10000)
	outlier := txn("tx-beta", -150000, "2024-02-01", "PAGO PROVEEDOR BETA")
	seed(t, st, append(txs, outlier)...)

	result, err := d.Detect(context.Background(), testClient)
	require.NoError(t, err)
	assert.Zero(t, result.AlertsCreated)
}

func TestDuplicateWindow(t *testing.T) {
	tests := []struct {
		name    string
		second  string
		flagged bool
	}{
		{"same day", "2024-03-01", true},
		{"three days apart", "2024-03-04", true},
		{"four days apart", "2024-03-05", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, st := newTestDetector(t)
			seed(t, st,
				txn("tx-a", -45000, "2024-03-01", "PAGO ARRIENDO"),
				txn("tx-b", -45000, tt.second, "PAGO ARRIENDO"))

			result, err := d.Detect(context.Background(), testClient)
			require.NoError(t, err)

			if !tt.flagged {
				assert.Zero(t, result.AlertsCreated)
				return
			}
			require.Equal(t, 1, result.AlertsCreated)
			alert := result.Alerts[0]
			assert.Equal(t, models.AlertPossibleDuplicate, alert.Kind)
			assert.Equal(t, models.SeverityMedium, alert.Severity)
			assert.Equal(t, "tx-b", alert.TransactionID)
		})
	}
}

func TestDuplicateRequiresSameAmountAndDescription(t *testing.T) {
	d, st := newTestDetector(t)
	seed(t, st,
		txn("tx-a", -45000, "2024-03-01", "PAGO ARRIENDO"),
		txn("tx-b", 45000, "2024-03-02", "PAGO ARRIENDO"),
		txn("tx-c", -45001, "2024-03-02", "PAGO ARRIENDO"),
		txn("tx-d", -45000, "2024-03-02", "PAGO ARRIENDO 2"))

	result, err := d.Detect(context.Background(), testClient)
	require.NoError(t, err)

	// Only the sign differs between tx-a and tx-b, and absolute amounts are compared.
	require.Equal(t, 1, result.AlertsCreated)
	assert.Equal(t, "tx-b", result.Alerts[0].TransactionID)
	assert.Contains(t, result.Alerts[0].Description, "1 days after transaction tx-a")
}

func TestDetectIsIdempotent(t *testing.T) {
	d, st := newTestDetector(t)
	txs := group("PAGO PROVEEDOR ALFA", -10000, -10000, -10000, -150000)
	txs = append(txs,
		txn("tx-dup-1", -45000, "2024-03-01", "PAGO ARRIENDO"),
		txn("tx-dup-2", -45000, "2024-03-02", "PAGO ARRIENDO"))
	seed(t, st, txs...)
	ctx := context.Background()

	first, err := d.Detect(ctx, testClient)
	require.NoError(t, err)
	assert.Equal(t, 2, first.AlertsCreated)

	second, err := d.Detect(ctx, testClient)
	require.NoError(t, err)
	assert.Zero(t, second.AlertsCreated)

	alerts, err := d.ListAlerts(ctx, testClient, models.AlertOpen)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
}

func TestDismissedAlertCanBeRaisedAgain(t *testing.T) {
	d, st := newTestDetector(t)
	seed(t, st,
		txn("tx-a", -45000, "2024-03-01", "PAGO ARRIENDO"),
		txn("tx-b", -45000, "2024-03-01", "PAGO ARRIENDO"))
	ctx := context.Background()

	first, err := d.Detect(ctx, testClient)
	require.NoError(t, err)
	require.Equal(t, 1, first.AlertsCreated)

	_, err = d.UpdateAlertState(ctx, first.Alerts[0].ID, models.AlertDismissed)
	require.NoError(t, err)

	second, err := d.Detect(ctx, testClient)
	require.NoError(t, err)
	assert.Equal(t, 1, second.AlertsCreated)
}

func TestUpdateAlertStateTransitions(t *testing.T) {
	d, st := newTestDetector(t)
	seed(t, st,
		txn("tx-a", -45000, "2024-03-01", "PAGO ARRIENDO"),
		txn("tx-b", -45000, "2024-03-01", "PAGO ARRIENDO"))
	ctx := context.Background()

	result, err := d.Detect(ctx, testClient)
	require.NoError(t, err)
	id := result.Alerts[0].ID

	reviewed, err := d.UpdateAlertState(ctx, id, models.AlertReviewed)
	require.NoError(t, err)
	assert.Equal(t, models.AlertReviewed, reviewed.State)

	_, err = d.UpdateAlertState(ctx, id, models.AlertResolved)
	require.NoError(t, err)

	_, err = d.UpdateAlertState(ctx, id, models.AlertOpen)
	assert.True(t, apperrors.HasCategory(err, apperrors.CategoryInvalidState))

	_, err = d.UpdateAlertState(ctx, "missing", models.AlertReviewed)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = d.UpdateAlertState(ctx, id, models.AlertState("archived"))
	assert.True(t, apperrors.IsValidation(err))
}

func TestDetectValidation(t *testing.T) {
	d, _ := newTestDetector(t)

	_, err := d.Detect(context.Background(), "")
	assert.True(t, apperrors.IsValidation(err))

	result, err := d.Detect(context.Background(), "empty-client")
	require.NoError(t, err)
	assert.Zero(t, result.TransactionsAnalyzed)
	assert.Zero(t, result.AlertsCreated)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.HighFactor = 2
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.TestGroupSize = 1
	assert.Error(t, bad.Validate())
}
