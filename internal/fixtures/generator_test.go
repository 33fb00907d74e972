package fixtures

import (
	"context"
	"path/filepath"
	"testing"

	"golang-reconciliation-engine/internal/anomaly"
	"golang-reconciliation-engine/internal/matcher"
	"golang-reconciliation-engine/internal/models"
	"golang-reconciliation-engine/internal/parsers"
	"golang-reconciliation-engine/internal/reconciler"
	"golang-reconciliation-engine/internal/store"
	apperrors "golang-reconciliation-engine/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Deterministic(t *testing.T) {
	opts := DefaultOptions("acme")
	a, err := Generate(opts)
	require.NoError(t, err)
	b, err := Generate(opts)
	require.NoError(t, err)

	require.Equal(t, len(a.Transactions), len(b.Transactions))
	for i := range a.Transactions {
		assert.Equal(t, *a.Transactions[i], *b.Transactions[i])
	}
	assert.Equal(t, a.Duplicates, b.Duplicates)

	opts.Seed = 2
	c, err := Generate(opts)
	require.NoError(t, err)
	assert.NotEqual(t, a.Transactions[0].Amount, c.Transactions[0].Amount)
}

func TestGenerate_Shape(t *testing.T) {
	opts := DefaultOptions("acme")
	opts.Count = 500
	opts.DuplicateRatio = 0.1

	ds, err := Generate(opts)
	require.NoError(t, err)

	assert.Len(t, ds.Transactions, opts.Count+len(ds.Duplicates))
	assert.NotEmpty(t, ds.Duplicates)
	assert.NotEmpty(t, ds.Documents)
	assert.Less(t, len(ds.Documents), opts.Count)

	amounts := make(map[int64]int)
	for _, tx := range ds.Transactions {
		require.NoError(t, tx.Validate())
		assert.Equal(t, "acme", tx.ClientID)
		assert.False(t, tx.Date.Before(opts.Start))
		amounts[tx.AbsAmount()]++
	}
	assert.Equal(t, opts.Count, len(amounts), "only planted duplicates repeat an amount")

	for _, doc := range ds.Documents {
		require.NoError(t, doc.Validate())
		assert.Positive(t, doc.TotalAmount)
	}
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"missing client", func(o *Options) { o.ClientID = "" }},
		{"no transactions", func(o *Options) { o.Count = 0 }},
		{"inverted dates", func(o *Options) { o.End = o.Start.AddDate(0, 0, -1) }},
		{"inverted amounts", func(o *Options) { o.MaxAmount = decimal.NewFromInt(1) }},
		{"ratio above one", func(o *Options) { o.MatchRatio = 1.5 }},
		{"outlier factor", func(o *Options) { o.OutlierFactor = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions("acme")
			tt.modify(&opts)
			_, err := Generate(opts)
			assert.True(t, apperrors.IsValidation(err), "got %v", err)
		})
	}
}

func TestWriteCSV_ReadsBackThroughImporters(t *testing.T) {
	opts := DefaultOptions("acme")
	opts.Count = 50
	ds, err := Generate(opts)
	require.NoError(t, err)

	txPath, docPath, err := ds.WriteCSV(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)

	ctx := context.Background()
	txParser, err := parsers.NewTransactionParser(nil)
	require.NoError(t, err)
	txs, stats, err := txParser.ParseFile(ctx, txPath)
	require.NoError(t, err)
	assert.False(t, stats.HasErrors(), stats.SampleErrors(3))
	require.Len(t, txs, len(ds.Transactions))
	assert.Equal(t, ds.Transactions[0].Amount, txs[0].Amount)
	assert.Equal(t, ds.Transactions[0].Description, txs[0].Description)

	docParser, err := parsers.NewDocumentParser(nil)
	require.NoError(t, err)
	docs, stats, err := docParser.ParseFile(ctx, docPath)
	require.NoError(t, err)
	assert.False(t, stats.HasErrors(), stats.SampleErrors(3))
	require.Len(t, docs, len(ds.Documents))
	assert.Equal(t, ds.Documents[0].IssuerTaxID, docs[0].IssuerTaxID)
}

func TestGeneratedDataset_EndToEnd(t *testing.T) {
	ctx := context.Background()
	st, err := store.OpenAndMigrate(ctx, filepath.Join(t.TempDir(), "fixtures.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	opts := DefaultOptions("acme")
	opts.Count = 60
	opts.MatchRatio = 1
	opts.DuplicateRatio = 0.2
	opts.OutlierRatio = 0
	ds, err := Generate(opts)
	require.NoError(t, err)
	require.NotEmpty(t, ds.Duplicates)

	svc, err := reconciler.NewReconciliationService(st, matcher.DefaultScoringConfig())
	require.NoError(t, err)
	_, err = svc.ImportTransactions(ctx, ds.Transactions)
	require.NoError(t, err)
	_, err = svc.ImportDocuments(ctx, ds.Documents)
	require.NoError(t, err)

	detector, err := anomaly.NewDetector(st, anomaly.DefaultConfig())
	require.NoError(t, err)
	result, err := detector.Detect(ctx, "acme")
	require.NoError(t, err)

	flagged := make(map[string]bool)
	for _, alert := range result.Alerts {
		if alert.Kind == models.AlertPossibleDuplicate {
			flagged[alert.TransactionID] = true
		}
	}
	for _, id := range ds.Duplicates {
		assert.True(t, flagged[id], "planted duplicate %s not flagged", id)
	}
	assert.Len(t, flagged, len(ds.Duplicates))

	summary, err := svc.Reconcile(ctx, "acme", "")
	require.NoError(t, err)
	assert.Equal(t, len(ds.Transactions), summary.Total)
	// each document is claimed once, so at most one of a duplicate pair matches
	assert.Equal(t, len(ds.Documents), summary.Matched)
}
