package reconciler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang-reconciliation-engine/internal/matcher"
	"golang-reconciliation-engine/internal/models"
	"golang-reconciliation-engine/internal/store"
	apperrors "golang-reconciliation-engine/pkg/errors"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClient = "client-1"

var testNow = time.Date(2024, 4, 2, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.OpenAndMigrate(context.Background(), filepath.Join(t.TempDir(), "reconciler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestService(t *testing.T, st store.Store, opts ...Option) *ReconciliationService {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	svc, err := NewReconciliationService(st, matcher.DefaultScoringConfig(), opts...)
	require.NoError(t, err)
	return svc
}

func tx(id string, amount int64, date, description string) *models.Transaction {
	return &models.Transaction{
		ID:                    id,
		ClientID:              testClient,
		Date:                  models.MustDate(date),
		Description:           description,
		NormalizedDescription: models.NormalizeDescription(description),
		Amount:                amount,
	}
}

func doc(id string, amount int64, date string) *models.Document {
	return &models.Document{
		ID:           id,
		ClientID:     testClient,
		IssueDate:    models.MustDate(date),
		TotalAmount:  amount,
		IssuerName:   "ZETA LTDA",
		DocumentType: "invoice",
	}
}

func seed(t *testing.T, st store.Store, txs []*models.Transaction, docs []*models.Document) {
	t.Helper()
	ctx := context.Background()
	err := st.RunInTx(ctx, func(q store.Tx) error {
		for _, tx := range txs {
			if _, err := q.InsertTransaction(ctx, tx); err != nil {
				return err
			}
		}
		for _, d := range docs {
			if _, err := q.InsertDocument(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func getTransaction(t *testing.T, st store.Store, id string) *models.Transaction {
	t.Helper()
	var out *models.Transaction
	err := st.RunInTx(context.Background(), func(q store.Tx) error {
		var err error
		out, err = q.GetTransaction(context.Background(), id)
		return err
	})
	require.NoError(t, err)
	return out
}

func latestRecord(t *testing.T, st store.Store, transactionID string) *models.MatchRecord {
	t.Helper()
	var out *models.MatchRecord
	err := st.RunInTx(context.Background(), func(q store.Tx) error {
		var err error
		out, err = q.LatestMatchRecord(context.Background(), transactionID)
		return err
	})
	require.NoError(t, err)
	return out
}

func TestReconcileExactPairMatches(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		[]*models.Transaction{tx("tx-1", -150000, "2024-03-15", "PAGO PROVEEDOR")},
		[]*models.Document{doc("doc-1", 150000, "2024-03-15")})
	svc := newTestService(t, st)

	summary, err := svc.Reconcile(context.Background(), testClient, "")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Matched)
	assert.InDelta(t, 1.0, summary.MatchRate(), 1e-9)

	got := getTransaction(t, st, "tx-1")
	assert.Equal(t, models.StateMatched, got.ReconciliationState)
	assert.Equal(t, "doc-1", got.MatchedDocumentID)

	record := latestRecord(t, st, "tx-1")
	assert.Equal(t, models.StateMatched, record.State)
	assert.GreaterOrEqual(t, record.Confidence, 0.70)
	assert.Equal(t, models.MethodAuto, record.Method)
	assert.Equal(t, "2024-03", record.Period)
	assert.Equal(t, []string{matcher.ReasonExactAmount, matcher.ReasonDateExact}, record.Reasons)
}

func TestReconcileLargestAmountConsumesFirst(t *testing.T) {
	st := newTestStore(t)
	d := doc("doc-1", 100000, "2024-03-10")
	d.IssuerTaxID = "76.123.456-7"
	seed(t, st,
		[]*models.Transaction{
			tx("tx-small", -100000, "2024-03-10", "PAGO"),
			tx("tx-big", -100500, "2024-03-10", "TEF 76.123.456-7"),
		},
		[]*models.Document{d})
	svc := newTestService(t, st)

	summary, err := svc.Reconcile(context.Background(), testClient, "")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Unmatched)

	assert.Equal(t, "doc-1", getTransaction(t, st, "tx-big").MatchedDocumentID)

	small := getTransaction(t, st, "tx-small")
	assert.Equal(t, models.StateUnmatched, small.ReconciliationState)
	assert.Empty(t, small.MatchedDocumentID)

	record := latestRecord(t, st, "tx-small")
	assert.Equal(t, models.StateUnmatched, record.State)
	assert.Empty(t, record.DocumentID)
	assert.Empty(t, record.Reasons)
}

func TestReconcileNeverConsumesDocumentTwice(t *testing.T) {
	st := newTestStore(t)
	var txs []*models.Transaction
	for _, id := range []string{"tx-a", "tx-b", "tx-c", "tx-d"} {
		txs = append(txs, tx(id, -20000, "2024-03-05", "CARGO SERVICIO"))
	}
	seed(t, st, txs, []*models.Document{
		doc("doc-1", 20000, "2024-03-05"),
		doc("doc-2", 20000, "2024-03-05"),
	})
	svc := newTestService(t, st)

	summary, err := svc.Reconcile(context.Background(), testClient, "")
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Matched)

	records, err := svc.ListMatchRecords(context.Background(), testClient, "")
	require.NoError(t, err)
	seen := map[string]string{}
	for _, r := range records {
		if r.State != models.StateMatched {
			continue
		}
		prev, dup := seen[r.DocumentID]
		assert.False(t, dup, "document %s matched by %s and %s", r.DocumentID, prev, r.TransactionID)
		seen[r.DocumentID] = r.TransactionID
	}
	assert.Len(t, seen, 2)

	// Equal amounts are processed by date, then ID.
	assert.Equal(t, "doc-1", getTransaction(t, st, "tx-a").MatchedDocumentID)
	assert.Equal(t, "doc-2", getTransaction(t, st, "tx-b").MatchedDocumentID)
}

func TestReconcilePartialLeavesDocumentAvailable(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		[]*models.Transaction{tx("tx-1", -100500, "2024-03-10", "PAGO")},
		[]*models.Document{doc("doc-1", 100000, "2024-03-10")})
	svc := newTestService(t, st)

	summary, err := svc.Reconcile(context.Background(), testClient, "")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Partial)

	got := getTransaction(t, st, "tx-1")
	assert.Equal(t, models.StatePartial, got.ReconciliationState)
	assert.Empty(t, got.MatchedDocumentID)

	record := latestRecord(t, st, "tx-1")
	assert.Equal(t, "doc-1", record.DocumentID)
	assert.InDelta(t, 0.65, record.Confidence, 1e-9)
	assert.Equal(t, int64(500), record.AmountDiff)

	suggestions, err := svc.Suggest(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "doc-1", suggestions[0].Document.ID)
}

func TestReconcilePeriodAndRerun(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		[]*models.Transaction{
			tx("tx-mar", -1000, "2024-03-10", "PAGO"),
			tx("tx-apr", -2000, "2024-04-10", "PAGO"),
		}, nil)
	svc := newTestService(t, st)
	ctx := context.Background()

	summary, err := svc.Reconcile(ctx, testClient, "2024-03")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Unmatched)
	assert.Equal(t, models.StatePending, getTransaction(t, st, "tx-apr").ReconciliationState)

	summary, err = svc.Reconcile(ctx, testClient, "2024-03")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)

	summary, err = svc.Reconcile(ctx, testClient, "")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
}

func TestReconcileValidation(t *testing.T) {
	svc := newTestService(t, newTestStore(t))
	ctx := context.Background()

	_, err := svc.Reconcile(ctx, "", "")
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.Reconcile(ctx, testClient, "March")
	assert.True(t, apperrors.IsValidation(err))

	summary, err := svc.Reconcile(ctx, "nobody", "")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
}

func TestSuggestRanksAndExcludesConsumed(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		[]*models.Transaction{
			tx("tx-1", -50000, "2024-03-15", "PAGO"),
			tx("tx-other", -50000, "2024-03-15", "OTRO"),
		},
		[]*models.Document{
			doc("d-exact", 50000, "2024-03-15"),
			doc("d-near", 50000, "2024-03-17"),
			doc("d-tight", 50400, "2024-03-16"),
			doc("d-loose", 52000, "2024-03-20"),
			doc("d-date-only", 90000, "2024-03-15"),
			doc("d-consumed", 50000, "2024-03-15"),
		})

	ctx := context.Background()
	require.NoError(t, st.RunInTx(ctx, func(q store.Tx) error {
		return q.InsertMatchRecord(ctx, &models.MatchRecord{
			ID: "m-1", TransactionID: "tx-other", DocumentID: "d-consumed", ClientID: testClient,
			Confidence: 0.9, State: models.StateMatched, Method: models.MethodAuto, CreatedAt: testNow,
		})
	}))

	svc := newTestService(t, st)
	suggestions, err := svc.Suggest(ctx, "tx-1")
	require.NoError(t, err)
	require.Len(t, suggestions, 3)

	ids := []string{suggestions[0].Document.ID, suggestions[1].Document.ID, suggestions[2].Document.ID}
	assert.Equal(t, []string{"d-exact", "d-near", "d-tight"}, ids)
	assert.InDelta(t, 0.70, suggestions[0].Confidence, 1e-9)
	assert.InDelta(t, 0.65, suggestions[1].Confidence, 1e-9)
	assert.InDelta(t, 0.60, suggestions[2].Confidence, 1e-9)
	assert.Equal(t, 2, suggestions[1].DayDiff)

	_, err = svc.Suggest(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestConfirmLearnsPatternAndFeedsSuggestions(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		[]*models.Transaction{
			tx("tx-1", -30000, "2024-03-01", "PAGO ENEL DISTRIBUCION 001"),
			tx("tx-2", -31000, "2024-03-02", "PAGO ENEL DISTRIBUCION 002"),
			tx("tx-3", -99000, "2024-03-20", "PAGO ENEL DISTRIBUCION 003"),
		},
		[]*models.Document{
			doc("doc-1", 30000, "2024-03-01"),
			doc("doc-2", 31000, "2024-03-02"),
			doc("doc-3", 10000, "2024-03-20"),
		})
	svc := newTestService(t, st)
	ctx := context.Background()

	// Prime the pattern cache before anything is learned.
	before, err := svc.Suggest(ctx, "tx-3")
	require.NoError(t, err)
	assert.Empty(t, before)

	for _, pair := range [][2]string{{"tx-1", "doc-1"}, {"tx-2", "doc-2"}} {
		record, err := svc.Confirm(ctx, ConfirmRequest{TransactionID: pair[0], DocumentID: pair[1], UserID: "alice"})
		require.NoError(t, err)
		assert.Equal(t, models.StateMatched, record.State)
		assert.Equal(t, models.MethodManual, record.Method)
		assert.Equal(t, 1.0, record.Confidence)
		assert.Equal(t, "alice", record.ConfirmedBy)
		require.NotNil(t, record.ConfirmedAt)
	}

	learned, err := svc.ListPatterns(ctx, testClient)
	require.NoError(t, err)
	require.Len(t, learned, 1)
	assert.Equal(t, "PAGO ENEL DISTRIBUCION", learned[0].Fingerprint)
	assert.Equal(t, 2, learned[0].TimesApplied)

	after, err := svc.Suggest(ctx, "tx-3")
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "doc-3", after[0].Document.ID)
	assert.Contains(t, after[0].Reasons, matcher.ReasonLearnedPattern)
	assert.InDelta(t, 0.40, after[0].Confidence, 1e-9)
}

func TestReconcileRefreshesSuggestionPatterns(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		[]*models.Transaction{
			tx("tx-1", -30000, "2024-03-01", "PAGO ENEL DISTRIBUCION 001"),
			tx("tx-2", -31000, "2024-03-02", "PAGO ENEL DISTRIBUCION 002"),
			tx("tx-3", -99000, "2024-03-20", "PAGO ENEL DISTRIBUCION 003"),
		},
		[]*models.Document{
			doc("doc-1", 30000, "2024-03-01"),
			doc("doc-2", 31000, "2024-03-02"),
			doc("doc-3", 10000, "2024-03-20"),
		})
	// server and CLI run in separate processes with separate caches
	server := newTestService(t, st)
	cli := newTestService(t, st)
	ctx := context.Background()

	before, err := server.Suggest(ctx, "tx-3")
	require.NoError(t, err)
	assert.Empty(t, before)

	for _, pair := range [][2]string{{"tx-1", "doc-1"}, {"tx-2", "doc-2"}} {
		_, err := cli.Confirm(ctx, ConfirmRequest{TransactionID: pair[0], DocumentID: pair[1]})
		require.NoError(t, err)
	}

	stale, err := server.Suggest(ctx, "tx-3")
	require.NoError(t, err)
	assert.Empty(t, stale, "patterns learned elsewhere are not seen before the cache expires")

	_, err = server.Reconcile(ctx, testClient, "")
	require.NoError(t, err)

	after, err := server.Suggest(ctx, "tx-3")
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Contains(t, after[0].Reasons, matcher.ReasonLearnedPattern)
}

func TestConfirmOverridesAutomaticRecord(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		[]*models.Transaction{tx("tx-1", -100500, "2024-03-10", "PAGO")},
		[]*models.Document{doc("doc-1", 100000, "2024-03-10")})
	svc := newTestService(t, st)
	ctx := context.Background()

	_, err := svc.Reconcile(ctx, testClient, "")
	require.NoError(t, err)
	auto := latestRecord(t, st, "tx-1")

	confirmed, err := svc.Confirm(ctx, ConfirmRequest{TransactionID: "tx-1", DocumentID: "doc-1", Notes: "checked"})
	require.NoError(t, err)
	assert.Equal(t, auto.ID, confirmed.ID)

	records, err := svc.ListMatchRecords(ctx, testClient, "2024-03")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.StateMatched, records[0].State)
	assert.Equal(t, 1.0, records[0].Confidence)
	assert.Equal(t, "checked", records[0].Notes)
	assert.Equal(t, int64(500), records[0].AmountDiff)
}

func TestConfirmNotFound(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		[]*models.Transaction{tx("tx-1", -1000, "2024-03-10", "PAGO")},
		[]*models.Document{doc("doc-1", 1000, "2024-03-10")})
	foreign := doc("doc-other", 1000, "2024-03-10")
	foreign.ClientID = "other-client"
	seed(t, st, nil, []*models.Document{foreign})
	svc := newTestService(t, st)
	ctx := context.Background()

	_, err := svc.Confirm(ctx, ConfirmRequest{TransactionID: "tx-1", DocumentID: "nope"})
	assert.True(t, apperrors.IsNotFound(err))

	_, err = svc.Confirm(ctx, ConfirmRequest{TransactionID: "tx-1", DocumentID: "doc-other"})
	assert.True(t, apperrors.IsNotFound(err), "a document of another client must not be bound, got %v", err)
	records, err := svc.ListMatchRecords(ctx, testClient, "")
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = svc.Confirm(ctx, ConfirmRequest{TransactionID: "nope", DocumentID: "doc-1"})
	assert.True(t, apperrors.IsNotFound(err))

	_, err = svc.Confirm(ctx, ConfirmRequest{TransactionID: "tx-1"})
	assert.True(t, apperrors.IsValidation(err))

	assert.Equal(t, models.StatePending, getTransaction(t, st, "tx-1").ReconciliationState)
}

func TestConfirmThenUndoRestoresPending(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		[]*models.Transaction{tx("tx-1", -1000, "2024-03-10", "PAGO ARRIENDO OFICINA")},
		[]*models.Document{doc("doc-1", 1000, "2024-03-10")})
	svc := newTestService(t, st)
	ctx := context.Background()

	record, err := svc.Confirm(ctx, ConfirmRequest{TransactionID: "tx-1", DocumentID: "doc-1"})
	require.NoError(t, err)
	require.NoError(t, svc.Undo(ctx, record.ID))

	got := getTransaction(t, st, "tx-1")
	assert.Equal(t, models.StatePending, got.ReconciliationState)
	assert.Empty(t, got.MatchedDocumentID)

	records, err := svc.ListMatchRecords(ctx, testClient, "")
	require.NoError(t, err)
	assert.Empty(t, records)

	learned, err := svc.ListPatterns(ctx, testClient)
	require.NoError(t, err)
	assert.Len(t, learned, 1, "undo keeps learned patterns")

	assert.True(t, apperrors.IsNotFound(svc.Undo(ctx, record.ID)))
}

func TestRejectKeepsRecord(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		[]*models.Transaction{
			tx("tx-1", -100500, "2024-03-10", "PAGO"),
			tx("tx-2", -7000, "2024-03-11", "PAGO"),
		},
		[]*models.Document{doc("doc-1", 100000, "2024-03-10")})
	svc := newTestService(t, st)
	ctx := context.Background()

	_, err := svc.Reconcile(ctx, testClient, "2024-03")
	require.NoError(t, err)
	require.Equal(t, models.StatePartial, getTransaction(t, st, "tx-1").ReconciliationState)

	require.NoError(t, svc.Reject(ctx, "tx-1", "not ours"))
	assert.Equal(t, models.StateUnmatched, getTransaction(t, st, "tx-1").ReconciliationState)

	record := latestRecord(t, st, "tx-1")
	assert.Equal(t, models.StateUnmatched, record.State)
	assert.Equal(t, "not ours", record.Notes)
	assert.Equal(t, "doc-1", record.DocumentID)

	assert.True(t, apperrors.IsNotFound(svc.Reject(ctx, "missing", "")))
}

func TestRejectWithoutRecord(t *testing.T) {
	st := newTestStore(t)
	seed(t, st, []*models.Transaction{tx("tx-1", -1000, "2024-03-10", "PAGO")}, nil)
	svc := newTestService(t, st)

	require.NoError(t, svc.Reject(context.Background(), "tx-1", ""))
	assert.Equal(t, models.StateUnmatched, getTransaction(t, st, "tx-1").ReconciliationState)
}

// flakyStore fails the first n units of work with a version conflict
type flakyStore struct {
	store.Store
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyStore) RunInTx(ctx context.Context, fn func(store.Tx) error) error {
	f.mu.Lock()
	f.calls++
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()

	if fail {
		return errors.Wrap(store.ErrConflict, "transactions tx-1")
	}
	return f.Store.RunInTx(ctx, fn)
}

func TestReconcileRetriesOnConflict(t *testing.T) {
	st := newTestStore(t)
	seed(t, st,
		[]*models.Transaction{tx("tx-1", -1000, "2024-03-10", "PAGO")},
		[]*models.Document{doc("doc-1", 1000, "2024-03-10")})

	flaky := &flakyStore{Store: st, failures: 2}
	svc := newTestService(t, flaky, WithRetryOptions(RetryOptions{
		MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond,
	}))

	summary, err := svc.Reconcile(context.Background(), testClient, "")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 3, flaky.calls)
}

func TestReconcileGivesUpAfterRetries(t *testing.T) {
	st := newTestStore(t)
	flaky := &flakyStore{Store: st, failures: 10}
	svc := newTestService(t, flaky, WithRetryOptions(RetryOptions{
		MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond,
	}))

	_, err := svc.Reconcile(context.Background(), testClient, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, 2, flaky.calls)
}

func TestImportSkipsExistingIDs(t *testing.T) {
	st := newTestStore(t)
	svc := newTestService(t, st)
	ctx := context.Background()

	txs := []*models.Transaction{
		tx("tx-1", -1000, "2024-03-10", "PAGO ALFA"),
		tx("tx-2", -2500, "2024-03-11", "PAGO BETA"),
	}
	result, err := svc.ImportTransactions(ctx, txs)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, models.StatePending, getTransaction(t, st, "tx-1").ReconciliationState)

	result, err = svc.ImportTransactions(ctx, append(txs, tx("tx-3", -300, "2024-03-12", "PAGO GAMMA")))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 2, result.Skipped)

	docs, err := svc.ImportDocuments(ctx, []*models.Document{doc("doc-1", 1000, "2024-03-10")})
	require.NoError(t, err)
	assert.Equal(t, 1, docs.Inserted)
}

func TestImportRejectsInvalidBatch(t *testing.T) {
	st := newTestStore(t)
	svc := newTestService(t, st)

	bad := tx("tx-2", -2500, "2024-03-11", "PAGO BETA")
	bad.ClientID = ""
	_, err := svc.ImportTransactions(context.Background(), []*models.Transaction{
		tx("tx-1", -1000, "2024-03-10", "PAGO ALFA"), bad,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	// the whole batch rolls back
	err = st.RunInTx(context.Background(), func(q store.Tx) error {
		_, err := q.GetTransaction(context.Background(), "tx-1")
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
