package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"golang-reconciliation-engine/internal/models"

	"github.com/pkg/errors"
)

const matchColumns = `id, transaction_id, document_id, client_id, confidence, state, amount_diff,
	day_diff, reasons, period, method, confirmed_by, confirmed_at, notes, created_at`

func scanMatchRecord(row rowScanner) (*models.MatchRecord, error) {
	var (
		m           models.MatchRecord
		state       string
		method      string
		reasons     string
		confirmedAt sql.NullString
		createdAt   string
	)
	err := row.Scan(&m.ID, &m.TransactionID, &m.DocumentID, &m.ClientID, &m.Confidence, &state,
		&m.AmountDiff, &m.DayDiff, &reasons, &m.Period, &method, &m.ConfirmedBy, &confirmedAt,
		&m.Notes, &createdAt)
	if err != nil {
		return nil, err
	}

	m.State = models.ReconciliationState(state)
	m.Method = models.MatchMethod(method)
	if err := json.Unmarshal([]byte(reasons), &m.Reasons); err != nil {
		return nil, errors.Wrapf(err, "match record %s has malformed reasons", m.ID)
	}
	if m.ConfirmedAt, err = scanNullTimestamp(confirmedAt); err != nil {
		return nil, errors.Wrapf(err, "match record %s has malformed confirmed_at", m.ID)
	}
	if m.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, errors.Wrapf(err, "match record %s has malformed created_at", m.ID)
	}
	return &m, nil
}

func encodeReasons(reasons []string) (string, error) {
	if reasons == nil {
		reasons = []string{}
	}
	b, err := json.Marshal(reasons)
	return string(b), err
}

func (t *sqliteTx) GetMatchRecord(ctx context.Context, id string) (*models.MatchRecord, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM match_records WHERE id = ?`, id)
	m, err := scanMatchRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "match record %s", id)
	}
	if err != nil {
		return nil, queryFailed("get match record", err)
	}
	return m, nil
}

// LatestMatchRecord returns the most recently written record for a
// transaction, or ErrNotFound
func (t *sqliteTx) LatestMatchRecord(ctx context.Context, transactionID string) (*models.MatchRecord, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+matchColumns+` FROM match_records
		WHERE transaction_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`, transactionID)
	m, err := scanMatchRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "match record for transaction %s", transactionID)
	}
	if err != nil {
		return nil, queryFailed("latest match record", err)
	}
	return m, nil
}

func (t *sqliteTx) ListMatchRecords(ctx context.Context, filter MatchFilter) ([]*models.MatchRecord, error) {
	var w whereBuilder
	if filter.ClientID != "" {
		w.add("client_id = ?", filter.ClientID)
	}
	if filter.Period != "" {
		w.add("period = ?", filter.Period)
	}
	if filter.State != "" {
		w.add("state = ?", string(filter.State))
	}

	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+matchColumns+` FROM match_records`+w.String()+` ORDER BY created_at, rowid`, w.args...)
	if err != nil {
		return nil, queryFailed("list match records", err)
	}
	defer rows.Close()

	var out []*models.MatchRecord
	for rows.Next() {
		m, err := scanMatchRecord(rows)
		if err != nil {
			return nil, queryFailed("list match records", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed("list match records", err)
	}
	return out, nil
}

func (t *sqliteTx) MatchedDocumentIDs(ctx context.Context, clientID string) (map[string]bool, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT DISTINCT document_id FROM match_records
		WHERE client_id = ? AND state = ? AND document_id != ''`,
		clientID, string(models.StateMatched))
	if err != nil {
		return nil, queryFailed("matched document ids", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, queryFailed("matched document ids", err)
		}
		ids[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed("matched document ids", err)
	}
	return ids, nil
}

func (t *sqliteTx) InsertMatchRecord(ctx context.Context, m *models.MatchRecord) error {
	if err := m.Validate(); err != nil {
		return err
	}
	reasons, err := encodeReasons(m.Reasons)
	if err != nil {
		return queryFailed("insert match record", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO match_records (`+matchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.TransactionID, m.DocumentID, m.ClientID, m.Confidence, string(m.State),
		m.AmountDiff, m.DayDiff, reasons, m.Period, string(m.Method), m.ConfirmedBy,
		nullTimestamp(m.ConfirmedAt), m.Notes, formatTimestamp(m.CreatedAt))
	if err != nil {
		return queryFailed("insert match record", err)
	}
	return nil
}

func (t *sqliteTx) UpdateMatchRecord(ctx context.Context, m *models.MatchRecord) error {
	if err := m.Validate(); err != nil {
		return err
	}
	reasons, err := encodeReasons(m.Reasons)
	if err != nil {
		return queryFailed("update match record", err)
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE match_records
		SET document_id = ?, confidence = ?, state = ?, amount_diff = ?, day_diff = ?, reasons = ?,
			period = ?, method = ?, confirmed_by = ?, confirmed_at = ?, notes = ?
		WHERE id = ?`,
		m.DocumentID, m.Confidence, string(m.State), m.AmountDiff, m.DayDiff, reasons,
		m.Period, string(m.Method), m.ConfirmedBy, nullTimestamp(m.ConfirmedAt), m.Notes, m.ID)
	if err != nil {
		return queryFailed("update match record", err)
	}
	return checkAffected(res, "match_records", m.ID)
}

func (t *sqliteTx) DeleteMatchRecord(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM match_records WHERE id = ?`, id)
	if err != nil {
		return queryFailed("delete match record", err)
	}
	return checkAffected(res, "match_records", id)
}
