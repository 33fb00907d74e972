package store

import (
	"context"
	"database/sql"

	"golang-reconciliation-engine/internal/models"

	"github.com/pkg/errors"
)

const alertColumns = `id, client_id, kind, severity, title, description, state,
	reference_amount, detected_amount, transaction_id, document_id, created_at`

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		a                 models.Alert
		kind, sev, state  string
		refAmount, detAmt sql.NullInt64
		createdAt         string
	)
	err := row.Scan(&a.ID, &a.ClientID, &kind, &sev, &a.Title, &a.Description, &state,
		&refAmount, &detAmt, &a.TransactionID, &a.DocumentID, &createdAt)
	if err != nil {
		return nil, err
	}
	a.Kind = models.AlertKind(kind)
	a.Severity = models.Severity(sev)
	a.State = models.AlertState(state)
	a.ReferenceAmount = scanNullInt(refAmount)
	a.DetectedAmount = scanNullInt(detAmt)
	if a.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, errors.Wrapf(err, "alert %s has malformed created_at", a.ID)
	}
	return &a, nil
}

func (t *sqliteTx) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "alert %s", id)
	}
	if err != nil {
		return nil, queryFailed("get alert", err)
	}
	return a, nil
}

func (t *sqliteTx) ListAlerts(ctx context.Context, filter AlertFilter) ([]*models.Alert, error) {
	var w whereBuilder
	if filter.ClientID != "" {
		w.add("client_id = ?", filter.ClientID)
	}
	if filter.State != "" {
		w.add("state = ?", string(filter.State))
	}
	if filter.Kind != "" {
		w.add("kind = ?", string(filter.Kind))
	}

	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts`+w.String()+` ORDER BY created_at, rowid`, w.args...)
	if err != nil {
		return nil, queryFailed("list alerts", err)
	}
	defer rows.Close()

	var out []*models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, queryFailed("list alerts", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed("list alerts", err)
	}
	return out, nil
}

func (t *sqliteTx) HasOpenAlert(ctx context.Context, clientID string, kind models.AlertKind, transactionID string) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM alerts
		WHERE client_id = ? AND kind = ? AND transaction_id = ? AND state = ?`,
		clientID, string(kind), transactionID, string(models.AlertOpen)).Scan(&n)
	if err != nil {
		return false, queryFailed("check open alert", err)
	}
	return n > 0, nil
}

func (t *sqliteTx) InsertAlert(ctx context.Context, a *models.Alert) error {
	if err := a.Validate(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ClientID, string(a.Kind), string(a.Severity), a.Title, a.Description, string(a.State),
		nullInt(a.ReferenceAmount), nullInt(a.DetectedAmount), a.TransactionID, a.DocumentID,
		formatTimestamp(a.CreatedAt))
	if err != nil {
		return queryFailed("insert alert", err)
	}
	return nil
}

func (t *sqliteTx) UpdateAlert(ctx context.Context, a *models.Alert) error {
	if err := a.Validate(); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE alerts SET severity = ?, title = ?, description = ?, state = ? WHERE id = ?`,
		string(a.Severity), a.Title, a.Description, string(a.State), a.ID)
	if err != nil {
		return queryFailed("update alert", err)
	}
	return checkAffected(res, "alerts", a.ID)
}
