package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"golang-reconciliation-engine/internal/models"

	"github.com/pkg/errors"
)

const transactionColumns = `id, client_id, date, description, normalized_description, reference,
	amount, category, reconciliation_state, matched_document_id, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		tx    models.Transaction
		date  string
		state string
	)
	err := row.Scan(&tx.ID, &tx.ClientID, &date, &tx.Description, &tx.NormalizedDescription,
		&tx.Reference, &tx.Amount, &tx.Category, &state, &tx.MatchedDocumentID, &tx.Version)
	if err != nil {
		return nil, err
	}

	tx.ReconciliationState = models.ReconciliationState(state)
	if tx.Date, err = parseDateColumn(date); err != nil {
		return nil, errors.Wrapf(err, "transaction %s has malformed date", tx.ID)
	}
	return &tx, nil
}

func parseDateColumn(s string) (time.Time, error) {
	return time.Parse(models.DateLayout, s)
}

func (t *sqliteTx) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "transaction %s", id)
	}
	if err != nil {
		return nil, queryFailed("get transaction", err)
	}
	return tx, nil
}

func (t *sqliteTx) ListTransactions(ctx context.Context, filter TransactionFilter) ([]*models.Transaction, error) {
	var w whereBuilder
	if filter.ClientID != "" {
		w.add("client_id = ?", filter.ClientID)
	}
	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		args := make([]any, len(filter.States))
		for i, s := range filter.States {
			placeholders[i] = "?"
			args[i] = string(s)
		}
		w.add("reconciliation_state IN ("+strings.Join(placeholders, ", ")+")", args...)
	}
	if filter.Period != "" {
		w.add("date LIKE ?", filter.Period+"%")
	}
	if !filter.From.IsZero() {
		w.add("date >= ?", models.FormatDate(filter.From))
	}
	if !filter.To.IsZero() {
		w.add("date <= ?", models.FormatDate(filter.To))
	}

	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions`+w.String()+` ORDER BY date, id`, w.args...)
	if err != nil {
		return nil, queryFailed("list transactions", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, queryFailed("list transactions", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed("list transactions", err)
	}
	return out, nil
}

func (t *sqliteTx) InsertTransaction(ctx context.Context, tx *models.Transaction) (bool, error) {
	if err := tx.Validate(); err != nil {
		return false, err
	}
	if tx.ReconciliationState == "" {
		tx.ReconciliationState = models.StatePending
	}
	tx.Version = 1

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		tx.ID, tx.ClientID, models.FormatDate(tx.Date), tx.Description, tx.NormalizedDescription,
		tx.Reference, tx.Amount, tx.Category, string(tx.ReconciliationState), tx.MatchedDocumentID, tx.Version)
	if err != nil {
		return false, queryFailed("insert transaction", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, queryFailed("insert transaction", err)
	}
	return n == 1, nil
}

func (t *sqliteTx) UpdateTransaction(ctx context.Context, tx *models.Transaction) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE transactions
		SET description = ?, normalized_description = ?, reference = ?, category = ?,
			reconciliation_state = ?, matched_document_id = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		tx.Description, tx.NormalizedDescription, tx.Reference, tx.Category,
		string(tx.ReconciliationState), tx.MatchedDocumentID, tx.ID, tx.Version)
	if err != nil {
		return queryFailed("update transaction", err)
	}
	if err := checkVersioned(ctx, t.tx, res, "transactions", tx.ID); err != nil {
		return err
	}
	tx.Version++
	return nil
}
