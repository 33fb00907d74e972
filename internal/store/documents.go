package store

import (
	"context"
	"database/sql"

	"golang-reconciliation-engine/internal/models"

	"github.com/pkg/errors"
)

const documentColumns = `id, client_id, issue_date, total_amount, issuer_tax_id, issuer_name,
	folio, document_type, version`

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc  models.Document
		date string
	)
	err := row.Scan(&doc.ID, &doc.ClientID, &date, &doc.TotalAmount, &doc.IssuerTaxID,
		&doc.IssuerName, &doc.Folio, &doc.DocumentType, &doc.Version)
	if err != nil {
		return nil, err
	}
	if doc.IssueDate, err = parseDateColumn(date); err != nil {
		return nil, errors.Wrapf(err, "document %s has malformed issue date", doc.ID)
	}
	return &doc, nil
}

func (t *sqliteTx) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "document %s", id)
	}
	if err != nil {
		return nil, queryFailed("get document", err)
	}
	return doc, nil
}

// ListDocuments returns documents ordered by issue date, then ID. This order
// is the iteration order scoring ties fall back to.
func (t *sqliteTx) ListDocuments(ctx context.Context, filter DocumentFilter) ([]*models.Document, error) {
	var w whereBuilder
	if filter.ClientID != "" {
		w.add("client_id = ?", filter.ClientID)
	}
	if !filter.From.IsZero() {
		w.add("issue_date >= ?", models.FormatDate(filter.From))
	}
	if !filter.To.IsZero() {
		w.add("issue_date <= ?", models.FormatDate(filter.To))
	}

	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents`+w.String()+` ORDER BY issue_date, id`, w.args...)
	if err != nil {
		return nil, queryFailed("list documents", err)
	}
	defer rows.Close()

	var out []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, queryFailed("list documents", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed("list documents", err)
	}
	return out, nil
}

func (t *sqliteTx) InsertDocument(ctx context.Context, doc *models.Document) (bool, error) {
	if err := doc.Validate(); err != nil {
		return false, err
	}
	doc.Version = 1

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		doc.ID, doc.ClientID, models.FormatDate(doc.IssueDate), doc.TotalAmount, doc.IssuerTaxID,
		doc.IssuerName, doc.Folio, doc.DocumentType, doc.Version)
	if err != nil {
		return false, queryFailed("insert document", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, queryFailed("insert document", err)
	}
	return n == 1, nil
}

func (t *sqliteTx) TouchDocument(ctx context.Context, doc *models.Document) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE documents SET version = version + 1 WHERE id = ? AND version = ?`, doc.ID, doc.Version)
	if err != nil {
		return queryFailed("touch document", err)
	}
	if err := checkVersioned(ctx, t.tx, res, "documents", doc.ID); err != nil {
		return err
	}
	doc.Version++
	return nil
}
