package store

import (
	"context"
	"database/sql"

	"golang-reconciliation-engine/internal/models"

	"github.com/pkg/errors"
)

const patternColumns = `id, client_id, fingerprint, counterparty_tax_id, category, document_type,
	times_applied, score_boost, active, last_applied, created_at`

func scanPattern(row rowScanner) (*models.LearnedPattern, error) {
	var (
		p           models.LearnedPattern
		lastApplied sql.NullString
		createdAt   string
	)
	err := row.Scan(&p.ID, &p.ClientID, &p.Fingerprint, &p.CounterpartyTaxID, &p.Category,
		&p.DocumentType, &p.TimesApplied, &p.ScoreBoost, &p.Active, &lastApplied, &createdAt)
	if err != nil {
		return nil, err
	}
	if p.LastApplied, err = scanNullTimestamp(lastApplied); err != nil {
		return nil, errors.Wrapf(err, "pattern %s has malformed last_applied", p.ID)
	}
	if p.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, errors.Wrapf(err, "pattern %s has malformed created_at", p.ID)
	}
	return &p, nil
}

func (t *sqliteTx) queryPatterns(ctx context.Context, operation, where string, args ...any) ([]*models.LearnedPattern, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+patternColumns+` FROM learned_patterns WHERE `+where+` ORDER BY created_at, rowid`, args...)
	if err != nil {
		return nil, queryFailed(operation, err)
	}
	defer rows.Close()

	var out []*models.LearnedPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, queryFailed(operation, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed(operation, err)
	}
	return out, nil
}

func (t *sqliteTx) ActivePatterns(ctx context.Context, clientID string) ([]*models.LearnedPattern, error) {
	return t.queryPatterns(ctx, "active patterns", "client_id = ? AND active = 1", clientID)
}

func (t *sqliteTx) ListPatterns(ctx context.Context, clientID string) ([]*models.LearnedPattern, error) {
	return t.queryPatterns(ctx, "list patterns", "client_id = ?", clientID)
}

func (t *sqliteTx) FindActivePattern(ctx context.Context, clientID, fingerprint string) (*models.LearnedPattern, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+patternColumns+` FROM learned_patterns
		WHERE client_id = ? AND fingerprint = ? AND active = 1
		ORDER BY created_at, rowid
		LIMIT 1`, clientID, fingerprint)
	p, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "pattern %q for client %s", fingerprint, clientID)
	}
	if err != nil {
		return nil, queryFailed("find pattern", err)
	}
	return p, nil
}

func (t *sqliteTx) InsertPattern(ctx context.Context, p *models.LearnedPattern) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO learned_patterns (`+patternColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ClientID, p.Fingerprint, p.CounterpartyTaxID, p.Category, p.DocumentType,
		p.TimesApplied, p.ScoreBoost, p.Active, nullTimestamp(p.LastApplied), formatTimestamp(p.CreatedAt))
	if err != nil {
		return queryFailed("insert pattern", err)
	}
	return nil
}

func (t *sqliteTx) UpdatePattern(ctx context.Context, p *models.LearnedPattern) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE learned_patterns
		SET counterparty_tax_id = ?, category = ?, document_type = ?, times_applied = ?,
			score_boost = ?, active = ?, last_applied = ?
		WHERE id = ?`,
		p.CounterpartyTaxID, p.Category, p.DocumentType, p.TimesApplied,
		p.ScoreBoost, p.Active, nullTimestamp(p.LastApplied), p.ID)
	if err != nil {
		return queryFailed("update pattern", err)
	}
	return checkAffected(res, "learned_patterns", p.ID)
}
