package store

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	apperrors "golang-reconciliation-engine/pkg/errors"
	"golang-reconciliation-engine/pkg/logger"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timestampLayout is fixed width so stored instants sort as text
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store on a single SQLite database file
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger logger.Logger
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (creating if needed) the database at path. Migrate must be
// called before first use.
func Open(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, apperrors.ValidationError(apperrors.CodeMissingField, "database.path", path, nil)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, apperrors.FileError(apperrors.CodeFilePermission, dir, err)
		}
	}

	// Immediate transactions take the write lock up front so a unit of work
	// never fails half-way on lock upgrade.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperrors.StorageError(apperrors.CodeQueryFailed, "open database", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, apperrors.StorageError(apperrors.CodeQueryFailed, "ping database", err)
	}

	return &SQLiteStore{
		db:     db,
		path:   path,
		logger: logger.GetGlobalLogger().WithComponent("store"),
	}, nil
}

// OpenAndMigrate opens the database and applies pending migrations
func OpenAndMigrate(ctx context.Context, path string) (*SQLiteStore, error) {
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies every pending embedded migration
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	provider, err := s.provider()
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return apperrors.StorageError(apperrors.CodeMigrationFailed, "migrate up", err)
	}

	for _, r := range results {
		s.logger.WithFields(logger.Fields{
			"version":  r.Source.Version,
			"file":     filepath.Base(r.Source.Path),
			"duration": r.Duration.String(),
		}).Info("Applied migration")
	}
	return nil
}

// SchemaVersion returns the latest applied migration version
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int64, error) {
	provider, err := s.provider()
	if err != nil {
		return 0, err
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, apperrors.StorageError(apperrors.CodeMigrationFailed, "read schema version", err)
	}
	return version, nil
}

func (s *SQLiteStore) provider() (*goose.Provider, error) {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, apperrors.InternalError("load migrations", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return nil, apperrors.StorageError(apperrors.CodeMigrationFailed, "init migrations", err)
	}
	return provider, nil
}

// RunInTx executes fn inside one database transaction
func (s *SQLiteStore) RunInTx(ctx context.Context, fn func(Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.StorageError(apperrors.CodeQueryFailed, "begin transaction", err)
	}

	if err := fn(&sqliteTx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.WithError(rbErr).Warn("Rollback failed")
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return apperrors.StorageError(apperrors.CodeCommitFailed, "commit transaction", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.path
}

// sqliteTx implements Tx over a database/sql transaction
type sqliteTx struct {
	tx *sql.Tx
}

// queryable is satisfied by *sql.Tx and *sql.DB
type queryable interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var _ queryable = (*sql.Tx)(nil)

func queryFailed(operation string, err error) error {
	return apperrors.StorageError(apperrors.CodeQueryFailed, operation, err)
}

// checkVersioned resolves a zero-row versioned update into ErrNotFound or ErrConflict
func checkVersioned(ctx context.Context, q queryable, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return queryFailed("update "+table, err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id).Scan(&exists)
	if err != nil {
		return queryFailed("update "+table, err)
	}
	if exists == 0 {
		return errors.Wrapf(ErrNotFound, "%s %s", table, id)
	}
	return errors.Wrapf(ErrConflict, "%s %s", table, id)
}

// checkAffected returns ErrNotFound when an update or delete touched no row
func checkAffected(res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return queryFailed("write "+table, err)
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "%s %s", table, id)
	}
	return nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

func nullTimestamp(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTimestamp(*t), Valid: true}
}

func scanNullTimestamp(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTimestamp(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func scanNullInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// whereBuilder collects AND-ed conditions and their arguments
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	out := " WHERE " + w.clauses[0]
	for _, c := range w.clauses[1:] {
		out += " AND " + c
	}
	return out
}
