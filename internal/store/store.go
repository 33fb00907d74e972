// Package store is the record store adapter: indexed, transactional access to
// transactions, documents, match records, learned patterns and alerts.
package store

import (
	"context"
	"time"

	"golang-reconciliation-engine/internal/models"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a lookup by ID matches no row
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when an optimistic version check fails
	ErrConflict = errors.New("record was modified concurrently")
)

// Store runs units of work against the record store
type Store interface {
	// RunInTx executes fn inside one atomic transaction. Any error returned by
	// fn rolls the transaction back.
	RunInTx(ctx context.Context, fn func(Tx) error) error
	Migrate(ctx context.Context) error
	Close() error
}

// Tx is the set of reads and writes available inside a unit of work
type Tx interface {
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*models.Transaction, error)
	// InsertTransaction stores a new transaction and reports false when the ID already exists
	InsertTransaction(ctx context.Context, tx *models.Transaction) (bool, error)
	// UpdateTransaction writes tx if its Version is current and bumps Version
	UpdateTransaction(ctx context.Context, tx *models.Transaction) error

	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]*models.Document, error)
	InsertDocument(ctx context.Context, doc *models.Document) (bool, error)
	// TouchDocument bumps the document version if doc.Version is current
	TouchDocument(ctx context.Context, doc *models.Document) error

	GetMatchRecord(ctx context.Context, id string) (*models.MatchRecord, error)
	LatestMatchRecord(ctx context.Context, transactionID string) (*models.MatchRecord, error)
	ListMatchRecords(ctx context.Context, filter MatchFilter) ([]*models.MatchRecord, error)
	// MatchedDocumentIDs returns the documents bound to a matched record of the client
	MatchedDocumentIDs(ctx context.Context, clientID string) (map[string]bool, error)
	InsertMatchRecord(ctx context.Context, record *models.MatchRecord) error
	UpdateMatchRecord(ctx context.Context, record *models.MatchRecord) error
	DeleteMatchRecord(ctx context.Context, id string) error

	// ActivePatterns lists a client's active patterns, oldest first
	ActivePatterns(ctx context.Context, clientID string) ([]*models.LearnedPattern, error)
	ListPatterns(ctx context.Context, clientID string) ([]*models.LearnedPattern, error)
	FindActivePattern(ctx context.Context, clientID, fingerprint string) (*models.LearnedPattern, error)
	InsertPattern(ctx context.Context, pattern *models.LearnedPattern) error
	UpdatePattern(ctx context.Context, pattern *models.LearnedPattern) error

	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*models.Alert, error)
	// HasOpenAlert reports whether an open alert of kind already exists for the transaction
	HasOpenAlert(ctx context.Context, clientID string, kind models.AlertKind, transactionID string) (bool, error)
	InsertAlert(ctx context.Context, alert *models.Alert) error
	UpdateAlert(ctx context.Context, alert *models.Alert) error
}

// TransactionFilter selects transactions. Zero-valued fields do not filter.
type TransactionFilter struct {
	ClientID string
	// States restricts reconciliation state; include "" to select unset rows
	States []models.ReconciliationState
	// Period is a YYYY-MM prefix of the transaction date
	Period string
	From   time.Time
	To     time.Time
}

// DocumentFilter selects documents
type DocumentFilter struct {
	ClientID string
	From     time.Time
	To       time.Time
}

// MatchFilter selects match records
type MatchFilter struct {
	ClientID string
	Period   string
	State    models.ReconciliationState
}

// AlertFilter selects alerts
type AlertFilter struct {
	ClientID string
	State    models.AlertState
	Kind     models.AlertKind
}
