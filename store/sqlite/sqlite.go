/*
Package sqlite provides a SQLite-backed stock history audit trail.

PURPOSE:
  Persists raw stock-change rows and serves them back to the costing
  engine as a costing.EventSource. In production the same schema runs on
  PostgreSQL with only minor dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on stock_history
  - No DELETE statements on stock_history (Reset is for demo data only)
  - Corrections are new MANUAL_UPDATE rows

KEY TABLE:
  stock_history: one row per stock change
    seq             arrival order, assigned by SQLite (tie-breaker)
    id              external event ID, unique
    item_id         item the change applies to
    supplier_id     supplier of the item, matched case-insensitively
    reason          raw reason code, classified by the engine on read
    quantity_change signed delta as recorded
    price_at_change decimal text, NULL when the row carries no price
    created_at      event timestamp (fixed-width UTC text, sorts lexically)

INDEXES:
  - idx_stock_history_created: full-trail replay (hot path)
  - idx_stock_history_supplier_created: supplier-scoped replay
  - idx_stock_history_item_created: item-scoped replay

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer and vice versa
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/costing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := costing.NewEngine(store, costing.DefaultPolicy())

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/costing-engine/costing"
)

// timeLayout is fixed width so that text comparison matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrDuplicateEvent is returned when an appended row reuses an existing ID.
var ErrDuplicateEvent = costing.ErrDuplicateEvent

// Store implements costing.EventLog on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	-- Stock history (append-only audit trail)
	CREATE TABLE IF NOT EXISTS stock_history (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		item_id TEXT NOT NULL,
		supplier_id TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL,
		quantity_change INTEGER NOT NULL,
		price_at_change TEXT,
		created_at TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_stock_history_created
		ON stock_history(created_at, seq);

	CREATE INDEX IF NOT EXISTS idx_stock_history_supplier_created
		ON stock_history(lower(supplier_id), created_at, seq);

	CREATE INDEX IF NOT EXISTS idx_stock_history_item_created
		ON stock_history(item_id, created_at, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// WRITES
// =============================================================================

// Append persists rows in one transaction. Rows without an ID get a UUID;
// sequence numbers come from the table. Either every row is written or none.
func (s *Store) Append(ctx context.Context, events []costing.RawEvent) ([]costing.RawEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stock_history
		(id, item_id, supplier_id, reason, quantity_change, price_at_change, created_at, created_by, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	recordedAt := time.Now().UTC().Format(timeLayout)
	out := make([]costing.RawEvent, len(events))
	for i, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.Timestamp = e.Timestamp.UTC()

		res, err := stmt.ExecContext(ctx,
			e.ID,
			e.ItemID,
			e.SupplierID,
			e.Reason,
			e.QuantityDelta,
			nullPrice(e.UnitPrice),
			e.Timestamp.Format(timeLayout),
			e.CreatedBy,
			recordedAt,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateEvent, e.ID)
			}
			return nil, fmt.Errorf("failed to append event: %w", err)
		}
		if e.Seq, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("failed to read sequence: %w", err)
		}
		out[i] = e
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit events: %w", err)
	}
	return out, nil
}

// Reset drops all stock history. For demo data loading only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM stock_history")
	return err
}

// =============================================================================
// READS (costing.EventSource)
// =============================================================================

const selectColumns = `
	SELECT seq, id, item_id, supplier_id, reason, quantity_change, price_at_change, created_at, created_by
	FROM stock_history
`

// Events returns rows in scope with created_at strictly before until,
// ordered by timestamp then arrival.
func (s *Store) Events(ctx context.Context, scope costing.Scope, until time.Time) ([]costing.RawEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scope = scope.Normalize()
	where := []string{"created_at < ?"}
	args := []any{until.UTC().Format(timeLayout)}
	if scope.SupplierID != "" {
		where = append(where, "lower(supplier_id) = ?")
		args = append(args, scope.SupplierID)
	}
	if scope.ItemID != "" {
		where = append(where, "item_id = ?")
		args = append(args, scope.ItemID)
	}

	query := selectColumns + " WHERE " + strings.Join(where, " AND ") + " ORDER BY created_at ASC, seq ASC"
	return s.queryEvents(ctx, query, args...)
}

// Recent returns the latest rows by arrival, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]costing.RawEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	return s.queryEvents(ctx, selectColumns+" ORDER BY seq DESC LIMIT ?", limit)
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stock_history").Scan(&n)
	return n, err
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]costing.RawEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock history: %w", err)
	}
	defer rows.Close()

	var result []costing.RawEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func scanEvent(rows *sql.Rows) (costing.RawEvent, error) {
	var (
		e         costing.RawEvent
		price     sql.NullString
		createdAt string
	)
	if err := rows.Scan(&e.Seq, &e.ID, &e.ItemID, &e.SupplierID, &e.Reason,
		&e.QuantityDelta, &price, &createdAt, &e.CreatedBy); err != nil {
		return costing.RawEvent{}, fmt.Errorf("failed to scan stock history: %w", err)
	}

	ts, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return costing.RawEvent{}, fmt.Errorf("event %s: bad created_at %q: %w", e.ID, createdAt, err)
	}
	e.Timestamp = ts

	if price.Valid {
		d, err := decimal.NewFromString(price.String)
		if err != nil {
			return costing.RawEvent{}, fmt.Errorf("event %s: bad price %q: %w", e.ID, price.String, err)
		}
		e.UnitPrice = decimal.NewNullDecimal(d)
	}
	return e, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullPrice(p decimal.NullDecimal) sql.NullString {
	if !p.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: p.Decimal.String(), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ costing.EventLog = (*Store)(nil)
