/*
Package sqlite provides a SQLite-backed system of record for stock counts.

PURPOSE:
  Implements the count storage interfaces (Lookup, ClosingStore,
  PartialCountSource, LocationDirectory) using SQLite. In production, the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  count.Lookup:             Catalog + stock facts in one query
  count.ClosingStore:       Atomic closing commit, history, detail
  count.PartialCountSource: Stock rows, least recently counted first
  count.LocationDirectory:  Known locations

COMMIT:
  CommitClosing runs in one SQL transaction:
  1. Validate the payload and recompute the totals (nothing written on failure)
  2. Insert the closing row and every item verbatim
  3. Stamp last_counted_at on the counted stock rows
  Closings and their items are never updated or deleted afterwards.

KEY TABLES:
  parts:         Catalog (reference, name)
  locations:     Counted places
  stock:         Per-location system quantity and last count time
  closings:      One row per submitted count, with the three totals
  closing_items: The reconciled lines of each closing

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/stockcount.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  lines, err := count.ReconcileWithLookup(ctx, store, locationID, counted)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - count/store.go: Interface definitions
  - count/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/stock-count/count"
)

// timeFormat sorts lexically in chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Store implements all storage interfaces using SQLite.
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
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
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

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Catalog
	CREATE TABLE IF NOT EXISTS parts (
		reference TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Locations
	CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Stock per location
	CREATE TABLE IF NOT EXISTS stock (
		location_id TEXT NOT NULL REFERENCES locations(id),
		reference TEXT NOT NULL REFERENCES parts(reference),
		quantity INTEGER NOT NULL,
		last_counted_at TEXT,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (location_id, reference)
	);

	-- Partial count seeding (least recently counted first)
	CREATE INDEX IF NOT EXISTS idx_stock_location_counted
		ON stock(location_id, last_counted_at, reference);

	-- Closings (append-only)
	CREATE TABLE IF NOT EXISTS closings (
		id TEXT PRIMARY KEY,
		location_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		count_type TEXT NOT NULL,
		total_items_audited INTEGER NOT NULL,
		total_differences_found INTEGER NOT NULL,
		total_manual_quantity INTEGER NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	-- History per location (hot path)
	CREATE INDEX IF NOT EXISTS idx_closings_location_created
		ON closings(location_id, created_at DESC);

	-- Closing items, persisted verbatim
	CREATE TABLE IF NOT EXISTS closing_items (
		closing_id TEXT NOT NULL REFERENCES closings(id),
		position INTEGER NOT NULL,
		reference TEXT NOT NULL,
		name TEXT NOT NULL,
		counted_quantity INTEGER NOT NULL,
		system_quantity INTEGER NOT NULL,
		manual_quantity INTEGER NOT NULL,
		difference INTEGER NOT NULL,
		exists_in_catalog BOOLEAN NOT NULL,
		exists_in_location_stock BOOLEAN NOT NULL,
		PRIMARY KEY (closing_id, reference)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// CATALOG, LOCATIONS AND STOCK
// =============================================================================

// Part is a catalog record.
type Part struct {
	Reference string `json:"reference"`
	Name      string `json:"name"`
}

// StockRecord is the system quantity of a reference at a location.
type StockRecord struct {
	LocationID    count.LocationID `json:"location_id"`
	Reference     string           `json:"reference"`
	Quantity      int              `json:"quantity"`
	LastCountedAt *time.Time       `json:"last_counted_at,omitempty"`
}

// SavePart creates or renames a catalog part.
func (s *Store) SavePart(ctx context.Context, p Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO parts (reference, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(reference) DO UPDATE SET name = excluded.name
	`
	_, err := s.db.ExecContext(ctx, query, p.Reference, p.Name, formatTime(time.Now()))
	return err
}

// ListParts returns the catalog ordered by reference.
func (s *Store) ListParts(ctx context.Context) ([]Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT reference, name FROM parts ORDER BY reference")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parts []Part
	for rows.Next() {
		var p Part
		if err := rows.Scan(&p.Reference, &p.Name); err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// SaveLocation creates or renames a location.
func (s *Store) SaveLocation(ctx context.Context, loc count.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO locations (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`
	_, err := s.db.ExecContext(ctx, query, loc.ID, loc.Name, formatTime(time.Now()))
	return err
}

// GetLocation implements count.LocationDirectory.
func (s *Store) GetLocation(ctx context.Context, id count.LocationID) (*count.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var loc count.Location
	err := s.db.QueryRowContext(ctx, "SELECT id, name FROM locations WHERE id = ?", id).
		Scan(&loc.ID, &loc.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, count.ErrLocationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// ListLocations implements count.LocationDirectory.
func (s *Store) ListLocations(ctx context.Context) ([]count.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM locations ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := make([]count.Location, 0)
	for rows.Next() {
		var loc count.Location
		if err := rows.Scan(&loc.ID, &loc.Name); err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

// SetStock sets the system quantity of a reference at a location.
// The part and the location must exist.
func (s *Store) SetStock(ctx context.Context, locationID count.LocationID, reference string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO stock (location_id, reference, quantity, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(location_id, reference) DO UPDATE SET
			quantity = excluded.quantity,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, locationID, reference, quantity, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to set stock %s/%s: %w", locationID, reference, err)
	}
	return nil
}

// ListStock returns the stock rows of a location ordered by reference.
func (s *Store) ListStock(ctx context.Context, locationID count.LocationID) ([]StockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT location_id, reference, quantity, last_counted_at FROM stock WHERE location_id = ? ORDER BY reference",
		locationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []StockRecord
	for rows.Next() {
		var (
			r           StockRecord
			lastCounted sql.NullString
		)
		if err := rows.Scan(&r.LocationID, &r.Reference, &r.Quantity, &lastCounted); err != nil {
			return nil, err
		}
		if lastCounted.Valid {
			t := parseTime(lastCounted.String)
			r.LastCountedAt = &t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// =============================================================================
// LOOKUP (count.Lookup interface)
// =============================================================================

// Lookup implements count.Lookup with a single query. References not in the
// catalog are left out of the result.
func (s *Store) Lookup(ctx context.Context, locationID count.LocationID, references []string) (map[string]count.CatalogStockFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	facts := make(map[string]count.CatalogStockFact, len(references))
	if len(references) == 0 {
		return facts, nil
	}
	refsJSON, err := json.Marshal(references)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT p.reference, p.name,
		       CASE WHEN s.quantity IS NULL THEN 0 ELSE 1 END,
		       COALESCE(s.quantity, 0)
		FROM parts p
		LEFT JOIN stock s ON s.reference = p.reference AND s.location_id = ?
		WHERE p.reference IN (SELECT value FROM json_each(?))
	`
	rows, err := s.db.QueryContext(ctx, query, locationID, string(refsJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to query stock facts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f       count.CatalogStockFact
			stocked int
		)
		if err := rows.Scan(&f.Reference, &f.Name, &stocked, &f.SystemQuantity); err != nil {
			return nil, fmt.Errorf("failed to scan stock fact: %w", err)
		}
		f.ExistsInCatalog = true
		f.ExistsInLocationStock = stocked == 1
		facts[f.Reference] = f
	}
	return facts, rows.Err()
}

// PartialCountItems implements count.PartialCountSource. Rows never counted
// come first.
func (s *Store) PartialCountItems(ctx context.Context, locationID count.LocationID, limit int) ([]count.CatalogStockFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT s.reference, COALESCE(p.name, ''), s.quantity
		FROM stock s
		LEFT JOIN parts p ON p.reference = s.reference
		WHERE s.location_id = ?
		ORDER BY s.last_counted_at ASC, s.reference ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, locationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query partial count items: %w", err)
	}
	defer rows.Close()

	items := make([]count.CatalogStockFact, 0)
	for rows.Next() {
		f := count.CatalogStockFact{ExistsInCatalog: true, ExistsInLocationStock: true}
		if err := rows.Scan(&f.Reference, &f.Name, &f.SystemQuantity); err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

// =============================================================================
// CLOSING STORE (count.ClosingStore interface)
// =============================================================================

// CommitClosing implements count.ClosingStore.
func (s *Store) CommitClosing(ctx context.Context, c count.CountClosing) (count.ClosingID, error) {
	if err := count.ValidateClosing(c); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := count.ClosingID(uuid.NewString())
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO closings
		(id, location_id, user_id, count_type, total_items_audited, total_differences_found,
		 total_manual_quantity, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id, c.LocationID, c.UserID, c.Type,
		c.TotalItemsAudited, c.TotalDifferencesFound, c.TotalManualQuantity,
		nullString(c.Notes), formatTime(createdAt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert closing: %w", err)
	}

	if err := insertItems(ctx, sqlTx, id, c.Items); err != nil {
		return "", err
	}
	if err := stampCounted(ctx, sqlTx, c.LocationID, c.Items, createdAt); err != nil {
		return "", err
	}

	if err := sqlTx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit closing: %w", err)
	}
	return id, nil
}

func insertItems(ctx context.Context, db execer, id count.ClosingID, items []count.ReconciledLine) error {
	query := `
		INSERT INTO closing_items
		(closing_id, position, reference, name, counted_quantity, system_quantity,
		 manual_quantity, difference, exists_in_catalog, exists_in_location_stock)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i, it := range items {
		_, err := db.ExecContext(ctx, query,
			id, i, it.Reference, it.Name,
			it.CountedQuantity, it.SystemQuantity, it.ManualQuantity, it.Difference,
			it.ExistsInCatalog, it.ExistsInLocationStock,
		)
		if err != nil {
			return fmt.Errorf("failed to insert closing item %s: %w", it.Reference, err)
		}
	}
	return nil
}

func stampCounted(ctx context.Context, db execer, locationID count.LocationID, items []count.ReconciledLine, at time.Time) error {
	query := "UPDATE stock SET last_counted_at = ? WHERE location_id = ? AND reference = ?"
	stamp := formatTime(at)
	for _, it := range items {
		if !it.ExistsInLocationStock {
			continue
		}
		if _, err := db.ExecContext(ctx, query, stamp, locationID, it.Reference); err != nil {
			return fmt.Errorf("failed to stamp %s: %w", it.Reference, err)
		}
	}
	return nil
}

// ListClosingHistory implements count.ClosingStore.
func (s *Store) ListClosingHistory(ctx context.Context, locationID count.LocationID, page, pageSize int) (count.ClosingPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if pageSize <= 0 {
		pageSize = count.DefaultPageSize
	}
	if page < 1 {
		page = 1
	}

	result := count.ClosingPage{Items: make([]count.ClosingSummary, 0)}
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM closings WHERE location_id = ?", locationID,
	).Scan(&result.Total)
	if err != nil {
		return result, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, location_id, user_id, count_type, total_items_audited,
		       total_differences_found, total_manual_quantity, notes, created_at
		FROM closings
		WHERE location_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, locationID, pageSize, (page-1)*pageSize)
	if err != nil {
		return result, fmt.Errorf("failed to query closings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanClosing(rows)
		if err != nil {
			return result, err
		}
		result.Items = append(result.Items, c.Summary())
	}
	return result, rows.Err()
}

// GetClosing implements count.ClosingStore.
func (s *Store) GetClosing(ctx context.Context, id count.ClosingID) (*count.CountClosing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, location_id, user_id, count_type, total_items_audited,
		       total_differences_found, total_manual_quantity, notes, created_at
		FROM closings WHERE id = ?
	`, id)
	c, err := scanClosing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, count.ErrClosingNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT reference, name, counted_quantity, system_quantity, manual_quantity,
		       difference, exists_in_catalog, exists_in_location_stock
		FROM closing_items WHERE closing_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query closing items: %w", err)
	}
	defer rows.Close()

	c.Items = make([]count.ReconciledLine, 0)
	for rows.Next() {
		var it count.ReconciledLine
		if err := rows.Scan(&it.Reference, &it.Name, &it.CountedQuantity, &it.SystemQuantity,
			&it.ManualQuantity, &it.Difference, &it.ExistsInCatalog, &it.ExistsInLocationStock); err != nil {
			return nil, fmt.Errorf("failed to scan closing item: %w", err)
		}
		c.Items = append(c.Items, it)
	}
	return &c, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanClosing(row scanner) (count.CountClosing, error) {
	var (
		c         count.CountClosing
		notes     sql.NullString
		createdAt string
	)
	err := row.Scan(&c.ID, &c.LocationID, &c.UserID, &c.Type,
		&c.TotalItemsAudited, &c.TotalDifferencesFound, &c.TotalManualQuantity,
		&notes, &createdAt)
	if err != nil {
		return c, err
	}
	c.Notes = notes.String
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"closing_items", "closings", "stock", "parts", "locations"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
