/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Embedded production backend: one file on disk, nothing else to run.
  Implements every capability the engine uses (ledger.TxStore,
  ledger.HistoryStore, ledger.SweepStore).

APPEND-ONLY ENFORCEMENT:
  The only UPDATE on ledger_entries flips the reversed flag. Amounts
  are never rewritten and rows are never deleted; corrections happen
  through reversal.

TIME ENCODING:
  Times are stored as UTC strings in a fixed-width RFC 3339 format with
  nine fractional digits. Fixed width keeps lexicographic comparison
  identical to chronological order, so ORDER BY expires_at is exact.
  Variable-width fractions would sort "00Z" after "00.5Z".

CONCURRENCY:
  WithUser pairs a per-user mutex with an immediate-mode transaction.
  The mutex serializes sections within this process; the immediate
  transaction takes SQLite's write lock up front, so a section never
  computes against a stale WAL snapshot. A second writing process is
  held off by the busy timeout and then surfaces as ErrStoreBusy. Run
  one engine process per database file.

WAL MODE:
  The database is opened with WAL so read-only calls (balance, history)
  proceed while a section holds the write lock.

USAGE:
  store, err := sqlite.New("./data/points.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc, err := ledger.NewService(store)

SEE ALSO:
  - ledger/store.go: interface definitions and ordering contracts
  - store/postgres: server-backed alternative with the same behavior
  - ledger/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/loopline/points-ledger/ledger"
)

// timeFormat is RFC 3339 with a fixed nine-digit fraction. All stored
// times use it; parsing accepts any RFC 3339 variant.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements the ledger storage interfaces using SQLite.
type Store struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a SQLite store at the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to :memory: opens its own empty database,
	// so the pool must stay at a single connection there.
	if strings.Contains(dbPath, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, locks: make(map[string]*sync.Mutex)}
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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id      TEXT NOT NULL,
		amount       INTEGER NOT NULL CHECK (amount != 0),
		grant_kind   TEXT NOT NULL DEFAULT '',
		consume_kind TEXT NOT NULL DEFAULT '',
		description  TEXT NOT NULL DEFAULT '',
		expires_at   TEXT,
		reversed     INTEGER NOT NULL DEFAULT 0,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	);

	-- History reads (hot path for every balance derivation)
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_user
		ON ledger_entries(user_id, id);

	-- Attribution order for expiration planning
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_grants
		ON ledger_entries(user_id, expires_at DESC, id DESC)
		WHERE reversed = 0;

	-- Expiration sweep bookkeeping
	CREATE TABLE IF NOT EXISTS sweep_runs (
		id             TEXT PRIMARY KEY,
		status         TEXT NOT NULL,
		users          INTEGER NOT NULL DEFAULT 0,
		points_expired INTEGER NOT NULL DEFAULT 0,
		error          TEXT NOT NULL DEFAULT '',
		started_at     TEXT NOT NULL,
		completed_at   TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sweep_runs_started
		ON sweep_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER ENTRIES (ledger.Store interface)
// =============================================================================

// dbtx is the statement surface shared by *sql.DB and *sql.Tx. The
// query helpers run against it so the transactional view inside
// WithUser reads its own writes.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const entryColumns = `id, user_id, amount, grant_kind, consume_kind, description, expires_at, reversed, created_at, updated_at`

// Append adds an entry to the ledger.
func (s *Store) Append(ctx context.Context, e ledger.Entry) (*ledger.Entry, error) {
	return appendEntry(ctx, s.db, e)
}

// Entries returns the user's full history in insertion order.
func (s *Store) Entries(ctx context.Context, userID string) ([]ledger.Entry, error) {
	return listEntries(ctx, s.db, userID)
}

// Grants returns active expiring grants in attribution order.
func (s *Store) Grants(ctx context.Context, userID string) ([]ledger.Entry, error) {
	return listGrants(ctx, s.db, userID)
}

// Entry returns a single entry by ID.
func (s *Store) Entry(ctx context.Context, id int64) (*ledger.Entry, error) {
	return getEntry(ctx, s.db, id)
}

// MarkReversed flips the reversed flag exactly once.
func (s *Store) MarkReversed(ctx context.Context, id int64) error {
	return markReversed(ctx, s.db, id)
}

func appendEntry(ctx context.Context, db dbtx, e ledger.Entry) (*ledger.Entry, error) {
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	query := `
		INSERT INTO ledger_entries
		(user_id, amount, grant_kind, consume_kind, description, expires_at, reversed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := db.ExecContext(ctx, query,
		e.UserID,
		e.Amount,
		string(e.GrantKind),
		string(e.ConsumeKind),
		e.Description,
		nullTime(e.ExpiresAt),
		e.Reversed,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return nil, mapErr("failed to append entry", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted id: %w", err)
	}

	e.ID = id
	return &e, nil
}

func listEntries(ctx context.Context, db dbtx, userID string) ([]ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE user_id = ?
		ORDER BY id ASC
	`
	return queryEntries(ctx, db, query, userID)
}

func listGrants(ctx context.Context, db dbtx, userID string) ([]ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE user_id = ? AND reversed = 0 AND grant_kind != '' AND expires_at IS NOT NULL
		ORDER BY expires_at DESC, id DESC
	`
	return queryEntries(ctx, db, query, userID)
}

func getEntry(ctx context.Context, db dbtx, id int64) (*ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE id = ?
	`

	e, err := scanEntry(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrEntryNotFound
	}
	if err != nil {
		return nil, mapErr("failed to load entry", err)
	}
	return e, nil
}

func markReversed(ctx context.Context, db dbtx, id int64) error {
	var reversed bool
	err := db.QueryRowContext(ctx,
		"SELECT reversed FROM ledger_entries WHERE id = ?", id,
	).Scan(&reversed)

	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrEntryNotFound
	}
	if err != nil {
		return mapErr("failed to load entry", err)
	}
	if reversed {
		return ledger.ErrEntryReversed
	}

	_, err = db.ExecContext(ctx,
		"UPDATE ledger_entries SET reversed = 1, updated_at = ? WHERE id = ?",
		formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return mapErr("failed to mark entry reversed", err)
	}
	return nil
}

func queryEntries(ctx context.Context, db dbtx, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr("failed to query entries", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}

	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*ledger.Entry, error) {
	var (
		e           ledger.Entry
		grantKind   string
		consumeKind string
		expiresAt   sql.NullString
		createdAt   string
		updatedAt   string
	)

	err := row.Scan(
		&e.ID, &e.UserID, &e.Amount, &grantKind, &consumeKind,
		&e.Description, &expiresAt, &e.Reversed, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.GrantKind = ledger.GrantKind(grantKind)
	e.ConsumeKind = ledger.ConsumeKind(consumeKind)

	if expiresAt.Valid {
		t, err := parseTime(expiresAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse expires_at: %w", err)
		}
		e.ExpiresAt = &t
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &e, nil
}

// =============================================================================
// PER-USER SECTION (ledger.TxStore interface)
// =============================================================================

// WithUser executes fn inside an exclusive section for userID, backed
// by a single write transaction.
func (s *Store) WithUser(ctx context.Context, userID string, fn func(ledger.Store) error) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr("failed to begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return mapErr("failed to commit transaction", err)
	}
	return nil
}

func (s *Store) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// txStore scopes the entry operations to one open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Append(ctx context.Context, e ledger.Entry) (*ledger.Entry, error) {
	return appendEntry(ctx, ts.tx, e)
}

func (ts *txStore) Entries(ctx context.Context, userID string) ([]ledger.Entry, error) {
	return listEntries(ctx, ts.tx, userID)
}

func (ts *txStore) Grants(ctx context.Context, userID string) ([]ledger.Entry, error) {
	return listGrants(ctx, ts.tx, userID)
}

func (ts *txStore) MarkReversed(ctx context.Context, id int64) error {
	return markReversed(ctx, ts.tx, id)
}

// =============================================================================
// SWEEP RUNS (ledger.SweepStore interface)
// =============================================================================

// UserIDs returns every user with at least one entry, sorted.
func (s *Store) UserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT user_id FROM ledger_entries ORDER BY user_id",
	)
	if err != nil {
		return nil, mapErr("failed to query users", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveSweepRun inserts or updates a sweep run record.
func (s *Store) SaveSweepRun(ctx context.Context, run ledger.SweepRun) error {
	query := `
		INSERT INTO sweep_runs (id, status, users, points_expired, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			users = excluded.users,
			points_expired = excluded.points_expired,
			error = excluded.error,
			completed_at = excluded.completed_at
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Status, run.Users, run.PointsExpired, run.Error,
		formatTime(run.StartedAt), nullTime(run.CompletedAt),
	)
	if err != nil {
		return mapErr("failed to save sweep run", err)
	}
	return nil
}

// SweepRuns returns recent runs, newest first. A non-positive limit
// returns all of them.
func (s *Store) SweepRuns(ctx context.Context, limit int) ([]ledger.SweepRun, error) {
	if limit <= 0 {
		limit = -1 // SQLite reads a negative LIMIT as unbounded
	}

	query := `
		SELECT id, status, users, points_expired, error, started_at, completed_at
		FROM sweep_runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, mapErr("failed to query sweep runs", err)
	}
	defer rows.Close()

	var runs []ledger.SweepRun
	for rows.Next() {
		var (
			run         ledger.SweepRun
			startedAt   string
			completedAt sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Status, &run.Users, &run.PointsExpired,
			&run.Error, &startedAt, &completedAt); err != nil {
			return nil, err
		}

		if run.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("failed to parse started_at: %w", err)
		}
		if completedAt.Valid {
			t, err := parseTime(completedAt.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse completed_at: %w", err)
			}
			run.CompletedAt = &t
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// mapErr folds driver-level contention onto ErrStoreBusy so callers
// classify failures without importing the driver.
func mapErr(msg string, err error) error {
	if isBusyError(err) {
		return fmt.Errorf("%w: %v", ledger.ErrStoreBusy, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked") ||
		strings.Contains(err.Error(), "database table is locked")
}
