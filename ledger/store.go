/*
store.go - Storage abstraction for the points ledger

PURPOSE:
  Defines the storage interfaces the engine runs against. The core
  Store covers appends and reads; optional capability interfaces add
  single-entry lookup and sweep bookkeeping. Implementations live in
  ledger/store (in-memory) and store/sqlite, store/postgres.

DESIGN PRINCIPLES:
  - The ledger is append-only. The sole mutation is MarkReversed, which
    flips a flag and never rewrites amounts.
  - Ordering contracts live here, not in SQL strings scattered through
    callers. Entries are insertion-ordered; Grants are expiry-ordered.
  - WithUser is the one concurrency primitive. Everything the engine
    does to a user's history happens inside it.

SEE ALSO:
  - service.go: the operations composed from these interfaces
  - ledger/store/memory.go: reference implementation
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// CORE STORE INTERFACE
// =============================================================================

// Store is the minimal persistence contract for ledger entries.
type Store interface {
	// Append persists a new entry and returns it with ID and timestamps
	// assigned. The input is not modified.
	Append(ctx context.Context, e Entry) (*Entry, error)

	// Entries returns the user's full history, reversed entries
	// included, ordered by id ascending. An unknown user yields an
	// empty slice, not an error.
	Entries(ctx context.Context, userID string) ([]Entry, error)

	// Grants returns the user's active (non-reversed) grant entries
	// that carry an expiry, ordered by expiry descending, ties by id
	// descending. This is the order ExpiredPoints attributes the
	// balance in.
	Grants(ctx context.Context, userID string) ([]Entry, error)

	// MarkReversed flags an entry as reversed. Returns ErrEntryNotFound
	// if no such entry exists and ErrEntryReversed if it was already
	// flagged.
	MarkReversed(ctx context.Context, id int64) error
}

// =============================================================================
// CAPABILITY INTERFACES
// =============================================================================

// TxStore is a Store that can serialize work per user.
type TxStore interface {
	Store

	// WithUser runs fn inside an exclusive section for userID. The
	// Store passed to fn reads and writes within one transaction, so
	// balance checks and the appends they guard are atomic. If fn
	// returns an error the transaction rolls back and the error is
	// returned unchanged. Returns ErrStoreBusy when the section cannot
	// be entered within the store's timeout.
	WithUser(ctx context.Context, userID string, fn func(Store) error) error
}

// HistoryStore is a Store that can look up a single entry by ID,
// needed to resolve an entry's owner before reversing it.
type HistoryStore interface {
	Store

	// Entry returns one entry by ID, or ErrEntryNotFound.
	Entry(ctx context.Context, id int64) (*Entry, error)
}

// SweepStore records expiration sweep executions and enumerates the
// users a sweep must visit.
type SweepStore interface {
	// UserIDs returns every user with at least one entry, sorted.
	UserIDs(ctx context.Context) ([]string, error)

	// SaveSweepRun inserts or updates a sweep run record by ID.
	SaveSweepRun(ctx context.Context, run SweepRun) error

	// SweepRuns returns the most recent runs, newest first, capped at
	// limit. A non-positive limit means no cap.
	SweepRuns(ctx context.Context, limit int) ([]SweepRun, error)
}

// =============================================================================
// SWEEP RUN RECORDS
// =============================================================================

// SweepRun is the audit record of one expiration sweep across all users.
type SweepRun struct {
	ID            string     // UUID assigned by the scheduler
	Status        string     // "running", "completed", "failed"
	Users         int        // users visited so far
	PointsExpired int64      // total points expired across all users
	Error         string     // first error encountered, if any
	StartedAt     time.Time  // when the sweep began
	CompletedAt   *time.Time // nil while the sweep is in flight
}
