/*
memory.go - In-memory ledger store

PURPOSE:
  Complete Store implementation backed by maps. Used by unit tests and
  available as a throwaway backend for local experiments. Single
  process only: the per-user section is a plain mutex, and nothing is
  persisted.

KEY CONCEPTS:
  - IDs are monotonically increasing and never reused, matching the
    autoincrement behavior of the SQL stores. A rolled-back append
    leaves a gap.
  - WithUser snapshots the user's slice before running fn and restores
    it if fn fails, giving the same all-or-nothing effect as a SQL
    transaction rollback.

SEE ALSO:
  - store/sqlite: the embedded production backend with the same contracts
*/
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/loopline/points-ledger/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory holds every user's ledger in process memory.
type Memory struct {
	mu      sync.Mutex
	entries map[string][]ledger.Entry
	nextID  int64
	runs    []ledger.SweepRun
	locks   map[string]*sync.Mutex
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string][]ledger.Entry),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Append assigns the next ID and timestamps and records the entry.
func (m *Memory) Append(ctx context.Context, e ledger.Entry) (*ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	now := time.Now().UTC()
	e.ID = m.nextID
	e.CreatedAt = now
	e.UpdatedAt = now

	m.entries[e.UserID] = append(m.entries[e.UserID], e)
	out := e
	return &out, nil
}

// Entries returns the user's history in insertion order, reversed
// entries included.
func (m *Memory) Entries(ctx context.Context, userID string) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]ledger.Entry(nil), m.entries[userID]...), nil
}

// Grants returns the user's active grants that carry an expiry,
// ordered by expiry descending, ties by id descending.
func (m *Memory) Grants(ctx context.Context, userID string) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ledger.Entry
	for _, e := range m.entries[userID] {
		if e.Reversed || !e.IsGrant() || e.ExpiresAt == nil {
			continue
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(*out[j].ExpiresAt) {
			return out[i].ExpiresAt.After(*out[j].ExpiresAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Entry looks up a single entry across all users.
func (m *Memory) Entry(ctx context.Context, id int64) (*ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, list := range m.entries {
		for _, e := range list {
			if e.ID == id {
				out := e
				return &out, nil
			}
		}
	}
	return nil, ledger.ErrEntryNotFound
}

// MarkReversed flips the reversed flag exactly once.
func (m *Memory) MarkReversed(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID := range m.entries {
		list := m.entries[userID]
		for i := range list {
			if list[i].ID != id {
				continue
			}
			if list[i].Reversed {
				return ledger.ErrEntryReversed
			}
			list[i].Reversed = true
			list[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ledger.ErrEntryNotFound
}

// =============================================================================
// PER-USER SECTION
// =============================================================================

// WithUser serializes fn against all other sections for the same user.
// On error the user's history is restored to its state at entry, so fn
// must confine its writes to userID.
func (m *Memory) WithUser(ctx context.Context, userID string, fn func(ledger.Store) error) error {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	snapshot := append([]ledger.Entry(nil), m.entries[userID]...)
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.entries[userID] = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Memory) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[userID] = l
	}
	return l
}

// =============================================================================
// SWEEP SUPPORT
// =============================================================================

// UserIDs returns every user with at least one entry, sorted.
func (m *Memory) UserIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SaveSweepRun inserts or updates a run record by ID.
func (m *Memory) SaveSweepRun(ctx context.Context, run ledger.SweepRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = run
			return nil
		}
	}
	m.runs = append(m.runs, run)
	return nil
}

// SweepRuns returns recent runs, newest first. A non-positive limit
// returns all of them.
func (m *Memory) SweepRuns(ctx context.Context, limit int) ([]ledger.SweepRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := append([]ledger.SweepRun(nil), m.runs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
