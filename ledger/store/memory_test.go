package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopline/points-ledger/ledger"
	"github.com/loopline/points-ledger/ledger/store"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func expiry(days int) *time.Time {
	t := epoch.AddDate(0, 0, days)
	return &t
}

func mustAppend(t *testing.T, m *store.Memory, e ledger.Entry) *ledger.Entry {
	t.Helper()
	out, err := m.Append(context.Background(), e)
	require.NoError(t, err)
	return out
}

func TestMemoryAppend_AssignsSequentialIDsAndTimestamps(t *testing.T) {
	m := store.NewMemory()

	first := mustAppend(t, m, ledger.Entry{UserID: "u1", Amount: 10, GrantKind: ledger.GrantPurchase})
	second := mustAppend(t, m, ledger.Entry{UserID: "u2", Amount: 20, GrantKind: ledger.GrantPurchase})

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.False(t, first.CreatedAt.IsZero())
	assert.Equal(t, first.CreatedAt, first.UpdatedAt)
}

func TestMemoryEntries_InsertionOrderIncludesReversed(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	g := mustAppend(t, m, ledger.Entry{UserID: "u1", Amount: 100, GrantKind: ledger.GrantPurchase, ExpiresAt: expiry(10)})
	mustAppend(t, m, ledger.Entry{UserID: "u1", Amount: -30, ConsumeKind: ledger.ConsumePayment})
	require.NoError(t, m.MarkReversed(ctx, g.ID))

	entries, err := m.Entries(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, g.ID, entries[0].ID)
	assert.True(t, entries[0].Reversed)
}

func TestMemoryGrants_OrderedByExpiryThenID(t *testing.T) {
	m := store.NewMemory()

	a := mustAppend(t, m, ledger.Entry{UserID: "u1", Amount: 10, GrantKind: ledger.GrantPurchase, ExpiresAt: expiry(20)})
	b := mustAppend(t, m, ledger.Entry{UserID: "u1", Amount: 20, GrantKind: ledger.GrantPurchase, ExpiresAt: expiry(10)})
	c := mustAppend(t, m, ledger.Entry{UserID: "u1", Amount: 30, GrantKind: ledger.GrantPurchase, ExpiresAt: expiry(20)})

	grants, err := m.Grants(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, grants, 3)

	// Latest expiry first; within the shared expiry the higher id wins.
	assert.Equal(t, c.ID, grants[0].ID)
	assert.Equal(t, a.ID, grants[1].ID)
	assert.Equal(t, b.ID, grants[2].ID)
}

func TestMemoryGrants_ExcludesNonAttributableRows(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	reversed := mustAppend(t, m, ledger.Entry{UserID: "u1", Amount: 10, GrantKind: ledger.GrantPurchase, ExpiresAt: expiry(5)})
	require.NoError(t, m.MarkReversed(ctx, reversed.ID))
	mustAppend(t, m, ledger.Entry{UserID: "u1", Amount: -5, ConsumeKind: ledger.ConsumePayment})
	mustAppend(t, m, ledger.Entry{UserID: "u1", Amount: 15, GrantKind: ledger.GrantContract})
	keep := mustAppend(t, m, ledger.Entry{UserID: "u1", Amount: 25, GrantKind: ledger.GrantPurchase, ExpiresAt: expiry(5)})

	grants, err := m.Grants(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, keep.ID, grants[0].ID)
}

func TestMemoryEntry_Lookup(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	e := mustAppend(t, m, ledger.Entry{UserID: "u1", Amount: 10, GrantKind: ledger.GrantPurchase})

	got, err := m.Entry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "u1", got.UserID)

	_, err = m.Entry(ctx, 42)
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
}

func TestMemoryMarkReversed_FlagsExactlyOnce(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	e := mustAppend(t, m, ledger.Entry{UserID: "u1", Amount: 10, GrantKind: ledger.GrantPurchase})

	require.NoError(t, m.MarkReversed(ctx, e.ID))
	assert.ErrorIs(t, m.MarkReversed(ctx, e.ID), ledger.ErrEntryReversed)
	assert.ErrorIs(t, m.MarkReversed(ctx, 42), ledger.ErrEntryNotFound)
}

func TestMemoryWithUser_RollsBackOnError(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	g := mustAppend(t, m, ledger.Entry{UserID: "u1", Amount: 100, GrantKind: ledger.GrantPurchase})

	boom := errors.New("boom")
	err := m.WithUser(ctx, "u1", func(s ledger.Store) error {
		_, appendErr := s.Append(ctx, ledger.Entry{UserID: "u1", Amount: -40, ConsumeKind: ledger.ConsumePayment})
		require.NoError(t, appendErr)
		return boom
	})
	require.ErrorIs(t, err, boom)

	// The failed section's append is gone.
	entries, err := m.Entries(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// IDs keep increasing; the rolled-back one is not reused.
	next := mustAppend(t, m, ledger.Entry{UserID: "u1", Amount: 5, GrantKind: ledger.GrantPurchase})
	assert.Greater(t, next.ID, g.ID+1)
}

func TestMemoryWithUser_SerializesSameUser(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	// Each worker reads the count and writes it back as the amount.
	// Overlapping sections would produce duplicate amounts.
	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithUser(ctx, "u1", func(s ledger.Store) error {
				entries, err := s.Entries(ctx, "u1")
				if err != nil {
					return err
				}
				time.Sleep(time.Millisecond)
				_, err = s.Append(ctx, ledger.Entry{
					UserID:    "u1",
					Amount:    int64(len(entries) + 1),
					GrantKind: ledger.GrantPurchase,
				})
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := m.Entries(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, workers)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Amount)
	}
}

func TestMemoryUserIDs_Sorted(t *testing.T) {
	m := store.NewMemory()

	mustAppend(t, m, ledger.Entry{UserID: "charlie", Amount: 1, GrantKind: ledger.GrantPurchase})
	mustAppend(t, m, ledger.Entry{UserID: "alice", Amount: 1, GrantKind: ledger.GrantPurchase})
	mustAppend(t, m, ledger.Entry{UserID: "bob", Amount: 1, GrantKind: ledger.GrantPurchase})

	ids, err := m.UserIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "charlie"}, ids)
}

func TestMemorySweepRuns_UpsertNewestFirst(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	older := ledger.SweepRun{ID: "run-a", Status: "running", StartedAt: epoch}
	newer := ledger.SweepRun{ID: "run-b", Status: "running", StartedAt: epoch.Add(time.Hour)}
	require.NoError(t, m.SaveSweepRun(ctx, older))
	require.NoError(t, m.SaveSweepRun(ctx, newer))

	done := epoch.Add(2 * time.Hour)
	older.Status = "completed"
	older.CompletedAt = &done
	require.NoError(t, m.SaveSweepRun(ctx, older))

	runs, err := m.SweepRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].ID)
	assert.Equal(t, "run-a", runs[1].ID)
	assert.Equal(t, "completed", runs[1].Status)

	limited, err := m.SweepRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-b", limited[0].ID)
}
