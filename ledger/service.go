/*
service.go - The points engine's operations

PURPOSE:
  Service is the only write path into the ledger. It composes balance
  derivation, expiration planning and the store's per-user section into
  the five public operations: grant, consume, expire, reverse, and the
  read-only balance/history pair.

KEY CONCEPTS:
  - Validation happens before the per-user section is entered. A bad
    amount never costs a transaction.
  - Balance checks and the appends they authorize run inside WithUser,
    against the same transactional snapshot.
  - Outcomes that are not failures (a declined consumption, a sweep
    that found nothing to expire) are values on the result structs,
    not errors.

CONCURRENCY:
  Two operations on the same user serialize; operations on different
  users proceed in parallel. The store owns the mechanism (mutex,
  transaction lock), the Service only delimits the section.

USAGE:
  svc, err := ledger.NewService(store)
  entry, err := svc.Add(ctx, "user-1", 100, ledger.GrantPurchase, "")
  res, err := svc.Consume(ctx, "user-1", 60, ledger.ConsumePayment, "")
  if res.Declined { ... }

SEE ALSO:
  - planner.go: the expiration attribution Expire relies on
  - store.go: the interfaces a backing store must provide
*/
package ledger

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service implements the ledger operations on top of a TxStore.
type Service struct {
	store   TxStore
	history HistoryStore

	// Now supplies the current time for expiry stamping and planning.
	// Tests replace it with a fixed clock. Results are normalized to
	// UTC before use.
	Now func() time.Time
}

// NewService wraps a store in the ledger operations. The store must
// also implement HistoryStore so reversals can resolve an entry's
// owner; all bundled stores do.
func NewService(store TxStore) (*Service, error) {
	history, ok := store.(HistoryStore)
	if !ok {
		return nil, fmt.Errorf("%w: single-entry lookup (HistoryStore) is needed for reversals", ErrStoreRequired)
	}
	return &Service{
		store:   store,
		history: history,
		Now:     time.Now,
	}, nil
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// =============================================================================
// RESULTS
// =============================================================================

// ConsumeResult reports the outcome of a consumption attempt.
type ConsumeResult struct {
	// Entry is the appended consumption, nil when declined.
	Entry *Entry
	// Declined is true when the balance could not cover the amount.
	// Nothing was written in that case.
	Declined bool
	// Balance after the operation. On decline it is the unchanged
	// balance that was insufficient.
	Balance int64
}

// ExpireResult reports the outcome of an expiration pass for one user.
type ExpireResult struct {
	// Entry is the appended expiration, nil when nothing had lapsed.
	Entry *Entry
	// Expired is how many points lapsed in this pass.
	Expired int64
	// Balance after the operation.
	Balance int64
}

// =============================================================================
// WRITE OPERATIONS
// =============================================================================

// Add grants points to a user. Grants lapse one year after issue; the
// computed expiry is stored on the entry so the horizon of already
// issued points never shifts. Amount must be positive. An empty
// description falls back to the kind's catalog text.
func (s *Service) Add(ctx context.Context, userID string, amount int64, kind GrantKind, description string) (*Entry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}
	if description == "" {
		description = kind.Description()
	}

	now := s.now()
	expires := now.AddDate(1, 0, 0)

	var created *Entry
	err := s.store.WithUser(ctx, userID, func(st Store) error {
		e, err := st.Append(ctx, Entry{
			UserID:      userID,
			Amount:      amount,
			GrantKind:   kind,
			Description: description,
			ExpiresAt:   &expires,
		})
		if err != nil {
			return err
		}
		created = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Consume spends points. The balance check and the append run in the
// same per-user section, so two racing consumptions cannot both draw
// on the same points: the second sees the first one's debit.
//
// INVARIANTS:
//   - Amount must be positive (ErrInvalidAmount otherwise).
//   - A balance below amount declines; the ledger is untouched and
//     Declined is set on the result.
func (s *Service) Consume(ctx context.Context, userID string, amount int64, kind ConsumeKind, description string) (*ConsumeResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}
	if description == "" {
		description = kind.Description()
	}

	var result *ConsumeResult
	err := s.store.WithUser(ctx, userID, func(st Store) error {
		entries, err := st.Entries(ctx, userID)
		if err != nil {
			return err
		}
		balance := BalanceOf(entries)
		if balance < amount {
			result = &ConsumeResult{Declined: true, Balance: balance}
			return nil
		}

		e, err := st.Append(ctx, Entry{
			UserID:      userID,
			Amount:      -amount,
			ConsumeKind: kind,
			Description: description,
		})
		if err != nil {
			return err
		}
		result = &ConsumeResult{Entry: e, Balance: balance - amount}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Expire removes the portion of the user's balance carried by grants
// whose expiry has passed. When nothing has lapsed it appends nothing
// and returns a result with Entry nil and Expired zero, which makes
// repeated sweeps of the same user harmless.
func (s *Service) Expire(ctx context.Context, userID string) (*ExpireResult, error) {
	now := s.now()

	var result *ExpireResult
	err := s.store.WithUser(ctx, userID, func(st Store) error {
		entries, err := st.Entries(ctx, userID)
		if err != nil {
			return err
		}
		balance := BalanceOf(entries)

		grants, err := st.Grants(ctx, userID)
		if err != nil {
			return err
		}

		expired := ExpiredPoints(grants, balance, now)
		if expired == 0 {
			result = &ExpireResult{Balance: balance}
			return nil
		}

		e, err := st.Append(ctx, Entry{
			UserID:      userID,
			Amount:      -expired,
			ConsumeKind: ConsumeExpiration,
			Description: ConsumeExpiration.Description(),
		})
		if err != nil {
			return err
		}
		result = &ExpireResult{Entry: e, Expired: expired, Balance: balance - expired}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reverse flags an entry as reversed, removing it from every balance
// and attribution from now on. The entry stays in the history for
// audit. Reversing a consumption restores points; reversing a spent
// grant can push the derived balance negative, which later grants then
// pay down.
//
// Returns ErrEntryNotFound for unknown IDs and ErrEntryReversed when
// the entry was already reversed.
func (s *Service) Reverse(ctx context.Context, entryID int64) (*Entry, error) {
	e, err := s.history.Entry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if e.Reversed {
		return nil, fmt.Errorf("entry %d: %w", entryID, ErrEntryReversed)
	}

	// The flag flip happens under the owner's section so it cannot
	// interleave with a balance check on the same user. The store
	// re-checks the flag inside the transaction.
	err = s.store.WithUser(ctx, e.UserID, func(st Store) error {
		return st.MarkReversed(ctx, entryID)
	})
	if err != nil {
		return nil, err
	}

	return s.history.Entry(ctx, entryID)
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// Balance derives the user's current balance. Unknown users have
// balance zero. Read-only: no per-user section is taken, the value is
// a consistent snapshot as of the underlying read.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	entries, err := s.store.Entries(ctx, userID)
	if err != nil {
		return 0, err
	}
	return BalanceOf(entries), nil
}

// History returns the user's complete ledger, reversed entries
// included, oldest first.
func (s *Service) History(ctx context.Context, userID string) ([]Entry, error) {
	return s.store.Entries(ctx, userID)
}
