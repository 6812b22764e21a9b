/*
Package ledger provides the loyalty points engine.

PURPOSE:
  This package contains the types and algorithms for tracking per-user
  point balances derived from an append-only transaction log. Points are
  earned in batches (grants) that expire one year after creation, spent
  on payments, and swept into expiration entries once overdue. Balance is
  always computed by replaying the log - there is no stored balance field
  that can drift out of sync.

KEY CONCEPTS IN THIS FILE (entry.go):
  - Entry: An immutable ledger row recording one balance change
  - GrantKind/ConsumeKind: Mutually exclusive category tags
  - Reversed: Soft-delete marker excluding an entry from computation

DESIGN PRINCIPLES:
  1. Immutability: Entries are never edited, only marked reversed
  2. Derivation: Balance, consumption order, and expiration all come from
     the log itself, never from a second mutable field
  3. Integral points: Amounts are int64; there are no fractional points
  4. Per-entry expiry: ExpiresAt lives on the entry, so batch lifetimes
     could vary per record without touching the engine

USAGE:
  entry := ledger.Entry{
      UserID:    "user-123",
      Amount:    100,
      GrantKind: ledger.GrantPurchase,
  }

SEE ALSO:
  - service.go: Add/Consume/Expire orchestration
  - planner.go: Expiration walk over grant batches
  - store.go: Persistence interfaces
*/
package ledger

import "time"

// =============================================================================
// CATEGORY TAGS - Exactly one of GrantKind/ConsumeKind is set per entry
// =============================================================================

// GrantKind tags an earning entry with why the points were granted.
type GrantKind string

const (
	GrantContract  GrantKind = "contract"  // Points earned under a contract
	GrantPurchase  GrantKind = "purchase"  // Points earned from a purchase
	GrantPromotion GrantKind = "promotion" // Promotional campaign points
)

// ConsumeKind tags a debit entry with why the points were removed.
type ConsumeKind string

const (
	ConsumePayment    ConsumeKind = "payment"    // Points spent on a payment
	ConsumeExpiration ConsumeKind = "expiration" // Points removed by the sweep
)

// =============================================================================
// ENTRY - One immutable change to a user's balance
// =============================================================================

// Entry is a single row of the points ledger.
//
// INVARIANTS:
//   - Amount is never zero. Grants are positive, consumptions negative.
//   - Exactly one of GrantKind/ConsumeKind is set.
//   - ExpiresAt is set if and only if the entry is a grant.
//   - After creation only the Reversed marker (and UpdatedAt) may change.
//
// A reversed entry stays in history for audit but is excluded from every
// balance and expiration computation.
type Entry struct {
	ID          int64
	UserID      string
	Amount      int64
	GrantKind   GrantKind
	ConsumeKind ConsumeKind
	Description string
	ExpiresAt   *time.Time
	Reversed    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsGrant reports whether the entry is an earning entry.
func (e Entry) IsGrant() bool {
	return e.GrantKind != ""
}

// Kind returns whichever category tag is set, as a plain string.
func (e Entry) Kind() string {
	if e.IsGrant() {
		return string(e.GrantKind)
	}
	return string(e.ConsumeKind)
}
