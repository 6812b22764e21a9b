/*
balance.go - Balance derivation from the append-only ledger

PURPOSE:
  A user's balance is never stored. It is derived on demand by summing
  the signed amounts of every active (non-reversed) entry. Grants are
  positive, consumptions and expirations negative, so plain addition
  over the history yields the spendable total.

KEY CONCEPTS:
  - Single source of truth: the entries themselves. No cached counter
    can drift from the history it summarizes.
  - Reversed entries are excluded from the sum but remain in the store
    for audit.

INVARIANT:
  Every write path (grant, consumption, expiration) recomputes the
  balance inside the same per-user section that appends, so the value
  it checks is the value it commits against.

SEE ALSO:
  - service.go: operations that combine BalanceOf with appends
  - planner.go: expiration attribution, which starts from this sum
*/
package ledger

// =============================================================================
// BALANCE COMPUTATION
// =============================================================================

// BalanceOf sums the signed amounts of all active entries.
// Reversed entries contribute nothing. An empty history sums to zero,
// so unknown users are indistinguishable from users who never earned
// a point. The result can be negative only after a reversal removed a
// grant that was already spent.
func BalanceOf(entries []Entry) int64 {
	var total int64
	for _, e := range entries {
		if e.Reversed {
			continue
		}
		total += e.Amount
	}
	return total
}
