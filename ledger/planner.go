/*
planner.go - Expiration attribution over the grant history

PURPOSE:
  Decide how many of a user's current points are past their expiry.
  Points are spent oldest-expiration-first, so the unspent balance is
  carried by the newest-expiring grants. Walking grants from the far
  end of that order and attributing the balance slice by slice tells
  us exactly which portions survive and which have lapsed.

KEY CONCEPTS:
  - Reverse attribution: assign the live balance to grants starting
    from the latest expiry. Each grant absorbs at most its own amount.
  - A portion attributed to a grant whose expiry has passed is expired.
  - Attribution stops once the whole balance is accounted for; older
    grants below that point were fully consumed already.

WHY THIS IS IDEMPOTENT:
  Expiring points appends a negative entry, which lowers the balance.
  On the next run the smaller balance is re-attributed and the lapsed
  portions are gone, so the expired total is zero. No marker on the
  grant rows is needed.

USAGE:
  grants, _ := store.Grants(ctx, userID)        // expiry DESC, id DESC
  expired := ledger.ExpiredPoints(grants, ledger.BalanceOf(entries), now)

SEE ALSO:
  - service.go: Expire, which appends the offsetting entry
  - balance.go: the sum the attribution starts from
*/
package ledger

import "time"

// =============================================================================
// EXPIRATION PLANNING
// =============================================================================

// ExpiredPoints returns how many of the user's current points belong to
// grants whose expiry is at or before now.
//
// REQUIRES: grants sorted by expiry descending, ties broken by id
// descending (the order Store.Grants returns). Attribution follows that
// order; within a group sharing one expiry the split between grants can
// vary but the expired total cannot, since the whole group is on the
// same side of the cutoff.
//
// Rows without an expiry or with a non-positive amount carry no
// expirable value and are skipped.
func ExpiredPoints(grants []Entry, balance int64, now time.Time) int64 {
	remaining := balance
	if remaining <= 0 {
		return 0
	}

	var expired int64
	for _, g := range grants {
		if g.Amount <= 0 || g.ExpiresAt == nil {
			continue
		}

		take := g.Amount
		if take > remaining {
			take = remaining
		}
		if !g.ExpiresAt.After(now) {
			expired += take
		}

		remaining -= take
		if remaining == 0 {
			break
		}
	}

	return expired
}
