/*
errors.go - Centralized error types for the points engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Store implementations wrap their driver errors onto these sentinels so
  callers classify failures with errors.Is alone.

ERROR CATEGORIES:
  1. Input errors - Rejected before any store interaction
  2. Reversal errors - Entry lookup failures
  3. Store errors - Contention and availability, retryable

NOT ERRORS:
  A declined consumption (insufficient balance) and an empty expiration
  sweep are ordinary outcomes. They are reported as values
  (ConsumeResult.Declined, a zero ExpireResult), never as errors.
  Likewise a user with no history is valid: balance 0.

USAGE:
  if ledger.IsRetryable(err) {
      // Safe to retry the whole operation; nothing was written.
  }
*/
package ledger

import "errors"

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when Add or Consume is called with a
	// non-positive point amount. Detected before the per-user section is
	// acquired; never produces an entry.
	ErrInvalidAmount = errors.New("invalid amount: points must be positive")

	// ErrEntryNotFound is returned when a referenced ledger entry doesn't exist.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrEntryReversed is returned when reversing an already-reversed entry.
	ErrEntryReversed = errors.New("ledger entry already reversed")

	// ErrStoreBusy is returned when the per-user section or the underlying
	// transaction could not be acquired within the store's timeout, or the
	// store is unavailable. The operation is atomic, so retrying the whole
	// call is safe: no partial entry remains.
	ErrStoreBusy = errors.New("ledger store busy")

	// ErrStoreRequired is returned when an operation needs a store
	// capability (audit reads, sweep bookkeeping) the configured store
	// does not implement.
	ErrStoreRequired = errors.New("operation requires extended store interface")
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreBusy)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrEntryReversed)
}

// IsNotFound returns true if the error indicates a missing entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntryNotFound)
}
