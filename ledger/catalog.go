/*
catalog.go - Category tag to description lookup

PURPOSE:
  Resolves the human-readable description denormalized onto an entry at
  creation time. The lookup is static: adding a new kind means adding a
  row here, nothing else.

FORWARD COMPATIBILITY:
  Unknown kinds resolve to an empty description rather than an error, so
  an engine running an older catalog can still record entries written by
  a newer caller.
*/
package ledger

// =============================================================================
// DESCRIPTION CATALOG
// =============================================================================

var grantDescriptions = map[GrantKind]string{
	GrantContract:  "Points earned under contract",
	GrantPurchase:  "Points earned from purchase",
	GrantPromotion: "Promotional points",
}

var consumeDescriptions = map[ConsumeKind]string{
	ConsumePayment:    "Points spent on payment",
	ConsumeExpiration: "Points expired",
}

// Description returns the label for a grant kind, or "" for unknown kinds.
func (k GrantKind) Description() string {
	return grantDescriptions[k]
}

// Description returns the label for a consume kind, or "" for unknown kinds.
func (k ConsumeKind) Description() string {
	return consumeDescriptions[k]
}
