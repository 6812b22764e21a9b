/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal ledger model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Entries:
    EntryDTO, GrantRequest, ConsumeRequest

  Balance:
    BalanceDTO

  Operations:
    ConsumeResponse, ExpireResponse

  Sweeps:
    SweepRunDTO

VALIDATION:
  Validation is done in handlers and the ledger service, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/entry.go: The domain model these types project
*/
package api

import (
	"time"

	"github.com/loopline/points-ledger/ledger"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// EntryDTO represents a ledger entry in API responses.
type EntryDTO struct {
	ID          int64   `json:"id"`
	UserID      string  `json:"user_id"`
	Amount      int64   `json:"amount"`
	Kind        string  `json:"kind"`
	Description string  `json:"description,omitempty"`
	ExpiresAt   *string `json:"expires_at,omitempty"`
	Reversed    bool    `json:"reversed,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// GrantRequest is the request to grant points to a user.
type GrantRequest struct {
	Kind        string `json:"kind"`
	Points      int64  `json:"points"`
	Description string `json:"description,omitempty"`
}

// ConsumeRequest is the request to spend points.
type ConsumeRequest struct {
	Kind        string `json:"kind"`
	Points      int64  `json:"points"`
	Description string `json:"description,omitempty"`
}

// BalanceDTO represents a user's derived balance.
type BalanceDTO struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
	AsOf    string `json:"as_of"`
}

// ConsumeResponse is the response after a consumption attempt. On a
// decline Entry is absent and Declined is true; the balance reported is
// the one that was insufficient.
type ConsumeResponse struct {
	Entry    *EntryDTO `json:"entry,omitempty"`
	Declined bool      `json:"declined,omitempty"`
	Balance  int64     `json:"balance"`
}

// ExpireResponse is the response after an expiration pass. When nothing
// had lapsed Entry is absent and Expired is zero.
type ExpireResponse struct {
	Entry   *EntryDTO `json:"entry,omitempty"`
	Expired int64     `json:"expired"`
	Balance int64     `json:"balance"`
}

// SweepRunDTO represents one expiration sweep in API responses.
type SweepRunDTO struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Users         int    `json:"users"`
	PointsExpired int64  `json:"points_expired"`
	Error         string `json:"error,omitempty"`
	StartedAt     string `json:"started_at"`
	CompletedAt   string `json:"completed_at,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEntryDTO(e ledger.Entry) EntryDTO {
	dto := EntryDTO{
		ID:          e.ID,
		UserID:      e.UserID,
		Amount:      e.Amount,
		Kind:        e.Kind(),
		Description: e.Description,
		Reversed:    e.Reversed,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
	if e.ExpiresAt != nil {
		s := e.ExpiresAt.Format(time.RFC3339)
		dto.ExpiresAt = &s
	}
	return dto
}

func toEntryDTOs(entries []ledger.Entry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toSweepRunDTO(run ledger.SweepRun) SweepRunDTO {
	dto := SweepRunDTO{
		ID:            run.ID,
		Status:        run.Status,
		Users:         run.Users,
		PointsExpired: run.PointsExpired,
		Error:         run.Error,
		StartedAt:     run.StartedAt.Format(time.RFC3339),
	}
	if run.CompletedAt != nil {
		dto.CompletedAt = run.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

func toSweepRunDTOs(runs []ledger.SweepRun) []SweepRunDTO {
	dtos := make([]SweepRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toSweepRunDTO(run)
	}
	return dtos
}
