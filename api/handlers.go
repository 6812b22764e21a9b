/*
handlers.go - HTTP API handlers for the points ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the ledger service.

ENDPOINTS:
  Users:
    POST   /api/users/{userID}/grants        Grant points
    POST   /api/users/{userID}/consumptions  Spend points
    POST   /api/users/{userID}/expirations   Expire lapsed points now
    GET    /api/users/{userID}/balance       Current balance
    GET    /api/users/{userID}/entries       Full history (audit view)

  Entries:
    POST   /api/entries/{entryID}/reversal   Reverse an entry

  Sweeps:
    GET    /api/sweeps                       Recent sweep runs
    POST   /api/sweeps                       Trigger a sweep now

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Service: The ledger operations (sole write path)
  - Store: Extended store surface for history and sweep records
  - Sweeper: Scheduler, for the manual sweep trigger
  - Log: Structured logger

REQUEST FLOW:
  1. Parse HTTP request
  2. Call the ledger service
  3. Serialize response
  4. Map errors to status codes

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid amounts, unparseable input
  - 404: Entry not found
  - 409: Declined consumption, double reversal
  - 503: Store busy (with Retry-After; the operation left no trace)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.
  Deployments front this service with their own gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - scheduler.go: Background sweep loop
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/loopline/points-ledger/ledger"
	"github.com/loopline/points-ledger/metrics"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the full store surface the HTTP layer and the sweep
// scheduler run against: per-user transactions, single-entry lookup,
// and sweep bookkeeping. All bundled stores implement it.
type Backend interface {
	ledger.TxStore
	ledger.HistoryStore
	ledger.SweepStore
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *ledger.Service
	Store   Backend
	Sweeper *SweepScheduler
	Log     *logrus.Logger
}

// NewHandler creates a new handler around the given service.
func NewHandler(store Backend, svc *ledger.Service, sweeper *SweepScheduler, log *logrus.Logger) *Handler {
	return &Handler{
		Service: svc,
		Store:   store,
		Sweeper: sweeper,
		Log:     log,
	}
}

// =============================================================================
// GRANT / CONSUME HANDLERS
// =============================================================================

// CreateGrant grants points to a user.
// POST /api/users/{userID}/grants
func (h *Handler) CreateGrant(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry, err := h.Service.Add(r.Context(), userID, req.Points, ledger.GrantKind(req.Kind), req.Description)
	if err != nil {
		h.writeOperationError(w, "Failed to grant points", err)
		return
	}

	metrics.GrantsTotal.WithLabelValues(req.Kind).Inc()
	writeJSON(w, http.StatusCreated, toEntryDTO(*entry))
}

// CreateConsumption spends points. An insufficient balance is a
// decline, reported as 409 with the unchanged balance; nothing is
// written in that case.
// POST /api/users/{userID}/consumptions
func (h *Handler) CreateConsumption(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req ConsumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Service.Consume(r.Context(), userID, req.Points, ledger.ConsumeKind(req.Kind), req.Description)
	if err != nil {
		h.writeOperationError(w, "Failed to consume points", err)
		return
	}

	if res.Declined {
		metrics.ConsumptionsTotal.WithLabelValues(req.Kind, "declined").Inc()
		writeJSON(w, http.StatusConflict, ConsumeResponse{Declined: true, Balance: res.Balance})
		return
	}

	metrics.ConsumptionsTotal.WithLabelValues(req.Kind, "accepted").Inc()
	entry := toEntryDTO(*res.Entry)
	writeJSON(w, http.StatusCreated, ConsumeResponse{Entry: &entry, Balance: res.Balance})
}

// =============================================================================
// EXPIRATION / REVERSAL HANDLERS
// =============================================================================

// TriggerExpiration runs the expiration pass for one user. Finding
// nothing lapsed is a normal outcome, reported with Expired zero.
// POST /api/users/{userID}/expirations
func (h *Handler) TriggerExpiration(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	res, err := h.Service.Expire(r.Context(), userID)
	if err != nil {
		h.writeOperationError(w, "Failed to expire points", err)
		return
	}

	resp := ExpireResponse{Expired: res.Expired, Balance: res.Balance}
	if res.Entry != nil {
		entry := toEntryDTO(*res.Entry)
		resp.Entry = &entry
	}
	if res.Expired > 0 {
		metrics.PointsExpiredTotal.Add(float64(res.Expired))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ReverseEntry flags an entry as reversed and returns the updated
// entry. Reversing twice is a conflict.
// POST /api/entries/{entryID}/reversal
func (h *Handler) ReverseEntry(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entry id", err)
		return
	}

	entry, err := h.Service.Reverse(r.Context(), entryID)
	if err != nil {
		h.writeOperationError(w, "Failed to reverse entry", err)
		return
	}

	metrics.ReversalsTotal.Inc()
	writeJSON(w, http.StatusOK, toEntryDTO(*entry))
}

// =============================================================================
// READ HANDLERS
// =============================================================================

// GetBalance returns the user's current derived balance. Unknown users
// have balance zero.
// GET /api/users/{userID}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	balance, err := h.Service.Balance(r.Context(), userID)
	if err != nil {
		h.writeOperationError(w, "Failed to get balance", err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		UserID:  userID,
		Balance: balance,
		AsOf:    time.Now().UTC().Format(time.RFC3339),
	})
}

// GetEntries returns the user's complete history, reversed entries
// included, oldest first.
// GET /api/users/{userID}/entries
func (h *Handler) GetEntries(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	entries, err := h.Service.History(r.Context(), userID)
	if err != nil {
		h.writeOperationError(w, "Failed to get entries", err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// =============================================================================
// SWEEP HANDLERS
// =============================================================================

// ListSweepRuns returns recent sweep runs, newest first.
// GET /api/sweeps?limit=N
func (h *Handler) ListSweepRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.SweepRuns(r.Context(), limit)
	if err != nil {
		h.writeOperationError(w, "Failed to list sweep runs", err)
		return
	}

	writeJSON(w, http.StatusOK, toSweepRunDTOs(runs))
}

// TriggerSweep runs one synchronous sweep over every known user and
// returns its record. Safe to call while the background loop is
// active; expiration is idempotent and serialized per user.
// POST /api/sweeps
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	run, err := h.Sweeper.RunNow(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to run sweep", err)
		return
	}

	writeJSON(w, http.StatusOK, toSweepRunDTO(*run))
}

// =============================================================================
// HELPERS
// =============================================================================

// writeOperationError translates ledger errors into HTTP status codes.
// Client mistakes map to 4xx, contention to 503 with a Retry-After
// hint, everything else to 500.
func (h *Handler) writeOperationError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, message, err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrEntryReversed):
		writeError(w, http.StatusConflict, message, err)
	case ledger.IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, message, err)
	default:
		h.Log.WithError(err).Error(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
