/*
scheduler.go - Automated expiration sweep scheduler

PURPOSE:
  Periodically runs the expiration pass for every known user so lapsed
  points leave balances without anyone calling the API. Records one
  SweepRun audit row per pass for the sweep history endpoint.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - First pass fires immediately on Start
  - A failing user does not stop the pass; the first error is recorded
    on the run and the status becomes "failed"
  - Re-running immediately is harmless: expiration is idempotent

CONFIGURATION:
  - Interval: Time between passes (default: 24 hours)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewSweepScheduler(store, svc, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerSweep endpoint (manual sweep)
  - ledger/service.go: Expire, the per-user pass this loop drives
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/loopline/points-ledger/ledger"
	"github.com/loopline/points-ledger/metrics"
)

// SweepScheduler drives the periodic expiration sweep.
type SweepScheduler struct {
	Store    Backend
	Service  *ledger.Service
	Interval time.Duration
	Enabled  bool

	log     *logrus.Logger
	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewSweepScheduler creates a new scheduler.
func NewSweepScheduler(store Backend, svc *ledger.Service, log *logrus.Logger) *SweepScheduler {
	return &SweepScheduler{
		Store:    store,
		Service:  svc,
		Interval: 24 * time.Hour,
		Enabled:  true,
		log:      log,
	}
}

// Start begins the background loop. Calling Start on a running or
// disabled scheduler does nothing.
func (s *SweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("sweep scheduler disabled, not starting")
		return
	}
	if s.started {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.started = true
	s.wg.Add(1)

	go s.run()

	s.log.WithField("interval", s.Interval.String()).Info("sweep scheduler started")
}

// Stop halts the loop and waits for an in-flight pass to finish.
// Stopping a stopped scheduler does nothing.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.started = false

	s.log.Info("sweep scheduler stopped")
}

// RunNow triggers one synchronous pass and returns its record. Used by
// the manual trigger endpoint and tests.
func (s *SweepScheduler) RunNow(ctx context.Context) (*ledger.SweepRun, error) {
	return s.sweep(ctx)
}

func (s *SweepScheduler) run() {
	defer s.wg.Done()

	// The first pass fires immediately so a long interval does not
	// postpone overdue expirations after a restart.
	s.runOnce()

	for {
		select {
		case <-s.ticker.C:
			s.runOnce()
		case <-s.stop:
			return
		}
	}
}

func (s *SweepScheduler) runOnce() {
	if _, err := s.sweep(context.Background()); err != nil {
		s.log.WithError(err).Error("sweep pass failed")
	}
}

// sweep visits every known user once, expiring whatever has lapsed,
// and persists the run record before and after. The returned error
// covers only run bookkeeping; per-user failures live on the record.
func (s *SweepScheduler) sweep(ctx context.Context) (*ledger.SweepRun, error) {
	startedAt := time.Now().UTC()
	run := ledger.SweepRun{
		ID:        uuid.NewString(),
		Status:    "running",
		StartedAt: startedAt,
	}

	if err := s.Store.SaveSweepRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record sweep start: %w", err)
	}

	log := s.log.WithField("run_id", run.ID)

	var firstErr error
	users, err := s.Store.UserIDs(ctx)
	if err != nil {
		firstErr = fmt.Errorf("failed to list users: %w", err)
	}

	for _, userID := range users {
		res, err := s.Service.Expire(ctx, userID)
		run.Users++
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("user %s: %w", userID, err)
			}
			log.WithError(err).WithField("user_id", userID).Error("expiration failed")
			continue
		}
		if res.Expired > 0 {
			run.PointsExpired += res.Expired
			metrics.PointsExpiredTotal.Add(float64(res.Expired))
			log.WithFields(logrus.Fields{
				"user_id": userID,
				"expired": res.Expired,
				"balance": res.Balance,
			}).Info("points expired")
		}
	}

	completedAt := time.Now().UTC()
	run.CompletedAt = &completedAt
	if firstErr != nil {
		run.Status = "failed"
		run.Error = firstErr.Error()
	} else {
		run.Status = "completed"
	}

	metrics.SweepDuration.Observe(completedAt.Sub(startedAt).Seconds())
	metrics.SweepUsers.Observe(float64(run.Users))

	if err := s.Store.SaveSweepRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record sweep result: %w", err)
	}

	log.WithFields(logrus.Fields{
		"status":         run.Status,
		"users":          run.Users,
		"points_expired": run.PointsExpired,
		"duration":       completedAt.Sub(startedAt).String(),
	}).Info("sweep complete")

	return &run, nil
}
