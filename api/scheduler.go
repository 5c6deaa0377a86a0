/*
scheduler.go - Background sweep scheduler

PURPOSE:
  Runs the periodic engines without operator action: the accrual sweep,
  carry-forward expiry, and overdue-request escalation. Each sweep is
  idempotent in its engine, so the scheduler can fire as often as it
  likes without double-crediting or double-notifying.

DESIGN:
  - One goroutine, one ticker, all sweeps in sequence
  - Runs immediately on start, then on every tick
  - Stop() blocks until the in-flight cycle finishes

CONFIGURATION:
  - Interval: How often to sweep (default: 1 hour)
  - EscalationThreshold: Stage age before escalation (default: 48h)
  - EscalationScope: Dedup scope (default: per stage entry)

USAGE:
  sched := NewScheduler(svc, log)
  sched.Start()
  defer sched.Stop()

SEE ALSO:
  - leave/accrual.go, leave/carryforward.go, leave/escalation.go
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/leave-engine/leave"
)

// Scheduler drives the periodic sweeps.
type Scheduler struct {
	Service *leave.Service
	Log     *logrus.Logger

	Interval            time.Duration
	EscalationThreshold time.Duration
	EscalationScope     leave.DedupScope
	Enabled             bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates a scheduler with production defaults.
func NewScheduler(svc *leave.Service, log *logrus.Logger) *Scheduler {
	if log == nil {
		log = logrus.New()
	}
	return &Scheduler{
		Service:             svc,
		Log:                 log,
		Interval:            1 * time.Hour,
		EscalationThreshold: 48 * time.Hour,
		EscalationScope:     leave.DedupPerStageEntry,
		Enabled:             true,
		stop:                make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Log.Info("scheduler disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run()

	s.Log.WithField("interval", s.Interval).Info("scheduler started")
}

// Stop halts the loop and waits for an in-flight cycle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.Log.Info("scheduler stopped")
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	s.sweep()
	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

// RunNow triggers an immediate cycle (admin/testing).
func (s *Scheduler) RunNow() {
	s.sweep()
}

func (s *Scheduler) sweep() {
	ctx := context.Background()
	now := time.Now().UTC()

	if summary, err := s.Service.RunAccrual(ctx, now); err != nil {
		s.Log.WithError(err).Error("scheduled accrual sweep failed")
	} else if summary.PeriodsCredited > 0 {
		s.Log.WithFields(logrus.Fields{
			"credited": summary.PeriodsCredited,
			"scanned":  summary.Scanned,
		}).Info("scheduled accrual sweep credited periods")
	}

	if expired, err := s.Service.ExpireCarryForward(ctx, now); err != nil {
		s.Log.WithError(err).Error("scheduled carry-forward expiry failed")
	} else if expired > 0 {
		s.Log.WithField("expired", expired).Info("scheduled carry-forward expiry processed")
	}

	if summary, err := s.Service.CheckAndEscalateOverdue(ctx, leave.EscalationConfig{
		Threshold: s.EscalationThreshold,
		Scope:     s.EscalationScope,
	}); err != nil {
		s.Log.WithError(err).Error("scheduled escalation sweep failed")
	} else if summary.Escalated > 0 {
		s.Log.WithField("escalated", summary.Escalated).Info("scheduled escalation sweep notified reviewers")
	}
}
