/*
escalation.go - Overdue request escalation sweep

PURPOSE:
  Finds pending requests that have sat in their current stage beyond a
  threshold and notifies the next actor up. The request itself never
  changes state here; escalation is visibility, not workflow.

DEDUPLICATION:
  Each escalation writes a dedup key through the store. A key already
  present means an earlier sweep (or a concurrent one) handled this
  occurrence. The key's scope is configurable:

    per_stage_entry  - one escalation per stay in a stage; re-entering
                       the stage (return + resubmit) arms it again
    per_calendar_day - at most one reminder per request per day while
                       it stays overdue

SEE ALSO:
  - workflow.go: stamp() sets StageEnteredAt on every transition
  - api/scheduler.go: Scheduled invocation
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// DedupScope controls how often one overdue request may escalate.
type DedupScope string

const (
	DedupPerStageEntry  DedupScope = "per_stage_entry"
	DedupPerCalendarDay DedupScope = "per_calendar_day"
)

// EscalationConfig parameterizes one sweep.
type EscalationConfig struct {
	// Threshold is how long a request may sit in a pending stage before
	// it is considered overdue.
	Threshold time.Duration
	Scope     DedupScope
}

// EscalationEngine sweeps pending requests for overdue ones.
type EscalationEngine struct {
	Store     Store
	Directory Directory
	Notifier  Notifier
	Log       *logrus.Logger
	Clock     func() time.Time
}

func NewEscalationEngine(store Store, dir Directory, notifier Notifier, log *logrus.Logger) *EscalationEngine {
	if log == nil {
		log = logrus.New()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &EscalationEngine{Store: store, Directory: dir, Notifier: notifier, Log: log, Clock: time.Now}
}

// EscalationSummary reports one sweep.
type EscalationSummary struct {
	Scanned   int
	Escalated int
	Deduped   int
	Errors    int
}

// pendingStatuses are the stages a request can be overdue in.
var pendingStatuses = []RequestStatus{StatusSubmitted, StatusManagerApproved}

// CheckAndEscalateOverdue scans SUBMITTED and MANAGER_APPROVED requests
// and escalates any whose stage age exceeds the threshold. The overdue
// request is flagged irregular; the next reviewer up is notified once
// per dedup scope.
func (e *EscalationEngine) CheckAndEscalateOverdue(ctx context.Context, cfg EscalationConfig) (EscalationSummary, error) {
	if cfg.Threshold <= 0 {
		return EscalationSummary{}, &ValidationError{Field: "threshold", Message: "escalation threshold must be positive"}
	}
	if cfg.Scope == "" {
		cfg.Scope = DedupPerStageEntry
	}

	now := e.Clock().UTC()
	reqs, err := e.Store.ListRequestsByStatus(ctx, pendingStatuses...)
	if err != nil {
		return EscalationSummary{}, err
	}

	var summary EscalationSummary
	for i := range reqs {
		req := reqs[i]
		summary.Scanned++

		if now.Sub(req.StageEnteredAt) < cfg.Threshold {
			continue
		}

		escalated, err := e.escalateOne(ctx, &req, cfg, now)
		switch {
		case err != nil:
			e.Log.WithError(err).WithField("request", req.ID).Warn("escalation failed")
			summary.Errors++
		case escalated:
			summary.Escalated++
		default:
			summary.Deduped++
		}
	}

	e.Log.WithFields(logrus.Fields{
		"scanned":   summary.Scanned,
		"escalated": summary.Escalated,
		"deduped":   summary.Deduped,
	}).Info("escalation sweep completed")

	return summary, nil
}

func (e *EscalationEngine) escalateOne(ctx context.Context, req *LeaveRequest, cfg EscalationConfig, now time.Time) (bool, error) {
	key := e.dedupKey(req, cfg.Scope, now)

	fresh, err := e.Store.MarkEscalated(ctx, req.ID, req.Status, key)
	if err != nil {
		return false, err
	}
	if !fresh {
		return false, nil
	}

	// Flag the request so list views surface it. Best effort under the
	// version guard: a concurrent transition wins and the flag is moot.
	if !req.Irregular {
		req.Irregular = true
		req.UpdatedAt = now
		if err := e.Store.UpdateRequest(ctx, *req, req.Version); err != nil {
			if !IsRetryable(err) {
				return true, err
			}
		} else {
			req.Version++
		}
	}

	target, err := e.escalationTarget(ctx, req)
	if err != nil {
		return true, err
	}
	age := now.Sub(req.StageEnteredAt).Round(time.Hour)
	e.Notifier.Send(ctx, Notification{
		To:   target,
		Kind: "leave_request_overdue",
		Message: fmt.Sprintf("request %s has been pending in %s for %s", req.ID, req.Status, age),
	})
	return true, nil
}

// escalationTarget routes by the stage that is stuck: a request stuck at
// manager review escalates over the manager's head; one stuck at HR
// escalates to HR directly.
func (e *EscalationEngine) escalationTarget(ctx context.Context, req *LeaveRequest) (string, error) {
	if req.Status != StatusSubmitted {
		return "hr", nil
	}
	emp, err := e.Directory.Employee(ctx, req.EmployeeID)
	if err != nil {
		return "", err
	}
	mgr := emp.ManagerID
	if mgr == "" {
		return "hr", nil
	}
	// Skip over the unresponsive manager to their manager when one exists.
	if up, err := e.Directory.Employee(ctx, mgr); err == nil && up.ManagerID != "" {
		return string(up.ManagerID), nil
	}
	return "hr", nil
}

func (e *EscalationEngine) dedupKey(req *LeaveRequest, scope DedupScope, now time.Time) string {
	switch scope {
	case DedupPerCalendarDay:
		return fmt.Sprintf("%s|%s|%s", req.ID, req.Status, now.Format("2006-01-02"))
	default:
		return fmt.Sprintf("%s|%s|%s", req.ID, req.Status, req.StageEnteredAt.UTC().Format(time.RFC3339))
	}
}
