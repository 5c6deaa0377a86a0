package leave_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	submittedAt  = date(2025, time.June, 10)
	escalationAt = date(2025, time.June, 13) // 72h later
)

// newEscalationFixture submits a request with a clock pinned in the past so
// the sweep, running at a later clock, sees it as overdue.
func newEscalationFixture(t *testing.T) (*leave.Service, *sqlite.Store, *recordingNotifier, *leave.LeaveRequest) {
	store := newTestStore(t)
	notifier := &recordingNotifier{}
	svc := leave.NewService(store, store, notifier, quietLog())

	seedLeaveType(t, store, annualLeaveType())
	seedEmployee(t, store, "dir-1", "", date(2010, time.January, 1))
	require.NoError(t, store.SaveEmployee(context.Background(), leave.Employee{
		ID: "mgr-1", Name: "mgr-1", HireDate: date(2015, time.January, 1), ManagerID: "dir-1", Active: true,
	}))
	seedEmployee(t, store, "emp-1", "mgr-1", date(2020, time.March, 1))
	seedBalance(t, svc, leave.EntitlementKey{EmployeeID: "emp-1", LeaveTypeID: "lt-annual", Year: 2025}, 10)

	svc.WithClock(func() time.Time { return submittedAt })
	req, err := svc.SubmitRequest(context.Background(), leave.SubmitInput{
		EmployeeID:  "emp-1",
		LeaveTypeID: "lt-annual",
		From:        date(2025, time.July, 1),
		To:          date(2025, time.July, 3),
	}, employeeActor("emp-1"))
	require.NoError(t, err)

	notifier.sent = nil // drop the submission notification
	svc.Escalate.Clock = func() time.Time { return escalationAt }
	return svc, store, notifier, req
}

func overdueNotifications(n *recordingNotifier) []leave.Notification {
	var out []leave.Notification
	for _, msg := range n.sent {
		if msg.Kind == "leave_request_overdue" {
			out = append(out, msg)
		}
	}
	return out
}

// =============================================================================
// OVERDUE DETECTION
// =============================================================================

func TestEscalationNotifiesOverManagersHead(t *testing.T) {
	svc, store, notifier, req := newEscalationFixture(t)
	ctx := context.Background()

	// WHEN sweeping with a 48h threshold after 72h in SUBMITTED
	summary, err := svc.CheckAndEscalateOverdue(ctx, leave.EscalationConfig{Threshold: 48 * time.Hour})

	// THEN the request escalates to the manager's manager and is flagged
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scanned)
	assert.Equal(t, 1, summary.Escalated)

	overdue := overdueNotifications(notifier)
	require.Len(t, overdue, 1)
	assert.Equal(t, "dir-1", overdue[0].To)

	reloaded, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Irregular)
	assert.Equal(t, leave.StatusSubmitted, reloaded.Status)
}

func TestEscalationUnderThresholdDoesNothing(t *testing.T) {
	svc, _, notifier, _ := newEscalationFixture(t)

	summary, err := svc.CheckAndEscalateOverdue(context.Background(),
		leave.EscalationConfig{Threshold: 96 * time.Hour})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scanned)
	assert.Equal(t, 0, summary.Escalated)
	assert.Empty(t, overdueNotifications(notifier))
}

func TestEscalationAtManagerApprovedTargetsHR(t *testing.T) {
	svc, _, notifier, req := newEscalationFixture(t)
	ctx := context.Background()

	// GIVEN the request stuck at HR review instead
	svc.Workflow.Clock = func() time.Time { return submittedAt }
	_, err := svc.ManagerApprove(ctx, req.ID, managerActor, 0)
	require.NoError(t, err)
	notifier.sent = nil

	summary, err := svc.CheckAndEscalateOverdue(ctx, leave.EscalationConfig{Threshold: 48 * time.Hour})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Escalated)
	overdue := overdueNotifications(notifier)
	require.Len(t, overdue, 1)
	assert.Equal(t, "hr", overdue[0].To)
}

func TestEscalationRequiresPositiveThreshold(t *testing.T) {
	svc, _, _, _ := newEscalationFixture(t)

	_, err := svc.CheckAndEscalateOverdue(context.Background(), leave.EscalationConfig{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, leave.ErrValidation))
}

// =============================================================================
// DEDUPLICATION
// =============================================================================

func TestEscalationDedupesPerStageEntry(t *testing.T) {
	svc, _, notifier, _ := newEscalationFixture(t)
	ctx := context.Background()
	cfg := leave.EscalationConfig{Threshold: 48 * time.Hour, Scope: leave.DedupPerStageEntry}

	_, err := svc.CheckAndEscalateOverdue(ctx, cfg)
	require.NoError(t, err)

	// WHEN sweeping again, even a day later, within the same stage stay
	svc.Escalate.Clock = func() time.Time { return escalationAt.AddDate(0, 0, 1) }
	summary, err := svc.CheckAndEscalateOverdue(ctx, cfg)

	// THEN no second notification goes out
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Escalated)
	assert.Equal(t, 1, summary.Deduped)
	assert.Len(t, overdueNotifications(notifier), 1)
}

func TestEscalationPerCalendarDayRemindsDaily(t *testing.T) {
	svc, _, notifier, _ := newEscalationFixture(t)
	ctx := context.Background()
	cfg := leave.EscalationConfig{Threshold: 48 * time.Hour, Scope: leave.DedupPerCalendarDay}

	// Two sweeps the same day: one notification.
	_, err := svc.CheckAndEscalateOverdue(ctx, cfg)
	require.NoError(t, err)
	summary, err := svc.CheckAndEscalateOverdue(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Deduped)
	assert.Len(t, overdueNotifications(notifier), 1)

	// The next day the reminder re-arms.
	svc.Escalate.Clock = func() time.Time { return escalationAt.AddDate(0, 0, 1) }
	summary, err = svc.CheckAndEscalateOverdue(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Escalated)
	assert.Len(t, overdueNotifications(notifier), 2)
}

func TestEscalationRearmsAfterStageReentry(t *testing.T) {
	svc, _, notifier, req := newEscalationFixture(t)
	ctx := context.Background()
	cfg := leave.EscalationConfig{Threshold: 48 * time.Hour, Scope: leave.DedupPerStageEntry}

	_, err := svc.CheckAndEscalateOverdue(ctx, cfg)
	require.NoError(t, err)

	// GIVEN the request leaves and re-enters SUBMITTED (return + resubmit),
	// again with a clock far enough back to be overdue
	reentry := escalationAt.AddDate(0, 0, 1)
	svc.Workflow.Clock = func() time.Time { return reentry }
	_, err = svc.ReturnForCorrection(ctx, req.ID, managerActor, "fix dates", 0)
	require.NoError(t, err)
	_, err = svc.ResubmitCorrectedRequest(ctx, req.ID, "emp-1", leave.Corrections{}, 0)
	require.NoError(t, err)
	notifier.sent = nil

	// WHEN sweeping after the threshold elapses for the new stay
	svc.Escalate.Clock = func() time.Time { return reentry.Add(72 * time.Hour) }
	summary, err := svc.CheckAndEscalateOverdue(ctx, cfg)

	// THEN the fresh stage entry escalates again
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Escalated)
	assert.Len(t, overdueNotifications(notifier), 1)
}
