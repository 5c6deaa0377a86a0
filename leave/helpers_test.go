package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func newTestService(t *testing.T) (*leave.Service, *sqlite.Store) {
	store := newTestStore(t)
	svc := leave.NewService(store, store, leave.NopNotifier{}, quietLog())
	return svc, store
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func days(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// =============================================================================
// SEED DATA
// =============================================================================

func annualLeaveType() leave.LeaveType {
	return leave.LeaveType{
		ID:         "lt-annual",
		Code:       "ANNUAL",
		Name:       "Annual Leave",
		Paid:       true,
		Deductible: true,
		Active:     true,
		Policy: leave.LeavePolicy{
			AccrualMethod:       leave.AccrualMonthly,
			MonthlyRate:         days(1.5),
			Rounding:            leave.RoundNearest,
			CarryForwardAllowed: true,
			MaxCarryForward:     days(5),
			ExpiryAfterMonths:   3,
		},
	}
}

func seedLeaveType(t *testing.T, store *sqlite.Store, lt leave.LeaveType) {
	require.NoError(t, store.SaveLeaveType(context.Background(), lt))
}

func seedEmployee(t *testing.T, store *sqlite.Store, id leave.EmployeeID, managerID leave.EmployeeID, hired time.Time) {
	require.NoError(t, store.SaveEmployee(context.Background(), leave.Employee{
		ID:        id,
		Name:      string(id),
		HireDate:  hired,
		ManagerID: managerID,
		Active:    true,
	}))
}

// seedBalance opens an entitlement and credits it a spendable balance
// through a manual adjustment, the way HR would seed a mid-year joiner.
func seedBalance(t *testing.T, svc *leave.Service, key leave.EntitlementKey, balance float64) {
	ctx := context.Background()
	_, err := svc.AssignEntitlement(ctx, key, days(balance))
	require.NoError(t, err)
	if balance > 0 {
		_, err = svc.Ledger.ManualAdjust(ctx, key, days(balance), "opening balance", "hr-1", false)
		require.NoError(t, err)
	}
}

var (
	hrActor      = leave.Actor{ID: "hr-1", Role: leave.RoleHR}
	managerActor = leave.Actor{ID: "mgr-1", Role: leave.RoleManager}
)

func employeeActor(id leave.EmployeeID) leave.Actor {
	return leave.Actor{ID: string(id), Role: leave.RoleEmployee}
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	sent []leave.Notification
}

func (r *recordingNotifier) Send(_ context.Context, n leave.Notification) {
	r.sent = append(r.sent, n)
}
